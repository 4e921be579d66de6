/*
Copyright 2023 The Ticketfuse Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package emitter drains joined records into a sink with batching and
// bounded retries. A write that stays retryable after the backoff is
// exhausted is surfaced as a fatal error, a non-retryable write drops
// the record and keeps going.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/metrics"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
	"github.com/ticketfuse/ticketfuse/pkg/sinks"
)

// Emitter batches joined records and writes them to one sink.
type Emitter struct {
	pipelineName  string
	sink          sinks.Sink
	in            chan *events.JoinedRecord
	fatalCh       chan error
	batchSize     int
	flushInterval time.Duration
	backoff       wait.Backoff
	logger        *zap.SugaredLogger
	stopCh        chan struct{}
	doneCh        chan struct{}
	stopOnce      sync.Once
}

type Option func(*Emitter) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Emitter) error {
		o.logger = l
		return nil
	}
}

// WithBatchSize sets the number of records flushed per sink write
func WithBatchSize(n int) Option {
	return func(o *Emitter) error {
		if n <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		o.batchSize = n
		return nil
	}
}

// WithFlushInterval sets how long a partial batch may sit before it is flushed
func WithFlushInterval(d time.Duration) Option {
	return func(o *Emitter) error {
		if d <= 0 {
			return fmt.Errorf("flush interval must be positive, got %v", d)
		}
		o.flushInterval = d
		return nil
	}
}

// WithBufferSize sets the capacity of the inbound record channel
func WithBufferSize(n int) Option {
	return func(o *Emitter) error {
		if n <= 0 {
			return fmt.Errorf("buffer size must be positive, got %d", n)
		}
		o.in = make(chan *events.JoinedRecord, n)
		return nil
	}
}

// WithBackoff overrides the retry backoff applied to retryable sink failures
func WithBackoff(b wait.Backoff) Option {
	return func(o *Emitter) error {
		o.backoff = b
		return nil
	}
}

// New returns an emitter writing to the given sink.
func New(pipelineName string, sink sinks.Sink, opts ...Option) (*Emitter, error) {
	e := &Emitter{
		pipelineName:  pipelineName,
		sink:          sink,
		in:            make(chan *events.JoinedRecord, 1024),
		fatalCh:       make(chan error, 1),
		batchSize:     100,
		flushInterval: time.Second,
		backoff: wait.Backoff{
			Steps:    5,
			Duration: 100 * time.Millisecond,
			Factor:   2.0,
			Jitter:   0.1,
		},
		logger: logging.NewLogger(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, o := range opts {
		if err := o(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("emitter", sink.GetName())
	return e, nil
}

// In returns the channel joined records are pushed into. Sends block
// when the emitter falls behind, which is the backpressure boundary of
// the pipeline.
func (e *Emitter) In() chan<- *events.JoinedRecord {
	return e.in
}

// FatalErrors surfaces writes that stayed retryable after the backoff
// was exhausted.
func (e *Emitter) FatalErrors() <-chan error {
	return e.fatalCh
}

// Start begins the flush loop.
func (e *Emitter) Start(ctx context.Context) error {
	go e.run(ctx)
	return nil
}

func (e *Emitter) run(ctx context.Context) {
	defer close(e.doneCh)
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()
	batch := make([]*events.JoinedRecord, 0, e.batchSize)
	for {
		select {
		case r := <-e.in:
			batch = append(batch, r)
			if len(batch) >= e.batchSize {
				e.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				e.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-e.stopCh:
			// drain what was queued before the stop signal
			for {
				select {
				case r := <-e.in:
					batch = append(batch, r)
					if len(batch) >= e.batchSize {
						e.flush(ctx, batch)
						batch = batch[:0]
					}
				default:
					if len(batch) > 0 {
						e.flush(ctx, batch)
					}
					return
				}
			}
		}
	}
}

// flush writes a batch, retrying the retryable failures with backoff.
func (e *Emitter) flush(ctx context.Context, batch []*events.JoinedRecord) {
	remaining := batch
	err := wait.ExponentialBackoff(e.backoff, func() (bool, error) {
		errs := e.sink.Write(ctx, remaining)
		var retry []*events.JoinedRecord
		for i, werr := range errs {
			if werr == nil {
				metrics.WriteMessagesCount.WithLabelValues(e.pipelineName, e.sink.GetName()).Inc()
				continue
			}
			metrics.WriteErrorsCount.WithLabelValues(e.pipelineName, e.sink.GetName()).Inc()
			var sinkErr *sinks.SinkError
			if errors.As(werr, &sinkErr) && !sinkErr.Retryable {
				emitterDroppedCount.WithLabelValues(e.pipelineName, e.sink.GetName()).Inc()
				e.logger.Errorw("Dropping record after non-retryable write failure", zap.Error(werr), zap.String("orderID", remaining[i].OrderID))
				continue
			}
			retry = append(retry, remaining[i])
		}
		if len(retry) == 0 {
			return true, nil
		}
		emitterRetryCount.WithLabelValues(e.pipelineName, e.sink.GetName()).Inc()
		e.logger.Warnw("Retrying failed sink writes", zap.Int("failedCount", len(retry)))
		remaining = retry
		return false, nil
	})
	if err != nil {
		fatal := fmt.Errorf("sink %s kept failing after retries, %d records stuck: %w", e.sink.GetName(), len(remaining), err)
		select {
		case e.fatalCh <- fatal:
		default:
		}
	}
}

// Stop flushes whatever was queued and stops the flush loop.
func (e *Emitter) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	<-e.doneCh
}
