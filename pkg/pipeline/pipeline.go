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

// Package pipeline wires sources, the decode/expand/derive stage, the
// join engine and the emitter into one runnable unit with an ordered
// shutdown: sources first, then the workers, then the engine, then the
// emitter, so nothing in flight is lost on a graceful stop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ticketfuse/ticketfuse/pkg/decoder"
	"github.com/ticketfuse/ticketfuse/pkg/deriver"
	"github.com/ticketfuse/ticketfuse/pkg/emitter"
	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/expander"
	"github.com/ticketfuse/ticketfuse/pkg/join"
	"github.com/ticketfuse/ticketfuse/pkg/metrics"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
	"github.com/ticketfuse/ticketfuse/pkg/sinks"
	"github.com/ticketfuse/ticketfuse/pkg/sources"
)

// Pipeline runs the booking/payment enrichment end to end.
type Pipeline struct {
	name     string
	srcs     []sources.Sourcer
	sink     sinks.Sink
	decoder  *decoder.Decoder
	deriver  *deriver.Deriver
	engine   *join.Engine
	emitter  *emitter.Emitter
	rawCh    chan *sources.RawMessage
	joinedCh chan *events.JoinedRecord
	workers  int
	joinOpts []join.Option
	emitOpts []emitter.Option
	logger   *zap.SugaredLogger

	workerWg    sync.WaitGroup
	forwardDone chan struct{}
	stopOnce    sync.Once
	started     bool
}

type Option func(*Pipeline) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Pipeline) error {
		o.logger = l
		return nil
	}
}

// WithWorkers sets the number of decode/derive workers
func WithWorkers(n int) Option {
	return func(o *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("workers must be positive, got %d", n)
		}
		o.workers = n
		return nil
	}
}

// WithBufferSize sets the capacity of the inbound raw message channel
func WithBufferSize(n int) Option {
	return func(o *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("buffer size must be positive, got %d", n)
		}
		o.rawCh = make(chan *sources.RawMessage, n)
		return nil
	}
}

// WithJoinOptions forwards options to the join engine
func WithJoinOptions(opts ...join.Option) Option {
	return func(o *Pipeline) error {
		o.joinOpts = append(o.joinOpts, opts...)
		return nil
	}
}

// WithEmitterOptions forwards options to the emitter
func WithEmitterOptions(opts ...emitter.Option) Option {
	return func(o *Pipeline) error {
		o.emitOpts = append(o.emitOpts, opts...)
		return nil
	}
}

// New returns a pipeline writing to the given sink. Sources are added
// afterwards with AddSource, sending into In().
func New(ctx context.Context, name string, sink sinks.Sink, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		name:        name,
		sink:        sink,
		rawCh:       make(chan *sources.RawMessage, 1024),
		joinedCh:    make(chan *events.JoinedRecord, 1024),
		workers:     4,
		logger:      logging.FromContext(ctx).With("pipeline", name),
		forwardDone: make(chan struct{}),
	}
	for _, o := range opts {
		if err := o(p); err != nil {
			return nil, err
		}
	}
	var err error
	if p.decoder, err = decoder.New(name, decoder.WithLogger(p.logger)); err != nil {
		return nil, err
	}
	p.deriver = deriver.New(name)
	if p.engine, err = join.NewEngine(ctx, name, p.joinedCh, p.joinOpts...); err != nil {
		return nil, err
	}
	if p.emitter, err = emitter.New(name, sink, append([]emitter.Option{emitter.WithLogger(p.logger)}, p.emitOpts...)...); err != nil {
		return nil, err
	}
	return p, nil
}

// In returns the channel sources push raw messages into.
func (p *Pipeline) In() chan<- *sources.RawMessage {
	return p.rawCh
}

// AddSource registers a source. Must be called before Start.
func (p *Pipeline) AddSource(s sources.Sourcer) error {
	if p.started {
		return errors.New("cannot add a source to a started pipeline")
	}
	p.srcs = append(p.srcs, s)
	return nil
}

// Start brings the stages up back to front so every stage has a running
// consumer before its producer starts.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.started {
		return errors.New("pipeline already started")
	}
	p.started = true
	if err := p.emitter.Start(ctx); err != nil {
		return fmt.Errorf("failed to start emitter, %w", err)
	}
	go p.forwardJoined()
	p.engine.Start()
	for i := 0; i < p.workers; i++ {
		p.workerWg.Add(1)
		go p.work()
	}
	for _, s := range p.srcs {
		if err := s.Start(); err != nil {
			return fmt.Errorf("failed to start source %s, %w", s.GetName(), err)
		}
		p.logger.Infow("Started source", zap.String("source", s.GetName()))
	}
	p.logger.Infow("Pipeline started", zap.Int("workers", p.workers), zap.String("sink", p.sink.GetName()))
	return nil
}

// forwardJoined moves joined records from the engine to the emitter.
func (p *Pipeline) forwardJoined() {
	defer close(p.forwardDone)
	for r := range p.joinedCh {
		p.emitter.In() <- r
	}
}

// work decodes, expands and derives raw messages, then offers the
// results to the join engine. Exits when the raw channel is closed.
func (p *Pipeline) work() {
	defer p.workerWg.Done()
	for m := range p.rawCh {
		metrics.ReadMessagesCount.WithLabelValues(p.name, string(m.Stream)).Inc()
		switch m.Stream {
		case events.StreamBooking:
			booking, err := p.decoder.DecodeBooking(m.Payload, m.EventTime)
			if err != nil {
				continue
			}
			for _, item := range expander.Expand(booking) {
				p.deriver.EnrichLineItem(item)
				p.engine.OfferLineItem(item)
			}
		case events.StreamPayment:
			payment, err := p.decoder.DecodePayment(m.Payload, m.EventTime)
			if err != nil {
				continue
			}
			p.deriver.EnrichPayment(payment)
			p.engine.OfferPayment(payment)
		default:
			p.logger.Warnw("Dropping message with unknown stream tag", zap.String("stream", string(m.Stream)))
		}
	}
}

// FatalErrors surfaces unrecoverable sink failures.
func (p *Pipeline) FatalErrors() <-chan error {
	return p.emitter.FatalErrors()
}

// Stop shuts the pipeline down front to back and flushes everything in
// flight. Buffered join state that never matched is discarded through
// the unmatched accounting.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("Stopping pipeline...")
		for _, s := range p.srcs {
			s.Stop()
		}
		close(p.rawCh)
		p.workerWg.Wait()
		p.engine.Stop()
		unmatchedBookings, unmatchedPayments := p.engine.Drain()
		close(p.joinedCh)
		<-p.forwardDone
		p.emitter.Stop()
		for _, s := range p.srcs {
			if err := s.Close(); err != nil {
				p.logger.Errorw("Failed to close source", zap.String("source", s.GetName()), zap.Error(err))
			}
		}
		if err := p.sink.Close(); err != nil {
			p.logger.Errorw("Failed to close sink", zap.Error(err))
		}
		p.logger.Infow("Pipeline stopped",
			zap.Int("unmatchedBookings", unmatchedBookings), zap.Int("unmatchedPayments", unmatchedPayments))
	})
}

// ForceStop shuts down without draining the join state: sources and
// workers are stopped, but buffered entries are discarded without the
// unmatched accounting and the emitter flushes only what it already
// holds.
func (p *Pipeline) ForceStop() {
	p.stopOnce.Do(func() {
		p.logger.Info("Force stopping pipeline...")
		for _, s := range p.srcs {
			s.Stop()
		}
		close(p.rawCh)
		p.workerWg.Wait()
		p.engine.Stop()
		close(p.joinedCh)
		<-p.forwardDone
		p.emitter.Stop()
		for _, s := range p.srcs {
			_ = s.Close()
		}
		if err := p.sink.Close(); err != nil {
			p.logger.Errorw("Failed to close sink", zap.Error(err))
		}
	})
}

// Run starts the pipeline and blocks until the context is cancelled or
// the sink fails fatally, then stops it.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-p.emitter.FatalErrors():
		p.logger.Errorw("Shutting down on fatal sink failure", zap.Error(runErr))
	}
	p.Stop()
	return runErr
}
