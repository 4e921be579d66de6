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

// Package join implements the windowed booking/payment join. A booking
// line item at tb and a payment at tp of the same order match iff
// 0 <= tp-tb <= window, inclusive at both ends. One payment fans out to
// every in-window line item of its order. State is sharded into
// partitions keyed by a hash of order_id, each owning its own buffers
// and swept for expiry on a periodic tick.
package join

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
)

// Engine is the windowed join engine. Both ingestion paths may call
// OfferLineItem/OfferPayment concurrently.
type Engine struct {
	pipelineName string
	partitions   []*partition
	opts         *options
	logger       *zap.SugaredLogger
	stopCh       chan struct{}
	doneCh       chan struct{}
	stopOnce     sync.Once
}

// NewEngine returns an Engine emitting joined records to out. The
// caller owns out and must keep consuming it until Stop returns.
func NewEngine(ctx context.Context, pipelineName string, out chan<- *events.JoinedRecord, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			if err := opt(o); err != nil {
				return nil, err
			}
		}
	}
	logger := logging.FromContext(ctx).With("pipeline", pipelineName)
	e := &Engine{
		pipelineName: pipelineName,
		partitions:   make([]*partition, o.partitionCount),
		opts:         o,
		logger:       logger,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for i := range e.partitions {
		p, err := newPartition(pipelineName, i, out, o, logger)
		if err != nil {
			return nil, err
		}
		e.partitions[i] = p
	}
	return e, nil
}

// Start launches the expiry sweeper.
func (e *Engine) Start() {
	go func() {
		defer close(e.doneCh)
		ticker := time.NewTicker(e.opts.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stopCh:
				return
			case <-ticker.C:
				e.SweepOnce(e.opts.now())
			}
		}
	}()
}

// Stop terminates the sweeper and waits for it to exit. Buffered state
// is left untouched; call Drain to account for it.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	<-e.doneCh
}

// OfferLineItem routes a seat line item to its partition.
func (e *Engine) OfferLineItem(item *events.SeatLineItem) {
	e.partitionFor(item.OrderID).offerLineItem(item)
}

// OfferPayment routes a payment to its partition.
func (e *Engine) OfferPayment(payment *events.PaymentEvent) {
	e.partitionFor(payment.OrderID).offerPayment(payment)
}

// SweepOnce runs one expiry pass over every partition with the given
// clock reading and returns how many never-matched bookings/payments
// were dropped. Exposed so tests can drive simulated time.
func (e *Engine) SweepOnce(now time.Time) (expiredBookings, expiredPayments int) {
	for _, p := range e.partitions {
		eb, ep := p.sweep(now)
		expiredBookings += eb
		expiredPayments += ep
	}
	if expiredBookings > 0 || expiredPayments > 0 {
		e.logger.Infow("Expired unmatched records",
			zap.Int("bookings", expiredBookings), zap.Int("payments", expiredPayments))
	}
	return expiredBookings, expiredPayments
}

// Drain discards all remaining buffered state, reporting never-matched
// entries through the unmatched accounting. Used on shutdown, after
// both ingestion paths have stopped.
func (e *Engine) Drain() (unmatchedBookings, unmatchedPayments int) {
	for _, p := range e.partitions {
		ub, up := p.drain()
		unmatchedBookings += ub
		unmatchedPayments += up
	}
	if unmatchedBookings > 0 || unmatchedPayments > 0 {
		e.logger.Infow("Discarded buffered state on shutdown",
			zap.Int("bookings", unmatchedBookings), zap.Int("payments", unmatchedPayments))
	}
	return unmatchedBookings, unmatchedPayments
}

// partitionFor shards by a hash of the order id, only one partition
// ever touches a given order.
func (e *Engine) partitionFor(orderID string) *partition {
	return e.partitions[xxhash.Sum64String(orderID)%uint64(len(e.partitions))]
}
