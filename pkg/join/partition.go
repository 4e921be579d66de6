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

package join

import (
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	metricspkg "github.com/ticketfuse/ticketfuse/pkg/metrics"
)

// bookingEntry is a buffered seat line item waiting for its payment.
type bookingEntry struct {
	item *events.SeatLineItem
	// deadline is event-time based: EventTime + window + grace.
	deadline time.Time
	matched  bool
}

// paymentEntry is a buffered payment. It only needs to cover clock skew
// and out-of-order arrival, so its deadline is EventTime + grace.
type paymentEntry struct {
	payment  *events.PaymentEvent
	deadline time.Time
	matched  bool
}

// partition owns the pair of per-order buffers for a shard of the order
// id space. Only one partition ever touches a given order_id, so there
// is no cross-partition coordination.
type partition struct {
	pipelineName string
	idx          string

	// mu guards the buffers and dedup caches. It is never held while
	// waiting on the output channel.
	mu       sync.Mutex
	bookings map[string][]*bookingEntry
	payments map[string][]*paymentEntry

	// seenSeats dedups booking line items by order_id+seat_number,
	// seenPayments dedups payments by payment_id, and emitted dedups
	// join results so replays never re-emit.
	seenSeats    *lru.Cache[string, struct{}]
	seenPayments *lru.Cache[string, struct{}]
	emitted      *lru.Cache[string, struct{}]

	// emitMu serializes sends to out so that records of the same order
	// leave in the order their matching trigger arrived. It is acquired
	// before mu is released (hand-over-hand), and a slow consumer only
	// backpressures this partition.
	emitMu sync.Mutex
	out    chan<- *events.JoinedRecord

	window time.Duration
	grace  time.Duration
	logger *zap.SugaredLogger
}

func newPartition(pipelineName string, idx int, out chan<- *events.JoinedRecord, opts *options, logger *zap.SugaredLogger) (*partition, error) {
	seenSeats, err := lru.New[string, struct{}](opts.dedupCacheSize)
	if err != nil {
		return nil, err
	}
	seenPayments, err := lru.New[string, struct{}](opts.dedupCacheSize)
	if err != nil {
		return nil, err
	}
	emitted, err := lru.New[string, struct{}](opts.dedupCacheSize)
	if err != nil {
		return nil, err
	}
	return &partition{
		pipelineName: pipelineName,
		idx:          strconv.Itoa(idx),
		bookings:     make(map[string][]*bookingEntry),
		payments:     make(map[string][]*paymentEntry),
		seenSeats:    seenSeats,
		seenPayments: seenPayments,
		emitted:      emitted,
		out:          out,
		window:       opts.window,
		grace:        opts.grace,
		logger:       logger.With("partition", idx),
	}, nil
}

// withinWindow reports whether a booking at tb and a payment at tp are
// a valid join, i.e. 0 <= tp-tb <= window, inclusive at both ends.
func (p *partition) withinWindow(tb, tp time.Time) bool {
	diff := tp.Sub(tb)
	return diff >= 0 && diff <= p.window
}

// offerLineItem scans the payment buffer for in-window payments of the
// same order and emits a joined record for every match. If no payment
// matched, the line item is buffered until its expiry deadline.
func (p *partition) offerLineItem(item *events.SeatLineItem) {
	dedupKey := item.OrderID + "/" + item.SeatNumber

	p.mu.Lock()
	if ok, _ := p.seenSeats.ContainsOrAdd(dedupKey, struct{}{}); ok {
		p.mu.Unlock()
		duplicateLineItemCount.WithLabelValues(p.pipelineName).Inc()
		return
	}

	var joined []*events.JoinedRecord
	for _, pe := range p.payments[item.OrderID] {
		if !p.withinWindow(item.EventTime, pe.payment.EventTime) {
			continue
		}
		pe.matched = true
		if r := p.join(item, pe.payment); r != nil {
			joined = append(joined, r)
		}
	}
	if len(joined) == 0 {
		p.bookings[item.OrderID] = append(p.bookings[item.OrderID], &bookingEntry{
			item:     item,
			deadline: item.EventTime.Add(p.window + p.grace),
		})
		bufferedBookings.WithLabelValues(p.pipelineName, p.idx).Inc()
	}
	p.emitMu.Lock()
	p.mu.Unlock()
	p.emit(joined)
	p.emitMu.Unlock()
}

// offerPayment scans the booking buffer for in-window line items of the
// same order and emits a joined record for each, without removing them;
// later payments of the same order may still need them. The payment is
// always buffered (deduplicated by payment_id) so that late-arriving
// line items of the same order can still match it.
func (p *partition) offerPayment(payment *events.PaymentEvent) {
	p.mu.Lock()
	if ok, _ := p.seenPayments.ContainsOrAdd(payment.PaymentID, struct{}{}); ok {
		p.mu.Unlock()
		duplicatePaymentCount.WithLabelValues(p.pipelineName).Inc()
		return
	}

	var joined []*events.JoinedRecord
	entry := &paymentEntry{
		payment:  payment,
		deadline: payment.EventTime.Add(p.grace),
	}
	for _, be := range p.bookings[payment.OrderID] {
		if !p.withinWindow(be.item.EventTime, payment.EventTime) {
			continue
		}
		be.matched = true
		entry.matched = true
		if r := p.join(be.item, payment); r != nil {
			joined = append(joined, r)
		}
	}
	p.payments[payment.OrderID] = append(p.payments[payment.OrderID], entry)
	bufferedPayments.WithLabelValues(p.pipelineName, p.idx).Inc()
	p.emitMu.Lock()
	p.mu.Unlock()
	p.emit(joined)
	p.emitMu.Unlock()
}

// join builds the flattened record, unless the same (payment, seat)
// combination has already been emitted.
func (p *partition) join(item *events.SeatLineItem, payment *events.PaymentEvent) *events.JoinedRecord {
	emitKey := payment.PaymentID + "/" + item.OrderID + "/" + item.SeatNumber
	if ok, _ := p.emitted.ContainsOrAdd(emitKey, struct{}{}); ok {
		return nil
	}
	return &events.JoinedRecord{
		OrderID:          item.OrderID,
		BookingTime:      item.BookingTime,
		CustomerID:       item.CustomerID,
		CustomerName:     item.CustomerName,
		CustomerEmail:    item.CustomerEmail,
		EventID:          item.EventID,
		EventName:        item.EventName,
		Location:         item.Location,
		SeatNumber:       item.SeatNumber,
		SeatPrice:        item.SeatPrice,
		EventCategory:    item.EventCategory,
		BookingDayOfWeek: item.BookingDayOfWeek,
		BookingHour:      item.BookingHour,
		PaymentID:        payment.PaymentID,
		PaymentTime:      payment.PaymentTime,
		Amount:           payment.Amount,
		PaymentMethod:    payment.PaymentMethod,
		PaymentType:      payment.PaymentType,
		BookingEventTime: item.EventTime,
		PaymentEventTime: payment.EventTime,
	}
}

func (p *partition) emit(records []*events.JoinedRecord) {
	for _, r := range records {
		p.out <- r
		metricspkg.JoinedRecordsCount.WithLabelValues(p.pipelineName).Inc()
	}
}

// sweep drops entries past their expiry deadline. Entries which never
// matched are reported, operators need visibility into dropped data.
func (p *partition) sweep(now time.Time) (expiredBookings, expiredPayments int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for order, entries := range p.bookings {
		kept := entries[:0]
		for _, be := range entries {
			if be.deadline.After(now) {
				kept = append(kept, be)
				continue
			}
			bufferedBookings.WithLabelValues(p.pipelineName, p.idx).Dec()
			if !be.matched {
				expiredBookings++
				unmatchedBookingCount.WithLabelValues(p.pipelineName).Inc()
				p.logger.Debugw("Booking line item expired unmatched",
					zap.String("order_id", be.item.OrderID), zap.String("seat_number", be.item.SeatNumber))
			}
		}
		if len(kept) == 0 {
			delete(p.bookings, order)
		} else {
			p.bookings[order] = kept
		}
	}
	for order, entries := range p.payments {
		kept := entries[:0]
		for _, pe := range entries {
			if pe.deadline.After(now) {
				kept = append(kept, pe)
				continue
			}
			bufferedPayments.WithLabelValues(p.pipelineName, p.idx).Dec()
			if !pe.matched {
				expiredPayments++
				unmatchedPaymentCount.WithLabelValues(p.pipelineName).Inc()
				p.logger.Debugw("Payment expired unmatched",
					zap.String("order_id", pe.payment.OrderID), zap.String("payment_id", pe.payment.PaymentID))
			}
		}
		if len(kept) == 0 {
			delete(p.payments, order)
		} else {
			p.payments[order] = kept
		}
	}
	return expiredBookings, expiredPayments
}

// drain discards all buffered state, reporting never-matched entries
// through the same unmatched accounting as a normal expiry. Used on
// shutdown.
func (p *partition) drain() (unmatchedBookings, unmatchedPayments int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entries := range p.bookings {
		for _, be := range entries {
			bufferedBookings.WithLabelValues(p.pipelineName, p.idx).Dec()
			if !be.matched {
				unmatchedBookings++
				unmatchedBookingCount.WithLabelValues(p.pipelineName).Inc()
			}
		}
	}
	for _, entries := range p.payments {
		for _, pe := range entries {
			bufferedPayments.WithLabelValues(p.pipelineName, p.idx).Dec()
			if !pe.matched {
				unmatchedPayments++
				unmatchedPaymentCount.WithLabelValues(p.pipelineName).Inc()
			}
		}
	}
	p.bookings = make(map[string][]*bookingEntry)
	p.payments = make(map[string][]*paymentEntry)
	return unmatchedBookings, unmatchedPayments
}
