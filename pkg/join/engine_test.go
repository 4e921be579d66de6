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
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketfuse/ticketfuse/pkg/events"
)

var testEpoch = time.Date(2023, 8, 12, 10, 0, 0, 0, time.UTC)

func testLineItem(orderID, seatNumber string, at time.Time) *events.SeatLineItem {
	return &events.SeatLineItem{
		OrderID:     orderID,
		BookingTime: at,
		SeatNumber:  seatNumber,
		SeatPrice:   80,
		EventTime:   at,
	}
}

func testPayment(paymentID, orderID string, at time.Time, amount float64) *events.PaymentEvent {
	return &events.PaymentEvent{
		PaymentID:     paymentID,
		OrderID:       orderID,
		PaymentTime:   at,
		Amount:        amount,
		PaymentMethod: "UPI",
		PaymentType:   "Digital",
		EventTime:     at,
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, chan *events.JoinedRecord) {
	t.Helper()
	out := make(chan *events.JoinedRecord, 100)
	e, err := NewEngine(context.Background(), "test-pipeline", out, opts...)
	require.NoError(t, err)
	return e, out
}

func collect(out chan *events.JoinedRecord) []*events.JoinedRecord {
	var records []*events.JoinedRecord
	for {
		select {
		case r := <-out:
			records = append(records, r)
		default:
			return records
		}
	}
}

func TestJoinWithinWindow(t *testing.T) {
	e, out := newTestEngine(t)

	// booking order_1001 at t=0 with 2 seats, payment 90s later
	e.OfferLineItem(testLineItem("order_1001", "A1", testEpoch))
	e.OfferLineItem(testLineItem("order_1001", "A2", testEpoch))
	e.OfferPayment(testPayment("pay_2001", "order_1001", testEpoch.Add(90*time.Second), 160))

	records := collect(out)
	require.Len(t, records, 2)
	seats := map[string]bool{}
	for _, r := range records {
		assert.Equal(t, "order_1001", r.OrderID)
		assert.Equal(t, "pay_2001", r.PaymentID)
		assert.Equal(t, 160.0, r.Amount)
		assert.Equal(t, 90*time.Second, r.PaymentEventTime.Sub(r.BookingEventTime))
		seats[r.SeatNumber] = true
	}
	assert.True(t, seats["A1"])
	assert.True(t, seats["A2"])
}

func TestJoinOutOfWindow(t *testing.T) {
	e, out := newTestEngine(t, WithGrace(30*time.Second))

	// payment arrives 185s after the booking, past the 2 minute window
	e.OfferLineItem(testLineItem("order_1002", "B1", testEpoch))
	e.OfferPayment(testPayment("pay_2002", "order_1002", testEpoch.Add(185*time.Second), 80))

	assert.Empty(t, collect(out))

	// after window+grace both sides expire unmatched
	expiredBookings, expiredPayments := e.SweepOnce(testEpoch.Add(5 * time.Minute))
	assert.Equal(t, 1, expiredBookings)
	assert.Equal(t, 1, expiredPayments)
}

func TestJoinEqualTimestamps(t *testing.T) {
	e, out := newTestEngine(t)

	// window is inclusive at 0, identical timestamps match
	e.OfferLineItem(testLineItem("order_1", "A1", testEpoch))
	e.OfferPayment(testPayment("pay_1", "order_1", testEpoch, 80))

	assert.Len(t, collect(out), 1)
}

func TestJoinWindowBoundaryInclusive(t *testing.T) {
	e, out := newTestEngine(t)

	e.OfferLineItem(testLineItem("order_1", "A1", testEpoch))
	e.OfferPayment(testPayment("pay_1", "order_1", testEpoch.Add(2*time.Minute), 80))

	assert.Len(t, collect(out), 1)
}

func TestNoJoinPaymentBeforeBooking(t *testing.T) {
	e, out := newTestEngine(t)

	// a payment with an event time before the booking's never matches
	e.OfferPayment(testPayment("pay_1", "order_1", testEpoch, 80))
	e.OfferLineItem(testLineItem("order_1", "A1", testEpoch.Add(10*time.Second)))

	assert.Empty(t, collect(out))
}

func TestJoinOutOfOrderArrival(t *testing.T) {
	e, out := newTestEngine(t)

	// the payment arrives first, line items of the same order match it
	// when they show up later
	e.OfferPayment(testPayment("pay_1", "order_1", testEpoch.Add(time.Minute), 240))
	e.OfferLineItem(testLineItem("order_1", "A1", testEpoch))
	e.OfferLineItem(testLineItem("order_1", "A2", testEpoch))
	e.OfferLineItem(testLineItem("order_1", "A3", testEpoch))

	records := collect(out)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, "pay_1", r.PaymentID)
	}
}

func TestDuplicatePaymentDropped(t *testing.T) {
	e, out := newTestEngine(t)

	e.OfferLineItem(testLineItem("order_1", "A1", testEpoch))
	e.OfferLineItem(testLineItem("order_1", "A2", testEpoch))
	payment := testPayment("pay_1", "order_1", testEpoch.Add(time.Minute), 160)
	e.OfferPayment(payment)
	e.OfferPayment(payment)

	// duplicate payment must not re-emit beyond the one-per-seat fan-out
	assert.Len(t, collect(out), 2)
}

func TestReplayedLineItemDoesNotReemit(t *testing.T) {
	e, out := newTestEngine(t)

	e.OfferPayment(testPayment("pay_1", "order_1", testEpoch.Add(time.Minute), 80))
	item := testLineItem("order_1", "A1", testEpoch)
	e.OfferLineItem(item)
	e.OfferLineItem(item)

	assert.Len(t, collect(out), 1)
}

func TestMatchedEntriesNotReportedUnmatched(t *testing.T) {
	e, out := newTestEngine(t)

	e.OfferLineItem(testLineItem("order_1", "A1", testEpoch))
	e.OfferPayment(testPayment("pay_1", "order_1", testEpoch.Add(time.Minute), 80))
	require.Len(t, collect(out), 1)

	expiredBookings, expiredPayments := e.SweepOnce(testEpoch.Add(time.Hour))
	assert.Zero(t, expiredBookings)
	assert.Zero(t, expiredPayments)
}

func TestSweepKeepsUnexpiredEntries(t *testing.T) {
	e, out := newTestEngine(t, WithGrace(30*time.Second))

	e.OfferLineItem(testLineItem("order_1", "A1", testEpoch))
	// deadline is event time + window + grace = t+150s
	expired, _ := e.SweepOnce(testEpoch.Add(149 * time.Second))
	assert.Zero(t, expired)

	// a late payment still in window finds the buffered line item
	e.OfferPayment(testPayment("pay_1", "order_1", testEpoch.Add(2*time.Minute), 80))
	assert.Len(t, collect(out), 1)
}

func TestLatePaymentForSecondSeatUsesRetainedBooking(t *testing.T) {
	e, out := newTestEngine(t)

	// booking entries are not removed on match, a second payment of the
	// same order can still fan out to them
	e.OfferLineItem(testLineItem("order_1", "A1", testEpoch))
	e.OfferLineItem(testLineItem("order_1", "A2", testEpoch))
	e.OfferPayment(testPayment("pay_1", "order_1", testEpoch.Add(30*time.Second), 160))
	require.Len(t, collect(out), 2)

	e.OfferPayment(testPayment("pay_2", "order_1", testEpoch.Add(60*time.Second), 160))
	records := collect(out)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "pay_2", r.PaymentID)
	}
}

func TestDrainReportsRemainingState(t *testing.T) {
	e, _ := newTestEngine(t)

	for i := 0; i < 5; i++ {
		e.OfferLineItem(testLineItem(fmt.Sprintf("order_%d", i), "A1", testEpoch))
	}
	e.OfferPayment(testPayment("pay_x", "order_no_booking", testEpoch, 80))

	unmatchedBookings, unmatchedPayments := e.Drain()
	assert.Equal(t, 5, unmatchedBookings)
	assert.Equal(t, 1, unmatchedPayments)

	// second drain finds nothing
	unmatchedBookings, unmatchedPayments = e.Drain()
	assert.Zero(t, unmatchedBookings)
	assert.Zero(t, unmatchedPayments)
}

func TestPartitionRoutingIsStable(t *testing.T) {
	e, _ := newTestEngine(t, WithPartitionCount(4))
	for i := 0; i < 100; i++ {
		orderID := fmt.Sprintf("order_%d", i)
		p := e.partitionFor(orderID)
		for j := 0; j < 10; j++ {
			assert.Same(t, p, e.partitionFor(orderID))
		}
	}
}

func TestConcurrentOffer(t *testing.T) {
	out := make(chan *events.JoinedRecord, 10000)
	e, err := NewEngine(context.Background(), "test-pipeline", out, WithPartitionCount(8))
	require.NoError(t, err)

	const orders = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < orders; i++ {
			e.OfferLineItem(testLineItem(fmt.Sprintf("order_%d", i), "A1", testEpoch))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < orders; i++ {
			e.OfferPayment(testPayment(fmt.Sprintf("pay_%d", i), fmt.Sprintf("order_%d", i), testEpoch.Add(time.Minute), 80))
		}
	}()
	wg.Wait()

	assert.Len(t, collect(out), orders)
}

func TestEngineStartStop(t *testing.T) {
	out := make(chan *events.JoinedRecord, 10)
	e, err := NewEngine(context.Background(), "test-pipeline", out,
		WithSweepInterval(time.Millisecond),
		WithClock(func() time.Time { return testEpoch }))
	require.NoError(t, err)

	e.OfferLineItem(testLineItem("order_1", "A1", testEpoch))
	e.Start()
	time.Sleep(10 * time.Millisecond)
	e.Stop()

	// the frozen clock never reaches the deadline, the entry survives
	// every sweeper tick and is still there to drain
	unmatchedBookings, _ := e.Drain()
	assert.Equal(t, 1, unmatchedBookings)
}

func TestOptionValidation(t *testing.T) {
	out := make(chan *events.JoinedRecord, 1)
	_, err := NewEngine(context.Background(), "p", out, WithWindow(0))
	assert.Error(t, err)
	_, err = NewEngine(context.Background(), "p", out, WithPartitionCount(0))
	assert.Error(t, err)
	_, err = NewEngine(context.Background(), "p", out, WithGrace(-time.Second))
	assert.Error(t, err)
}
