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

// Package generator produces synthetic booking and payment events, for
// demos and load tests. Payments trail their booking by a randomized
// delay; a configurable fraction is pushed beyond the join window to
// exercise the unmatched paths.
package generator

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
	"github.com/ticketfuse/ticketfuse/pkg/sources"
)

var eventNames = []string{
	"Rock Concert", "Jazz Gig", "Classical Symphony", "Indie Festival",
	"Standup Special", "Hamlet Theatre Night", "City Ballet",
	"IPL Cricket Final", "Premier Football Match", "Cloud Conference",
	"Startup Summit", "Street Food Expo",
}

var locations = []string{
	"Bengaluru", "Mumbai", "Delhi", "Hyderabad", "Chennai", "Pune",
}

var paymentMethods = []string{
	"Credit Card", "Debit Card", "UPI", "Wallet", "Net Banking", "Gift Voucher",
}

// Builder builds randomized booking/payment pairs.
type Builder struct {
	rng *rand.Rand
	mu  sync.Mutex
	seq int
}

// NewBuilder returns a Builder seeded for reproducible sequences.
func NewBuilder(seed int64) *Builder {
	return &Builder{rng: rand.New(rand.NewSource(seed))}
}

// Booking builds a booking with 1 to 4 seats at the given time.
func (b *Builder) Booking(now time.Time) *events.BookingEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	seatCount := 1 + b.rng.Intn(4)
	seats := make([]events.Seat, seatCount)
	row := string(rune('A' + b.rng.Intn(10)))
	for i := range seats {
		seats[i] = events.Seat{
			SeatNumber: fmt.Sprintf("%s%d", row, 1+i),
			Price:      float64(50 + b.rng.Intn(251)),
		}
	}
	eventIdx := b.rng.Intn(len(eventNames))
	return &events.BookingEvent{
		OrderID:     fmt.Sprintf("order_%d_%s", b.seq, uuid.NewString()[:8]),
		BookingTime: now.UTC(),
		Customer: events.Customer{
			ID:    fmt.Sprintf("cust_%d", 1+b.rng.Intn(5000)),
			Name:  fmt.Sprintf("Customer %d", 1+b.rng.Intn(5000)),
			Email: fmt.Sprintf("customer%d@example.com", 1+b.rng.Intn(5000)),
		},
		EventDetails: events.EventDetails{
			EventID:   fmt.Sprintf("evt_%d", eventIdx+1),
			EventName: eventNames[eventIdx],
			Location:  locations[b.rng.Intn(len(locations))],
			Seats:     seats,
		},
	}
}

// PaymentFor builds the payment of a booking at the given time, with
// the amount covering all of the booking's seats.
func (b *Builder) PaymentFor(booking *events.BookingEvent, at time.Time) *events.PaymentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var amount float64
	for _, s := range booking.EventDetails.Seats {
		amount += s.Price
	}
	return &events.PaymentEvent{
		PaymentID:     fmt.Sprintf("pay_%s", uuid.NewString()[:12]),
		OrderID:       booking.OrderID,
		PaymentTime:   at.UTC(),
		Amount:        amount,
		PaymentMethod: paymentMethods[b.rng.Intn(len(paymentMethods))],
		PaymentStatus: "SUCCESS",
	}
}

// memSource feeds generated events straight into the pipeline without a
// broker in between.
type memSource struct {
	name         string
	pipelineName string
	builder      *Builder
	out          chan<- *sources.RawMessage
	logger       *zap.SugaredLogger
	rate         int
	maxDelay     time.Duration
	lateFraction float64
	window       time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
	stopOnce     sync.Once
}

type Option func(*memSource) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *memSource) error {
		o.logger = l
		return nil
	}
}

// WithRate sets how many bookings are generated per second
func WithRate(r int) Option {
	return func(o *memSource) error {
		if r <= 0 {
			return fmt.Errorf("rate must be positive, got %d", r)
		}
		o.rate = r
		return nil
	}
}

// WithLateFraction sets the fraction of payments delayed beyond the window
func WithLateFraction(f float64) Option {
	return func(o *memSource) error {
		if f < 0 || f > 1 {
			return fmt.Errorf("late fraction must be within [0,1], got %v", f)
		}
		o.lateFraction = f
		return nil
	}
}

// WithWindow tells the generator the join window so late payments land beyond it
func WithWindow(w time.Duration) Option {
	return func(o *memSource) error {
		o.window = w
		return nil
	}
}

// pendingPayment is a generated payment waiting for its due time.
type pendingPayment struct {
	due     time.Time
	payload []byte
}

// New returns an in-memory generator source.
func New(pipelineName string, out chan<- *sources.RawMessage, opts ...Option) (sources.Sourcer, error) {
	g := &memSource{
		name:         "generator",
		pipelineName: pipelineName,
		builder:      NewBuilder(time.Now().UnixNano()),
		out:          out,
		logger:       logging.NewLogger(),
		rate:         5,
		maxDelay:     90 * time.Second,
		lateFraction: 0.05,
		window:       2 * time.Minute,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, o := range opts {
		if err := o(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("source", g.name)
	return g, nil
}

func (g *memSource) GetName() string {
	return g.name
}

func (g *memSource) Start() error {
	interval := time.Second / time.Duration(g.rate)
	go func() {
		defer close(g.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var pending []*pendingPayment
		for {
			select {
			case <-g.stopCh:
				return
			case now := <-ticker.C:
				booking, payment := g.next(now)
				g.out <- &sources.RawMessage{Stream: events.StreamBooking, Payload: booking.payload, EventTime: now}
				pending = append(pending, payment)
				kept := pending[:0]
				for _, pp := range pending {
					if pp.due.After(now) {
						kept = append(kept, pp)
						continue
					}
					g.out <- &sources.RawMessage{Stream: events.StreamPayment, Payload: pp.payload, EventTime: now}
				}
				pending = kept
			}
		}
	}()
	return nil
}

// next builds one booking and schedules its payment.
func (g *memSource) next(now time.Time) (*pendingPayment, *pendingPayment) {
	booking := g.builder.Booking(now)
	delay := time.Duration(rand.Int63n(int64(g.maxDelay)))
	if rand.Float64() < g.lateFraction {
		// push it out of the window on purpose
		delay = g.window + g.maxDelay
	}
	payment := g.builder.PaymentFor(booking, now.Add(delay))
	bookingPayload, err := json.Marshal(booking)
	if err != nil {
		g.logger.Panicw("Failed to marshal generated booking", zap.Error(err))
	}
	paymentPayload, err := json.Marshal(payment)
	if err != nil {
		g.logger.Panicw("Failed to marshal generated payment", zap.Error(err))
	}
	return &pendingPayment{payload: bookingPayload},
		&pendingPayment{due: now.Add(delay), payload: paymentPayload}
}

func (g *memSource) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
	})
	<-g.doneCh
}

func (g *memSource) Close() error {
	return nil
}
