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

package decoder

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
)

// DecodeError indicates a malformed input message. Messages failing with
// a DecodeError are dropped and counted, never forwarded downstream.
type DecodeError struct {
	Stream events.StreamTag
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s message: %s", e.Stream, e.Reason)
}

// Decoder parses raw messages into typed booking/payment records.
type Decoder struct {
	pipelineName string
	logger       *zap.SugaredLogger
}

type Option func(*Decoder) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(d *Decoder) error {
		d.logger = l
		return nil
	}
}

// New returns a Decoder for the given pipeline.
func New(pipelineName string, opts ...Option) (*Decoder, error) {
	d := &Decoder{
		pipelineName: pipelineName,
		logger:       logging.NewLogger(),
	}
	for _, o := range opts {
		if err := o(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// DecodeBooking parses a raw booking payload. The fallback time is used
// as the windowing event time when the payload carries no booking_time,
// typically the broker timestamp of the message. Returned events always
// have a non-zero, UTC-normalized EventTime and a non-empty seat list.
func (d *Decoder) DecodeBooking(payload []byte, fallback time.Time) (*events.BookingEvent, error) {
	var b events.BookingEvent
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, d.reject(events.StreamBooking, err.Error())
	}
	if b.OrderID == "" {
		return nil, d.reject(events.StreamBooking, "missing order_id")
	}
	if len(b.EventDetails.Seats) == 0 {
		return nil, d.reject(events.StreamBooking, "empty seats list")
	}
	for i, s := range b.EventDetails.Seats {
		if s.SeatNumber == "" {
			return nil, d.reject(events.StreamBooking, fmt.Sprintf("seat %d has no seat_number", i))
		}
	}
	if b.BookingTime.IsZero() {
		b.EventTime = fallback.UTC()
	} else {
		// producers may emit local time, normalize before windowing
		b.EventTime = b.BookingTime.UTC()
	}
	decodeCount.WithLabelValues(d.pipelineName, string(events.StreamBooking)).Inc()
	return &b, nil
}

// DecodePayment parses a raw payment payload, with the same fallback
// semantics as DecodeBooking.
func (d *Decoder) DecodePayment(payload []byte, fallback time.Time) (*events.PaymentEvent, error) {
	var p events.PaymentEvent
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, d.reject(events.StreamPayment, err.Error())
	}
	if p.PaymentID == "" {
		return nil, d.reject(events.StreamPayment, "missing payment_id")
	}
	if p.OrderID == "" {
		return nil, d.reject(events.StreamPayment, "missing order_id")
	}
	if p.PaymentTime.IsZero() {
		p.EventTime = fallback.UTC()
	} else {
		p.EventTime = p.PaymentTime.UTC()
	}
	decodeCount.WithLabelValues(d.pipelineName, string(events.StreamPayment)).Inc()
	return &p, nil
}

func (d *Decoder) reject(stream events.StreamTag, reason string) error {
	decodeErrorCount.WithLabelValues(d.pipelineName, string(stream)).Inc()
	d.logger.Debugw("Dropping malformed message", zap.String("stream", string(stream)), zap.String("reason", reason))
	return &DecodeError{Stream: stream, Reason: reason}
}
