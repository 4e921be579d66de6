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

package events

import (
	"time"
)

// StreamTag identifies which of the two input streams a raw message belongs to.
type StreamTag string

const (
	StreamBooking StreamTag = "booking"
	StreamPayment StreamTag = "payment"
)

// Customer is the customer block of a booking event.
type Customer struct {
	ID    string `json:"customer_id"`
	Name  string `json:"customer_name"`
	Email string `json:"customer_email"`
}

// Seat is one entry of the seats list of a booking event.
type Seat struct {
	SeatNumber string  `json:"seat_number"`
	Price      float64 `json:"price"`
}

// EventDetails is the event block of a booking event.
type EventDetails struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	Location  string `json:"location"`
	Seats     []Seat `json:"seats"`
}

// BookingEvent is a validated ticket booking. Seats is guaranteed to be
// non-empty once the event passed the decoder.
type BookingEvent struct {
	OrderID      string       `json:"order_id"`
	BookingTime  time.Time    `json:"booking_time"`
	Customer     Customer     `json:"customer"`
	EventDetails EventDetails `json:"event_details"`

	// EventTime is the UTC-normalized event time used exclusively for
	// windowing. It is assigned by the decoder and never serialized back.
	EventTime time.Time `json:"-"`
}

// PaymentEvent is a validated payment for an order.
type PaymentEvent struct {
	PaymentID     string    `json:"payment_id"`
	OrderID       string    `json:"order_id"`
	PaymentTime   time.Time `json:"payment_time"`
	Amount        float64   `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	PaymentStatus string    `json:"payment_status"`

	// PaymentType is derived from PaymentMethod by the deriver.
	PaymentType string `json:"-"`
	// EventTime is the UTC-normalized event time used for windowing.
	EventTime time.Time `json:"-"`
}

// SeatLineItem is one seat of a booking, unnested by the expander.
// It inherits all booking level fields and is immutable once derived
// fields are filled in.
type SeatLineItem struct {
	OrderID       string
	BookingTime   time.Time
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	EventID       string
	EventName     string
	Location      string
	SeatNumber    string
	SeatPrice     float64

	// Derived fields, filled in by the deriver.
	EventCategory    string
	BookingDayOfWeek string
	BookingHour      int

	// EventTime is the UTC-normalized event time used for windowing.
	EventTime time.Time
}

// JoinedRecord is the flattened combination of one SeatLineItem and one
// PaymentEvent sharing an order_id within the join window. It is the
// unit of output handed to the sink.
type JoinedRecord struct {
	OrderID          string    `json:"order_id"`
	BookingTime      time.Time `json:"booking_time"`
	CustomerID       string    `json:"customer_id"`
	CustomerName     string    `json:"customer_name"`
	CustomerEmail    string    `json:"customer_email"`
	EventID          string    `json:"event_id"`
	EventName        string    `json:"event_name"`
	Location         string    `json:"location"`
	SeatNumber       string    `json:"seat_number"`
	SeatPrice        float64   `json:"seat_price"`
	EventCategory    string    `json:"event_category"`
	BookingDayOfWeek string    `json:"booking_day_of_week"`
	BookingHour      int       `json:"booking_hour"`
	PaymentID        string    `json:"payment_id"`
	PaymentTime      time.Time `json:"payment_time"`
	Amount           float64   `json:"amount"`
	PaymentMethod    string    `json:"payment_method"`
	PaymentType      string    `json:"payment_type"`
	BookingEventTime time.Time `json:"booking_event_time"`
	PaymentEventTime time.Time `json:"payment_event_time"`
}
