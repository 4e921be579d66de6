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

// Package expander unnests the seat list of a booking into per-seat
// line items, each inheriting the booking level fields.
package expander

import (
	"github.com/ticketfuse/ticketfuse/pkg/events"
)

// Expand returns one SeatLineItem per seat of the booking, in the
// original seat order. A booking with N seats yields exactly N items,
// each independently eligible for the join.
func Expand(b *events.BookingEvent) []*events.SeatLineItem {
	items := make([]*events.SeatLineItem, 0, len(b.EventDetails.Seats))
	for _, seat := range b.EventDetails.Seats {
		items = append(items, &events.SeatLineItem{
			OrderID:       b.OrderID,
			BookingTime:   b.BookingTime,
			CustomerID:    b.Customer.ID,
			CustomerName:  b.Customer.Name,
			CustomerEmail: b.Customer.Email,
			EventID:       b.EventDetails.EventID,
			EventName:     b.EventDetails.EventName,
			Location:      b.EventDetails.Location,
			SeatNumber:    seat.SeatNumber,
			SeatPrice:     seat.Price,
			EventTime:     b.EventTime,
		})
	}
	return items
}
