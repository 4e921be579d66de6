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

package expander

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ticketfuse/ticketfuse/pkg/events"
)

func TestExpand(t *testing.T) {
	now := time.Now().UTC()
	b := &events.BookingEvent{
		OrderID:     "order_42",
		BookingTime: now,
		Customer:    events.Customer{ID: "c1", Name: "Ravi", Email: "ravi@example.com"},
		EventDetails: events.EventDetails{
			EventID:   "evt_1",
			EventName: "Jazz Night",
			Location:  "Mumbai",
			Seats: []events.Seat{
				{SeatNumber: "B1", Price: 120},
				{SeatNumber: "B2", Price: 120},
				{SeatNumber: "B3", Price: 150},
			},
		},
		EventTime: now,
	}

	items := Expand(b)
	assert.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, "order_42", item.OrderID)
		assert.Equal(t, "c1", item.CustomerID)
		assert.Equal(t, "Jazz Night", item.EventName)
		assert.Equal(t, b.EventDetails.Seats[i].SeatNumber, item.SeatNumber)
		assert.Equal(t, b.EventDetails.Seats[i].Price, item.SeatPrice)
		assert.True(t, item.EventTime.Equal(now))
	}
}

func TestExpandCountMatchesSeats(t *testing.T) {
	for n := 1; n <= 10; n++ {
		seats := make([]events.Seat, n)
		for i := range seats {
			seats[i] = events.Seat{SeatNumber: fmt.Sprintf("S%d", i), Price: float64(50 + i)}
		}
		b := &events.BookingEvent{
			OrderID:      "o",
			EventDetails: events.EventDetails{Seats: seats},
		}
		assert.Len(t, Expand(b), n)
	}
}
