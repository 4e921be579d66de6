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

// Package deriver computes the categorical fields of booking line items
// and payments. Derivation is pure, never fails, and unmapped inputs
// fall through to a default bucket which is counted as a mapping miss.
package deriver

import (
	"strings"

	"github.com/ticketfuse/ticketfuse/pkg/events"
)

// DefaultCategory is the fallback bucket for unmapped event names and
// payment methods.
const DefaultCategory = "Other"

// categoryKeywords maps a keyword of the event name to a category.
// Matching is case-insensitive on word boundaries of the name.
var categoryKeywords = map[string]string{
	"concert":    "Music",
	"festival":   "Music",
	"gig":        "Music",
	"opera":      "Music",
	"symphony":   "Music",
	"theatre":    "Arts",
	"theater":    "Arts",
	"ballet":     "Arts",
	"play":       "Arts",
	"comedy":     "Comedy",
	"standup":    "Comedy",
	"cricket":    "Sports",
	"football":   "Sports",
	"match":      "Sports",
	"derby":      "Sports",
	"marathon":   "Sports",
	"conference": "Business",
	"summit":     "Business",
	"expo":       "Business",
	"workshop":   "Business",
}

// paymentTypes maps the normalized payment method to its classification.
var paymentTypes = map[string]string{
	"credit card": "Card",
	"debit card":  "Card",
	"upi":         "Digital",
	"wallet":      "Digital",
	"net banking": "Digital",
}

// Deriver fills in derived attributes on records of both streams.
type Deriver struct {
	pipelineName string
}

// New returns a Deriver for the given pipeline.
func New(pipelineName string) *Deriver {
	return &Deriver{pipelineName: pipelineName}
}

// EnrichLineItem fills in event category and the UTC based day-of-week
// and hour-of-day of the booking time.
func (d *Deriver) EnrichLineItem(item *events.SeatLineItem) {
	item.EventCategory = d.eventCategory(item.EventName)
	// All time derivations use one canonical zone. Producers may emit
	// local time, EventTime is already normalized by the decoder.
	utc := item.EventTime
	item.BookingDayOfWeek = utc.Weekday().String()
	item.BookingHour = utc.Hour()
}

// EnrichPayment fills in the payment type classification.
func (d *Deriver) EnrichPayment(p *events.PaymentEvent) {
	p.PaymentType = d.paymentType(p.PaymentMethod)
}

func (d *Deriver) eventCategory(eventName string) string {
	for _, word := range strings.Fields(strings.ToLower(eventName)) {
		if category, ok := categoryKeywords[word]; ok {
			return category
		}
	}
	mappingMissCount.WithLabelValues(d.pipelineName, "event_category").Inc()
	return DefaultCategory
}

func (d *Deriver) paymentType(method string) string {
	if t, ok := paymentTypes[strings.ToLower(strings.TrimSpace(method))]; ok {
		return t
	}
	mappingMissCount.WithLabelValues(d.pipelineName, "payment_type").Inc()
	return DefaultCategory
}
