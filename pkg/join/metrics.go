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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	metricspkg "github.com/ticketfuse/ticketfuse/pkg/metrics"
)

// unmatchedBookingCount is used to indicate the number of booking line items expired without a payment
var unmatchedBookingCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "join",
	Name:      "unmatched_booking_total",
	Help:      "Total number of booking line items expired without a matching payment",
}, []string{metricspkg.LabelPipeline})

// unmatchedPaymentCount is used to indicate the number of payments expired without a booking
var unmatchedPaymentCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "join",
	Name:      "unmatched_payment_total",
	Help:      "Total number of payments expired without a matching booking",
}, []string{metricspkg.LabelPipeline})

// duplicatePaymentCount is used to indicate the number of duplicate payments dropped before buffering
var duplicatePaymentCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "join",
	Name:      "duplicate_payment_total",
	Help:      "Total number of duplicate payments dropped",
}, []string{metricspkg.LabelPipeline})

// duplicateLineItemCount is used to indicate the number of duplicate booking line items dropped before buffering
var duplicateLineItemCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "join",
	Name:      "duplicate_line_item_total",
	Help:      "Total number of duplicate booking line items dropped",
}, []string{metricspkg.LabelPipeline})

// bufferedBookings indicates the number of booking line items currently buffered per partition
var bufferedBookings = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "join",
	Name:      "buffered_bookings",
	Help:      "Number of booking line items currently buffered",
}, []string{metricspkg.LabelPipeline, metricspkg.LabelPartition})

// bufferedPayments indicates the number of payments currently buffered per partition
var bufferedPayments = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "join",
	Name:      "buffered_payments",
	Help:      "Number of payments currently buffered",
}, []string{metricspkg.LabelPipeline, metricspkg.LabelPartition})
