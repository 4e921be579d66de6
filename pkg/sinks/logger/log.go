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

package logger

import (
	"context"

	"go.uber.org/zap"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
)

// ToLog prints the output to a log sink.
type ToLog struct {
	name         string
	pipelineName string
	logger       *zap.SugaredLogger
}

type Option func(*ToLog) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToLog) error {
		t.logger = log
		return nil
	}
}

// NewToLog returns ToLog type.
func NewToLog(pipelineName string, opts ...Option) (*ToLog, error) {
	toLog := &ToLog{
		name:         "log",
		pipelineName: pipelineName,
	}
	for _, o := range opts {
		if err := o(toLog); err != nil {
			return nil, err
		}
	}
	if toLog.logger == nil {
		toLog.logger = logging.NewLogger()
	}
	toLog.logger = toLog.logger.With("sinkType", "log")
	return toLog, nil
}

// GetName returns the name.
func (t *ToLog) GetName() string {
	return t.name
}

// Write writes to the log.
func (t *ToLog) Write(_ context.Context, records []*events.JoinedRecord) []error {
	for _, r := range records {
		t.logger.Infow("Joined record",
			zap.String("order_id", r.OrderID),
			zap.String("seat_number", r.SeatNumber),
			zap.String("payment_id", r.PaymentID),
			zap.Float64("amount", r.Amount),
			zap.String("event_category", r.EventCategory),
			zap.String("payment_type", r.PaymentType),
			zap.Time("booking_event_time", r.BookingEventTime),
			zap.Time("payment_event_time", r.PaymentEventTime))
	}
	return make([]error, len(records))
}

func (t *ToLog) Close() error {
	return nil
}
