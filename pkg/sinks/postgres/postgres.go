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

// Package postgres appends joined records to a fact table. It uses pgx
// directly (no ORM), one batched insert per Write call.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
	"github.com/ticketfuse/ticketfuse/pkg/sinks"
)

// ToPostgres writes joined records to a Postgres fact table.
type ToPostgres struct {
	name         string
	pipelineName string
	pool         *pgxpool.Pool
	table        string
	log          *zap.SugaredLogger
}

type Option func(*ToPostgres) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToPostgres) error {
		t.log = log
		return nil
	}
}

// WithTable overrides the fact table name
func WithTable(table string) Option {
	return func(t *ToPostgres) error {
		t.table = table
		return nil
	}
}

// NewToPostgres connects a pool and returns a ToPostgres sink.
func NewToPostgres(ctx context.Context, pipelineName string, connString string, opts ...Option) (*ToPostgres, error) {
	tp := &ToPostgres{
		name:         "postgres",
		pipelineName: pipelineName,
		table:        "fact_seat_sales",
	}
	for _, o := range opts {
		if err := o(tp); err != nil {
			return nil, err
		}
	}
	if tp.log == nil {
		tp.log = logging.NewLogger()
	}
	tp.log = tp.log.With("sinkType", "postgres").With("table", tp.table)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool, %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres, %w", err)
	}
	tp.pool = pool
	return tp, nil
}

// GetName returns the name.
func (tp *ToPostgres) GetName() string {
	return tp.name
}

// Write appends the records with one batched insert round trip.
func (tp *ToPostgres) Write(ctx context.Context, records []*events.JoinedRecord) []error {
	errs := make([]error, len(records))
	if len(records) == 0 {
		return errs
	}
	insert := fmt.Sprintf(`INSERT INTO %s (
		order_id, booking_time, customer_id, customer_name, customer_email,
		event_id, event_name, location, seat_number, seat_price,
		event_category, booking_day_of_week, booking_hour,
		payment_id, payment_time, amount, payment_method, payment_type,
		booking_event_time, payment_event_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`, tp.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insert,
			r.OrderID, r.BookingTime, r.CustomerID, r.CustomerName, r.CustomerEmail,
			r.EventID, r.EventName, r.Location, r.SeatNumber, r.SeatPrice,
			r.EventCategory, r.BookingDayOfWeek, r.BookingHour,
			r.PaymentID, r.PaymentTime, r.Amount, r.PaymentMethod, r.PaymentType,
			r.BookingEventTime, r.PaymentEventTime)
	}
	br := tp.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for i := range records {
		if _, err := br.Exec(); err != nil {
			postgresSinkWriteErrors.WithLabelValues(tp.pipelineName).Inc()
			tp.log.Errorw("Insert failed", zap.String("order_id", records[i].OrderID), zap.Error(err))
			errs[i] = &sinks.SinkError{Sink: tp.name, Retryable: true, Err: err}
		} else {
			postgresSinkWriteCount.WithLabelValues(tp.pipelineName).Inc()
		}
	}
	return errs
}

func (tp *ToPostgres) Close() error {
	tp.log.Info("Closing postgres pool...")
	tp.pool.Close()
	return nil
}
