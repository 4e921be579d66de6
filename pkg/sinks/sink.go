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

// Package sinks defines the contract of the durable append targets the
// pipeline hands finalized enriched records to.
package sinks

import (
	"context"
	"fmt"

	"github.com/ticketfuse/ticketfuse/pkg/events"
)

// Sink is a pure append target for joined records.
type Sink interface {
	// GetName returns the name of the sink.
	GetName() string
	// Write writes a batch of records, returning one error slot per
	// record. A nil slot means the record was persisted.
	Write(ctx context.Context, records []*events.JoinedRecord) []error
	// Close releases the underlying resources.
	Close() error
}

// SinkError is a write failure of a sink. Retryable failures are
// retried with backoff at the emitter boundary.
type SinkError struct {
	Sink      string
	Retryable bool
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s write failed: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
