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

package emitter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/sinks"
)

// flakySink fails each record a configured number of times before
// accepting it.
type flakySink struct {
	mu         sync.Mutex
	failures   int
	retryable  bool
	writeCalls int
	written    []*events.JoinedRecord
}

func (s *flakySink) GetName() string { return "flaky" }

func (s *flakySink) Write(_ context.Context, records []*events.JoinedRecord) []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCalls++
	errs := make([]error, len(records))
	for i, r := range records {
		if s.failures > 0 {
			s.failures--
			errs[i] = &sinks.SinkError{Sink: s.GetName(), Retryable: s.retryable, Err: fmt.Errorf("write failed")}
			continue
		}
		s.written = append(s.written, r)
	}
	return errs
}

func (s *flakySink) Close() error { return nil }

func (s *flakySink) snapshot() (int, []*events.JoinedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeCalls, append([]*events.JoinedRecord(nil), s.written...)
}

func record(orderID, seat string) *events.JoinedRecord {
	return &events.JoinedRecord{OrderID: orderID, SeatNumber: seat}
}

func newTestEmitter(t *testing.T, sink sinks.Sink, opts ...Option) *Emitter {
	t.Helper()
	base := []Option{
		WithFlushInterval(10 * time.Millisecond),
		WithBackoff(wait.Backoff{Steps: 3, Duration: time.Millisecond, Factor: 2.0}),
	}
	e, err := New("test-pl", sink, append(base, opts...)...)
	assert.NoError(t, err)
	return e
}

func TestEmitterFlushesOnBatchSize(t *testing.T) {
	sink := &flakySink{}
	e := newTestEmitter(t, sink, WithBatchSize(2), WithFlushInterval(time.Hour))
	assert.NoError(t, e.Start(context.Background()))
	e.In() <- record("order_1", "A1")
	e.In() <- record("order_1", "A2")
	assert.Eventually(t, func() bool {
		_, written := sink.snapshot()
		return len(written) == 2
	}, time.Second, 5*time.Millisecond)
	e.Stop()
}

func TestEmitterFlushesPartialBatchOnInterval(t *testing.T) {
	sink := &flakySink{}
	e := newTestEmitter(t, sink, WithBatchSize(100))
	assert.NoError(t, e.Start(context.Background()))
	e.In() <- record("order_1", "A1")
	assert.Eventually(t, func() bool {
		_, written := sink.snapshot()
		return len(written) == 1
	}, time.Second, 5*time.Millisecond)
	e.Stop()
}

func TestEmitterStopFlushesQueuedRecords(t *testing.T) {
	sink := &flakySink{}
	e := newTestEmitter(t, sink, WithBatchSize(100), WithFlushInterval(time.Hour))
	assert.NoError(t, e.Start(context.Background()))
	for i := 0; i < 5; i++ {
		e.In() <- record(fmt.Sprintf("order_%d", i), "A1")
	}
	e.Stop()
	_, written := sink.snapshot()
	assert.Len(t, written, 5)
}

func TestEmitterRetriesRetryableFailures(t *testing.T) {
	sink := &flakySink{failures: 2, retryable: true}
	e := newTestEmitter(t, sink, WithBatchSize(1))
	assert.NoError(t, e.Start(context.Background()))
	e.In() <- record("order_1", "A1")
	assert.Eventually(t, func() bool {
		_, written := sink.snapshot()
		return len(written) == 1
	}, time.Second, 5*time.Millisecond)
	calls, _ := sink.snapshot()
	assert.Equal(t, 3, calls)
	select {
	case err := <-e.FatalErrors():
		t.Fatalf("unexpected fatal error: %v", err)
	default:
	}
	e.Stop()
}

func TestEmitterDropsNonRetryableFailures(t *testing.T) {
	sink := &flakySink{failures: 1, retryable: false}
	e := newTestEmitter(t, sink, WithBatchSize(2), WithFlushInterval(time.Hour))
	assert.NoError(t, e.Start(context.Background()))
	e.In() <- record("order_1", "A1")
	e.In() <- record("order_2", "A1")
	assert.Eventually(t, func() bool {
		_, written := sink.snapshot()
		return len(written) == 1
	}, time.Second, 5*time.Millisecond)
	calls, written := sink.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "order_2", written[0].OrderID)
	e.Stop()
}

func TestEmitterSurfacesFatalAfterBackoffExhausted(t *testing.T) {
	sink := &flakySink{failures: 100, retryable: true}
	e := newTestEmitter(t, sink, WithBatchSize(1))
	assert.NoError(t, e.Start(context.Background()))
	e.In() <- record("order_1", "A1")
	select {
	case err := <-e.FatalErrors():
		assert.ErrorContains(t, err, "kept failing after retries")
	case <-time.After(3 * time.Second):
		t.Fatal("expected a fatal error")
	}
	e.Stop()
}

func TestEmitterOptionValidation(t *testing.T) {
	sink := &flakySink{}
	_, err := New("test-pl", sink, WithBatchSize(0))
	assert.Error(t, err)
	_, err = New("test-pl", sink, WithFlushInterval(0))
	assert.Error(t, err)
	_, err = New("test-pl", sink, WithBufferSize(-1))
	assert.Error(t, err)
}
