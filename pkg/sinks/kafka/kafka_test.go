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

package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	mock "github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
	"github.com/ticketfuse/ticketfuse/pkg/sinks"
)

func testRecords(n int) []*events.JoinedRecord {
	records := make([]*events.JoinedRecord, n)
	for i := range records {
		records[i] = &events.JoinedRecord{
			OrderID:    fmt.Sprintf("order_%d", i),
			PaymentID:  fmt.Sprintf("pay_%d", i),
			SeatNumber: "A1",
			Amount:     80,
		}
	}
	return records
}

func newTestToKafka(t *testing.T) (*ToKafka, *mock.SyncProducer) {
	t.Helper()
	conf := mock.NewTestConfig()
	conf.Producer.Return.Successes = true
	producer := mock.NewSyncProducer(t, conf)
	tk := &ToKafka{
		name:         "kafka",
		pipelineName: "test-pl",
		topic:        "topic-1",
		log:          logging.NewLogger(),
		concurrency:  1,
		producer:     producer,
	}
	return tk, producer
}

func TestWriteSuccessToKafka(t *testing.T) {
	tk, producer := newTestToKafka(t)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	errs := tk.Write(context.Background(), testRecords(2))
	for _, err := range errs {
		assert.Nil(t, err)
	}
	assert.NoError(t, tk.Close())
}

func TestWriteFailureToKafka(t *testing.T) {
	tk, producer := newTestToKafka(t)
	producer.ExpectSendMessageAndFail(fmt.Errorf("test"))
	producer.ExpectSendMessageAndFail(fmt.Errorf("test1"))

	errs := tk.Write(context.Background(), testRecords(2))
	for _, err := range errs {
		assert.NotNil(t, err)
		var sinkErr *sinks.SinkError
		assert.True(t, errors.As(err, &sinkErr))
		assert.True(t, sinkErr.Retryable)
	}
	assert.NoError(t, tk.Close())
}
