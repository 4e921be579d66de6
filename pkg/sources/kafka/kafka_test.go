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
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/sources"
)

func TestNewKafkaSource(t *testing.T) {
	out := make(chan *sources.RawMessage, 1)
	s, err := New("test-pl", events.StreamBooking, []string{"localhost:9092"}, "bookings", out,
		WithBufferSize(10), WithGroupName("custom-group"))
	assert.NoError(t, err)
	assert.Equal(t, "kafka-booking", s.GetName())

	ks := s.(*kafkaSource)
	assert.Equal(t, "custom-group", ks.groupName)
	assert.Equal(t, 10, ks.handlerBuffer)
	assert.Equal(t, "bookings", ks.topic)
}

func TestNewKafkaSourceDefaultGroupName(t *testing.T) {
	out := make(chan *sources.RawMessage, 1)
	s, err := New("test-pl", events.StreamPayment, []string{"localhost:9092"}, "payments", out)
	assert.NoError(t, err)
	ks := s.(*kafkaSource)
	assert.Equal(t, "ticketfuse-test-pl", ks.groupName)
}

func TestToRawMessage(t *testing.T) {
	ts := time.Date(2023, 8, 12, 10, 0, 0, 0, time.UTC)
	m := toRawMessage(events.StreamBooking, &sarama.ConsumerMessage{Value: []byte("payload"), Timestamp: ts})
	assert.Equal(t, events.StreamBooking, m.Stream)
	assert.Equal(t, []byte("payload"), m.Payload)
	assert.Equal(t, ts, m.EventTime)
}

func TestToRawMessageZeroTimestampFallsBack(t *testing.T) {
	before := time.Now()
	m := toRawMessage(events.StreamPayment, &sarama.ConsumerMessage{Value: []byte("payload")})
	assert.False(t, m.EventTime.Before(before))
}
