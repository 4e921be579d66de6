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
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
	"github.com/ticketfuse/ticketfuse/pkg/sinks"
)

// ToKafka produces the output to a kafka sink.
type ToKafka struct {
	name         string
	pipelineName string
	producer     sarama.SyncProducer
	topic        string
	log          *zap.SugaredLogger
	concurrency  uint32
}

type Option func(*ToKafka) error

type sinkMessage struct {
	index   int
	message *sarama.ProducerMessage
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToKafka) error {
		t.log = log
		return nil
	}
}

// WithConcurrency sets the number of concurrent producer workers
func WithConcurrency(c uint32) Option {
	return func(t *ToKafka) error {
		t.concurrency = c
		return nil
	}
}

// NewToKafka returns ToKafka type.
func NewToKafka(pipelineName string, brokers []string, topic string, opts ...Option) (*ToKafka, error) {
	toKafka := &ToKafka{
		name:         "kafka",
		pipelineName: pipelineName,
		topic:        topic,
		concurrency:  4, // default producer concurrency
	}
	for _, o := range opts {
		if err := o(toKafka); err != nil {
			return nil, err
		}
	}
	if toKafka.log == nil {
		toKafka.log = logging.NewLogger()
	}
	toKafka.log = toKafka.log.With("sinkType", "kafka").With("topic", topic)

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	sarama.Logger = zap.NewStdLog(toKafka.log.Desugar())
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer, %w", err)
	}
	toKafka.producer = producer
	return toKafka, nil
}

// GetName returns the name.
func (tk *ToKafka) GetName() string {
	return tk.name
}

// Write writes the records to the kafka topic, keyed by order id so all
// seats of an order land on the same topic partition.
func (tk *ToKafka) Write(_ context.Context, records []*events.JoinedRecord) []error {
	errs := make([]error, len(records))
	wg := new(sync.WaitGroup)

	sinkCh := make(chan *sinkMessage)
	for i := uint32(0); i < tk.concurrency; i++ {
		wg.Add(1)
		go func(msgCh chan *sinkMessage) {
			defer wg.Done()
			for message := range msgCh {
				_, _, err := tk.producer.SendMessage(message.message)
				if err != nil {
					kafkaSinkWriteErrors.WithLabelValues(tk.pipelineName).Inc()
					tk.log.Errorw("SendMessage failed", zap.Error(err))
					err = &sinks.SinkError{Sink: tk.name, Retryable: true, Err: err}
				} else {
					kafkaSinkWriteCount.WithLabelValues(tk.pipelineName).Inc()
				}
				errs[message.index] = err
			}
		}(sinkCh)
	}
	for idx, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			// a record failing to marshal will never succeed, not retryable
			errs[idx] = &sinks.SinkError{Sink: tk.name, Retryable: false, Err: err}
			continue
		}
		sinkCh <- &sinkMessage{index: idx, message: &sarama.ProducerMessage{
			Topic: tk.topic,
			Key:   sarama.StringEncoder(record.OrderID),
			Value: sarama.ByteEncoder(payload),
		}}
	}
	close(sinkCh)
	wg.Wait()
	return errs
}

func (tk *ToKafka) Close() error {
	tk.log.Info("Closing kafka producer...")
	return tk.producer.Close()
}
