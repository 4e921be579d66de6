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
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
	"github.com/ticketfuse/ticketfuse/pkg/sources"
)

// kafkaSource consumes one topic via a consumer group and tags every
// message with the configured stream.
type kafkaSource struct {
	// name of the source
	name string
	// name of the pipeline
	pipelineName string
	// stream tag assigned to consumed messages
	stream events.StreamTag
	// topic to consume messages from
	topic string
	// group name for the consumer group
	groupName string
	// kafka brokers
	brokers []string
	// handler for a kafka consumer group
	handler *consumerHandler
	// sarama config for kafka consumer group
	config *sarama.Config
	// destination for raw messages
	out chan<- *sources.RawMessage
	// logger
	logger *zap.SugaredLogger
	// lifecycle context
	lifecycleCtx context.Context
	// context cancel function
	cancelFn context.CancelFunc
	// channel to indicate that the consumer group is done
	stopCh chan struct{}
	// channel to indicate that the forwarding loop is done
	forwardDoneCh chan struct{}
	// size of the buffer that holds consumed but yet to be forwarded messages
	handlerBuffer int
}

type Option func(*kafkaSource) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *kafkaSource) error {
		o.logger = l
		return nil
	}
}

// WithBufferSize is used to return size of message channel information
func WithBufferSize(s int) Option {
	return func(o *kafkaSource) error {
		o.handlerBuffer = s
		return nil
	}
}

// WithGroupName is used to set the group name
func WithGroupName(gn string) Option {
	return func(o *kafkaSource) error {
		o.groupName = gn
		return nil
	}
}

// New returns a kafka source reader based on a Kafka consumer group.
func New(pipelineName string, stream events.StreamTag, brokers []string, topic string, out chan<- *sources.RawMessage, opts ...Option) (sources.Sourcer, error) {
	k := &kafkaSource{
		name:          "kafka-" + string(stream),
		pipelineName:  pipelineName,
		stream:        stream,
		topic:         topic,
		groupName:     "ticketfuse-" + pipelineName,
		brokers:       brokers,
		out:           out,
		handlerBuffer: 100, // default buffer size for kafka reads
		logger:        logging.NewLogger(),
	}
	for _, o := range opts {
		if err := o(k); err != nil {
			return nil, err
		}
	}
	k.logger = k.logger.With("source", k.name).With("topic", topic)

	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	// return errors from the underlying kafka client using the Errors channel
	config.Consumer.Return.Errors = true
	sarama.Logger = zap.NewStdLog(k.logger.Desugar())
	k.config = config

	ctx, cancel := context.WithCancel(context.Background())
	k.lifecycleCtx = ctx
	k.cancelFn = cancel
	k.stopCh = make(chan struct{})
	k.forwardDoneCh = make(chan struct{})
	k.handler = newConsumerHandler(k.handlerBuffer)
	return k, nil
}

func (r *kafkaSource) GetName() string {
	return r.name
}

// Start starts the consumer group and the forwarding loop.
func (r *kafkaSource) Start() error {
	go r.startConsumer()
	// wait for the consumer to setup.
	<-r.handler.ready
	r.logger.Info("Consumer ready. Starting kafka reader...")
	go r.forward()
	return nil
}

// forward converts consumed messages to raw messages until the handler
// channel drains after shutdown.
func (r *kafkaSource) forward() {
	defer close(r.forwardDoneCh)
	for {
		select {
		case m := <-r.handler.messages:
			kafkaSourceReadCount.WithLabelValues(r.pipelineName, string(r.stream)).Inc()
			r.out <- toRawMessage(r.stream, m)
		case <-r.lifecycleCtx.Done():
			// drain whatever the handler already buffered
			for {
				select {
				case m := <-r.handler.messages:
					kafkaSourceReadCount.WithLabelValues(r.pipelineName, string(r.stream)).Inc()
					r.out <- toRawMessage(r.stream, m)
				default:
					return
				}
			}
		}
	}
}

func (r *kafkaSource) Stop() {
	r.logger.Info("Stopping kafka reader...")
	r.cancelFn()
	<-r.stopCh
	<-r.forwardDoneCh
}

func (r *kafkaSource) Close() error {
	r.logger.Info("Kafka reader closed")
	return nil
}

func (r *kafkaSource) startConsumer() {
	client, err := sarama.NewConsumerGroup(r.brokers, r.groupName, r.config)
	r.logger.Infow("creating NewConsumerGroup", zap.String("topic", r.topic), zap.String("consumerGroupName", r.groupName), zap.Strings("brokers", r.brokers))
	if err != nil {
		r.logger.Panicw("Problem initializing sarama client", zap.Error(err))
	}
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-r.lifecycleCtx.Done():
				return
			case cErr := <-client.Errors():
				r.logger.Errorw("Kafka consumer error", zap.Error(cErr))
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			// `Consume` should be called inside an infinite loop; when a
			// server-side re-balance happens, the consumer session will need to be
			// recreated to get the new claims
			if conErr := client.Consume(r.lifecycleCtx, []string{r.topic}, r.handler); conErr != nil {
				// Panic on errors to let it crash and restart the process
				r.logger.Panicw("Kafka consumer failed with error: ", zap.Error(conErr))
			}
			// check if context was cancelled, signaling that the consumer should stop
			if r.lifecycleCtx.Err() != nil {
				return
			}
		}
	}()
	wg.Wait()
	_ = client.Close()
	close(r.stopCh)
}

func toRawMessage(stream events.StreamTag, m *sarama.ConsumerMessage) *sources.RawMessage {
	eventTime := m.Timestamp
	if eventTime.IsZero() {
		eventTime = time.Now()
	}
	return &sources.RawMessage{
		Stream:    stream,
		Payload:   m.Value,
		EventTime: eventTime,
	}
}
