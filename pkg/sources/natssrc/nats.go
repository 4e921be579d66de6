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

package natssrc

import (
	"fmt"
	"sync"
	"time"

	natslib "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
	"github.com/ticketfuse/ticketfuse/pkg/sources"
)

// natsSource subscribes to one subject and tags every message with the
// configured stream. NATS has no broker timestamp, arrival time is used
// as the envelope event time.
type natsSource struct {
	name         string
	pipelineName string
	stream       events.StreamTag
	subject      string
	queueGroup   string
	natsConn     *natslib.Conn
	sub          *natslib.Subscription
	out          chan<- *sources.RawMessage
	logger       *zap.SugaredLogger
	stopCh       chan struct{}
	doneCh       chan struct{}
	stopOnce     sync.Once
	msgCh        chan *natslib.Msg
}

type Option func(*natsSource) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *natsSource) error {
		o.logger = l
		return nil
	}
}

// WithQueueGroup sets the queue group so replicas share the subject
func WithQueueGroup(q string) Option {
	return func(o *natsSource) error {
		o.queueGroup = q
		return nil
	}
}

// New returns a nats source subscribed to the given subject.
func New(pipelineName string, stream events.StreamTag, url, subject string, out chan<- *sources.RawMessage, opts ...Option) (sources.Sourcer, error) {
	n := &natsSource{
		name:         "nats-" + string(stream),
		pipelineName: pipelineName,
		stream:       stream,
		subject:      subject,
		queueGroup:   "ticketfuse-" + pipelineName,
		out:          out,
		logger:       logging.NewLogger(),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		msgCh:        make(chan *natslib.Msg, 1000),
	}
	for _, o := range opts {
		if err := o(n); err != nil {
			return nil, err
		}
	}
	n.logger = n.logger.With("source", n.name).With("subject", subject)

	opt := []natslib.Option{
		natslib.MaxReconnects(-1),
		natslib.ReconnectWait(3 * time.Second),
		natslib.DisconnectErrHandler(func(c *natslib.Conn, err error) {
			n.logger.Errorw("Nats disconnected", zap.Error(err))
		}),
		natslib.ReconnectHandler(func(c *natslib.Conn) {
			n.logger.Info("Nats reconnected")
		}),
	}
	conn, err := natslib.Connect(url, opt...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats server %q, %w", url, err)
	}
	n.natsConn = conn

	sub, err := conn.ChanQueueSubscribe(subject, n.queueGroup, n.msgCh)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to subject %q, %w", subject, err)
	}
	n.sub = sub
	return n, nil
}

func (n *natsSource) GetName() string {
	return n.name
}

// Start begins forwarding subscribed messages.
func (n *natsSource) Start() error {
	go func() {
		defer close(n.doneCh)
		for {
			select {
			case m := <-n.msgCh:
				natsSourceReadCount.WithLabelValues(n.pipelineName, string(n.stream)).Inc()
				n.out <- &sources.RawMessage{
					Stream:    n.stream,
					Payload:   m.Data,
					EventTime: time.Now(),
				}
			case <-n.stopCh:
				return
			}
		}
	}()
	return nil
}

func (n *natsSource) Stop() {
	n.logger.Info("Stopping nats reader...")
	if err := n.sub.Unsubscribe(); err != nil {
		n.logger.Errorw("Failed to unsubscribe", zap.Error(err))
	}
	n.stopOnce.Do(func() {
		close(n.stopCh)
	})
	<-n.doneCh
}

func (n *natsSource) Close() error {
	n.logger.Info("Closing nats connection...")
	n.natsConn.Close()
	return nil
}
