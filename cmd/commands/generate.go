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

package commands

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ticketfuse/ticketfuse/pkg/sources/generator"
)

// NewGenerateCommand emits synthetic booking/payment pairs, either as
// JSON lines on stdout or published to Kafka topics when brokers are
// given. Useful for seeding topics and demos.
func NewGenerateCommand() *cobra.Command {
	var (
		count        int
		seed         int64
		maxDelaySecs int
		brokers      []string
		bookingTopic string
		paymentTopic string
	)
	command := &cobra.Command{
		Use:   "generate",
		Short: "Emit synthetic booking and payment events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return fmt.Errorf("count must be positive, got %d", count)
			}
			if maxDelaySecs < 0 {
				return fmt.Errorf("max-delay must not be negative, got %d", maxDelaySecs)
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			builder := generator.NewBuilder(seed)
			rng := rand.New(rand.NewSource(seed))
			now := time.Now().UTC()

			var publish func(topic string, key string, payload []byte) error
			if len(brokers) > 0 {
				config := sarama.NewConfig()
				config.Producer.Return.Successes = true
				producer, err := sarama.NewSyncProducer(brokers, config)
				if err != nil {
					return fmt.Errorf("failed to create kafka producer, %w", err)
				}
				defer func() { _ = producer.Close() }()
				publish = func(topic, key string, payload []byte) error {
					_, _, err := producer.SendMessage(&sarama.ProducerMessage{
						Topic: topic,
						Key:   sarama.StringEncoder(key),
						Value: sarama.ByteEncoder(payload),
					})
					return err
				}
			} else {
				enc := json.NewEncoder(cmd.OutOrStdout())
				publish = func(_, _ string, payload []byte) error {
					var v json.RawMessage = payload
					return enc.Encode(v)
				}
			}

			for i := 0; i < count; i++ {
				booking := builder.Booking(now.Add(time.Duration(i) * time.Second))
				bookingPayload, err := json.Marshal(booking)
				if err != nil {
					return err
				}
				if err := publish(bookingTopic, booking.OrderID, bookingPayload); err != nil {
					return err
				}
				delay := time.Duration(rng.Intn(maxDelaySecs+1)) * time.Second
				payment := builder.PaymentFor(booking, booking.BookingTime.Add(delay))
				paymentPayload, err := json.Marshal(payment)
				if err != nil {
					return err
				}
				if err := publish(paymentTopic, payment.OrderID, paymentPayload); err != nil {
					return err
				}
			}
			return nil
		},
	}
	command.Flags().IntVar(&count, "count", 10, "Number of booking/payment pairs to generate")
	command.Flags().Int64Var(&seed, "seed", 0, "Random seed, 0 picks one from the clock")
	command.Flags().IntVar(&maxDelaySecs, "max-delay", 90, "Maximum payment delay in seconds")
	command.Flags().StringSliceVar(&brokers, "brokers", nil, "Kafka brokers to publish to, prints JSON lines to stdout when empty")
	command.Flags().StringVar(&bookingTopic, "booking-topic", "bookings", "Kafka topic for booking events")
	command.Flags().StringVar(&paymentTopic, "payment-topic", "payments", "Kafka topic for payment events")
	return command
}
