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

// Package config loads the runtime configuration from an optional YAML
// file and TICKETFUSE_* environment variables, env wins over file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	SourceKafka     = "kafka"
	SourceNats      = "nats"
	SourceGenerator = "generator"

	SinkKafka     = "kafka"
	SinkPostgres  = "postgres"
	SinkLog       = "log"
	SinkBlackhole = "blackhole"
)

// KafkaConfig holds the broker endpoints and topics.
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	BookingTopic string   `mapstructure:"bookingTopic"`
	PaymentTopic string   `mapstructure:"paymentTopic"`
	OutputTopic  string   `mapstructure:"outputTopic"`
	GroupName    string   `mapstructure:"groupName"`
}

// NatsConfig holds the nats endpoint and subjects.
type NatsConfig struct {
	URL            string `mapstructure:"url"`
	BookingSubject string `mapstructure:"bookingSubject"`
	PaymentSubject string `mapstructure:"paymentSubject"`
}

// PostgresConfig holds the connection string and target table.
type PostgresConfig struct {
	URL   string `mapstructure:"url"`
	Table string `mapstructure:"table"`
}

// GeneratorConfig tunes the synthetic event source.
type GeneratorConfig struct {
	Rate         int     `mapstructure:"rate"`
	LateFraction float64 `mapstructure:"lateFraction"`
}

// JoinConfig tunes the windowed join.
type JoinConfig struct {
	WindowMinutes int `mapstructure:"windowMinutes"`
	GraceSeconds  int `mapstructure:"graceSeconds"`
	Partitions    int `mapstructure:"partitions"`
	DedupCache    int `mapstructure:"dedupCache"`
}

// Config is the full runtime configuration of one pipeline.
type Config struct {
	PipelineName string          `mapstructure:"pipelineName"`
	Source       string          `mapstructure:"source"`
	Sink         string          `mapstructure:"sink"`
	Workers      int             `mapstructure:"workers"`
	BufferSize   int             `mapstructure:"bufferSize"`
	BatchSize    int             `mapstructure:"batchSize"`
	MetricsPort  int             `mapstructure:"metricsPort"`
	Join         JoinConfig      `mapstructure:"join"`
	Kafka        KafkaConfig     `mapstructure:"kafka"`
	Nats         NatsConfig      `mapstructure:"nats"`
	Postgres     PostgresConfig  `mapstructure:"postgres"`
	Generator    GeneratorConfig `mapstructure:"generator"`
}

// Window returns the join window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Join.WindowMinutes) * time.Minute
}

// Grace returns the late-arrival grace as a duration.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.Join.GraceSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipelineName", "ticketfuse")
	v.SetDefault("source", SourceGenerator)
	v.SetDefault("sink", SinkLog)
	v.SetDefault("workers", 4)
	v.SetDefault("bufferSize", 1024)
	v.SetDefault("batchSize", 100)
	v.SetDefault("metricsPort", 2469)
	v.SetDefault("join.windowMinutes", 2)
	v.SetDefault("join.graceSeconds", 30)
	v.SetDefault("join.partitions", 16)
	v.SetDefault("join.dedupCache", 8192)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.bookingTopic", "bookings")
	v.SetDefault("kafka.paymentTopic", "payments")
	v.SetDefault("kafka.outputTopic", "seat-sales")
	v.SetDefault("kafka.groupName", "")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.bookingSubject", "bookings")
	v.SetDefault("nats.paymentSubject", "payments")
	v.SetDefault("postgres.url", "postgres://localhost:5432/ticketfuse")
	v.SetDefault("postgres.table", "fact_seat_sales")
	v.SetDefault("generator.rate", 5)
	v.SetDefault("generator.lateFraction", 0.05)
}

// Load reads the configuration. An empty path skips the file and uses
// defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TICKETFUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q, %w", path, err)
		}
	}
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config, %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceKafka, SourceNats, SourceGenerator:
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}
	switch c.Sink {
	case SinkKafka, SinkPostgres, SinkLog, SinkBlackhole:
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	if c.Join.WindowMinutes <= 0 {
		return fmt.Errorf("join window must be positive, got %d minutes", c.Join.WindowMinutes)
	}
	if c.Join.GraceSeconds < 0 {
		return fmt.Errorf("join grace must not be negative, got %d seconds", c.Join.GraceSeconds)
	}
	if c.Join.Partitions <= 0 {
		return fmt.Errorf("join partitions must be positive, got %d", c.Join.Partitions)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Source == SourceKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka source requires at least one broker")
	}
	return nil
}
