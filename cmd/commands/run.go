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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ticketfuse/ticketfuse"
	"github.com/ticketfuse/ticketfuse/pkg/config"
	"github.com/ticketfuse/ticketfuse/pkg/emitter"
	"github.com/ticketfuse/ticketfuse/pkg/events"
	"github.com/ticketfuse/ticketfuse/pkg/join"
	"github.com/ticketfuse/ticketfuse/pkg/metrics"
	"github.com/ticketfuse/ticketfuse/pkg/pipeline"
	"github.com/ticketfuse/ticketfuse/pkg/shared/logging"
	"github.com/ticketfuse/ticketfuse/pkg/sinks"
	"github.com/ticketfuse/ticketfuse/pkg/sinks/blackhole"
	kafkasink "github.com/ticketfuse/ticketfuse/pkg/sinks/kafka"
	"github.com/ticketfuse/ticketfuse/pkg/sinks/logger"
	"github.com/ticketfuse/ticketfuse/pkg/sinks/postgres"
	"github.com/ticketfuse/ticketfuse/pkg/sources"
	"github.com/ticketfuse/ticketfuse/pkg/sources/generator"
	kafkasrc "github.com/ticketfuse/ticketfuse/pkg/sources/kafka"
	"github.com/ticketfuse/ticketfuse/pkg/sources/natssrc"
)

func NewRunCommand() *cobra.Command {
	var (
		configPath string
	)
	command := &cobra.Command{
		Use:   "run",
		Short: "Run the enrichment pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger().Named("run")
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, log)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			v := ticketfuse.GetVersion()
			log.Infow("Starting", zap.String("version", v.Version), zap.String("pipeline", cfg.PipelineName))
			metrics.BuildInfo.WithLabelValues(v.Version, v.Platform).Set(1)

			ms := metrics.NewMetricsServer(metrics.WithPort(cfg.MetricsPort))
			shutdown, err := ms.Start(ctx)
			if err != nil {
				return fmt.Errorf("failed to start the metrics server, %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()

			p, err := buildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			return p.Run(ctx)
		},
	}
	command.Flags().StringVar(&configPath, "config", "", "Path to the configuration file, defaults plus TICKETFUSE_* env when empty")
	return command
}

func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, error) {
	sink, err := buildSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(ctx, cfg.PipelineName, sink,
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithBufferSize(cfg.BufferSize),
		pipeline.WithJoinOptions(
			join.WithWindow(cfg.Window()),
			join.WithGrace(cfg.Grace()),
			join.WithPartitionCount(cfg.Join.Partitions),
			join.WithDedupCacheSize(cfg.Join.DedupCache),
		),
		pipeline.WithEmitterOptions(
			emitter.WithBatchSize(cfg.BatchSize),
		),
	)
	if err != nil {
		return nil, err
	}
	srcs, err := buildSources(cfg, p.In())
	if err != nil {
		return nil, err
	}
	for _, s := range srcs {
		if err := p.AddSource(s); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func buildSink(ctx context.Context, cfg *config.Config) (sinks.Sink, error) {
	switch cfg.Sink {
	case config.SinkKafka:
		return kafkasink.NewToKafka(cfg.PipelineName, cfg.Kafka.Brokers, cfg.Kafka.OutputTopic)
	case config.SinkPostgres:
		return postgres.NewToPostgres(ctx, cfg.PipelineName, cfg.Postgres.URL, postgres.WithTable(cfg.Postgres.Table))
	case config.SinkLog:
		return logger.NewToLog(cfg.PipelineName)
	case config.SinkBlackhole:
		return blackhole.NewBlackhole(cfg.PipelineName), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

func buildSources(cfg *config.Config, out chan<- *sources.RawMessage) ([]sources.Sourcer, error) {
	switch cfg.Source {
	case config.SourceKafka:
		var opts []kafkasrc.Option
		if cfg.Kafka.GroupName != "" {
			opts = append(opts, kafkasrc.WithGroupName(cfg.Kafka.GroupName))
		}
		bookings, err := kafkasrc.New(cfg.PipelineName, events.StreamBooking, cfg.Kafka.Brokers, cfg.Kafka.BookingTopic, out, opts...)
		if err != nil {
			return nil, err
		}
		payments, err := kafkasrc.New(cfg.PipelineName, events.StreamPayment, cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, out, opts...)
		if err != nil {
			return nil, err
		}
		return []sources.Sourcer{bookings, payments}, nil
	case config.SourceNats:
		bookings, err := natssrc.New(cfg.PipelineName, events.StreamBooking, cfg.Nats.URL, cfg.Nats.BookingSubject, out)
		if err != nil {
			return nil, err
		}
		payments, err := natssrc.New(cfg.PipelineName, events.StreamPayment, cfg.Nats.URL, cfg.Nats.PaymentSubject, out)
		if err != nil {
			return nil, err
		}
		return []sources.Sourcer{bookings, payments}, nil
	case config.SourceGenerator:
		g, err := generator.New(cfg.PipelineName, out,
			generator.WithRate(cfg.Generator.Rate),
			generator.WithLateFraction(cfg.Generator.LateFraction),
			generator.WithWindow(cfg.Window()))
		if err != nil {
			return nil, err
		}
		return []sources.Sourcer{g}, nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}
