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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label names shared across the pipeline metrics.
const (
	LabelVersion   = "version"
	LabelPlatform  = "platform"
	LabelPipeline  = "pipeline"
	LabelStream    = "stream"
	LabelPartition = "partition"
	LabelSink      = "sink"
	LabelReason    = "reason"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant value '1', labeled by ticketfuse binary version and platform",
	}, []string{LabelVersion, LabelPlatform})
)

// Generic pipeline metrics
var (
	// ReadMessagesCount is used to indicate the number of total messages read from the sources
	ReadMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "pipeline",
		Name:      "read_total",
		Help:      "Total number of messages read",
	}, []string{LabelPipeline, LabelStream})

	// JoinedRecordsCount is used to indicate the number of enriched records emitted by the join engine
	JoinedRecordsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "pipeline",
		Name:      "joined_total",
		Help:      "Total number of joined records emitted",
	}, []string{LabelPipeline})

	// WriteMessagesCount is used to indicate the number of records written to the sink
	WriteMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "pipeline",
		Name:      "write_total",
		Help:      "Total number of records written to the sink",
	}, []string{LabelPipeline, LabelSink})

	// WriteErrorsCount is used to indicate the number of sink write failures
	WriteErrorsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "pipeline",
		Name:      "write_error_total",
		Help:      "Total number of sink write errors",
	}, []string{LabelPipeline, LabelSink})
)
