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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	metricspkg "github.com/ticketfuse/ticketfuse/pkg/metrics"
)

// emitterRetryCount is used to indicate the number of retried sink flushes
var emitterRetryCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "emitter",
	Name:      "retry_total",
	Help:      "Total number of retried sink flushes",
}, []string{metricspkg.LabelPipeline, metricspkg.LabelSink})

// emitterDroppedCount is used to indicate the number of records dropped on non-retryable failures
var emitterDroppedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "emitter",
	Name:      "dropped_total",
	Help:      "Total number of records dropped after non-retryable write failures",
}, []string{metricspkg.LabelPipeline, metricspkg.LabelSink})
