/*
Copyright 2025 The Kubernetes Authors.

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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	compbasemetrics "k8s.io/component-base/metrics"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	metricsutil "github.com/timi-liuliang/echo-sub000/pkg/layer/util/metrics"
)

const component = "chassis"

var (
	dispatchCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "dispatch_total",
			Help:      metricsutil.HelpMsgWithStability("Count of intercepted calls for each function.", compbasemetrics.ALPHA),
		},
		[]string{"function"},
	)

	vetoCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "veto_total",
			Help:      metricsutil.HelpMsgWithStability("Count of calls vetoed during validation for each function.", compbasemetrics.ALPHA),
		},
		[]string{"function"},
	)

	hookLatencies = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: component,
			Name:      "hook_duration_seconds",
			Help:      metricsutil.HelpMsgWithStability("Validator hook latency distribution in seconds for each phase, validator type and validator name.", compbasemetrics.ALPHA),
			Buckets: []float64{
				0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1,
			},
		},
		[]string{"phase", "validator_type", "validator_name"},
	)

	liveContexts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: component,
			Name:      "live_contexts",
			Help:      metricsutil.HelpMsgWithStability("Number of live dispatch contexts per level.", compbasemetrics.ALPHA),
		},
		[]string{"level"},
	)

	wrappedHandles = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: component,
			Name:      "wrapped_handles",
			Help:      metricsutil.HelpMsgWithStability("Number of live synthetic handle identifiers.", compbasemetrics.ALPHA),
		},
		[]string{},
	)

	diagnosticCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "diagnostic_messages_total",
			Help:      metricsutil.HelpMsgWithStability("Count of diagnostic messages emitted for each severity.", compbasemetrics.ALPHA),
		},
		[]string{"severity"},
	)

	internalErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: component,
			Name:      "internal_errors_total",
			Help:      metricsutil.HelpMsgWithStability("Count of internal invariant violations for each validator type.", compbasemetrics.ALPHA),
		},
		[]string{"validator_type"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: component,
			Name:      "info",
			Help:      metricsutil.HelpMsgWithStability("General information of the current build of the layer.", compbasemetrics.ALPHA),
		},
		[]string{"commit", "build_ref"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		metrics.Registry.MustRegister(dispatchCounter)
		metrics.Registry.MustRegister(vetoCounter)
		metrics.Registry.MustRegister(hookLatencies)
		metrics.Registry.MustRegister(liveContexts)
		metrics.Registry.MustRegister(wrappedHandles)
		metrics.Registry.MustRegister(diagnosticCounter)
		metrics.Registry.MustRegister(internalErrorCounter)
		metrics.Registry.MustRegister(buildInfo)
	})
}

// Reset clears all metric values. Used by tests.
func Reset() {
	dispatchCounter.Reset()
	vetoCounter.Reset()
	hookLatencies.Reset()
	liveContexts.Reset()
	wrappedHandles.Reset()
	diagnosticCounter.Reset()
	internalErrorCounter.Reset()
	buildInfo.Reset()
}

// RecordDispatch records one intercepted call.
func RecordDispatch(function string) {
	dispatchCounter.WithLabelValues(function).Inc()
}

// RecordVeto records one call vetoed during validation.
func RecordVeto(function string) {
	vetoCounter.WithLabelValues(function).Inc()
}

// RecordHookLatency records the time spent in one validator hook.
func RecordHookLatency(phase, validatorType, validatorName string, duration time.Duration) {
	hookLatencies.WithLabelValues(phase, validatorType, validatorName).Observe(duration.Seconds())
}

// RecordContextCreated increments the live context gauge for a level.
func RecordContextCreated(level string) {
	liveContexts.WithLabelValues(level).Inc()
}

// RecordContextDestroyed decrements the live context gauge for a level.
func RecordContextDestroyed(level string) {
	liveContexts.WithLabelValues(level).Dec()
}

// RecordWrappedHandles sets the number of live synthetic identifiers.
func RecordWrappedHandles(count int) {
	wrappedHandles.WithLabelValues().Set(float64(count))
}

// RecordDiagnosticMessage records one message delivered by a diagnostic sink.
func RecordDiagnosticMessage(severity string) {
	diagnosticCounter.WithLabelValues(severity).Inc()
}

// RecordInternalError records a contained validator failure.
func RecordInternalError(validatorType string) {
	internalErrorCounter.WithLabelValues(validatorType).Inc()
}

// RecordBuildInfo publishes the commit and build ref of the running binary.
func RecordBuildInfo(commitSha, buildRef string) {
	buildInfo.WithLabelValues(commitSha, buildRef).Set(1)
}
