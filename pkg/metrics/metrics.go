// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/united-manufacturing-hub/lca-core/pkg/logger"
	"github.com/united-manufacturing-hub/lca-core/pkg/sentry"
)

const (
	// Component labels.
	ComponentAgent      = "agent"
	ComponentLifecycle  = "lifecycle"
	ComponentPoller     = "port_poller"
	ComponentRegistry   = "registry"
	ComponentDocker     = "docker_backend"
	ComponentWorkerPool = "worker_pool"
)

var (
	namespace = "lca"
	subsystem = "core"

	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transitions_total",
			Help:      "State machine transitions by machine, target state and result",
		},
		[]string{"machine", "target", "result"},
	)

	transitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transition_duration_seconds",
			Help:      "Time spent executing transition actions",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"machine", "target"},
	)

	instanceState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "instance_state",
			Help:      "1 for the lifecycle state an instance currently occupies",
		},
		[]string{"machine", "instance", "state"},
	)

	pollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "poll_cycles_total",
			Help:      "Out port poll cycles by outcome (unchanged, dispatched, skipped, missed)",
		},
		[]string{"instance", "port", "outcome"},
	)

	registryMisses = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "registry_consecutive_misses",
			Help:      "Consecutive failed registry queries of an out port poller",
		},
		[]string{"instance", "port"},
	)

	sinkCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "out_port_sinks",
			Help:      "Number of sinks currently bound to an out port",
		},
		[]string{"instance", "port"},
	)

	sinkContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "out_port_contention_total",
			Help:      "Sink map swaps whose previous value differed from the value the updater captured",
		},
		[]string{"port"},
	)

	poolQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool_queue_depth",
			Help:      "Tasks waiting in a worker pool queue",
		},
		[]string{"pool"},
	)

	poolTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool_tasks_total",
			Help:      "Worker pool tasks by status (success, failed, panicked, dropped)",
		},
		[]string{"pool", "status"},
	)

	poolTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool_task_duration_seconds",
			Help:      "Time spent executing worker pool tasks",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"pool"},
	)
)

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// RecordTransition counts a fired transition and observes its action time.
func RecordTransition(machine, target string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}

	transitionsTotal.WithLabelValues(machine, target, result).Inc()
	transitionDuration.WithLabelValues(machine, target).Observe(duration.Seconds())
}

// UpdateInstanceState moves the instance_state gauge from one state to another.
func UpdateInstanceState(machine, instance, from, to string) {
	if from != "" {
		instanceState.DeleteLabelValues(machine, instance, from)
	}

	instanceState.WithLabelValues(machine, instance, to).Set(1)
}

// ForgetInstance drops every series of an instance once it is no longer tracked.
func ForgetInstance(machine, instance string) {
	instanceState.DeletePartialMatch(prometheus.Labels{"machine": machine, "instance": instance})
	pollCycles.DeletePartialMatch(prometheus.Labels{"instance": instance})
	registryMisses.DeletePartialMatch(prometheus.Labels{"instance": instance})
	sinkCount.DeletePartialMatch(prometheus.Labels{"instance": instance})
}

// RecordPollCycle counts one poll cycle of an out port.
func RecordPollCycle(instance, port, outcome string) {
	pollCycles.WithLabelValues(instance, port, outcome).Inc()
}

// SetRegistryMisses publishes the consecutive miss counter of a poller.
func SetRegistryMisses(instance, port string, misses int) {
	registryMisses.WithLabelValues(instance, port).Set(float64(misses))
}

// SetSinkCount publishes how many sinks are bound to an out port.
func SetSinkCount(instance, port string, n int) {
	sinkCount.WithLabelValues(instance, port).Set(float64(n))
}

// IncSinkContention counts a detected concurrent sink map update.
func IncSinkContention(port string) {
	sinkContention.WithLabelValues(port).Inc()
}

// SetPoolQueueDepth publishes the queue length of a worker pool.
func SetPoolQueueDepth(pool string, depth int) {
	poolQueueDepth.WithLabelValues(pool).Set(float64(depth))
}

// RecordPoolTask counts a finished (or dropped) worker pool task.
func RecordPoolTask(pool, status string, duration time.Duration) {
	poolTasks.WithLabelValues(pool, status).Inc()

	if duration > 0 {
		poolTaskDuration.WithLabelValues(pool).Observe(duration.Seconds())
	}
}

// SetupMetricsEndpoint starts an HTTP server exposing /metrics.
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeFatal, logger.For(logger.ComponentMetrics))
		}
	}()

	return server
}
