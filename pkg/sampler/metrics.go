// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes this process's own operational counters via
// prometheus, distinct from the telemetry it collects about the rest of
// the host: how many ticks completed, how many PMU descriptors failed
// to open, and how many /proc reads were skipped as transient.
type Metrics struct {
	TicksTotal           prometheus.Counter
	TickDuration         prometheus.Histogram
	ProcReadSkipsTotal   prometheus.Counter
	PMUAttachFailures    prometheus.Counter
	AppRequestsTotal     *prometheus.CounterVec
	ProcessesObserved    prometheus.Gauge
	FilteredProcessCount prometheus.Gauge
}

// NewMetrics constructs and registers a Metrics instance against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "ticks_total",
			Help:      "Number of sampling ticks completed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulse",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of each sampling tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		ProcReadSkipsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "proc_read_skips_total",
			Help:      "Processes skipped because their /proc entry vanished mid-tick.",
		}),
		PMUAttachFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "pmu_attach_failures_total",
			Help:      "perf_event_open calls that failed and were skipped rather than aborting the tick.",
		}),
		AppRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Name:      "app_requests_total",
			Help:      "Application RPC requests by target and outcome.",
		}, []string{"app", "outcome"}),
		ProcessesObserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulse",
			Name:      "processes_observed",
			Help:      "Number of processes observed in the most recent tick.",
		}),
		FilteredProcessCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulse",
			Name:      "filtered_process_count",
			Help:      "Number of top-K processes selected in the most recent tick.",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.ProcReadSkipsTotal,
		m.PMUAttachFailures,
		m.AppRequestsTotal,
		m.ProcessesObserved,
		m.FilteredProcessCount,
	)
	return m
}
