// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sink

import (
	"github.com/Xorcist77/sqlsink/repositories/tablewriter"
	"github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics contains Prometheus metrics for monitoring a sink engine. A nil
// *metrics records nothing.
type metrics struct {
	eventsEnqueued prometheus.Counter
	eventsDropped  prometheus.Counter
	eventsWritten  prometheus.Counter
	batchesWritten prometheus.Counter
	batchesFailed  *prometheus.CounterVec
	bufferLength   prometheus.Gauge
}

// newMetrics registers the engine metrics on the default registerer. The
// engine id keeps the collectors of several engines apart.
func newMetrics(engineID uuid.UUID, table string) *metrics {

	promGlobalLabels := prometheus.Labels{
		"engine": engineID.String(),
		"table":  table,
	}

	return &metrics{
		eventsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "events_enqueued_total",
			Help:        "The total number of events accepted by the buffer",
			Namespace:   types.PROMETHEUS_NAMESPACE,
			ConstLabels: promGlobalLabels,
		}),
		eventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "events_dropped_total",
			Help:        "The total number of events dropped without being written",
			Namespace:   types.PROMETHEUS_NAMESPACE,
			ConstLabels: promGlobalLabels,
		}),
		eventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "events_written_total",
			Help:        "The total number of events committed to the table",
			Namespace:   types.PROMETHEUS_NAMESPACE,
			ConstLabels: promGlobalLabels,
		}),
		batchesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name:        "batches_written_total",
			Help:        "The total number of batches committed to the table",
			Namespace:   types.PROMETHEUS_NAMESPACE,
			ConstLabels: promGlobalLabels,
		}),
		batchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "batches_failed_total",
			Help:        "The total number of failed batch writes, by failure kind",
			Namespace:   types.PROMETHEUS_NAMESPACE,
			ConstLabels: promGlobalLabels,
		}, []string{"failure"}),
		bufferLength: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "buffer_length",
			Help:        "The number of events waiting to be written",
			Namespace:   types.PROMETHEUS_NAMESPACE,
			ConstLabels: promGlobalLabels,
		}),
	}
}

func (m *metrics) enqueued() {
	if m != nil {
		m.eventsEnqueued.Inc()
	}
}

func (m *metrics) dropped(n int) {
	if m != nil && n > 0 {
		m.eventsDropped.Add(float64(n))
	}
}

func (m *metrics) written(n int) {
	if m != nil {
		m.batchesWritten.Inc()
		m.eventsWritten.Add(float64(n))
	}
}

func (m *metrics) failed(kind tablewriter.FailureKind) {
	if m != nil {
		m.batchesFailed.WithLabelValues(kind.String()).Inc()
	}
}

func (m *metrics) setBufferLength(n int) {
	if m != nil {
		m.bufferLength.Set(float64(n))
	}
}
