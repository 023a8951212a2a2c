// Copyright © 2018 One Concern

package repo

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collected on instrumented repos
type Metrics struct {
	writes        *prometheus.CounterVec
	writtenRecs   *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	flushDuration *prometheus.HistogramVec
	errors        *prometheus.CounterVec
}

// NewMetrics registers repo metrics. A nil registerer defaults to the prometheus default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repobuf_writes_total",
			Help: "Write calls on repos",
		}, []string{"repo"}),
		writtenRecs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repobuf_written_records_total",
			Help: "Records written to repo buffers",
		}, []string{"repo"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repobuf_flushes_total",
			Help: "Explicit flush calls on repos, by mode",
		}, []string{"repo", "mode"}),
		flushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repobuf_flush_duration_seconds",
			Help:    "Duration of explicit flush calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"repo", "mode"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repobuf_errors_total",
			Help: "Failed repo operations",
		}, []string{"repo", "op"}),
	}
	reg.MustRegister(m.writes, m.writtenRecs, m.flushes, m.flushDuration, m.errors)
	return m
}
