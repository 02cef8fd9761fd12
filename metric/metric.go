// Package metric exposes prometheus instrumentation for the ingestion
// pipeline.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline collectors, labeled by hardware unit. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	samples  *prometheus.CounterVec
	zeroFill *prometheus.CounterVec
	fifoFill *prometheus.GaugeVec
	loop     *prometheus.SummaryVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strom_samples_ingested_total",
			Help: "Time points published to the stream queue.",
		}, []string{"unit"}),
		zeroFill: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strom_samples_zero_filled_total",
			Help: "Synthetic zero time points inserted to keep the index space contiguous.",
		}, []string{"unit"}),
		fifoFill: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strom_fifo_fill_percent",
			Help: "Hardware FIFO occupancy sampled by the backpressure monitor.",
		}, []string{"unit"}),
		loop: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "strom_producer_loop_seconds",
			Help: "Producer fetch-reshape-publish cycle latency.",
		}, []string{"unit"}),
	}
	reg.MustRegister(m.samples, m.zeroFill, m.fifoFill, m.loop)
	return m
}

// AddSamples counts published time points.
func (m *Metrics) AddSamples(unit string, n int) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(unit).Add(float64(n))
}

// AddZeroFill counts inserted zero time points.
func (m *Metrics) AddZeroFill(unit string, n int64) {
	if m == nil {
		return
	}
	m.zeroFill.WithLabelValues(unit).Add(float64(n))
}

// SetFifoFill records a FIFO occupancy sample.
func (m *Metrics) SetFifoFill(unit string, percent int) {
	if m == nil {
		return
	}
	m.fifoFill.WithLabelValues(unit).Set(float64(percent))
}

// ObserveLoop records one producer cycle latency.
func (m *Metrics) ObserveLoop(unit string, d time.Duration) {
	if m == nil {
		return
	}
	m.loop.WithLabelValues(unit).Observe(d.Seconds())
}
