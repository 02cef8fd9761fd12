package strom

import (
	"context"
	"fmt"
	"time"

	"github.com/dudk/strom/log"
	"github.com/dudk/strom/metric"
)

// Monitor periodically samples device FIFO occupancy of every worker in a
// run. Occupancy below the warning threshold is healthy, between warning and
// critical it logs the cycle statistics of the falling-behind producer, at
// or above critical it stops the run: past that point hardware sample loss
// is imminent and silently corrupt data is worse than no data.
type Monitor struct {
	period   time.Duration
	warn     int
	critical int
	log      log.Logger
	metrics  *metric.Metrics
}

// MonitorOption provides a way to set optional parameters to monitor.
type MonitorOption func(*Monitor)

// WithPeriod overrides the sampling period.
func WithPeriod(period time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.period = period
	}
}

// WithThresholds overrides the warning and critical occupancy percentages.
func WithThresholds(warn, critical int) MonitorOption {
	return func(m *Monitor) {
		m.warn = warn
		m.critical = critical
	}
}

// NewMonitor creates a backpressure monitor with a five-second period and
// 5/95 percent thresholds.
func NewMonitor(options ...MonitorOption) *Monitor {
	m := &Monitor{
		period:   5 * time.Second,
		warn:     5,
		critical: 95,
		log:      log.Default(),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Run samples the workers until cancellation or a critical occupancy. A
// FIFO query failure is logged and skipped: a transient status error must
// not take the run down. The statistics window of every worker is reset
// after each sample, so warnings always describe the last window.
func (m *Monitor) Run(ctx context.Context, workers []*Worker) error {
	t := time.NewTicker(m.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		for _, w := range workers {
			pct, err := w.FifoFill()
			if err != nil {
				m.log.Error(fmt.Sprintf("unit %v: fifo state: %v", w.Unit(), err))
				continue
			}
			m.metrics.SetFifoFill(w.Unit(), pct)
			stats := w.LoopStats()
			w.ResetLoopStats()
			if pct >= m.critical {
				return &OverflowError{Unit: w.Unit(), Percent: pct}
			}
			if pct >= m.warn {
				m.log.Warn(fmt.Sprintf(
					"unit %v: device queue %d%% full; loops %d mean %v peak %v maxpoints %d",
					w.Unit(), pct, stats.N,
					stats.Mean().Round(time.Microsecond),
					stats.Peak.Round(time.Microsecond),
					stats.PeakWhole))
			}
		}
	}
}
