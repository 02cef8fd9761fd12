package strom

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dudk/strom/log"
	"github.com/dudk/strom/metric"
	"github.com/dudk/strom/queue"
)

// Run owns the producers of one acquisition session. It starts them in the
// same logical instant, supervises them together with the backpressure
// monitor, and unwinds all of them on the first fatal error. Queues stay
// readable after the run ended.
type Run struct {
	uid     string
	workers []*Worker
	byUnit  map[string]*Worker
	monitor *Monitor
	log     log.Logger
	metrics *metric.Metrics

	mu      sync.Mutex
	started bool
	startc  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// RunOption provides a way to set optional parameters to run.
type RunOption func(*Run)

// WithMonitor attaches a backpressure monitor to the run.
func WithMonitor(m *Monitor) RunOption {
	return func(r *Run) {
		r.monitor = m
	}
}

// WithLogger sets the logger for the run and all its workers.
func WithLogger(l log.Logger) RunOption {
	return func(r *Run) {
		r.log = l
	}
}

// WithMetrics sets the metrics sink for the run and all its workers.
func WithMetrics(m *metric.Metrics) RunOption {
	return func(r *Run) {
		r.metrics = m
	}
}

// NewRun creates a run over the provided workers. Unit identifiers must be
// unique within one run.
func NewRun(workers []*Worker, options ...RunOption) (*Run, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("run: at least one worker required")
	}
	r := &Run{
		uid:     newUID(),
		workers: workers,
		byUnit:  make(map[string]*Worker, len(workers)),
		log:     log.Default(),
		startc:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, option := range options {
		option(r)
	}
	for _, w := range workers {
		if _, ok := r.byUnit[w.Unit()]; ok {
			return nil, fmt.Errorf("run: duplicate unit %s", w.Unit())
		}
		r.byUnit[w.Unit()] = w
		w.log = r.log
		w.metrics = r.metrics
	}
	if r.monitor != nil {
		r.monitor.log = r.log
		r.monitor.metrics = r.metrics
	}
	return r, nil
}

// Queue returns the stream queue of a unit.
func (r *Run) Queue(unit string) (*queue.Queue, bool) {
	w, ok := r.byUnit[unit]
	if !ok {
		return nil, false
	}
	return w.Queue(), true
}

// Start launches every worker and releases them simultaneously. It returns
// immediately; use Wait or Done to observe the run outcome.
func (r *Run) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("run %s: already started", r.uid)
	}
	r.started = true

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		w := w
		g.Go(func() error {
			return w.Run(ctx, r.startc)
		})
	}
	if r.monitor != nil {
		g.Go(func() error {
			return r.monitor.Run(ctx, r.workers)
		})
	}
	// all workers armed against the same channel, one close releases them
	// in the same instant
	close(r.startc)
	r.log.Info(fmt.Sprintf("run %v started with %d units", r.uid, len(r.workers)))

	go func() {
		err := g.Wait()
		cancel()
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		err = r.err
		r.mu.Unlock()
		if err != nil {
			r.log.Error(fmt.Sprintf("run %v failed: %v", r.uid, err))
		} else {
			r.log.Info(fmt.Sprintf("run %v finished", r.uid))
		}
		close(r.done)
	}()
	return nil
}

// Stop cancels the run and waits for every worker to release its hardware.
// A deliberate stop is not an error.
func (r *Run) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return fmt.Errorf("run %s: not started", r.uid)
	}
	cancel()
	return r.Wait()
}

// Wait blocks until the run ended and returns its fatal error, if any.
func (r *Run) Wait() error {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done returns a channel closed when the run ended.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Update pauses a single unit, re-runs its device handshake and resumes it,
// while the other units of the run keep acquiring. The paused span is
// zero-filled by the worker on resume. A failed reconfiguration is fatal to
// the run.
func (r *Run) Update(unit string) error {
	w, ok := r.byUnit[unit]
	if !ok {
		return fmt.Errorf("run %s: unknown unit %s", r.uid, unit)
	}
	if s := w.State(); s != Running {
		return fmt.Errorf("unit %s is %v, not running", unit, s)
	}

	ack := w.RequestPause()
	ackTimeout := 2 * (w.cfg.FetchTimeout + w.cfg.LoopPeriod)
	t := time.NewTimer(ackTimeout)
	defer t.Stop()
	select {
	case <-ack:
	case <-r.done:
		w.ResumeUnit()
		return fmt.Errorf("unit %s: run ended before pause acknowledgement", unit)
	case <-t.C:
		w.ResumeUnit()
		return fmt.Errorf("unit %s: pause not acknowledged within %v", unit, ackTimeout)
	}

	r.log.Info(fmt.Sprintf("run %v: updating unit %v", r.uid, unit))
	if err := w.Reconfigure(); err != nil {
		// record the cause before cancelling so Wait reports why the
		// run went down, not the workers' clean unwind
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
		r.cancel()
		return err
	}
	w.ResumeUnit()
	return nil
}
