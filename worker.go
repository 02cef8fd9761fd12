package strom

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dudk/strom/log"
	"github.com/dudk/strom/metric"
	"github.com/dudk/strom/queue"
	"github.com/dudk/strom/signal"
	"github.com/dudk/strom/source"
)

// State identifies one of the possible states a worker can be in.
type State int32

// Worker states. Any state can move to Stopping on fatal error; Terminated
// is reached only after hardware resources were released.
const (
	Created State = iota
	WaitingForStart
	Configuring
	Running
	PausedForUnit
	Stopping
	Terminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case WaitingForStart:
		return "waiting-for-start"
	case Configuring:
		return "configuring"
	case Running:
		return "running"
	case PausedForUnit:
		return "paused-for-unit"
	case Stopping:
		return "stopping"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// WorkerConfig holds the per-stream producer parameters.
type WorkerConfig struct {
	// Rate is the nominal time-point rate of the stream.
	Rate signal.SampleRate
	// Mux is the multiplex factor: raw scans per logical time point.
	Mux int
	// Primary is the channel layout of the primary source.
	Primary signal.Layout
	// LoopPeriod is the target duration of one fetch cycle. The worker
	// sleeps the balance of it, it never busy-spins.
	LoopPeriod time.Duration
	// FetchTimeout bounds a single hardware fetch so a stop request is
	// honored within one timeout interval even mid-fetch.
	FetchTimeout time.Duration
	// EmptyFetchLimit is the number of consecutive cycles without a
	// whole time point treated as a fatal fetch timeout.
	EmptyFetchLimit int
	// MaxFetchScans sizes the fetch buffers, worst-case latency worth
	// of scans. Defaults to two seconds at the scan rate.
	MaxFetchScans int
	// CalibrationOffset is the fixed latency compensation of this
	// hardware family, exposed through the stream timebase.
	CalibrationOffset time.Duration
}

func (c *WorkerConfig) defaults() error {
	if c.Rate <= 0 {
		return fmt.Errorf("worker: rate must be positive")
	}
	if c.Mux == 0 {
		c.Mux = 1
	}
	if c.Mux < 1 {
		return fmt.Errorf("worker: mux factor must be at least 1")
	}
	if c.LoopPeriod == 0 {
		c.LoopPeriod = time.Millisecond
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 2500 * time.Millisecond
	}
	if c.EmptyFetchLimit == 0 {
		c.EmptyFetchLimit = 1100
	}
	if c.MaxFetchScans == 0 {
		c.MaxFetchScans = 2 * c.Mux * int(c.Rate)
		if c.MaxFetchScans < c.Mux {
			c.MaxFetchScans = c.Mux
		}
	}
	return nil
}

// LoopStats accumulates producer cycle statistics over one monitoring
// window.
type LoopStats struct {
	N         int           // cycles in the window
	Sum       time.Duration // total cycle time
	Peak      time.Duration // slowest cycle
	PeakWhole int           // largest whole-time-point count in one cycle
}

// Mean returns the average cycle time of the window.
func (s LoopStats) Mean() time.Duration {
	if s.N == 0 {
		return 0
	}
	return s.Sum / time.Duration(s.N)
}

// Worker is the producer of one logical stream. It owns its remainder state
// and is the sole writer of its queue. It runs a paced fetch - reshape -
// publish loop against one hardware source, or a co-acquired pair.
type Worker struct {
	uid       string
	unit      string
	cfg       WorkerConfig
	primary   source.Source
	secondary source.Source
	secLayout signal.Layout
	queue     *queue.Queue
	log       log.Logger
	metrics   *metric.Metrics

	state atomic.Int32

	pauseMu  sync.Mutex
	pauseReq bool
	pauseAck chan struct{}
	resumec  chan struct{}

	statsMu sync.Mutex
	stats   LoopStats
}

// WorkerOption provides a way to set optional parameters to worker.
type WorkerOption func(*Worker)

// WithSecondary attaches a co-acquired source whose scans merge into the
// same time points as the primary's.
func WithSecondary(src source.Source, layout signal.Layout) WorkerOption {
	return func(w *Worker) {
		w.secondary = src
		w.secLayout = layout
	}
}

// NewWorker creates a producer for one logical stream and its queue. The
// returned worker is in Created state until Run is called.
func NewWorker(cfg WorkerConfig, primary source.Source, options ...WorkerOption) (*Worker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	w := &Worker{
		uid:     newUID(),
		unit:    primary.Unit(),
		cfg:     cfg,
		primary: primary,
		log:     log.Default(),
	}
	for _, option := range options {
		option(w)
	}
	tp := signal.TimePointSize(cfg.Mux, cfg.Primary, w.secLayout)
	if tp == 0 {
		return nil, fmt.Errorf("worker %s: empty channel layout", w.unit)
	}
	w.queue = queue.New(tp, cfg.Rate)
	return w, nil
}

// Unit returns the hardware unit identifier of the stream.
func (w *Worker) Unit() string { return w.unit }

// Queue returns the stream queue this worker writes to. The queue outlives
// the worker and stays readable after termination.
func (w *Worker) Queue() *queue.Queue { return w.queue }

// State returns the current worker state.
func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.log.Debug(fmt.Sprintf("worker %v unit %v is %v", w.uid, w.unit, s))
}

// Timebase returns the stream timebase once the zero time was established.
func (w *Worker) Timebase() (Timebase, bool) {
	t0, ok := w.queue.ZeroTime()
	if !ok {
		return Timebase{}, false
	}
	return Timebase{Zero: t0, Rate: w.cfg.Rate, Offset: w.cfg.CalibrationOffset}, true
}

// LoopStats returns the cycle statistics accumulated since the last reset.
func (w *Worker) LoopStats() LoopStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// ResetLoopStats clears the statistics window.
func (w *Worker) ResetLoopStats() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats = LoopStats{}
}

func (w *Worker) recordLoop(dt time.Duration, nWhole int) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.N++
	w.stats.Sum += dt
	if dt > w.stats.Peak {
		w.stats.Peak = dt
	}
	if nWhole > w.stats.PeakWhole {
		w.stats.PeakWhole = nWhole
	}
}

// FifoFill returns the primary device FIFO occupancy percentage. A unit
// which is not actively fetching reports zero, as its device buffer is not
// filling.
func (w *Worker) FifoFill() (int, error) {
	if w.State() != Running {
		return 0, nil
	}
	fs, err := w.primary.FifoFill()
	if err != nil {
		return 0, err
	}
	return fs.Percent(), nil
}

// RequestPause asks the worker to park for a live reconfiguration of its
// unit. The returned channel is closed when the worker acknowledged the
// pause and stopped fetching. Consequent calls before ResumeUnit return the
// same channel.
func (w *Worker) RequestPause() <-chan struct{} {
	w.pauseMu.Lock()
	defer w.pauseMu.Unlock()
	if !w.pauseReq {
		w.pauseReq = true
		w.pauseAck = make(chan struct{})
		w.resumec = make(chan struct{})
	}
	return w.pauseAck
}

// ResumeUnit releases a paused worker. The worker zero-fills the paused
// span before fetching again, keeping the index space contiguous.
func (w *Worker) ResumeUnit() {
	w.pauseMu.Lock()
	defer w.pauseMu.Unlock()
	if !w.pauseReq {
		return
	}
	w.pauseReq = false
	close(w.resumec)
}

func (w *Worker) pauseRequested() bool {
	w.pauseMu.Lock()
	defer w.pauseMu.Unlock()
	return w.pauseReq
}

// Reconfigure re-runs the device handshake of a parked unit. It must only
// be called between a pause acknowledgement and ResumeUnit.
func (w *Worker) Reconfigure() error {
	if err := w.primary.Configure(w.cfg.Primary); err != nil {
		return &ConfigurationError{Unit: w.unit, Err: err}
	}
	if w.secondary != nil {
		if err := w.secondary.Configure(w.secLayout); err != nil {
			return &ConfigurationError{Unit: w.secondary.Unit(), Err: err}
		}
	}
	return nil
}

// Run executes the worker until a fatal error, a stop or context
// cancellation. It blocks in WaitingForStart until start is closed, so all
// producers of a run begin in the same logical instant. Hardware resources
// are released before Run returns, whatever path led to Stopping.
func (w *Worker) Run(ctx context.Context, start <-chan struct{}) error {
	defer w.setState(Terminated)
	defer w.queue.Close()

	w.setState(WaitingForStart)
	select {
	case <-ctx.Done():
		return nil
	case <-start:
	}

	w.setState(Configuring)
	if err := w.Reconfigure(); err != nil {
		w.setState(Stopping)
		w.release()
		return err
	}
	if err := w.startSources(); err != nil {
		w.setState(Stopping)
		w.release()
		return err
	}

	w.setState(Running)
	err := w.loop(ctx)

	w.setState(Stopping)
	w.release()
	return err
}

func (w *Worker) startSources() error {
	if err := w.primary.Start(); err != nil {
		return &HardwareError{Unit: w.unit, Op: "start", Err: err}
	}
	if w.secondary != nil {
		if err := w.secondary.Start(); err != nil {
			return &HardwareError{Unit: w.secondary.Unit(), Op: "start", Err: err}
		}
	}
	return nil
}

// release stops sources and frees hardware resources. Stop errors are only
// logged: unwinding must complete regardless.
func (w *Worker) release() {
	if err := w.primary.Stop(); err != nil {
		w.log.Error(fmt.Sprintf("unit %v: stop: %v", w.unit, err))
	}
	if w.secondary != nil {
		if err := w.secondary.Stop(); err != nil {
			w.log.Error(fmt.Sprintf("unit %v: stop: %v", w.secondary.Unit(), err))
		}
	}
}

// loop is the Running state: fetch, carry, reshape, publish, pace. The stop
// flag is checked at the top of every iteration.
func (w *Worker) loop(ctx context.Context) error {
	var (
		k        = w.cfg.Mux
		capScans = w.cfg.MaxFetchScans + k
		tp       = w.queue.Channels()
		batchA   = source.NewBatch(w.cfg.Primary, capScans)
		batchB   *source.Batch
		merged   = make([]int16, (capScans/k+1)*tp)

		rem        int // carried scans of an incomplete time point
		empties    int // consecutive cycles without a whole time point
		emptySince time.Time
		t0set      bool
	)
	if w.secondary != nil {
		batchB = source.NewBatch(w.secLayout, capScans)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if w.pauseRequested() {
			if done := w.parkForUnit(ctx); done {
				return nil
			}
			// the unit was re-armed, carried scans belong to the
			// old configuration
			rem = 0
			batchA.Off = 0
			if batchB != nil {
				batchB.Off = 0
			}
			continue
		}

		loopStart := time.Now()

		n, err := w.primary.Fetch(batchA, capScans-rem, w.cfg.FetchTimeout)
		if err != nil {
			return &HardwareError{Unit: w.unit, Op: "fetch", Err: err}
		}
		if n > 0 && !t0set {
			// first real samples of the run bind index 0
			w.queue.SetZeroTime(time.Now())
			t0set = true
		}
		if batchB != nil && n > 0 {
			if err := w.fetchSecondary(batchB, n); err != nil {
				return err
			}
		}

		held := rem + n
		nWhole := held / k
		if nWhole > 0 {
			var rawB signal.Raw
			rawB.Layout = w.secLayout
			if batchB != nil {
				rawB = batchB.Raw()
			}
			signal.MergeDemux(merged[:nWhole*tp], nWhole, k, batchA.Raw(), rawB)

			if err := w.queue.Enqueue(merged[:nWhole*tp]); err != nil {
				return fmt.Errorf("unit %s: %w", w.unit, err)
			}
			w.metrics.AddSamples(w.unit, nWhole)

			rem = held - nWhole*k
			batchA.Slide(rem, held)
			if batchB != nil {
				batchB.Slide(rem, held)
			}
			empties = 0
		} else {
			// keep what arrived, it is already contiguous at the
			// buffer front
			rem = held
			batchA.Off = rem
			if batchB != nil {
				batchB.Off = rem
			}
			if empties == 0 {
				emptySince = loopStart
			}
			empties++
			if empties > w.cfg.EmptyFetchLimit {
				return &FetchTimeoutError{
					Unit:    w.unit,
					Cycles:  empties,
					Elapsed: time.Since(emptySince),
				}
			}
		}

		dt := time.Since(loopStart)
		w.recordLoop(dt, nWhole)
		w.metrics.ObserveLoop(w.unit, dt)
		if dt < w.cfg.LoopPeriod {
			if done := sleepCtx(ctx, w.cfg.LoopPeriod-dt); done {
				return nil
			}
		}
	}
}

// fetchSecondary reads exactly the primary's scan count from the co-acquired
// source. A count mismatch is a non-fatal phase skew: it is logged and the
// shortfall is zero-padded to keep the pair in lockstep.
func (w *Worker) fetchSecondary(b *source.Batch, n int) error {
	n2, err := w.secondary.Fetch(b, n, w.cfg.FetchTimeout)
	if err != nil {
		return &HardwareError{Unit: w.secondary.Unit(), Op: "fetch", Err: err}
	}
	if n2 != n {
		w.log.Warn(fmt.Sprintf("unit %v: detected %v-%v phase shift: %d vs %d scans",
			w.unit, w.secondary.Unit(), w.unit, n2, n))
		for s := n2; s < n; s++ {
			if ws := b.Layout.AnalogPerScan(); ws > 0 {
				zero(b.Analog[(b.Off+s)*ws : (b.Off+s+1)*ws])
			}
			if b.Layout.XD > 0 {
				b.Digital[b.Off+s] = 0
			}
		}
	}
	return nil
}

// parkForUnit is the PausedForUnit state: the worker pauses its sources,
// acknowledges, and waits for resume. On resume the paused span is
// zero-filled so the index space stays gap-free. It reports whether the
// context was canceled while parked.
func (w *Worker) parkForUnit(ctx context.Context) (done bool) {
	w.setState(PausedForUnit)
	if err := w.primary.Pause(); err != nil {
		w.log.Error(fmt.Sprintf("unit %v: pause: %v", w.unit, err))
	}
	if w.secondary != nil {
		if err := w.secondary.Pause(); err != nil {
			w.log.Error(fmt.Sprintf("unit %v: pause: %v", w.secondary.Unit(), err))
		}
	}

	w.pauseMu.Lock()
	ack, resume := w.pauseAck, w.resumec
	w.pauseMu.Unlock()
	close(ack)

	select {
	case <-ctx.Done():
		return true
	case <-resume:
	}

	if err := w.primary.Resume(); err != nil {
		w.log.Error(fmt.Sprintf("unit %v: resume: %v", w.unit, err))
	}
	if w.secondary != nil {
		if err := w.secondary.Resume(); err != nil {
			w.log.Error(fmt.Sprintf("unit %v: resume: %v", w.secondary.Unit(), err))
		}
	}

	// the span is measured against the raw zero time; the calibration
	// offset is a consumer-side alignment constant and must not stretch
	// the stream
	if t0, ok := w.queue.ZeroTime(); ok {
		target := w.cfg.Rate.SamplesIn(time.Since(t0))
		added := w.queue.EnqueueZero(w.queue.EndIndex(), target)
		if added > 0 {
			w.metrics.AddZeroFill(w.unit, added)
			w.log.Info(fmt.Sprintf("unit %v: zero-filled %d samples over unit update", w.unit, added))
		}
	}
	w.setState(Running)
	return false
}

func zero(s []int16) {
	for i := range s {
		s[i] = 0
	}
}

// sleepCtx sleeps the balance of the loop period, honoring cancellation. It
// reports whether the context was canceled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}
