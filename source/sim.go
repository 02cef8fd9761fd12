package source

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dudk/strom/signal"
)

// Sim is a simulated hardware unit generating a sine pattern paced by the
// wall clock. It produces exactly rate*mux scans per second on average, so a
// pipeline wired to it behaves like one driven by real hardware.
type Sim struct {
	unit string
	rate signal.SampleRate // time points per second
	mux  int

	mu      sync.Mutex
	layout  signal.Layout
	started bool
	paused  bool
	last    time.Time
	scan    int64 // scans generated so far
}

// NewSim creates a simulated unit producing at the given time-point rate and
// multiplex factor.
func NewSim(unit string, rate signal.SampleRate, mux int) *Sim {
	return &Sim{unit: unit, rate: rate, mux: mux}
}

// Unit returns the unit identifier.
func (s *Sim) Unit() string { return s.unit }

// Configure records the channel layout. The simulated handshake always
// succeeds.
func (s *Sim) Configure(layout signal.Layout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layout = layout
	return nil
}

// Start begins generation.
func (s *Sim) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("sim %s: already started", s.unit)
	}
	s.started = true
	s.last = time.Now()
	return nil
}

// Stop ends generation.
func (s *Sim) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Pause suspends generation for a unit update.
func (s *Sim) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

// Resume restarts generation after Pause. The paused span is dropped, as a
// real device discards samples while its unit is re-armed.
func (s *Sim) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.last = time.Now()
	return nil
}

// Fetch generates the scans elapsed since the previous call, up to max.
func (s *Sim) Fetch(dst *Batch, max int, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0, fmt.Errorf("sim %s: fetch before start", s.unit)
	}
	if s.paused {
		return 0, nil
	}

	now := time.Now()
	scanRate := float64(s.rate) * float64(s.mux)
	n := int(now.Sub(s.last).Seconds() * scanRate)
	if n > max {
		n = max
	}
	if n == 0 {
		return 0, nil
	}
	s.last = s.last.Add(time.Duration(float64(n) / scanRate * float64(time.Second)))

	w := s.layout.AnalogPerScan()
	for i := 0; i < n; i++ {
		t := float64(s.scan) / scanRate
		v := int16(8000 * math.Sin(2*math.Pi*2*t))
		for c := 0; c < w; c++ {
			dst.Analog[(dst.Off+i)*w+c] = v + int16(c)
		}
		if s.layout.XD > 0 {
			dst.Digital[dst.Off+i] = uint32(s.scan) & 1
		}
		s.scan++
	}
	return n, nil
}

// FifoFill reports an empty device buffer: the simulator generates on demand
// and can never fall behind.
func (s *Sim) FifoFill() (FifoState, error) {
	return FifoState{Used: 0, Capacity: 1}, nil
}
