// Package mock provides a scriptable hardware source for tests.
package mock

import (
	"sync"
	"time"

	"github.com/dudk/strom/signal"
	"github.com/dudk/strom/source"
)

// Source is a hardware source whose behavior is driven by its fields. Zero
// value delivers nothing. Fields must be set before the source is used.
type Source struct {
	// UnitID identifies the unit, "mock" if empty.
	UnitID string
	// Layout of generated scans.
	Layout signal.Layout
	// Scans is the scripted analog data, scan-major. Digital holds one
	// word per scan when the layout has digital bytes.
	Scans   []int16
	Digital []uint32
	// PerFetch limits scans returned by a single fetch, all-at-once if 0.
	PerFetch int
	// EmptyFetches is the number of initial fetches returning no data.
	EmptyFetches int
	// Fill is the fill state reported by FifoFill.
	Fill source.FifoState
	// ErrorOnConfigure, ErrorOnStart and ErrorOnFetch make the
	// respective call fail.
	ErrorOnConfigure error
	ErrorOnStart     error
	ErrorOnFetch     error
	// FailFetchAfter makes fetch number n (1-based) return ErrorOnFetch,
	// immediately if 0.
	FailFetchAfter int

	mu sync.Mutex
	// Counter of calls made.
	Counter struct {
		Configured int
		Started    int
		Stopped    int
		Paused     int
		Resumed    int
		Fetches    int
	}
	pos    int // scans already delivered
	paused bool
}

// Unit returns the unit identifier.
func (s *Source) Unit() string {
	if s.UnitID == "" {
		return "mock"
	}
	return s.UnitID
}

// Configure counts the handshake and fails if scripted to.
func (s *Source) Configure(layout signal.Layout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Counter.Configured++
	return s.ErrorOnConfigure
}

// Start counts the call and fails if scripted to.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Counter.Started++
	return s.ErrorOnStart
}

// Stop counts the call.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Counter.Stopped++
	return nil
}

// Pause counts the call and suspends delivery.
func (s *Source) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Counter.Paused++
	s.paused = true
	return nil
}

// Resume counts the call and restores delivery.
func (s *Source) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Counter.Resumed++
	s.paused = false
	return nil
}

// Fetch delivers the next portion of scripted scans.
func (s *Source) Fetch(dst *source.Batch, max int, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Counter.Fetches++

	if s.ErrorOnFetch != nil && s.Counter.Fetches > s.FailFetchAfter {
		return 0, s.ErrorOnFetch
	}
	if s.Counter.Fetches <= s.EmptyFetches || s.paused {
		return 0, nil
	}

	w := s.Layout.AnalogPerScan()
	remaining := 0
	if w > 0 {
		remaining = len(s.Scans)/w - s.pos
	} else if s.Layout.XD > 0 {
		remaining = len(s.Digital) - s.pos
	}
	n := remaining
	if s.PerFetch > 0 && n > s.PerFetch {
		n = s.PerFetch
	}
	if n > max {
		n = max
	}
	if n <= 0 {
		return 0, nil
	}

	if w > 0 {
		copy(dst.Analog[dst.Off*w:], s.Scans[s.pos*w:(s.pos+n)*w])
	}
	if s.Layout.XD > 0 {
		copy(dst.Digital[dst.Off:], s.Digital[s.pos:s.pos+n])
	}
	s.pos += n
	return n, nil
}

// FifoFill reports the scripted fill state.
func (s *Source) FifoFill() (source.FifoState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Fill, nil
}

// Delivered returns the number of scans handed out so far.
func (s *Source) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
