// Package source defines the hardware source contract consumed by the
// ingestion pipeline and a simulated implementation of it.
package source

import (
	"time"

	"github.com/dudk/strom/signal"
)

// Source is the abstract contract of one hardware unit delivering raw scans.
// The concrete handshake performed by Configure is device specific and not
// part of this package. All methods are called from the owning producer
// goroutine except Pause and Resume, which a run controller may call to
// reconfigure the unit while the rest of the run continues, and FifoFill,
// which the backpressure monitor polls from its own goroutine and which
// must therefore be safe for concurrent use with Fetch.
type Source interface {
	// Unit returns the stable identifier of the hardware unit.
	Unit() string

	// Configure performs the device handshake for the given channel
	// layout. A failed handshake is fatal for the stream.
	Configure(layout signal.Layout) error

	// Start begins acquisition. Fetch may be called after Start.
	Start() error

	// Stop ends acquisition and releases hardware resources. It must be
	// safe to call after a failed Configure or Start.
	Stop() error

	// Fetch reads up to max raw scans into dst, waiting at most timeout
	// for data to become available. A fetch returning zero scans is not
	// itself an error. The scans are appended starting at scan offset
	// dst.Off.
	Fetch(dst *Batch, max int, timeout time.Duration) (int, error)

	// FifoFill returns the occupancy of the device-side buffer, used as
	// a backpressure proxy.
	FifoFill() (FifoState, error)

	// Pause suspends delivery for a live reconfiguration of this unit.
	Pause() error

	// Resume restarts delivery after Pause.
	Resume() error
}

// Batch is a destination buffer for fetched raw scans, scan-major. Analog
// holds layout.AnalogPerScan values per scan, Digital one line word per scan
// when the layout has digital bytes. Off is the scan offset at which Fetch
// appends, letting a carried remainder stay at the front.
type Batch struct {
	Layout  signal.Layout
	Analog  []int16
	Digital []uint32
	Off     int
}

// NewBatch allocates a batch holding up to maxScans scans.
func NewBatch(layout signal.Layout, maxScans int) *Batch {
	b := &Batch{Layout: layout}
	if w := layout.AnalogPerScan(); w > 0 {
		b.Analog = make([]int16, maxScans*w)
	}
	if layout.XD > 0 {
		b.Digital = make([]uint32, maxScans)
	}
	return b
}

// Raw returns the batch content as raw signal data.
func (b *Batch) Raw() signal.Raw {
	return signal.Raw{Layout: b.Layout, Analog: b.Analog, Digital: b.Digital}
}

// Slide moves the trailing rem scans of nScans held to the batch front and
// positions the append offset after them.
func (b *Batch) Slide(rem, nScans int) {
	r := b.Raw()
	r.SlideForward(rem, nScans)
	b.Off = rem
}

// FifoState is a snapshot of a device buffer occupancy. It is recomputed on
// every monitoring tick, never persisted.
type FifoState struct {
	Used     int
	Capacity int
}

// Percent returns the occupancy as 0..100.
func (f FifoState) Percent() int {
	if f.Capacity <= 0 {
		return 0
	}
	return 100 * f.Used / f.Capacity
}
