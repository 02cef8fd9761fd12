package strom

import (
	"time"

	"github.com/dudk/strom/signal"
)

// Timebase maps between wall-clock instants and sample indices of one
// stream. Every stream sets its zero time independently at its first real
// sample; consumers needing cross-stream alignment convert a wall-clock
// range into each stream's local index range, tolerating jitter bounded by
// one producer loop period. Offset is a fixed calibration constant for a
// known latency difference between hardware families, taken from
// configuration.
type Timebase struct {
	Zero   time.Time
	Rate   signal.SampleRate
	Offset time.Duration
}

// IndexAt returns the sample index corresponding to a wall-clock instant.
func (tb Timebase) IndexAt(t time.Time) int64 {
	return tb.Rate.SamplesIn(t.Add(tb.Offset).Sub(tb.Zero))
}

// TimeAt returns the wall-clock instant of a sample index.
func (tb Timebase) TimeAt(index int64) time.Time {
	return tb.Zero.Add(tb.Rate.DurationOf(index)).Add(-tb.Offset)
}

// RangeFor converts a wall-clock range into the stream's index range.
func (tb Timebase) RangeFor(from, to time.Time) (int64, int64) {
	return tb.IndexAt(from), tb.IndexAt(to)
}
