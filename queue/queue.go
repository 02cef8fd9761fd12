// Package queue provides an append-only, time-indexed sample buffer for one
// logical stream. It has a single writer and any number of readers, and the
// writer is never blocked by readers.
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/dudk/strom/signal"
)

// Queue is a time-indexed buffer of published sample blocks. The index space
// has no gaps: an acquisition interruption is filled with an explicit
// zero block, never silently skipped. Blocks are immutable once published
// and growth never moves data already handed out to readers.
type Queue struct {
	channels int
	rate     signal.SampleRate

	mu     sync.RWMutex
	blocks []block
	n      int64 // total published time points
	t0     time.Time
	t0set  bool
	closed bool
	more   chan struct{} // replaced on every publish, closed to wake waiters
}

// block is a contiguous run of time points tagged with the index range it
// occupies. data length is a whole multiple of the channel count.
type block struct {
	start int64
	data  []int16
}

// New creates a queue for a stream with the given channel count per time
// point and nominal sample rate.
func New(channels int, rate signal.SampleRate) *Queue {
	return &Queue{
		channels: channels,
		rate:     rate,
		more:     make(chan struct{}),
	}
}

// Channels returns the number of channels in one time point.
func (q *Queue) Channels() int {
	return q.channels
}

// Rate returns the nominal sample rate of the stream.
func (q *Queue) Rate() signal.SampleRate {
	return q.rate
}

// Enqueue appends a fully-formed block of whole time points. The data is
// copied, so the caller may reuse its buffer. It never blocks on readers.
func (q *Queue) Enqueue(data []int16) error {
	if len(data)%q.channels != 0 {
		return fmt.Errorf("enqueue %d values: not a whole number of %d-channel time points", len(data), q.channels)
	}
	cp := make([]int16, len(data))
	copy(cp, data)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("enqueue on closed queue")
	}
	q.blocks = append(q.blocks, block{start: q.n, data: cp})
	q.n += int64(len(data) / q.channels)
	q.wake()
	return nil
}

// EnqueueZero appends a synthetic all-zero block so that the index space
// stays contiguous up to toIndex. Any part of [fromIndex, toIndex) already
// published is left untouched. It returns the number of zero time points
// added.
func (q *Queue) EnqueueZero(fromIndex, toIndex int64) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	from := fromIndex
	if from < q.n {
		from = q.n
	}
	count := toIndex - from
	if count <= 0 {
		return 0
	}
	q.blocks = append(q.blocks, block{
		start: q.n,
		data:  make([]int16, count*int64(q.channels)),
	})
	q.n += count
	q.wake()
	return count
}

// SetZeroTime binds index 0 to a wall-clock instant. Only the first call for
// a queue has effect; it reports whether the zero time was set by this call.
func (q *Queue) SetZeroTime(t time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.t0set {
		return false
	}
	q.t0 = t
	q.t0set = true
	return true
}

// ZeroTime returns the wall-clock instant of index 0 and whether it was set.
func (q *Queue) ZeroTime() (time.Time, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.t0, q.t0set
}

// EndIndex returns the total number of published time points.
func (q *Queue) EndIndex() int64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.n
}

// EndTime returns the wall-clock instant of the stream tail: T0 + N/R.
func (q *Queue) EndTime() time.Time {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.t0.Add(q.rate.DurationOf(q.n))
}

// Read copies the published subset of [startIndex, startIndex+count) time
// points into a fresh buffer and returns it with the actual count. It may
// return fewer than count time points if the tail has not been produced yet
// and never blocks the writer.
func (q *Queue) Read(startIndex int64, count int) ([]int16, int) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if startIndex < 0 {
		startIndex = 0
	}
	end := startIndex + int64(count)
	if end > q.n {
		end = q.n
	}
	if end <= startIndex {
		return nil, 0
	}

	actual := int(end - startIndex)
	dst := make([]int16, actual*q.channels)
	for _, b := range q.blocks {
		bEnd := b.start + int64(len(b.data)/q.channels)
		if bEnd <= startIndex || b.start >= end {
			continue
		}
		lo := startIndex
		if b.start > lo {
			lo = b.start
		}
		hi := end
		if bEnd < hi {
			hi = bEnd
		}
		src := b.data[(lo-b.start)*int64(q.channels) : (hi-b.start)*int64(q.channels)]
		copy(dst[(lo-startIndex)*int64(q.channels):], src)
	}
	return dst, actual
}

// Close marks the producer side done. Readers waiting for more data are
// released; further writes fail. The published data stays readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.wake()
}

// Closed reports whether the producer terminated.
func (q *Queue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// wake releases current waiters. Callers must hold mu.
func (q *Queue) wake() {
	close(q.more)
	q.more = make(chan struct{})
}

// Attach returns a new read handle positioned at the queue head.
func (q *Queue) Attach() *Reader {
	return &Reader{q: q}
}

// Reader is a non-owning sequential read handle to a queue. Readers never
// block the writer and multiple readers proceed independently.
type Reader struct {
	q   *Queue
	pos int64
}

// Read returns up to count time points from the current position and
// advances past them. The default mode is a non-blocking partial read.
func (r *Reader) Read(count int) ([]int16, int) {
	data, n := r.q.Read(r.pos, count)
	r.pos += int64(n)
	return data, n
}

// Seek repositions the reader at the given sample index.
func (r *Reader) Seek(index int64) {
	r.pos = index
}

// Pos returns the reader position.
func (r *Reader) Pos() int64 {
	return r.pos
}

// EndIndex returns the queue end index.
func (r *Reader) EndIndex() int64 {
	return r.q.EndIndex()
}

// EndTime returns the queue end time.
func (r *Reader) EndTime() time.Time {
	return r.q.EndTime()
}

// WaitFor blocks until at least count time points are readable from the
// current position, the queue is closed, or the timeout elapses. It reports
// whether the data is available.
func (r *Reader) WaitFor(count int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	target := r.pos + int64(count)
	for {
		r.q.mu.RLock()
		n, closed, more := r.q.n, r.q.closed, r.q.more
		r.q.mu.RUnlock()
		if n >= target {
			return true
		}
		if closed {
			return false
		}
		select {
		case <-more:
		case <-deadline.C:
			return false
		}
	}
}
