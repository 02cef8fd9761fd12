package strom_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/strom"
	"github.com/dudk/strom/mock"
	"github.com/dudk/strom/signal"
)

// recordLog captures warnings and errors for assertions.
type recordLog struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordLog) Debug(args ...interface{}) {}
func (l *recordLog) Info(args ...interface{})  {}

func (l *recordLog) Warn(args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprint(args...))
}

func (l *recordLog) Error(args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprint(args...))
}

func (l *recordLog) warned() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

func testWorker(t *testing.T, unit string, src *mock.Source) *strom.Worker {
	t.Helper()
	src.UnitID = unit
	w, err := strom.NewWorker(strom.WorkerConfig{
		Rate:            10000,
		Mux:             1,
		Primary:         src.Layout,
		LoopPeriod:      100 * time.Microsecond,
		EmptyFetchLimit: 1 << 20,
	}, src)
	require.NoError(t, err)
	return w
}

func TestRunStartStop(t *testing.T) {
	layout := signal.Layout{MN: 1}
	srcA := &mock.Source{Layout: layout, Scans: make([]int16, 10000), PerFetch: 2}
	srcB := &mock.Source{Layout: layout, Scans: make([]int16, 10000), PerFetch: 2}
	wa := testWorker(t, "a", srcA)
	wb := testWorker(t, "b", srcB)

	r, err := strom.NewRun([]*strom.Worker{wa, wb}, strom.WithLogger(&recordLog{}))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	// both streams produce
	qa, ok := r.Queue("a")
	require.True(t, ok)
	qb, ok := r.Queue("b")
	require.True(t, ok)
	assert.True(t, qa.Attach().WaitFor(10, time.Second))
	assert.True(t, qb.Attach().WaitFor(10, time.Second))

	assert.NoError(t, r.Stop())
	<-r.Done()

	assert.True(t, qa.Closed())
	assert.True(t, qb.Closed())
	assert.Equal(t, strom.Terminated, wa.State())
	assert.Equal(t, strom.Terminated, wb.State())
	assert.Equal(t, 1, srcA.Counter.Stopped)
	assert.Equal(t, 1, srcB.Counter.Stopped)
}

func TestRunFatalStopsAll(t *testing.T) {
	layout := signal.Layout{MN: 1}
	srcA := &mock.Source{
		Layout:         layout,
		Scans:          make([]int16, 100),
		PerFetch:       2,
		ErrorOnFetch:   errors.New("link down"),
		FailFetchAfter: 10,
	}
	srcB := &mock.Source{Layout: layout, Scans: make([]int16, 100000), PerFetch: 1}
	wa := testWorker(t, "a", srcA)
	wb := testWorker(t, "b", srcB)

	r, err := strom.NewRun([]*strom.Worker{wa, wb}, strom.WithLogger(&recordLog{}))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	err = r.Wait()
	require.Error(t, err)
	assert.True(t, errors.Is(err, strom.ErrHardwareProtocol))

	// the healthy worker is unwound too
	assert.Equal(t, strom.Terminated, wb.State())
	qa, _ := r.Queue("a")
	qb, _ := r.Queue("b")
	assert.True(t, qa.Closed())
	assert.True(t, qb.Closed())
}

func TestRunUpdate(t *testing.T) {
	layout := signal.Layout{MN: 1}
	src := &mock.Source{Layout: layout, Scans: make([]int16, 100000), PerFetch: 1}
	w := testWorker(t, "a", src)

	r, err := strom.NewRun([]*strom.Worker{w}, strom.WithLogger(&recordLog{}))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	q, _ := r.Queue("a")
	require.True(t, q.Attach().WaitFor(10, time.Second))

	require.NoError(t, r.Update("a"))

	assert.Equal(t, 1, src.Counter.Paused)
	assert.Equal(t, 1, src.Counter.Resumed)
	// initial handshake plus the live one
	assert.Equal(t, 2, src.Counter.Configured)

	// the stream continues after the update
	end := q.EndIndex()
	assert.True(t, q.Attach().WaitFor(int(end)+10, time.Second))

	assert.NoError(t, r.Stop())
}

func TestRunUpdateConfigureFail(t *testing.T) {
	layout := signal.Layout{MN: 1}
	src := &mock.Source{Layout: layout, Scans: make([]int16, 100000), PerFetch: 1}
	w := testWorker(t, "a", src)

	r, err := strom.NewRun([]*strom.Worker{w}, strom.WithLogger(&recordLog{}))
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	q, _ := r.Queue("a")
	require.True(t, q.Attach().WaitFor(10, time.Second))

	// make the live handshake fail
	src.ErrorOnConfigure = errors.New("bad channel map")
	err = r.Update("a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, strom.ErrConfiguration))

	// a failed update takes the run down, and its cause is what Wait
	// reports
	err = r.Wait()
	require.Error(t, err)
	assert.True(t, errors.Is(err, strom.ErrConfiguration))
	assert.Equal(t, strom.Terminated, w.State())
}

func TestRunErrors(t *testing.T) {
	layout := signal.Layout{MN: 1}

	_, err := strom.NewRun(nil)
	assert.Error(t, err)

	// duplicate units
	w1 := testWorker(t, "a", &mock.Source{Layout: layout})
	w2 := testWorker(t, "a", &mock.Source{Layout: layout})
	_, err = strom.NewRun([]*strom.Worker{w1, w2})
	assert.Error(t, err)

	w := testWorker(t, "a", &mock.Source{Layout: layout, Scans: make([]int16, 100000), PerFetch: 1})
	r, err := strom.NewRun([]*strom.Worker{w}, strom.WithLogger(&recordLog{}))
	require.NoError(t, err)

	// not started yet
	assert.Error(t, r.Stop())
	assert.Error(t, r.Update("a"))

	_, ok := r.Queue("b")
	assert.False(t, ok)

	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))
	assert.Error(t, r.Update("b"))

	assert.NoError(t, r.Stop())
}
