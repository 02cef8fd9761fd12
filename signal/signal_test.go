package signal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dudk/strom/signal"
)

// w16 converts a bit pattern to the int16 it occupies on the wire.
func w16(v uint32) int16 {
	return int16(uint16(v))
}

func TestSampleRate(t *testing.T) {
	rate := signal.SampleRate(1000)
	assert.Equal(t, time.Second, rate.DurationOf(1000))
	assert.Equal(t, 250*time.Millisecond, rate.DurationOf(250))
	assert.Equal(t, int64(1000), rate.SamplesIn(time.Second))
	assert.Equal(t, int64(1), rate.SamplesIn(time.Millisecond))
	assert.Equal(t, int64(0), rate.SamplesIn(999*time.Microsecond))
}

func TestTimePointSize(t *testing.T) {
	tests := []struct {
		k        int
		a, b     signal.Layout
		expected int
	}{
		{
			k:        3,
			a:        signal.Layout{MN: 4},
			expected: 12,
		},
		{
			k:        2,
			a:        signal.Layout{MN: 1, MA: 1, XA: 1, XD: 1},
			b:        signal.Layout{MN: 1, XA: 1, XD: 1},
			expected: 9,
		},
		{
			k:        1,
			a:        signal.Layout{XA: 2, XD: 4},
			b:        signal.Layout{XD: 4},
			expected: 2 + 4,
		},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, signal.TimePointSize(test.k, test.a, test.b))
	}
}

func TestDigitalWords(t *testing.T) {
	assert.Equal(t, 0, signal.DigitalWords(0, 0))
	assert.Equal(t, 1, signal.DigitalWords(1, 0))
	assert.Equal(t, 1, signal.DigitalWords(1, 1))
	assert.Equal(t, 2, signal.DigitalWords(2, 2))
	assert.Equal(t, 4, signal.DigitalWords(4, 4))
}

func TestMergeDemuxSingleSource(t *testing.T) {
	// k raw scans of four muxed channels become four channel groups of k
	// adjacent samples each.
	a := signal.Raw{
		Layout: signal.Layout{MN: 4},
		Analog: []int16{
			1, 2, 3, 4,
			5, 6, 7, 8,
			9, 10, 11, 12,
			13, 14, 15, 16,
			17, 18, 19, 20,
			21, 22, 23, 24,
		},
	}
	dst := make([]int16, 2*signal.TimePointSize(3, a.Layout, signal.Layout{}))
	signal.MergeDemux(dst, 2, 3, a, signal.Raw{})
	assert.Equal(t, []int16{
		1, 5, 9, 2, 6, 10, 3, 7, 11, 4, 8, 12,
		13, 17, 21, 14, 18, 22, 15, 19, 23, 16, 20, 24,
	}, dst)
}

func TestMergeDemuxDualSource(t *testing.T) {
	// column order is MNa MNb MAa MAb, XA averaged over k, digital taken
	// from the first scan of the time point.
	a := signal.Raw{
		Layout:  signal.Layout{MN: 1, MA: 1, XA: 1, XD: 1},
		Analog:  []int16{10, 11, 100, 20, 21, 200},
		Digital: []uint32{0xAB, 3},
	}
	b := signal.Raw{
		Layout:  signal.Layout{MN: 1, XA: 1, XD: 1},
		Analog:  []int16{30, 1000, 40, 2000},
		Digital: []uint32{0xCD, 7},
	}
	dst := make([]int16, signal.TimePointSize(2, a.Layout, b.Layout))
	signal.MergeDemux(dst, 1, 2, a, b)
	assert.Equal(t, []int16{
		10, 20, 30, 40, 11, 21, // MNa MNb MAa
		150, 1500, // XA averages
		w16(0xCDAB), // digital, source a byte low
	}, dst)
}

func TestMergeDemuxDigitalDownsample(t *testing.T) {
	// with k=2 only scans 0 and 2 contribute digital words
	a := signal.Raw{
		Layout:  signal.Layout{MN: 1, XD: 1},
		Analog:  []int16{1, 2, 3, 4},
		Digital: []uint32{0x01, 0x7F, 0x02, 0x7F},
	}
	dst := make([]int16, 2*signal.TimePointSize(2, a.Layout, signal.Layout{}))
	signal.MergeDemux(dst, 2, 2, a, signal.Raw{})
	assert.Equal(t, []int16{1, 2, 0x01, 3, 4, 0x02}, dst)
}

func TestPackDigital(t *testing.T) {
	tests := []struct {
		name     string
		wa       uint32
		na       int
		wb       uint32
		nb       int
		expected []int16
	}{
		{
			name:     "none",
			expected: []int16{},
		},
		{
			name:     "a1",
			wa:       0xAA,
			na:       1,
			expected: []int16{w16(0x00AA)},
		},
		{
			name:     "a2",
			wa:       0xBBAA,
			na:       2,
			expected: []int16{w16(0xBBAA)},
		},
		{
			name:     "a3",
			wa:       0xCCBBAA,
			na:       3,
			expected: []int16{w16(0xBBAA), w16(0x00CC)},
		},
		{
			name:     "a4",
			wa:       0xDDCCBBAA,
			na:       4,
			expected: []int16{w16(0xBBAA), w16(0xDDCC)},
		},
		{
			name:     "b1",
			wb:       0x11,
			nb:       1,
			expected: []int16{w16(0x0011)},
		},
		{
			name:     "a1b1",
			wa:       0xAA,
			na:       1,
			wb:       0x11,
			nb:       1,
			expected: []int16{w16(0x11AA)},
		},
		{
			name:     "a1b2",
			wa:       0xAA,
			na:       1,
			wb:       0x2211,
			nb:       2,
			expected: []int16{w16(0x11AA), w16(0x0022)},
		},
		{
			name:     "a2b2",
			wa:       0xBBAA,
			na:       2,
			wb:       0x2211,
			nb:       2,
			expected: []int16{w16(0xBBAA), w16(0x2211)},
		},
		{
			name:     "b3",
			wb:       0x332211,
			nb:       3,
			expected: []int16{w16(0x2211), w16(0x0033)},
		},
		{
			name:     "a1b3",
			wa:       0xAA,
			na:       1,
			wb:       0x332211,
			nb:       3,
			expected: []int16{w16(0x11AA), w16(0x3322)},
		},
		{
			name:     "b4",
			wb:       0x44332211,
			nb:       4,
			expected: []int16{w16(0x2211), w16(0x4433)},
		},
		{
			name:     "a1b4",
			wa:       0xAA,
			na:       1,
			wb:       0x44332211,
			nb:       4,
			expected: []int16{w16(0x11AA), w16(0x3322), w16(0x0044)},
		},
		{
			name:     "a3b2",
			wa:       0xCCBBAA,
			na:       3,
			wb:       0x2211,
			nb:       2,
			expected: []int16{w16(0xBBAA), w16(0x11CC), w16(0x0022)},
		},
		{
			name:     "a4b4",
			wa:       0xDDCCBBAA,
			na:       4,
			wb:       0x44332211,
			nb:       4,
			expected: []int16{w16(0xBBAA), w16(0xDDCC), w16(0x2211), w16(0x4433)},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dst := make([]int16, 4)
			n := signal.PackDigital(dst, test.wa, test.na, test.wb, test.nb)
			assert.Equal(t, len(test.expected), n)
			assert.Equal(t, test.expected, dst[:n])
		})
	}
}

func TestSlideForward(t *testing.T) {
	r := signal.Raw{
		Layout:  signal.Layout{MN: 2, XD: 1},
		Analog:  []int16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		Digital: []uint32{1, 2, 3, 4, 5},
	}
	r.SlideForward(2, 5)
	assert.Equal(t, []int16{7, 8, 9, 10}, r.Analog[:4])
	assert.Equal(t, []uint32{4, 5}, r.Digital[:2])
}

func TestEmptyInt16(t *testing.T) {
	buf := signal.EmptyInt16(8)
	assert.Len(t, buf, 8)
	for _, v := range buf {
		assert.Equal(t, int16(0), v)
	}
}
