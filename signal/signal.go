// Package signal provides an API to manipulate multiplexed sample data. It allows to:
//	- reshape scan-major raw data into time-point-major order
//	- average oversampled auxiliary channels
//	- pack digital lines from two sources into shared 16-bit words
package signal

import (
	"time"
)

// SampleRate is a number of time points per second for one stream.
type SampleRate float64

// DurationOf returns time duration of passed samples for this sample rate.
func (rate SampleRate) DurationOf(samples int64) time.Duration {
	return time.Duration(float64(samples) / float64(rate) * float64(time.Second))
}

// SamplesIn returns the number of whole samples covered by passed duration.
func (rate SampleRate) SamplesIn(d time.Duration) int64 {
	return int64(d.Seconds() * float64(rate))
}

// Layout describes the ordered channel groups of one source within a raw scan:
//	MN - multiplexed primary channels, one muxer each
//	MA - multiplexed auxiliary channels, one muxer each
//	XA - direct auxiliary channels, oversampled by the multiplex factor
//	XD - digital line bytes, 0 to 4
type Layout struct {
	MN int
	MA int
	XA int
	XD int
}

// Muxed returns the number of multiplexed values per raw scan.
func (l Layout) Muxed() int {
	return l.MN + l.MA
}

// AnalogPerScan returns the number of analog values per raw scan.
func (l Layout) AnalogPerScan() int {
	return l.MN + l.MA + l.XA
}

// Raw holds one source's raw fetch data in scan-major order. Analog carries
// AnalogPerScan values per scan, Digital one line word per scan when XD > 0.
type Raw struct {
	Layout  Layout
	Analog  []int16
	Digital []uint32
}

// DigitalWords returns the number of packed 16-bit words holding xda+xdb
// digital line bytes.
func DigitalWords(xda, xdb int) int {
	return (1 + xda + xdb) / 2
}

// TimePointSize returns the number of values in one merged time point for
// multiplex factor k and two source layouts.
func TimePointSize(k int, a, b Layout) int {
	return k*(a.Muxed()+b.Muxed()) + a.XA + b.XA + DigitalWords(a.XD, b.XD)
}

// MergeDemux reshapes nWhole time points of raw data from sources a and b
// into dst, which must hold nWhole*TimePointSize(k, a.Layout, b.Layout)
// values. In each time point the multiplexed channels form a matrix with one
// column per muxer and k rows, one per raw scan. The matrix is transposed so
// all samples of a muxer become adjacent, column order MNa MNb MAa MAb. The
// oversampled XA values are averaged over k. Digital lines are downsampled
// to the first scan of the time point and packed source-a bytes low.
func MergeDemux(dst []int16, nWhole, k int, a, b Raw) {
	var (
		ncol = a.Layout.Muxed() + b.Layout.Muxed()
		ntmp = k * ncol
		tmp  = make([]int16, ntmp)
		suma = make([]int64, a.Layout.XA)
		sumb = make([]int64, b.Layout.XA)

		sa, sb int // analog scan cursors
		sd     int // digital scan cursor
		di     int // dst cursor
	)

	for w := 0; w < nWhole; w++ {
		for x := range suma {
			suma[x] = 0
		}
		for x := range sumb {
			sumb[x] = 0
		}

		ti := 0
		for s := 0; s < k; s++ {
			// fill MN, MA matrix row
			ti += copy(tmp[ti:], a.Analog[sa:sa+a.Layout.MN])
			sa += a.Layout.MN
			ti += copy(tmp[ti:], b.Analog[sb:sb+b.Layout.MN])
			sb += b.Layout.MN
			ti += copy(tmp[ti:], a.Analog[sa:sa+a.Layout.MA])
			sa += a.Layout.MA
			ti += copy(tmp[ti:], b.Analog[sb:sb+b.Layout.MA])
			sb += b.Layout.MA

			// sum XA
			for x := 0; x < a.Layout.XA; x++ {
				suma[x] += int64(a.Analog[sa])
				sa++
			}
			for x := 0; x < b.Layout.XA; x++ {
				sumb[x] += int64(b.Analog[sb])
				sb++
			}
		}

		// transpose: original element address is [ncol*Y + X],
		// swap roles X <-> Y and row <-> col.
		for iacq := 0; iacq < ntmp; iacq++ {
			y := iacq / ncol
			x := iacq - ncol*y
			dst[di+k*x+y] = tmp[iacq]
		}
		di += ntmp

		// XA averages
		for x := 0; x < a.Layout.XA; x++ {
			dst[di] = int16(suma[x] / int64(k))
			di++
		}
		for x := 0; x < b.Layout.XA; x++ {
			dst[di] = int16(sumb[x] / int64(k))
			di++
		}

		// XD: first scan of the time point carries the lines
		if a.Layout.XD+b.Layout.XD > 0 {
			var wa, wb uint32
			if a.Layout.XD > 0 {
				wa = a.Digital[sd]
			}
			if b.Layout.XD > 0 {
				wb = b.Digital[sd]
			}
			di += PackDigital(dst[di:], wa, a.Layout.XD, wb, b.Layout.XD)
			sd += k
		}
	}
}

// PackDigital packs na digital line bytes of word wa and nb bytes of word wb
// into 16-bit words of dst and returns the number of words written. Source a
// occupies the low-order byte lanes first, source b slides into the next
// unused lane. Widths of 0 to 4 bytes per source are supported. This layout
// is a wire convention shared with previously produced streams and must not
// change.
func PackDigital(dst []int16, wa uint32, na int, wb uint32, nb int) int {
	var (
		n    int
		half uint16 // pending low byte of an incomplete word
		open bool   // half is filled
	)

	switch na {
	case 4:
		dst[n] = int16(wa)
		dst[n+1] = int16(wa >> 16)
		n += 2
	case 3:
		dst[n] = int16(wa)
		n++
		half = uint16((wa >> 16) & 0xFF)
		open = true
	case 2:
		dst[n] = int16(wa)
		n++
	case 1:
		half = uint16(wa & 0xFF)
		open = true
	}

	switch nb {
	case 0:
		if open {
			dst[n] = int16(half)
			n++
		}
	case 1:
		if !open {
			dst[n] = int16(wb & 0xFF)
		} else {
			dst[n] = int16(half | uint16(wb&0xFF)<<8)
		}
		n++
	case 2:
		if !open {
			dst[n] = int16(wb)
			n++
		} else {
			dst[n] = int16(half | uint16(wb&0xFF)<<8)
			dst[n+1] = int16((wb >> 8) & 0xFF)
			n += 2
		}
	case 3:
		if !open {
			dst[n] = int16(wb)
			dst[n+1] = int16((wb >> 16) & 0xFF)
		} else {
			dst[n] = int16(half | uint16(wb&0xFF)<<8)
			dst[n+1] = int16(wb >> 8)
		}
		n += 2
	case 4:
		if !open {
			dst[n] = int16(wb)
			dst[n+1] = int16(wb >> 16)
			n += 2
		} else {
			dst[n] = int16(half | uint16(wb&0xFF)<<8)
			dst[n+1] = int16(wb >> 8)
			dst[n+2] = int16(wb >> 24)
			n += 3
		}
	}
	return n
}

// SlideForward moves the trailing rem scans of raw buffers to the front,
// carrying an incomplete time point into the next fetch cycle. nScans is the
// total number of scans currently held.
func (r *Raw) SlideForward(rem, nScans int) {
	if w := r.Layout.AnalogPerScan(); w > 0 {
		copy(r.Analog, r.Analog[(nScans-rem)*w:nScans*w])
	}
	if r.Layout.XD > 0 {
		copy(r.Digital, r.Digital[nScans-rem:nScans])
	}
}

// EmptyInt16 returns a zero buffer of specified size.
func EmptyInt16(size int) []int16 {
	return make([]int16, size)
}
