package source

import (
	"encoding/binary"
	"fmt"

	"github.com/dudk/strom/signal"
)

// Family selects the wire layout of a hardware generation. Raw packets are
// decoded by an explicit per-family routine instead of reinterpreting byte
// buffers in place.
type Family int

const (
	// FamilyInterleaved delivers bare little-endian int16 scans, the
	// digital word trailing the analog values of each scan.
	FamilyInterleaved Family = iota
	// FamilyPacketized frames scans in fixed packets: a 4-byte scan
	// counter followed by one interleaved scan.
	FamilyPacketized
)

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyInterleaved:
		return "interleaved"
	case FamilyPacketized:
		return "packetized"
	}
	return "unknown"
}

// Decode converts raw device bytes into whole scans of the given layout.
// Trailing bytes of an incomplete scan are rejected: framing is the device
// driver's job and a short buffer indicates a protocol violation.
func (f Family) Decode(raw []byte, layout signal.Layout) (signal.Raw, error) {
	scanBytes := 2 * layout.AnalogPerScan()
	if layout.XD > 0 {
		scanBytes += 4
	}
	if f == FamilyPacketized {
		scanBytes += 4
	}
	if scanBytes == 0 {
		return signal.Raw{Layout: layout}, nil
	}
	if len(raw)%scanBytes != 0 {
		return signal.Raw{}, fmt.Errorf("decode %s: %d bytes is not a whole number of %d-byte scans", f, len(raw), scanBytes)
	}

	nScans := len(raw) / scanBytes
	out := signal.Raw{Layout: layout}
	if w := layout.AnalogPerScan(); w > 0 {
		out.Analog = make([]int16, nScans*w)
	}
	if layout.XD > 0 {
		out.Digital = make([]uint32, nScans)
	}

	pos := 0
	for s := 0; s < nScans; s++ {
		if f == FamilyPacketized {
			pos += 4 // scan counter, checked by the driver
		}
		for c := 0; c < layout.AnalogPerScan(); c++ {
			out.Analog[s*layout.AnalogPerScan()+c] = int16(binary.LittleEndian.Uint16(raw[pos:]))
			pos += 2
		}
		if layout.XD > 0 {
			out.Digital[s] = binary.LittleEndian.Uint32(raw[pos:])
			pos += 4
		}
	}
	return out, nil
}
