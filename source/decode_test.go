package source_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/strom/signal"
	"github.com/dudk/strom/source"
)

func encodeScan(f source.Family, counter uint32, analog []int16, digital uint32, xd int) []byte {
	var raw []byte
	if f == source.FamilyPacketized {
		raw = binary.LittleEndian.AppendUint32(raw, counter)
	}
	for _, v := range analog {
		raw = binary.LittleEndian.AppendUint16(raw, uint16(v))
	}
	if xd > 0 {
		raw = binary.LittleEndian.AppendUint32(raw, digital)
	}
	return raw
}

func TestDecodeInterleaved(t *testing.T) {
	layout := signal.Layout{MN: 1, XA: 1, XD: 1}
	raw := encodeScan(source.FamilyInterleaved, 0, []int16{100, -5}, 0x0F, layout.XD)
	raw = append(raw, encodeScan(source.FamilyInterleaved, 0, []int16{200, -10}, 0xF0, layout.XD)...)

	out, err := source.FamilyInterleaved.Decode(raw, layout)
	require.NoError(t, err)
	assert.Equal(t, []int16{100, -5, 200, -10}, out.Analog)
	assert.Equal(t, []uint32{0x0F, 0xF0}, out.Digital)
}

func TestDecodePacketized(t *testing.T) {
	// the scan counter prefix is skipped, not delivered
	layout := signal.Layout{MN: 2}
	raw := encodeScan(source.FamilyPacketized, 41, []int16{1, 2}, 0, 0)
	raw = append(raw, encodeScan(source.FamilyPacketized, 42, []int16{3, 4}, 0, 0)...)

	out, err := source.FamilyPacketized.Decode(raw, layout)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4}, out.Analog)
	assert.Nil(t, out.Digital)
}

func TestDecodePartialScan(t *testing.T) {
	layout := signal.Layout{MN: 2}
	raw := encodeScan(source.FamilyInterleaved, 0, []int16{1, 2}, 0, 0)

	_, err := source.FamilyInterleaved.Decode(raw[:3], layout)
	assert.Error(t, err)

	// empty input is zero scans, not an error
	out, err := source.FamilyInterleaved.Decode(nil, layout)
	assert.NoError(t, err)
	assert.Empty(t, out.Analog)
}

func TestFamilyString(t *testing.T) {
	assert.Equal(t, "interleaved", source.FamilyInterleaved.String())
	assert.Equal(t, "packetized", source.FamilyPacketized.String())
}
