// ABOUTME: Tests for control and wave PDUs
// ABOUTME: Covers fixed layouts, short bodies and block alignment
package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWaveConfirm(t *testing.T) {
	c, err := ParseWaveConfirm([]byte{0x34, 0x12, 0x07, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), c.Timestamp)
	assert.Equal(t, uint8(7), c.BlockNo)

	_, err = ParseWaveConfirm([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestParseQualityMode(t *testing.T) {
	q, err := ParseQualityMode([]byte{0x02, 0x00, 0xFF, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, QualityHigh, q.Quality)
	assert.Equal(t, "high", QualityName(q.Quality))
	assert.Equal(t, "0x0009", QualityName(9))

	_, err = ParseQualityMode(nil)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestBuildSetVolume(t *testing.T) {
	var w Writer
	pdu, err := BuildSetVolume(&w, 0xFFFF, 0x8000)
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(MsgSetVolume), 0, 4, 0, 0xFF, 0xFF, 0x00, 0x80}, pdu)
}

func TestBuildClose(t *testing.T) {
	var w Writer
	pdu, err := BuildClose(&w)
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(MsgClose), 0, 0, 0}, pdu)
}

func TestWriterReuse(t *testing.T) {
	var w Writer
	_, err := BuildSetVolume(&w, 1, 2)
	require.NoError(t, err)

	pdu, err := BuildClose(&w)
	require.NoError(t, err)
	assert.Len(t, pdu, HeaderSize)
}

func TestWriterTooLarge(t *testing.T) {
	var w Writer
	w.Begin(MsgWave2)
	w.Zero(MaxBodySize + 1)
	_, err := w.Finish()
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestWriterZero(t *testing.T) {
	var w Writer
	w.Begin(MsgWave2)
	w.Write([]byte{0xAA, 0xBB, 0xCC, 0xDD})

	// reused capacity still holds the old payload
	w.Begin(MsgWave2)
	w.Zero(0)
	w.Zero(-3)
	assert.Equal(t, HeaderSize, w.Len())

	w.Zero(4)
	assert.Equal(t, []byte{0, 0, 0, 0}, w.Bytes()[HeaderSize:])

	w.U8(0x11)
	w.Zero(MaxBodySize - 5)
	pdu, err := w.Finish()
	require.NoError(t, err)
	assert.Len(t, pdu, HeaderSize+MaxBodySize)
	assert.Equal(t, uint16(MaxBodySize), binary.LittleEndian.Uint16(pdu[2:4]))
	assert.Equal(t, byte(0x11), pdu[HeaderSize+4])
	assert.Equal(t, make([]byte, MaxBodySize-5), pdu[HeaderSize+5:])
}

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader([]byte{byte(MsgWave2), 0, 0x10, 0x01})
	require.NoError(t, err)
	assert.Equal(t, MsgWave2, h.Type)
	assert.Equal(t, uint16(0x0110), h.BodySize)

	_, err = ParseHeader([]byte{1, 0})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestWaveHeaders(t *testing.T) {
	h := WaveHeader{Timestamp: 0xBEEF, FormatNo: 2, BlockNo: 200}

	var w Writer
	BeginWave(&w, h)
	assert.Equal(t, WaveInfoSize, w.Len())
	b := w.Bytes()
	assert.Equal(t, byte(MsgWave), b[0])
	assert.Equal(t, uint16(0xBEEF), binary.LittleEndian.Uint16(b[4:]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(b[6:]))
	assert.Equal(t, uint8(200), b[8])
	assert.Equal(t, []byte{0, 0, 0}, b[9:12])

	BeginWave2(&w, h)
	assert.Equal(t, Wave2HeaderSize, w.Len())
	b = w.Bytes()
	assert.Equal(t, byte(MsgWave2), b[0])
	assert.Equal(t, uint32(0xBEEF), binary.LittleEndian.Uint32(b[12:]))
}

func TestAlign(t *testing.T) {
	tests := []struct {
		name      string
		payload   int
		alignment uint16
		wantLen   int
	}{
		{"already aligned", 4, 4, WaveInfoSize + 4},
		{"pads to block", 5, 4, WaveInfoSize + 8},
		{"adpcm block", 100, 1024, 1024},
		{"zero alignment", 5, 0, WaveInfoSize + 5},
		{"alignment one", 5, 1, WaveInfoSize + 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w Writer
			BeginWave(&w, WaveHeader{})
			w.Write(make([]byte, tt.payload))
			Align(&w, tt.alignment)
			assert.Equal(t, tt.wantLen, w.Len())
		})
	}
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "WAVE2", MsgWave2.String())
	assert.Equal(t, "UNKNOWN(0x42)", MessageType(0x42).String())
}
