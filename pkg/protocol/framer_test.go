// ABOUTME: Tests for the inbound framing state machine
// ABOUTME: Feeds PDUs whole, split at every offset and byte by byte
package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fed struct {
	Type MessageType
	Body []byte
}

// feedChunks drives the framer with the given chunks and copies out every
// completed message
func feedChunks(f *Framer, chunks ...[]byte) []fed {
	var out []fed
	for _, chunk := range chunks {
		for len(chunk) > 0 {
			n, msg := f.Feed(chunk)
			chunk = chunk[n:]
			if msg != nil {
				out = append(out, fed{msg.Type, bytes.Clone(msg.Body)})
			}
		}
	}
	return out
}

func samplePDU(t *testing.T) []byte {
	t.Helper()
	var w Writer
	pdu, err := BuildWaveConfirm(&w, WaveConfirm{Timestamp: 0x1234, BlockNo: 9})
	require.NoError(t, err)
	return bytes.Clone(pdu)
}

func TestFramerWhole(t *testing.T) {
	pdu := samplePDU(t)
	msgs := feedChunks(NewFramer(), pdu)

	require.Len(t, msgs, 1)
	assert.Equal(t, MsgWaveConfirm, msgs[0].Type)
	assert.Equal(t, pdu[HeaderSize:], msgs[0].Body)
}

func TestFramerEverySplit(t *testing.T) {
	pdu := samplePDU(t)
	want := feedChunks(NewFramer(), pdu)

	for i := 0; i <= len(pdu); i++ {
		got := feedChunks(NewFramer(), pdu[:i], pdu[i:])
		assert.Equal(t, want, got, "split at %d", i)
	}
}

func TestFramerByteAtATime(t *testing.T) {
	pdu := samplePDU(t)
	f := NewFramer()

	var got []fed
	for i := range pdu {
		n, msg := f.Feed(pdu[i : i+1])
		assert.Equal(t, 1, n)
		if msg != nil {
			got = append(got, fed{msg.Type, bytes.Clone(msg.Body)})
			assert.Equal(t, len(pdu)-1, i, "message completes on the last byte only")
		}
	}
	require.Len(t, got, 1)
	assert.Equal(t, pdu[HeaderSize:], got[0].Body)
	assert.True(t, f.WaitingHeader())
	assert.Equal(t, HeaderSize, f.Needed())
}

func TestFramerHeaderOnly(t *testing.T) {
	var w Writer
	pdu, err := BuildClose(&w)
	require.NoError(t, err)

	msgs := feedChunks(NewFramer(), pdu)
	require.Len(t, msgs, 1)
	assert.Equal(t, MsgClose, msgs[0].Type)
	assert.Empty(t, msgs[0].Body)
}

func TestFramerBackToBack(t *testing.T) {
	a := samplePDU(t)
	var w Writer
	b, err := BuildQualityMode(&w, QualityHigh)
	require.NoError(t, err)

	stream := append(bytes.Clone(a), b...)
	msgs := feedChunks(NewFramer(), stream[:3], stream[3:11], stream[11:])

	require.Len(t, msgs, 2)
	assert.Equal(t, MsgWaveConfirm, msgs[0].Type)
	assert.Equal(t, MsgQualityMode, msgs[1].Type)
	assert.Equal(t, b[HeaderSize:], msgs[1].Body)
}

func TestFramerNeverOverconsumes(t *testing.T) {
	pdu := samplePDU(t)
	f := NewFramer()

	n, msg := f.Feed(pdu)
	assert.Equal(t, HeaderSize, n, "header read stops at the header")
	assert.Nil(t, msg)
	assert.Equal(t, len(pdu)-HeaderSize, f.Needed())
}

func TestFramerEmptyFeed(t *testing.T) {
	f := NewFramer()
	n, msg := f.Feed(nil)
	assert.Zero(t, n)
	assert.Nil(t, msg)
	assert.Equal(t, HeaderSize, f.Needed())
}

func TestFramerReset(t *testing.T) {
	pdu := samplePDU(t)
	f := NewFramer()

	feedChunks(f, pdu[:6])
	assert.False(t, f.WaitingHeader())

	f.Reset()
	assert.True(t, f.WaitingHeader())
	assert.Equal(t, HeaderSize, f.Needed())

	msgs := feedChunks(f, pdu)
	require.Len(t, msgs, 1)
	assert.Equal(t, pdu[HeaderSize:], msgs[0].Body)
}
