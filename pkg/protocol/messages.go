// ABOUTME: Message type catalogue, version constants and PDU header handling
// ABOUTME: Provides the patch-after-write Writer and a bounds checked reader
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MessageType identifies a PDU on the audio channel
type MessageType uint8

// Message types (SNDC_*)
const (
	MsgClose       MessageType = 0x01
	MsgWave        MessageType = 0x02
	MsgSetVolume   MessageType = 0x03
	MsgSetPitch    MessageType = 0x04
	MsgWaveConfirm MessageType = 0x05
	MsgTraining    MessageType = 0x06
	MsgFormats     MessageType = 0x07
	MsgCryptKey    MessageType = 0x08
	MsgWaveEncrypt MessageType = 0x09
	MsgUDPWave     MessageType = 0x0A
	MsgUDPWaveLast MessageType = 0x0B
	MsgQualityMode MessageType = 0x0C
	MsgWave2       MessageType = 0x0D
)

// Channel protocol versions announced in the FORMATS exchange
const (
	ChannelVersionWinXP    uint16 = 0x02
	ChannelVersionWinXPSP1 uint16 = 0x05
	ChannelVersionWinVista uint16 = 0x05
	ChannelVersionWin7     uint16 = 0x06
	ChannelVersionWin8     uint16 = 0x08
	ChannelVersionMax             = ChannelVersionWin8
)

// Quality mode hints sent by the client
const (
	QualityDynamic uint16 = 0x0000
	QualityMedium  uint16 = 0x0001
	QualityHigh    uint16 = 0x0002
)

const (
	// HeaderSize is type(1) + pad(1) + bodyLength(2)
	HeaderSize = 4

	// MaxBodySize is the largest body a 16-bit length field can describe
	MaxBodySize = 0xFFFF
)

var (
	// ErrMalformedInput rejects a single inbound message (short or invalid body)
	ErrMalformedInput = errors.New("malformed input")

	// ErrTooLarge is returned when a PDU body does not fit the length field
	ErrTooLarge = errors.New("pdu body exceeds 65535 bytes")
)

func (t MessageType) String() string {
	switch t {
	case MsgClose:
		return "CLOSE"
	case MsgWave:
		return "WAVE"
	case MsgSetVolume:
		return "SETVOLUME"
	case MsgSetPitch:
		return "SETPITCH"
	case MsgWaveConfirm:
		return "WAVECONFIRM"
	case MsgTraining:
		return "TRAINING"
	case MsgFormats:
		return "FORMATS"
	case MsgCryptKey:
		return "CRYPTKEY"
	case MsgWaveEncrypt:
		return "WAVEENCRYPT"
	case MsgUDPWave:
		return "UDPWAVE"
	case MsgUDPWaveLast:
		return "UDPWAVELAST"
	case MsgQualityMode:
		return "QUALITYMODE"
	case MsgWave2:
		return "WAVE2"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// Header is the 4-byte prefix of every PDU
type Header struct {
	Type     MessageType
	BodySize uint16
}

// ParseHeader parses the 4-byte PDU header
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header too short: expected %d bytes, got %d", ErrMalformedInput, HeaderSize, len(data))
	}
	return Header{
		Type:     MessageType(data[0]),
		BodySize: binary.LittleEndian.Uint16(data[2:4]),
	}, nil
}

// Writer builds one outbound PDU in a reusable buffer.
// Begin writes a header with a zero length; Finish patches it.
type Writer struct {
	buf []byte
}

// Begin discards previous content and writes the header for msgType
func (w *Writer) Begin(msgType MessageType) {
	w.buf = append(w.buf[:0], byte(msgType), 0, 0, 0)
}

func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) U16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) U32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) Write(p []byte) {
	w.buf = append(w.buf, p...)
}

// Zero appends n zero bytes
func (w *Writer) Zero(n int) {
	if n <= 0 {
		return
	}
	w.buf = append(w.buf, make([]byte, n)...)
}

// Len returns the number of bytes written so far, header included
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the buffer as written so far
func (w *Writer) Bytes() []byte {
	return w.buf
}

// SetBytes replaces the buffer with one that extends the current content,
// used after a codec appended encoded data to Bytes().
func (w *Writer) SetBytes(b []byte) {
	w.buf = b
}

// Finish patches the body length at offset 2 and returns the PDU
func (w *Writer) Finish() ([]byte, error) {
	if len(w.buf) < HeaderSize {
		return nil, fmt.Errorf("pdu not started")
	}
	body := len(w.buf) - HeaderSize
	if body > MaxBodySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, body)
	}
	binary.LittleEndian.PutUint16(w.buf[2:4], uint16(body))
	return w.buf, nil
}

// reader walks a PDU body with bounds checks; every failure is malformed input
type reader struct {
	data []byte
	off  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) need(n int, what string) error {
	if r.remaining() < n {
		return fmt.Errorf("%w: %s: need %d bytes, have %d", ErrMalformedInput, what, n, r.remaining())
	}
	return nil
}

func (r *reader) u8() uint8 {
	v := r.data[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) skip(n int) {
	r.off += n
}
