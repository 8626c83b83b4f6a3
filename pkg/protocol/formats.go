// ABOUTME: Format record serialization and the FORMATS capability exchange
// ABOUTME: Builds the server offer and parses the client capability list
package protocol

import (
	"fmt"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
)

const (
	// FormatRecordMinSize is a format record with an empty trailer
	FormatRecordMinSize = 18

	// FormatsFixedSize is the FORMATS body prefix before the records
	FormatsFixedSize = 20
)

// ClientFormats is the parsed client FORMATS PDU
type ClientFormats struct {
	Flags              uint32
	Volume             uint32
	Pitch              uint32
	DGramPort          uint16
	LastBlockConfirmed uint8
	Version            uint16
	Formats            []audio.Format
}

// KnownFormats counts records carrying a non-zero tag
func (c *ClientFormats) KnownFormats() int {
	n := 0
	for _, f := range c.Formats {
		if f.Tag != audio.TagUnknown {
			n++
		}
	}
	return n
}

// WriteFormat appends one format record. The byte rate is always derived
// from rate, channels and depth; the stored value is never sent.
func WriteFormat(w *Writer, f audio.Format) error {
	if len(f.Extra) > 0xFFFF {
		return fmt.Errorf("format trailer too large: %d bytes", len(f.Extra))
	}
	w.U16(f.Tag)
	w.U16(f.Channels)
	w.U32(f.SampleRate)
	w.U32(f.ComputedAvgBytesPerSec())
	w.U16(f.BlockAlign)
	w.U16(f.BitsPerSample)
	w.U16(uint16(len(f.Extra)))
	w.Write(f.Extra)
	return nil
}

// ReadFormat parses one format record from data and returns the bytes consumed.
// Trailer bytes are skipped, not retained.
func ReadFormat(data []byte) (audio.Format, int, error) {
	r := newReader(data)
	f, err := readFormat(r)
	return f, r.off, err
}

func readFormat(r *reader) (audio.Format, error) {
	if err := r.need(FormatRecordMinSize, "format record"); err != nil {
		return audio.Format{}, err
	}
	var f audio.Format
	f.Tag = r.u16()
	f.Channels = r.u16()
	f.SampleRate = r.u32()
	f.AvgBytesPerSec = r.u32()
	f.BlockAlign = r.u16()
	f.BitsPerSample = r.u16()
	cbSize := int(r.u16())
	if err := r.need(cbSize, "format trailer"); err != nil {
		return audio.Format{}, err
	}
	r.skip(cbSize)
	return f, nil
}

// BuildServerFormats writes the server FORMATS offer into w.
// Flags, volume, pitch and the datagram port are sent as zero.
func BuildServerFormats(w *Writer, formats []audio.Format, lastBlock uint8) ([]byte, error) {
	if len(formats) > 0xFFFF {
		return nil, fmt.Errorf("too many server formats: %d", len(formats))
	}
	w.Begin(MsgFormats)
	w.U32(0) // dwFlags
	w.U32(0) // dwVolume
	w.U32(0) // dwPitch
	w.U16(0) // wDGramPort, no UDP side channel
	w.U16(uint16(len(formats)))
	w.U8(lastBlock)
	w.U16(ChannelVersionMax)
	w.U8(0) // bPad
	for i, f := range formats {
		if err := WriteFormat(w, f); err != nil {
			return nil, fmt.Errorf("server format %d: %w", i, err)
		}
	}
	return w.Finish()
}

// ParseClientFormats parses the body of a client FORMATS PDU.
// A zero format count, a body shorter than count*18 bytes, or a record
// truncated mid-way are all malformed input.
func ParseClientFormats(body []byte) (*ClientFormats, error) {
	r := newReader(body)
	if err := r.need(FormatsFixedSize, "formats header"); err != nil {
		return nil, err
	}

	c := &ClientFormats{}
	c.Flags = r.u32()
	c.Volume = r.u32()
	c.Pitch = r.u32()
	c.DGramPort = r.u16()
	count := int(r.u16())
	c.LastBlockConfirmed = r.u8()
	c.Version = r.u16()
	r.skip(1) // bPad

	if count == 0 {
		return nil, fmt.Errorf("%w: client offered no formats", ErrMalformedInput)
	}

	// lower bound only: trailers make records longer than the minimum
	if r.remaining() < count*FormatRecordMinSize {
		return nil, fmt.Errorf("%w: %d formats announced but only %d bytes follow", ErrMalformedInput, count, r.remaining())
	}

	c.Formats = make([]audio.Format, 0, count)
	for i := 0; i < count; i++ {
		f, err := readFormat(r)
		if err != nil {
			return nil, fmt.Errorf("client format %d: %w", i, err)
		}
		c.Formats = append(c.Formats, f)
	}
	return c, nil
}

// BuildClientFormats writes a client FORMATS PDU. The server never sends
// this; it exists for peers and tests that play the client role.
func BuildClientFormats(w *Writer, c *ClientFormats) ([]byte, error) {
	w.Begin(MsgFormats)
	w.U32(c.Flags)
	w.U32(c.Volume)
	w.U32(c.Pitch)
	w.U16(c.DGramPort)
	w.U16(uint16(len(c.Formats)))
	w.U8(c.LastBlockConfirmed)
	w.U16(c.Version)
	w.U8(0)
	for _, f := range c.Formats {
		if err := WriteFormat(w, f); err != nil {
			return nil, err
		}
	}
	return w.Finish()
}
