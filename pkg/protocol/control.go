// ABOUTME: Control PDUs: volume, close, wave confirmation and quality mode
// ABOUTME: Small fixed-layout messages exchanged outside the audio path
package protocol

import "fmt"

// WaveConfirm acknowledges a played audio block
type WaveConfirm struct {
	Timestamp uint16
	BlockNo   uint8
}

// QualityMode is the client's playback quality hint
type QualityMode struct {
	Quality uint16
}

// ParseWaveConfirm parses a WAVECONFIRM body: timestamp(2) block(1) pad(1)
func ParseWaveConfirm(body []byte) (WaveConfirm, error) {
	r := newReader(body)
	if err := r.need(4, "wave confirm"); err != nil {
		return WaveConfirm{}, err
	}
	c := WaveConfirm{Timestamp: r.u16(), BlockNo: r.u8()}
	r.skip(1)
	return c, nil
}

// ParseQualityMode parses a QUALITYMODE body: quality(2) reserved(2)
func ParseQualityMode(body []byte) (QualityMode, error) {
	r := newReader(body)
	if err := r.need(4, "quality mode"); err != nil {
		return QualityMode{}, err
	}
	q := QualityMode{Quality: r.u16()}
	r.skip(2)
	return q, nil
}

// QualityName returns a readable name for a quality mode value
func QualityName(q uint16) string {
	switch q {
	case QualityDynamic:
		return "dynamic"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	default:
		return fmt.Sprintf("0x%04X", q)
	}
}

// BuildSetVolume writes a SETVOLUME PDU
func BuildSetVolume(w *Writer, left, right uint16) ([]byte, error) {
	w.Begin(MsgSetVolume)
	w.U16(left)
	w.U16(right)
	return w.Finish()
}

// BuildClose writes a header-only CLOSE PDU
func BuildClose(w *Writer) ([]byte, error) {
	w.Begin(MsgClose)
	return w.Finish()
}

// BuildWaveConfirm writes a client WAVECONFIRM PDU
func BuildWaveConfirm(w *Writer, c WaveConfirm) ([]byte, error) {
	w.Begin(MsgWaveConfirm)
	w.U16(c.Timestamp)
	w.U8(c.BlockNo)
	w.U8(0)
	return w.Finish()
}

// BuildQualityMode writes a client QUALITYMODE PDU
func BuildQualityMode(w *Writer, quality uint16) ([]byte, error) {
	w.Begin(MsgQualityMode)
	w.U16(quality)
	w.U16(0)
	return w.Finish()
}
