// ABOUTME: WAVE and WAVE2 audio PDU headers and block alignment
// ABOUTME: The encoded payload is appended by the caller after the header
package protocol

const (
	// WaveInfoSize is the legacy WAVE header: PDU header + timestamp,
	// format number, block number and 3 pad bytes
	WaveInfoSize = HeaderSize + 8

	// Wave2HeaderSize adds the 4-byte audio timestamp
	Wave2HeaderSize = WaveInfoSize + 4

	// WaveSplitSize is the payload prefix carried by the legacy WaveInfo
	// PDU and replaced by padding in the following Wave PDU
	WaveSplitSize = 4
)

// WaveHeader describes the fields shared by WAVE and WAVE2
type WaveHeader struct {
	Timestamp uint16
	FormatNo  uint16
	BlockNo   uint8
}

// BeginWave writes the legacy WaveInfo header; length is patched by Finish
func BeginWave(w *Writer, h WaveHeader) {
	w.Begin(MsgWave)
	writeWaveInfo(w, h)
}

// BeginWave2 writes the WAVE2 header, duplicating the timestamp into the
// 32-bit audio timestamp field
func BeginWave2(w *Writer, h WaveHeader) {
	w.Begin(MsgWave2)
	writeWaveInfo(w, h)
	w.U32(uint32(h.Timestamp))
}

func writeWaveInfo(w *Writer, h WaveHeader) {
	w.U16(h.Timestamp)
	w.U16(h.FormatNo)
	w.U8(h.BlockNo)
	w.Zero(3)
}

// Align zero pads the whole PDU to a multiple of alignment.
// An alignment of 0 or 1 leaves the PDU untouched.
func Align(w *Writer, alignment uint16) {
	if alignment <= 1 {
		return
	}
	if rem := w.Len() % int(alignment); rem != 0 {
		w.Zero(int(alignment) - rem)
	}
}
