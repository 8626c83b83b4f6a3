// ABOUTME: Incremental reassembly of inbound PDUs from arbitrary chunks
// ABOUTME: Header then body state machine driven by transport reads
package protocol

import "encoding/binary"

// Message is one complete inbound PDU
type Message struct {
	Type MessageType
	// Body aliases the framer buffer and is valid until the next Feed
	Body []byte
}

// Framer reassembles PDUs. It is not safe for concurrent use; only the
// goroutine driving inbound reads may touch it.
type Framer struct {
	waitingHeader bool
	msgType       MessageType
	needed        int
	buf           []byte
}

// NewFramer returns a framer waiting for a header
func NewFramer() *Framer {
	f := &Framer{buf: make([]byte, 0, HeaderSize)}
	f.Reset()
	return f
}

// Reset drops any partial message and waits for a new header
func (f *Framer) Reset() {
	f.waitingHeader = true
	f.msgType = 0
	f.needed = HeaderSize
	f.buf = f.buf[:0]
}

// Needed returns how many bytes complete the current header or body.
// Reads sized to this never pull bytes of the following PDU.
func (f *Framer) Needed() int {
	return f.needed
}

// WaitingHeader reports whether the framer is between messages
func (f *Framer) WaitingHeader() bool {
	return f.waitingHeader
}

// Feed consumes at most Needed() bytes of p and returns how many were
// consumed. When those bytes complete a PDU the message is returned and the
// framer is back to waiting for a header. Empty input is a no-op.
func (f *Framer) Feed(p []byte) (int, *Message) {
	n := len(p)
	if n > f.needed {
		n = f.needed
	}
	f.buf = append(f.buf, p[:n]...)
	f.needed -= n
	if f.needed > 0 {
		return n, nil
	}

	if f.waitingHeader {
		f.msgType = MessageType(f.buf[0])
		bodySize := int(binary.LittleEndian.Uint16(f.buf[2:4]))
		f.waitingHeader = false
		f.buf = f.buf[:0]
		if bodySize > 0 {
			if cap(f.buf) < bodySize {
				f.buf = make([]byte, 0, bodySize)
			}
			f.needed = bodySize
			return n, nil
		}
	}

	msg := &Message{Type: f.msgType, Body: f.buf}
	f.waitingHeader = true
	f.needed = HeaderSize
	// next append starts over the same backing array; callers finish with
	// Body before feeding again
	f.buf = f.buf[:0]
	return n, msg
}
