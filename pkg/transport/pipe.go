// ABOUTME: In-memory virtual channel pair
// ABOUTME: Connects a session to a peer inside one process
package transport

import (
	"sync"
)

// PipeEnd is one side of an in-memory channel pair
type PipeEnd struct {
	in   *inbox
	peer *PipeEnd

	mu       sync.Mutex
	messages [][]byte
	closed   bool
}

// NewPipe returns two connected channel ends
func NewPipe() (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{in: newInbox()}
	b := &PipeEnd{in: newInbox()}
	a.peer, b.peer = b, a
	return a, b
}

func (p *PipeEnd) Read(buf []byte) (int, error) {
	return p.in.read(buf)
}

// Write delivers a copy of buf to the peer
func (p *PipeEnd) Write(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	msg := append([]byte(nil), buf...)
	p.messages = append(p.messages, msg)
	p.mu.Unlock()

	p.peer.in.push(msg)
	return len(buf), nil
}

// Close closes both directions
func (p *PipeEnd) Close() error {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()
	if already {
		return nil
	}
	p.in.close(nil)
	p.peer.in.close(nil)
	return nil
}

func (p *PipeEnd) Ready() <-chan struct{} {
	return p.in.ready
}

// Messages returns copies of every message written through this end,
// with write boundaries preserved
func (p *PipeEnd) Messages() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.messages))
	copy(out, p.messages)
	return out
}
