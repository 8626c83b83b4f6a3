// ABOUTME: Virtual channel transport contract
// ABOUTME: Non-blocking reads with a readiness signal, message preserving writes
package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
)

var (
	// ErrWouldBlock means no data is available right now; retry after Ready fires
	ErrWouldBlock = errors.New("no data available")

	// ErrClosed is returned once the channel has been closed by either side
	ErrClosed = errors.New("channel closed")
)

// Channel is an opened virtual channel to the remote client.
// Read never blocks: it returns ErrWouldBlock when nothing is buffered.
// Each Write is delivered to the peer as one channel message.
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	// Ready receives a value whenever new data arrives or the channel closes
	Ready() <-chan struct{}
}

// Opener opens the audio virtual channel
type Opener interface {
	Open(ctx context.Context) (Channel, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(ctx context.Context) (Channel, error)

func (f OpenerFunc) Open(ctx context.Context) (Channel, error) {
	return f(ctx)
}

// Static returns an Opener handing out an already connected channel
func Static(ch Channel) Opener {
	return OpenerFunc(func(context.Context) (Channel, error) {
		return ch, nil
	})
}

// inbox buffers inbound bytes and raises the readiness signal
type inbox struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	err    error
	ready  chan struct{}
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

func (b *inbox) push(p []byte) {
	b.mu.Lock()
	if !b.closed {
		b.buf.Write(p)
	}
	b.mu.Unlock()
	b.signal()
}

func (b *inbox) close(err error) {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		b.err = err
	}
	b.mu.Unlock()
	b.signal()
}

func (b *inbox) read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buf.Len() > 0 {
		return b.buf.Read(p)
	}
	if b.closed {
		if b.err != nil {
			return 0, b.err
		}
		return 0, ErrClosed
	}
	return 0, ErrWouldBlock
}

func (b *inbox) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}
