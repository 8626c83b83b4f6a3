// ABOUTME: Growable byte buffer for pending source frames
// ABOUTME: Capacity only grows and is capped by the configured limit
package rdpsnd

import "fmt"

type pendingBuffer struct {
	buf []byte
}

// ensure grows the buffer to at least n bytes without discarding contents
func (b *pendingBuffer) ensure(n, limit int) error {
	if n <= len(b.buf) {
		return nil
	}
	if limit > 0 && n > limit {
		return fmt.Errorf("%w: need %d bytes, limit is %d", ErrAllocation, n, limit)
	}
	grown := make([]byte, n)
	copy(grown, b.buf)
	b.buf = grown
	return nil
}

func (b *pendingBuffer) size() int {
	return len(b.buf)
}
