package redisconn

import (
	"github.com/joomcode/rediskit/redis"
)

const (
	// DefaultRecvBuffer is the initial ring capacity.
	DefaultRecvBuffer = 8 * 1024
	// DefaultRecvBufferMax caps ring growth; a frame that does not fit is
	// a BufferOverflow and fatal for the connection.
	DefaultRecvBufferMax = 16 * 1024 * 1024
)

// RingBuffer is the reader's staging area: a contiguous growable byte
// region with a producer cursor (socket reads land after it) and a
// consumer cursor (the parser eats from it). The readable region is
// always one flat span, which is exactly what the parser wants.
type RingBuffer struct {
	buf []byte
	r   int // readable region start
	w   int // readable region end, writable region start
	max int
}

// NewRingBuffer returns a ring with the given initial capacity and
// growth cap. Zeroes pick the defaults.
func NewRingBuffer(initial, max int) *RingBuffer {
	if initial <= 0 {
		initial = DefaultRecvBuffer
	}
	if max <= 0 {
		max = DefaultRecvBufferMax
	}
	if initial > max {
		initial = max
	}
	return &RingBuffer{buf: make([]byte, initial), max: max}
}

// Len is the number of unread bytes.
func (b *RingBuffer) Len() int { return b.w - b.r }

// Cap is the current backing capacity.
func (b *RingBuffer) Cap() int { return len(b.buf) }

// Readable returns the unread bytes as one contiguous span. The span is
// only valid until the next WritableSpan call.
func (b *RingBuffer) Readable() []byte { return b.buf[b.r:b.w] }

// Consume drops n bytes from the front of the readable region.
func (b *RingBuffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic("ring: consume out of range")
	}
	b.r += n
	if b.r == b.w {
		b.r, b.w = 0, 0
	}
}

// WritableSpan returns a span of at least min free bytes after the
// producer cursor, compacting unread bytes to the front or doubling the
// backing array as needed. Growth past the cap fails with BufferOverflow.
func (b *RingBuffer) WritableSpan(min int) ([]byte, error) {
	if min <= 0 {
		min = 1
	}
	if len(b.buf)-b.w >= min {
		return b.buf[b.w:], nil
	}
	// compaction first: the tail may only look full because of consumed
	// bytes at the front
	if b.r > 0 {
		copy(b.buf, b.buf[b.r:b.w])
		b.w -= b.r
		b.r = 0
		if len(b.buf)-b.w >= min {
			return b.buf[b.w:], nil
		}
	}
	need := b.w + min
	newCap := len(b.buf)
	if newCap == 0 {
		newCap = DefaultRecvBuffer
	}
	for newCap < need {
		newCap *= 2
	}
	if newCap > b.max {
		if need > b.max {
			return nil, redis.ErrBufferOverflow.New(
				"frame needs %d bytes, buffer capped at %d", need, b.max)
		}
		newCap = b.max
	}
	grown := make([]byte, newCap)
	copy(grown, b.buf[:b.w])
	b.buf = grown
	return b.buf[b.w:], nil
}

// Produce advances the producer cursor after n bytes were deposited into
// the last WritableSpan.
func (b *RingBuffer) Produce(n int) {
	if n < 0 || b.w+n > len(b.buf) {
		panic("ring: produce out of range")
	}
	b.w += n
}

// Reset drops all buffered bytes, keeping capacity.
func (b *RingBuffer) Reset() { b.r, b.w = 0, 0 }
