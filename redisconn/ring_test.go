package redisconn

import (
	"bytes"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joomcode/rediskit/redis"
)

func fill(t *testing.T, b *RingBuffer, data []byte) {
	t.Helper()
	span, err := b.WritableSpan(len(data))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(span), len(data))
	copy(span, data)
	b.Produce(len(data))
}

func TestRingProduceConsume(t *testing.T) {
	b := NewRingBuffer(16, 64)
	fill(t, b, []byte("hello world"))
	assert.Equal(t, 11, b.Len())
	assert.Equal(t, "hello world", string(b.Readable()))

	b.Consume(6)
	assert.Equal(t, "world", string(b.Readable()))
	b.Consume(5)
	assert.Equal(t, 0, b.Len())
	// cursors rewound, full capacity writable again
	span, err := b.WritableSpan(16)
	require.NoError(t, err)
	assert.Equal(t, 16, len(span))
}

func TestRingCompaction(t *testing.T) {
	b := NewRingBuffer(8, 64)
	fill(t, b, []byte("abcdefgh"))
	b.Consume(6)

	// free tail is 0, but compaction makes room without growing
	fill(t, b, []byte("XYZW"))
	assert.Equal(t, 8, b.Cap())
	assert.Equal(t, "ghXYZW", string(b.Readable()))
}

func TestRingGrowth(t *testing.T) {
	b := NewRingBuffer(8, 64)
	fill(t, b, bytes.Repeat([]byte("a"), 8))
	fill(t, b, bytes.Repeat([]byte("b"), 20))
	assert.Equal(t, 28, b.Len())
	assert.GreaterOrEqual(t, b.Cap(), 28)
	assert.Equal(t, string(bytes.Repeat([]byte("a"), 8))+string(bytes.Repeat([]byte("b"), 20)),
		string(b.Readable()))
}

func TestRingOverflow(t *testing.T) {
	b := NewRingBuffer(8, 16)
	fill(t, b, bytes.Repeat([]byte("x"), 16))
	_, err := b.WritableSpan(1)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, redis.ErrBufferOverflow))

	// consuming frees space again
	b.Consume(8)
	span, err := b.WritableSpan(8)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(span), 8)
}

func TestRingGrowthCapClamp(t *testing.T) {
	b := NewRingBuffer(4, 10)
	// needs 9 bytes total: growth lands on the cap, not past it
	fill(t, b, []byte("abcd"))
	fill(t, b, []byte("efghi"))
	assert.Equal(t, 10, b.Cap())
	assert.Equal(t, "abcdefghi", string(b.Readable()))
}
