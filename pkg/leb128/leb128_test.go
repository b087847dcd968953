package leb128

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUintRoundTrip(t *testing.T) {
	assert := assert.New(t)

	for _, v := range []uint64{0, 1, 127, 128, 300, 16383, 16384, 1<<32 - 1, 1 << 56, math.MaxUint64} {
		buf := AppendUint(nil, v)
		assert.Equal(UintLen(v), len(buf), "length of %d", v)
		got, n := Uint(buf)
		assert.Equal(len(buf), n, "consumed for %d", v)
		assert.Equal(v, got)
	}
}

func TestUintKnownEncodings(t *testing.T) {
	assert := assert.New(t)
	assert.Equal([]byte{0x00}, AppendUint(nil, 0))
	assert.Equal([]byte{0x7f}, AppendUint(nil, 127))
	assert.Equal([]byte{0x80, 0x01}, AppendUint(nil, 128))
	assert.Equal([]byte{0xac, 0x02}, AppendUint(nil, 300))
}

func TestIntRoundTrip(t *testing.T) {
	assert := assert.New(t)

	for _, v := range []int64{0, -1, 1, -2, 2, 63, -64, 64, -65, math.MaxInt64, math.MinInt64} {
		buf := AppendInt(nil, v)
		assert.Equal(IntLen(v), len(buf), "length of %d", v)
		got, n := Int(buf)
		assert.Equal(len(buf), n, "consumed for %d", v)
		assert.Equal(v, got)
	}
}

func TestZigzag(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint64(0), Zigzag(0))
	assert.Equal(uint64(1), Zigzag(-1))
	assert.Equal(uint64(2), Zigzag(1))
	assert.Equal(uint64(3), Zigzag(-2))
	for _, v := range []int64{0, 1, -1, 1 << 40, math.MinInt64} {
		assert.Equal(v, Unzigzag(Zigzag(v)))
	}
}

func TestUintMalformed(t *testing.T) {
	assert := assert.New(t)

	// truncated
	_, n := Uint([]byte{0x80})
	assert.Zero(n)
	_, n = Uint(nil)
	assert.Zero(n)

	// more than 64 bits
	over := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}
	_, n = Uint(over)
	assert.Zero(n)
}

func TestUintFixed(t *testing.T) {
	assert := assert.New(t)

	buf := AppendUintFixed(nil, 300, 8)
	assert.Len(buf, 8)
	v, n := Uint(buf)
	assert.Equal(8, n)
	assert.Equal(uint64(300), v)

	PutUintFixed(buf, 77777)
	v, n = Uint(buf)
	assert.Equal(8, n)
	assert.Equal(uint64(77777), v)
}
