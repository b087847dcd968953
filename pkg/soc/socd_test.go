package soc

import (
	"math/rand"
	"testing"

	"github.com/de-bkg/gosoc/pkg/leb128"
	"github.com/stretchr/testify/assert"
)

// drain decodes every value of a data section.
func drain(t *testing.T, buf []byte, nValues int) []int64 {
	t.Helper()
	dec, err := newDataDecoder(buf, nValues)
	if err != nil {
		t.Fatalf("new data decoder: %v", err)
	}
	out := make([]int64, 0, nValues)
	var chunk [64]int64
	for len(out) < nValues {
		n, err := dec.next(chunk[:])
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n == 0 {
			t.Fatalf("decoder stalled after %d of %d values", len(out), nValues)
		}
		out = append(out, chunk[:n]...)
	}
	return out
}

func TestDecodeZeroRun(t *testing.T) {
	// order 1, no scale, initial state 1000, five zero residuals
	p := leb128.AppendUint(nil, 1)
	p = leb128.AppendInt(p, 1000)
	p = append(p, blockZeros)
	p = leb128.AppendUint(p, 4)

	got := drain(t, p, 5)
	assert.Equal(t, []int64{1000, 1000, 1000, 1000, 1000}, got)
}

func TestDecodeScaledLiterals(t *testing.T) {
	// order 1 with scale 500/1000, residuals -2 and -4
	p := leb128.AppendUint(nil, 9)
	p = leb128.AppendUint(p, 500)
	p = leb128.AppendInt(p, 0)
	p = append(p, blockLiterals)
	p = leb128.AppendUint(p, 1)
	p = leb128.AppendInt(p, -2)
	p = leb128.AppendInt(p, -4)

	got := drain(t, p, 2)
	// integrator: -2, -6; scaled by 500/1000
	assert.Equal(t, []int64{-1, -3}, got)
}

func TestDecodeMatrixBlock(t *testing.T) {
	// order 0: eight 1-bit residuals, all set, decode to -1 each
	p := leb128.AppendUint(nil, 0)
	p = append(p, blockMatrix8, 0xff)

	got := drain(t, p, 8)
	assert.Equal(t, []int64{-1, -1, -1, -1, -1, -1, -1, -1}, got)
}

func TestDecodeReservedBlock(t *testing.T) {
	p := leb128.AppendUint(nil, 0)
	p = append(p, 0x80) // reserved header

	dec, err := newDataDecoder(p, 1)
	assert.NoError(t, err)
	var chunk [8]int64
	_, err = dec.next(chunk[:])
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeReservedSchema(t *testing.T) {
	p := leb128.AppendUint(nil, 23)
	_, err := newDataDecoder(p, 1)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestIntegratorRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for order := 0; order <= maxOrder; order++ {
		values := make([]int64, 500)
		acc := int64(0)
		for i := range values {
			acc += rng.Int63n(2001) - 1000
			values[i] = acc
		}

		enc := integrator{order: order}
		dec := integrator{order: order}
		if order > 0 {
			enc.state[0] = values[0]
			dec.state[0] = values[0]
		}
		for _, v := range values {
			r := enc.diff(v)
			assert.Equal(t, v, dec.push(r), "order %d", order)
		}
	}
}

func TestPackResidualsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	shapes := [][]int64{
		{},
		{0, 0, 0, 0},
		{5},
		{5, -7, 9},
		{1 << 40, -(1 << 45), 3, 4, 5, 6, 7, 8}, // wide values force the literal fallback
	}
	// random mixtures of zero runs and value stretches
	for trial := 0; trial < 20; trial++ {
		var res []int64
		for len(res) < 300 {
			if rng.Intn(2) == 0 {
				for k := rng.Intn(40); k >= 0; k-- {
					res = append(res, 0)
				}
			} else {
				for k := rng.Intn(40); k >= 0; k-- {
					res = append(res, rng.Int63n(1<<uint(rng.Intn(40)+1))-1<<uint(rng.Intn(30)))
				}
			}
		}
		shapes = append(shapes, res)
	}

	for si, res := range shapes {
		packed := packResiduals(nil, res)
		if len(res) == 0 {
			assert.Empty(t, packed)
			continue
		}
		// wrap as an order-0 data section
		p := leb128.AppendUint(nil, 0)
		p = append(p, packed...)
		got := drain(t, p, len(res))
		assert.Equal(t, res, got, "shape %d", si)
	}
}

func TestIndicatorRoundTrip(t *testing.T) {
	assert := assert.New(t)

	cases := [][]byte{
		[]byte("        "),
		[]byte("11112222"),
		[]byte("1       "),
		[]byte("   4 4 4"),
		{},
	}
	for _, ind := range cases {
		buf := appendIndicators(nil, ind)
		got, rest, err := decodeIndicators(buf, len(ind))
		assert.NoError(err)
		assert.Empty(rest)
		if len(ind) == 0 {
			assert.Empty(got)
		} else {
			assert.Equal(ind, got)
		}
	}
}

func TestIndicatorBlankTailDropped(t *testing.T) {
	assert := assert.New(t)

	full := appendIndicators(nil, []byte("11      "))
	short := appendIndicators(nil, []byte("11"))
	assert.Equal(short, full, "blank tail must not be encoded")
}

func TestBitsFor(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(1, bitsFor(0))
	assert.Equal(1, bitsFor(-1))
	assert.Equal(2, bitsFor(1))
	assert.Equal(2, bitsFor(-2))
	assert.Equal(3, bitsFor(2))
	assert.Equal(3, bitsFor(3))
	assert.Equal(3, bitsFor(-4))
	assert.Equal(33, bitsFor(1<<31))
	assert.Equal(32, bitsFor(-1<<31))
}
