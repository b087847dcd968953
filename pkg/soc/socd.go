package soc

import (
	"fmt"
	"math/bits"

	"github.com/de-bkg/gosoc/pkg/leb128"
	"github.com/de-bkg/gosoc/pkg/transpose"
)

// SOCD data block headers: the top three bits select the block kind, the
// low five hold the matrix bit width minus one.
const (
	blockMatrix8  = 0x00 // 000kkkkk: 8 x (k+1) bit matrix
	blockMatrix16 = 0x20 // 001kkkkk: 16 x (k+1) bit matrix
	blockMatrix32 = 0x40 // 010kkkkk: 32 x (k+1) bit matrix
	blockZeros    = 0xfe // ULEB128 count-1 of zero residuals
	blockLiterals = 0xff // ULEB128 count-1 of SLEB128 residuals
)

// maxOrder is the highest differencing order the writer considers.
const maxOrder = 5

// integrator undoes up to seven levels of forward differencing.
type integrator struct {
	order int
	state [7]int64
}

// push integrates one residual into the next value.
func (g *integrator) push(r int64) int64 {
	d := r
	for j := g.order - 1; j >= 0; j-- {
		d += g.state[j]
		g.state[j] = d
	}
	return d
}

// diff is the inverse of push: it turns a value into a residual.
func (g *integrator) diff(v int64) int64 {
	d := v
	for j := 0; j < g.order; j++ {
		d, g.state[j] = d-g.state[j], d
	}
	return d
}

// dataDecoder streams residual blocks out of a SOCD data section and
// reconstructs the observation values.
type dataDecoder struct {
	buf        []byte
	integ      integrator
	scaleX1000 int64
	zeroRun    uint64 // zero residuals pending from a 0xFE block
	litRun     uint64 // literal residuals pending from a 0xFF block
	remaining  int    // values not yet produced
}

// newDataDecoder parses the data section preamble: schema, optional scale
// and the initial integrator state.
func newDataDecoder(buf []byte, nValues int) (*dataDecoder, error) {
	schema, n := leb128.Uint(buf)
	if n == 0 {
		return nil, fmt.Errorf("%w: truncated data schema", ErrCorrupt)
	}
	buf = buf[n:]
	if schema > 15 {
		return nil, fmt.Errorf("%w: reserved data schema %d", ErrCorrupt, schema)
	}

	d := &dataDecoder{scaleX1000: 1000, remaining: nValues}
	d.integ.order = int(schema % 8)

	if schema >= 8 {
		scale, n := leb128.Uint(buf)
		if n == 0 || scale == 0 {
			return nil, fmt.Errorf("%w: bad scale", ErrCorrupt)
		}
		buf = buf[n:]
		d.scaleX1000 = int64(scale)
	}
	for j := 0; j < d.integ.order; j++ {
		v, n := leb128.Int(buf)
		if n == 0 {
			return nil, fmt.Errorf("%w: truncated initial state", ErrCorrupt)
		}
		buf = buf[n:]
		d.integ.state[j] = v
	}
	d.buf = buf
	return d, nil
}

// next decodes up to len(dst) values and returns how many were produced;
// zero means the signal is exhausted.
func (d *dataDecoder) next(dst []int64) (int, error) {
	produced := 0
	var scratch [32]int64

	for produced < len(dst) && d.remaining > 0 {
		switch {
		case d.zeroRun > 0:
			d.zeroRun--
			dst[produced] = d.value(0)
			produced++
			continue
		case d.litRun > 0:
			r, n := leb128.Int(d.buf)
			if n == 0 {
				return 0, fmt.Errorf("%w: truncated literal residual", ErrCorrupt)
			}
			d.buf = d.buf[n:]
			d.litRun--
			dst[produced] = d.value(r)
			produced++
			continue
		}

		if len(d.buf) == 0 {
			return 0, fmt.Errorf("%w: data section ends before all values", ErrCorrupt)
		}
		hdr := d.buf[0]
		switch {
		case hdr == blockZeros:
			count, n := leb128.Uint(d.buf[1:])
			if n == 0 {
				return 0, fmt.Errorf("%w: truncated zero run", ErrCorrupt)
			}
			d.buf = d.buf[1+n:]
			d.zeroRun = count + 1
		case hdr == blockLiterals:
			count, n := leb128.Uint(d.buf[1:])
			if n == 0 {
				return 0, fmt.Errorf("%w: truncated literal run", ErrCorrupt)
			}
			d.buf = d.buf[1+n:]
			d.litRun = count + 1
		case hdr>>5 <= 2:
			count := 8 << (hdr >> 5)
			nbits := int(hdr&31) + 1
			size := transpose.PackedSize(count, nbits)
			if len(d.buf)-1 < size {
				return 0, fmt.Errorf("%w: truncated bit matrix", ErrCorrupt)
			}
			if count > d.remaining {
				return 0, fmt.Errorf("%w: bit matrix exceeds value count", ErrCorrupt)
			}
			if produced+count > len(dst) {
				// the block does not fit the caller's buffer right now;
				// leave it for the next call
				return produced, nil
			}
			transpose.Transpose(scratch[:count], d.buf[1:], count, nbits)
			d.buf = d.buf[1+size:]
			for _, r := range scratch[:count] {
				dst[produced] = d.value(r)
				produced++
			}
		default:
			return 0, fmt.Errorf("%w: reserved block header %#02x", ErrCorrupt, hdr)
		}

		if d.zeroRun+d.litRun > uint64(d.remaining) {
			return 0, fmt.Errorf("%w: residual run exceeds value count", ErrCorrupt)
		}
	}
	return produced, nil
}

// value integrates one residual and applies the scale.
func (d *dataDecoder) value(r int64) int64 {
	d.remaining--
	return d.integ.push(r) * d.scaleX1000 / 1000
}

// bitsFor returns the two's-complement width of v.
func bitsFor(v int64) int {
	if v >= 0 {
		return bits.Len64(uint64(v)) + 1
	}
	return bits.Len64(uint64(^v)) + 1
}

// packResiduals appends the greedy block encoding of res: zero runs become
// 0xFE blocks; nonzero stretches become bit matrices of 32, 16 or 8
// residuals, falling back to SLEB128 literals when narrower, and literal
// tails shorter than a matrix.
func packResiduals(dst []byte, res []int64) []byte {
	i := 0
	for i < len(res) {
		if res[i] == 0 {
			j := i
			for j < len(res) && res[j] == 0 {
				j++
			}
			dst = append(dst, blockZeros)
			dst = leb128.AppendUint(dst, uint64(j-i-1))
			i = j
			continue
		}

		j := i
		for j < len(res) && res[j] != 0 {
			j++
		}
		for i < j {
			run := j - i
			count := 0
			switch {
			case run >= 32:
				count = 32
			case run >= 16:
				count = 16
			case run >= 8:
				count = 8
			}
			if count == 0 {
				dst = appendLiterals(dst, res[i:j])
				i = j
				continue
			}

			group := res[i : i+count]
			nbits := 1
			for _, v := range group {
				if b := bitsFor(v); b > nbits {
					nbits = b
				}
			}
			if nbits > 32 || matrixCost(count, nbits) >= literalCost(group) {
				dst = appendLiterals(dst, group)
			} else {
				kind := byte(blockMatrix8)
				if count == 16 {
					kind = blockMatrix16
				} else if count == 32 {
					kind = blockMatrix32
				}
				dst = append(dst, kind|byte(nbits-1))
				start := len(dst)
				for k := 0; k < transpose.PackedSize(count, nbits); k++ {
					dst = append(dst, 0)
				}
				transpose.Pack(dst[start:], group, count, nbits)
			}
			i += count
		}
	}
	return dst
}

func appendLiterals(dst []byte, group []int64) []byte {
	dst = append(dst, blockLiterals)
	dst = leb128.AppendUint(dst, uint64(len(group)-1))
	for _, v := range group {
		dst = leb128.AppendInt(dst, v)
	}
	return dst
}

func matrixCost(count, nbits int) int {
	return 1 + transpose.PackedSize(count, nbits)
}

func literalCost(group []int64) int {
	cost := 1 + leb128.UintLen(uint64(len(group)-1))
	for _, v := range group {
		cost += leb128.IntLen(v)
	}
	return cost
}

// decodeIndicators expands one RLE indicator block and returns the rest of
// the buffer. Missing tail indicators default to a blank.
func decodeIndicators(buf []byte, nValues int) ([]byte, []byte, error) {
	blockLen, n := leb128.Uint(buf)
	if n == 0 || blockLen > uint64(len(buf)-n) {
		return nil, nil, fmt.Errorf("%w: bad indicator block length", ErrCorrupt)
	}
	block := buf[n : n+int(blockLen)]
	rest := buf[n+int(blockLen):]

	out := make([]byte, nValues)
	idx := 0
	for len(block) > 0 {
		ch := block[0]
		count, n := leb128.Uint(block[1:])
		if n == 0 {
			return nil, nil, fmt.Errorf("%w: truncated indicator run", ErrCorrupt)
		}
		block = block[1+n:]
		for k := uint64(0); k <= count; k++ {
			if idx >= nValues {
				return nil, nil, fmt.Errorf("%w: indicator run exceeds value count", ErrCorrupt)
			}
			out[idx] = ch
			idx++
		}
	}
	for ; idx < nValues; idx++ {
		out[idx] = ' '
	}
	return out, rest, nil
}

// appendIndicators emits the RLE block for ind, dropping the blank tail.
func appendIndicators(dst []byte, ind []byte) []byte {
	last := len(ind) - 1
	for last >= 0 && ind[last] == ' ' {
		last--
	}

	var block []byte
	for i := 0; i <= last; {
		ch := ind[i]
		n := 1
		for i+n <= last && ind[i+n] == ch {
			n++
		}
		block = append(block, ch)
		block = leb128.AppendUint(block, uint64(n-1))
		i += n
	}
	dst = leb128.AppendUint(dst, uint64(len(block)))
	return append(dst, block...)
}
