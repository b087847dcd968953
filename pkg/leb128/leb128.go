// Package leb128 implements the little-endian base-128 integer encodings
// used by the observation container format. Unsigned values are stored in
// 7-bit groups with the high bit as continuation flag; signed values are
// ZigZag-folded first.
package leb128

// MaxLen is the longest encoding of a 64-bit value.
const MaxLen = 10

// AppendUint appends the ULEB128 encoding of v to dst.
func AppendUint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// AppendInt appends the SLEB128 (ZigZag) encoding of v to dst.
func AppendInt(dst []byte, v int64) []byte {
	return AppendUint(dst, Zigzag(v))
}

// Uint decodes a ULEB128 value from the start of buf.
// It returns the value and the number of bytes consumed; n is zero when the
// encoding is truncated or exceeds 64 bits.
func Uint(buf []byte) (v uint64, n int) {
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if shift == 63 && b > 1 {
			return 0, 0
		}
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v, i + 1
		}
		shift += 7
		if shift > 63 {
			return 0, 0
		}
	}
	return 0, 0
}

// Int decodes a SLEB128 (ZigZag) value from the start of buf.
func Int(buf []byte) (v int64, n int) {
	u, n := Uint(buf)
	if n == 0 {
		return 0, 0
	}
	return Unzigzag(u), n
}

// UintLen returns the encoded length of v in bytes.
func UintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// IntLen returns the encoded length of v in bytes.
func IntLen(v int64) int {
	return UintLen(Zigzag(v))
}

// Zigzag folds a signed value into an unsigned one, (v<<1) ^ (v>>63).
func Zigzag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// Unzigzag is the inverse of Zigzag.
func Unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// AppendUintFixed appends v as a non-canonical ULEB128 encoding of exactly
// width bytes, with continuation bits forced on all but the last byte.
// The container header reserves such a slot so it can be patched in place
// once the directory offset is known. Values that do not fit in 7*width bits
// are silently truncated; callers pick a sufficient width.
func AppendUintFixed(dst []byte, v uint64, width int) []byte {
	for i := 0; i < width-1; i++ {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v)&0x7f)
}

// PutUintFixed writes v into buf the way AppendUintFixed would.
func PutUintFixed(buf []byte, v uint64) {
	for i := 0; i < len(buf)-1; i++ {
		buf[i] = byte(v) | 0x80
		v >>= 7
	}
	buf[len(buf)-1] = byte(v) & 0x7f
}
