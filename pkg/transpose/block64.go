package transpose

// block64 runs the transpose through 8x8 bit-block rotations on 64-bit
// words (Warren, Hacker's Delight 7-3). Each lane of 8 columns consumes the
// rows in groups of 8: the group's bytes are gathered into one word, rotated
// as an 8x8 bit matrix, and each resulting byte contributes 8 more bits to
// its column accumulator. A partial final group contributes its top bits
// only.
func block64(dst []int64, src []byte, count, bits int) {
	stride := count / 8
	for lane := 0; lane < stride; lane++ {
		var acc [8]uint64
		for r := 0; r < bits; r += 8 {
			n := bits - r
			if n > 8 {
				n = 8
			}
			var x uint64
			for k := 0; k < n; k++ {
				x |= uint64(src[(r+k)*stride+lane]) << (8 * (7 - k))
			}
			x = transpose8x8(x)
			for c := 0; c < 8; c++ {
				col := byte(x >> (8 * (7 - c)))
				acc[c] = acc[c]<<n | uint64(col>>(8-n))
			}
		}
		for c := 0; c < 8; c++ {
			dst[lane*8+c] = signExtend(acc[c], bits)
		}
	}
}

// transpose8x8 transposes the 8x8 bit matrix held in x, with row r in byte
// 7-r (row 0 in the most significant byte) and column 0 at each byte's MSB.
func transpose8x8(x uint64) uint64 {
	x = x&0xAA55AA55AA55AA55 | x&0x00AA00AA00AA00AA<<7 | x>>7&0x00AA00AA00AA00AA
	x = x&0xCCCC3333CCCC3333 | x&0x0000CCCC0000CCCC<<14 | x>>14&0x0000CCCC0000CCCC
	x = x&0xF0F0F0F00F0F0F0F | x&0x00000000F0F0F0F0<<28 | x>>28&0x00000000F0F0F0F0
	return x
}
