package transpose

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// groundTruthRows are the row constants of the fixed 32x32 test matrix.
var groundTruthRows = [32]uint32{
	0x55555555, 0x33333333, 0x0f0f0f0f, 0x00ff00ff,
	0x0000ffff, 0xaaaaaaaa, 0xcccccccc, 0xf0f0f0f0,
	0xff00ff00, 0xffff0000, 0x0000ffff, 0x00ffff00,
	0x0ff00ff0, 0x3c3c3c3c, 0x66666666, 0xffffffff,
	0x12345678, 0x31415927, 0xcafebabe, 0xcafed00d,
	0x47494638, 0x89504e47, 0x4d546864, 0x2321202f,
	0x7f454c46, 0x25504446, 0x19540119, 0x4a6f7921,
	0x49492a00, 0x4d4d002a, 0x57414433, 0xd0cf11e0,
}

// groundTruth holds the full-width transpose of groundTruthRows. For a
// partial height b, column j must decode to groundTruth[j]>>(32-b) with the
// sign carried down.
var groundTruth = [32]int32{
	130102273, -2084357473, 1170686400, -1044004701,
	650983100, -1563489594, 1691072914, -523677714,
	391720961, -1822720257, 1432334608, -782387616,
	911554589, -1302875467, 1951608849, -263108193,
	263270400, -1951146286, 1303847704, -910823407,
	784164504, -1430287166, 1824238600, -390512591,
	522788865, -1691646271, 1563421463, -651319262,
	1042659620, -1171818560, 2082694598, -132033230,
}

func groundTruthInput(bits int) []byte {
	src := make([]byte, bits*4)
	for r := 0; r < bits; r++ {
		binary.BigEndian.PutUint32(src[r*4:], groundTruthRows[r])
	}
	return src
}

func TestGroundTruth(t *testing.T) {
	for name, impl := range impls {
		for bits := 1; bits <= 32; bits++ {
			src := groundTruthInput(bits)
			dst := make([]int64, 32)
			impl(dst, src, 32, bits)
			for j := 0; j < 32; j++ {
				want := int64(groundTruth[j] >> (32 - bits))
				if dst[j] != want {
					t.Fatalf("%s: bits=%d col=%d: got %d want %d", name, bits, j, dst[j], want)
				}
			}
		}
	}
}

func TestImplementationsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, count := range []int{8, 16, 32} {
		for bits := 1; bits <= 32; bits++ {
			src := make([]byte, bits*count/8)
			for i := range src {
				src[i] = byte(rng.Intn(256))
			}
			want := make([]int64, count)
			got := make([]int64, count)
			generic(want, src, count, bits)
			block64(got, src, count, bits)
			assert.Equal(t, want, got, "count=%d bits=%d", count, bits)
		}
	}
}

func TestPackRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, count := range []int{8, 16, 32} {
		for bits := 1; bits <= 32; bits++ {
			vals := make([]int64, count)
			for i := range vals {
				// any value representable in bits signed bits
				v := rng.Int63n(1<<uint(bits)) - 1<<uint(bits-1)
				vals[i] = v
			}
			packed := make([]byte, PackedSize(count, bits))
			Pack(packed, vals, count, bits)
			got := make([]int64, count)
			for _, impl := range impls {
				impl(got, packed, count, bits)
				assert.Equal(t, vals, got, "count=%d bits=%d", count, bits)
			}
		}
	}
}

func TestUse(t *testing.T) {
	assert := assert.New(t)
	defer Use("block64")

	assert.NoError(Use("generic"))
	assert.Equal("generic", Name())
	assert.Error(Use("avx1024"))
	assert.Equal("generic", Name())
	assert.Contains(Names(), "block64")
}
