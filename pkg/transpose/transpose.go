// Package transpose implements the signed bit-matrix transpose used by the
// observation container's residual coder.
//
// The input is a matrix of bits rows by count columns, row-major, MSB-first
// within each byte: each row occupies count/8 bytes and the most significant
// bit of a byte belongs to the lowest column index. Column j, read from row
// 0 downwards, forms a bits-wide two's-complement integer that is sign
// extended into dst[j].
//
// Two interchangeable implementations exist: a plain per-bit reference and a
// 64-bit word variant built on 8x8 block rotations. The active one is picked
// at startup; setting TRANSPOSE_FORCE=generic or TRANSPOSE_FORCE=block64
// overrides the choice.
package transpose

import (
	"fmt"
	"os"
	"sort"
)

// Func converts a packed bit matrix of count columns by bits rows into
// count sign-extended values. dst must hold count elements and src
// bits*count/8 bytes. count is 8, 16 or 32; bits is 1..32.
type Func func(dst []int64, src []byte, count, bits int)

var impls = map[string]Func{
	"generic": generic,
	"block64": block64,
}

var (
	activeName string
	active     Func
)

func init() {
	name := os.Getenv("TRANSPOSE_FORCE")
	if name == "" {
		name = "block64"
	}
	if err := Use(name); err != nil {
		// an unknown forced name falls back to the reference version
		_ = Use("generic")
	}
}

// Transpose runs the active implementation.
func Transpose(dst []int64, src []byte, count, bits int) {
	active(dst, src, count, bits)
}

// Name reports the active implementation.
func Name() string {
	return activeName
}

// Use selects an implementation by name.
func Use(name string) error {
	f, ok := impls[name]
	if !ok {
		return fmt.Errorf("transpose: unknown implementation %q (have %v)", name, Names())
	}
	activeName, active = name, f
	return nil
}

// Names lists the available implementations.
func Names() []string {
	names := make([]string, 0, len(impls))
	for name := range impls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// signExtend interprets the low bits of u as a two's-complement value.
func signExtend(u uint64, bits int) int64 {
	return int64(u<<(64-bits)) >> (64 - bits)
}
