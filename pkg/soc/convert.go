package soc

import (
	"math"
	"unsafe"
)

// ConvertS64ToFloat64 reinterprets buf in place as float64 values
// v*scale/1000 and returns the float view of the same memory. The result
// is exact only for |v| below 2^51; larger magnitudes lose low bits in the
// product.
func ConvertS64ToFloat64(buf []int64, scale int64) []float64 {
	if len(buf) == 0 {
		return nil
	}
	factor := float64(scale) / 1000.0
	for i, v := range buf {
		buf[i] = int64(math.Float64bits(float64(v) * factor))
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&buf[0])), len(buf))
}
