package soc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertS64ToFloat64(t *testing.T) {
	assert := assert.New(t)

	buf := []int64{23_619_095_450, -353, 0, 1000}
	out := ConvertS64ToFloat64(buf, 1)
	assert.Len(out, 4)
	assert.InDelta(23_619_095.450, out[0], 1e-6)
	assert.InDelta(-0.353, out[1], 1e-9)
	assert.Zero(out[2])
	assert.InDelta(1.0, out[3], 1e-12)

	assert.Nil(ConvertS64ToFloat64(nil, 1))
}
