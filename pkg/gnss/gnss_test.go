package gnss

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemFromLetter(t *testing.T) {
	assert := assert.New(t)

	for letter, want := range map[byte]System{
		'G': SysGPS, 'R': SysGLO, 'E': SysGAL, 'J': SysQZSS,
		'C': SysBDS, 'I': SysIRNSS, 'S': SysSBAS, ' ': SysGPS,
	} {
		sys, ok := SystemFromLetter(letter)
		assert.True(ok, "letter %c", letter)
		assert.Equal(want, sys, "letter %c", letter)
	}

	_, ok := SystemFromLetter('X')
	assert.False(ok)
	_, ok = SystemFromLetter('0')
	assert.False(ok)
}

func TestSysIndexDistinct(t *testing.T) {
	seen := map[int]byte{}
	for _, letter := range []byte{'G', 'R', 'S', 'E', 'C', 'J', 'I'} {
		idx := SysIndex(letter)
		if prev, dup := seen[idx]; dup {
			t.Fatalf("slot %d shared by %c and %c", idx, prev, letter)
		}
		seen[idx] = letter
	}
}

func TestParsePRN(t *testing.T) {
	assert := assert.New(t)

	prn, err := ParsePRN("G12")
	assert.NoError(err)
	assert.Equal(PRN{Sys: SysGPS, Num: 12}, prn)
	assert.Equal("G12", prn.String())

	prn, err = ParsePRN(" 05")
	assert.NoError(err)
	assert.Equal(PRN{Sys: SysGPS, Num: 5}, prn)

	prn, err = ParsePRN("R 7")
	assert.NoError(err)
	assert.Equal(PRN{Sys: SysGLO, Num: 7}, prn)

	_, err = ParsePRN("X12")
	assert.Error(err)
	_, err = ParsePRN("G00")
	assert.Error(err)
	_, err = ParsePRN("G1")
	assert.Error(err)
}
