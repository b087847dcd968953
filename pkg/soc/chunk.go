package soc

import (
	"bytes"
	"fmt"

	"github.com/de-bkg/gosoc/pkg/leb128"
)

// appendChunk appends a complete chunk to dst: tag, payload length, payload
// and, when digestID is set, the digest over everything before it.
func appendChunk(dst []byte, tag string, payload []byte, digestID int) []byte {
	start := len(dst)
	dst = append(dst, tag...)
	dst = leb128.AppendUint(dst, uint64(len(payload)))
	dst = append(dst, payload...)
	return digestSum(dst, digestID, dst[start:])
}

// chunk is one decoded chunk location within a container.
type chunk struct {
	tag     string
	payload []byte
	start   int // file offset of the tag
	end     int // file offset just past the digest
}

// readChunk decodes the chunk starting at off and verifies its digest.
func readChunk(data []byte, off, digestID int) (chunk, error) {
	c := chunk{start: off}
	if off+4 > len(data) {
		return c, fmt.Errorf("%w: truncated chunk tag at offset %d", ErrCorrupt, off)
	}
	for _, b := range data[off : off+4] {
		if b < 'A' || b > 'Z' {
			return c, fmt.Errorf("%w: invalid chunk tag at offset %d", ErrCorrupt, off)
		}
	}
	c.tag = string(data[off : off+4])

	plen, n := leb128.Uint(data[off+4:])
	if n == 0 {
		return c, fmt.Errorf("%w: bad chunk length at offset %d", ErrCorrupt, off)
	}
	body := off + 4 + n
	if plen > uint64(len(data)-body) {
		return c, fmt.Errorf("%w: chunk %s at offset %d overruns the file", ErrCorrupt, c.tag, off)
	}
	c.payload = data[body : body+int(plen)]

	dsize := digestSize(digestID)
	c.end = body + int(plen) + dsize
	if c.end > len(data) {
		return c, fmt.Errorf("%w: chunk %s at offset %d misses its digest", ErrCorrupt, c.tag, off)
	}
	if dsize > 0 {
		want := data[body+int(plen) : c.end]
		got := digestSum(nil, digestID, data[off:body+int(plen)])
		if !bytes.Equal(want, got) {
			return c, fmt.Errorf("%w: chunk %s digest mismatch at offset %d", ErrCorrupt, c.tag, off)
		}
	}
	return c, nil
}
