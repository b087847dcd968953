package rinex

import (
	"fmt"
	"io"

	"github.com/de-bkg/gosoc/pkg/stream"
)

// maxLine bounds the accepted line length. RINEX lines are at most 80 bytes
// plus terminator; the extra slack tolerates sloppy producers.
const maxLine = 4096

// lineScanner pulls terminator-trimmed lines out of a stream.Source window.
// LF, CRLF and CR all terminate a line. The returned slice aliases the
// window and is valid until the next call.
type lineScanner struct {
	src     stream.Source
	pending int // bytes consumed by the previous line
	num     int // current input line number
}

func (ls *lineScanner) next() ([]byte, error) {
	req := 256
	for {
		win, err := ls.src.Advance(req, ls.pending)
		ls.pending = 0
		if err != nil {
			return nil, err
		}
		if len(win) == 0 {
			return nil, io.EOF
		}

		end, consumed := findEOL(win)
		if end >= 0 {
			if consumed < 0 {
				if len(win) >= req {
					// a CR at the window edge: the LF half may follow
					req = len(win) + 2
					continue
				}
				consumed = end + 1 // CR right before EOF
			}
			ls.pending = consumed
			ls.num++
			return win[:end], nil
		}

		if len(win) < req {
			// final line without terminator
			ls.pending = len(win)
			ls.num++
			return win, nil
		}
		if len(win) >= maxLine {
			return nil, fmt.Errorf("%w: line %d longer than %d bytes", ErrBadFormat, ls.num+1, maxLine)
		}
		req = 2 * len(win)
	}
}

// findEOL locates the first line terminator. It returns the line length and
// the bytes consumed including the terminator; (-1, -1) when no terminator
// is present, and consumed -2 when a trailing CR needs one more byte to
// decide between CR and CRLF.
func findEOL(win []byte) (end, consumed int) {
	limit := len(win)
	if limit > maxLine {
		limit = maxLine
	}
	for i := 0; i < limit; i++ {
		switch win[i] {
		case '\n':
			return i, i + 1
		case '\r':
			if i+1 < len(win) {
				if win[i+1] == '\n' {
					return i, i + 2
				}
				return i, i + 1
			}
			return i, -2
		}
	}
	return -1, -1
}
