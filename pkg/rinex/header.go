package rinex

import (
	"bytes"
	"fmt"

	"github.com/de-bkg/gosoc/pkg/gnss"
	"github.com/de-bkg/gosoc/pkg/stream"
)

// ObsHeader is the decoded observation file header. Text keeps the
// normalized header copy (terminators mapped to LF, trailing spaces
// trimmed) so the container can embed it verbatim; only the fields the
// record reader needs are broken out.
type ObsHeader struct {
	Version   float32     // RINEX format version, e.g. 2.11
	Major     int         // 2 or 3
	SatSystem gnss.System // satellite system from the version line; MIXED if more than one

	Text []byte // normalized header copy including the END OF HEADER line

	obsTypes [32][]ObsCode // per system letter (radix on letter&31)
	v2Types  []ObsCode     // the single RINEX 2 table, any-system fallback
}

// ObsTypes returns the declared observation codes for a system letter.
// For 2.x files, systems without an explicit assignment fall back to the
// file's single table.
func (hdr *ObsHeader) ObsTypes(letter byte) []ObsCode {
	types := hdr.obsTypes[gnss.SysIndex(letter)]
	if types == nil && hdr.Major == 2 {
		return hdr.v2Types
	}
	return types
}

// NumObs returns the number of declared observation codes for a system
// letter.
func (hdr *ObsHeader) NumObs(letter byte) int {
	return len(hdr.ObsTypes(letter))
}

// SystemLetters returns the system letters that have observation tables, in
// radix order.
func (hdr *ObsHeader) SystemLetters() []byte {
	var letters []byte
	for _, sys := range []gnss.System{gnss.SysBDS, gnss.SysGAL, gnss.SysGPS, gnss.SysIRNSS, gnss.SysQZSS, gnss.SysGLO, gnss.SysSBAS} {
		if hdr.obsTypes[gnss.SysIndex(sys.Letter())] != nil {
			letters = append(letters, sys.Letter())
		}
	}
	return letters
}

// readHeader decodes the header block from the scanner. The scanner is left
// positioned after the END OF HEADER line.
func readHeader(ls *lineScanner) (hdr ObsHeader, err error) {
	var (
		v2Declared int
		v3Declared int
		v3Letter   byte
	)

	for lineNo := 1; ; lineNo++ {
		line, err := ls.next()
		if err != nil {
			return hdr, fmt.Errorf("%w: header truncated in line %d", ErrBadFormat, ls.num)
		}
		line = bytes.TrimRight(line, " ")

		if lineNo == 1 {
			if err := hdr.parseVersionLine(line); err != nil {
				return hdr, err
			}
			hdr.appendText(line)
			continue
		}

		if len(line) < 61 {
			return hdr, fmt.Errorf("%w: short header line %d: %q", ErrBadFormat, ls.num, line)
		}
		hdr.appendText(line)
		label := string(bytes.TrimRight(line[60:], " "))

		switch label {
		case "END OF HEADER":
			return hdr, hdr.finish(v2Declared)

		case "# / TYPES OF OBSERV": // RINEX 2
			if hdr.Major != 2 {
				return hdr, fmt.Errorf("%w: %q in a %d.x header", ErrBadFormat, label, hdr.Major)
			}
			if !blank(line[:6]) {
				n, err := ParseUint(line[:6])
				if err != nil {
					return hdr, fmt.Errorf("parse %q in line %d: %w", label, ls.num, err)
				}
				v2Declared = int(n)
				hdr.v2Types = make([]ObsCode, 0, n)
			}
			for i := 0; i < 9 && len(hdr.v2Types) < v2Declared; i++ {
				slot := col2(line, 10+6*i)
				if slot == [2]byte{' ', ' '} {
					break
				}
				hdr.v2Types = append(hdr.v2Types, ObsCode{slot[0], slot[1], 0})
			}

		case "SYS / # / OBS TYPES": // RINEX 3
			if hdr.Major != 3 {
				return hdr, fmt.Errorf("%w: %q in a %d.x header", ErrBadFormat, label, hdr.Major)
			}
			if line[0] != ' ' {
				if _, ok := gnss.SystemFromLetter(line[0]); !ok {
					return hdr, fmt.Errorf("%w: invalid satellite system %q in line %d", ErrBadFormat, line[0], ls.num)
				}
				v3Letter = line[0]
				n, err := ParseUint(line[3:6])
				if err != nil {
					return hdr, fmt.Errorf("parse %q in line %d: %w", label, ls.num, err)
				}
				v3Declared = int(n)
				hdr.obsTypes[gnss.SysIndex(v3Letter)] = make([]ObsCode, 0, n)
			} else if v3Letter == 0 {
				return hdr, fmt.Errorf("%w: continuation without %q start in line %d", ErrBadFormat, label, ls.num)
			}
			types := hdr.obsTypes[gnss.SysIndex(v3Letter)]
			for i := 0; i < 13 && len(types) < v3Declared; i++ {
				code := col3(line, 7+4*i)
				if code == [3]byte{' ', ' ', ' '} {
					break
				}
				types = append(types, ObsCode(code))
			}
			hdr.obsTypes[gnss.SysIndex(v3Letter)] = types
		}
	}
}

// parseVersionLine decodes the mandatory RINEX VERSION / TYPE first line.
func (hdr *ObsHeader) parseVersionLine(line []byte) error {
	switch {
	case bytes.HasPrefix(line, []byte("     2.")):
		hdr.Major = 2
	case bytes.HasPrefix(line, []byte("     3.")):
		hdr.Major = 3
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVersion, head(line, 9))
	}
	v, err := ParseFixed(slice(line, 0, 9), 2)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownVersion, head(line, 9))
	}
	hdr.Version = float32(v) / 100

	if len(line) <= 20 || line[20] != 'O' {
		return ErrNotObservation
	}

	sysLetter := byte(' ')
	if len(line) > 40 {
		sysLetter = line[40]
	}
	sys, ok := gnss.SystemFromLetter(sysLetter)
	if !ok {
		return fmt.Errorf("%w: invalid satellite system %q", ErrBadFormat, sysLetter)
	}
	hdr.SatSystem = sys
	return nil
}

// finish validates the declared tables and applies the RINEX 2 system
// convention: 'M' files share the single table across GPS, GLONASS, SBAS
// and Galileo; otherwise it belongs to the file's system.
func (hdr *ObsHeader) finish(v2Declared int) error {
	if hdr.Major == 2 {
		if len(hdr.v2Types) != v2Declared {
			return fmt.Errorf("%w: %d observation types declared, %d listed", ErrBadFormat, v2Declared, len(hdr.v2Types))
		}
		switch hdr.SatSystem {
		case gnss.SysMIXED:
			for _, letter := range []byte{'G', 'R', 'S', 'E'} {
				hdr.obsTypes[gnss.SysIndex(letter)] = hdr.v2Types
			}
		default:
			hdr.obsTypes[gnss.SysIndex(hdr.SatSystem.Letter())] = hdr.v2Types
		}
		return nil
	}

	for idx, types := range hdr.obsTypes {
		if types != nil && len(types) == 0 {
			return fmt.Errorf("%w: empty observation table for system slot %d", ErrBadFormat, idx)
		}
	}
	return nil
}

func (hdr *ObsHeader) appendText(line []byte) {
	hdr.Text = append(hdr.Text, line...)
	hdr.Text = append(hdr.Text, '\n')
}

// ReadHeader decodes an observation header from src, leaving src positioned
// at the first record.
func ReadHeader(src stream.Source) (ObsHeader, error) {
	ls := &lineScanner{src: src}
	hdr, err := readHeader(ls)
	if err != nil {
		return hdr, err
	}
	// step over the END OF HEADER line still pending in the scanner
	if _, err := src.Advance(0, ls.pending); err != nil {
		return hdr, err
	}
	return hdr, nil
}

// ParseHeader decodes an observation header from an in-memory copy, e.g.
// the container's embedded header chunk.
func ParseHeader(text []byte) (ObsHeader, error) {
	src := stream.NewReader(bytes.NewReader(text))
	defer src.Close()
	return ReadHeader(src)
}

// head returns at most n leading bytes of b.
func head(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}

// col2 and col3 read fixed columns, space-padding past the line end.
func col2(line []byte, i int) (c [2]byte) {
	c = [2]byte{' ', ' '}
	for k := 0; k < 2 && i+k < len(line); k++ {
		c[k] = line[i+k]
	}
	return c
}

func col3(line []byte, i int) (c [3]byte) {
	c = [3]byte{' ', ' ', ' '}
	for k := 0; k < 3 && i+k < len(line); k++ {
		c[k] = line[i+k]
	}
	return c
}
