package rinex

import (
	"bytes"
	"io"
)

// ObsWriter emits observation records as RINEX text. Emission is
// fixed-width and byte-deterministic; the version is taken from the header,
// which is written verbatim on creation.
type ObsWriter struct {
	w    io.Writer
	hdr  *ObsHeader
	line []byte
}

// NewObsWriter writes the header text to w and returns a record writer.
func NewObsWriter(w io.Writer, hdr *ObsHeader) (*ObsWriter, error) {
	if hdr.Major != 2 && hdr.Major != 3 {
		return nil, ErrUnknownVersion
	}
	if _, err := w.Write(hdr.Text); err != nil {
		return nil, err
	}
	return &ObsWriter{w: w, hdr: hdr}, nil
}

// WriteRecord emits one observation or event record.
func (ow *ObsWriter) WriteRecord(rec *Record) error {
	if ow.hdr.Major == 2 {
		return ow.writeRecordV2(rec)
	}
	return ow.writeRecordV3(rec)
}

func (ow *ObsWriter) writeRecordV2(rec *Record) error {
	epo := rec.Epoch
	buf := ow.line[:0]

	if epo.Date != 0 {
		buf = append(buf, ' ')
		buf = appendZero2(buf, int(epo.Date/10000%100))
		buf = appendPad(buf, int(epo.Date/100%100), 3)
		buf = appendPad(buf, int(epo.Date%100), 3)
		buf = appendPad(buf, int(epo.HourMin/100), 3)
		buf = appendPad(buf, int(epo.HourMin%100), 3)
		buf = appendFixed(buf, int64(epo.SecE7), 7, 11)
	} else {
		buf = append(buf, padSpaces[:26]...)
	}
	buf = append(buf, ' ', ' ', epo.Flag)
	buf = appendPad(buf, int(epo.NumSat), 3)

	if epo.IsEvent() {
		if err := ow.flushLine(buf); err != nil {
			return err
		}
		_, err := ow.w.Write(rec.Event)
		return err
	}

	// satellite list with continuation lines
	cur := 0
	for sat := 0; cur < len(rec.Presence); sat++ {
		if sat > 0 && sat%12 == 0 {
			if epo.ClockOffsetE12 != 0 && sat == 12 {
				buf = pad(buf, 68)
				buf = appendFixed(buf, epo.ClockOffsetE12/1000, 9, 12)
			}
			if err := ow.flushLine(buf); err != nil {
				return err
			}
			buf = append(ow.line[:0], padSpaces[:32]...)
		}
		letter, num := rec.Presence[cur], rec.Presence[cur+1]
		buf = append(buf, letter, '0'+num/10, '0'+num%10)
		cur += 2 + (ow.hdr.NumObs(letter)+7)/8
	}
	if epo.ClockOffsetE12 != 0 && len(rec.Presence) > 0 && countSats(ow.hdr, rec) <= 12 {
		buf = pad(buf, 68)
		buf = appendFixed(buf, epo.ClockOffsetE12/1000, 9, 12)
	}
	if err := ow.flushLine(buf); err != nil {
		return err
	}

	// observation lines, five fields each
	cur = 0
	vi := 0
	for cur < len(rec.Presence) {
		letter := rec.Presence[cur]
		nObs := ow.hdr.NumObs(letter)
		bitmap := rec.Presence[cur+2 : cur+2+(nObs+7)/8]
		buf = ow.line[:0]
		for i := 0; i < nObs; i++ {
			if i > 0 && i%5 == 0 {
				if err := ow.flushLine(buf); err != nil {
					return err
				}
				buf = ow.line[:0]
			}
			if bitmap[i/8]&(1<<(i%8)) != 0 {
				buf = pad(buf, fieldWidth*(i%5))
				buf = appendFixed(buf, rec.Values[vi], 3, 14)
				buf = append(buf, rec.LLI[vi], rec.SSI[vi])
				vi++
			}
		}
		if err := ow.flushLine(buf); err != nil {
			return err
		}
		cur += 2 + (nObs+7)/8
	}
	return nil
}

func (ow *ObsWriter) writeRecordV3(rec *Record) error {
	epo := rec.Epoch
	buf := append(ow.line[:0], '>')

	if epo.Date != 0 {
		buf = append(buf, ' ')
		buf = appendPad(buf, int(epo.Date/10000), 4)
		buf = appendPad(buf, int(epo.Date/100%100), 3)
		buf = appendPad(buf, int(epo.Date%100), 3)
		buf = appendPad(buf, int(epo.HourMin/100), 3)
		buf = appendPad(buf, int(epo.HourMin%100), 3)
		buf = appendFixed(buf, int64(epo.SecE7), 7, 11)
	} else {
		buf = append(buf, padSpaces[:28]...)
	}
	buf = append(buf, ' ', ' ', epo.Flag)
	buf = appendPad(buf, int(epo.NumSat), 3)

	if epo.IsEvent() {
		if err := ow.flushLine(buf); err != nil {
			return err
		}
		_, err := ow.w.Write(rec.Event)
		return err
	}

	if epo.ClockOffsetE12 != 0 {
		buf = pad(buf, 41)
		buf = appendFixed(buf, epo.ClockOffsetE12, 12, 15)
	}
	if err := ow.flushLine(buf); err != nil {
		return err
	}

	cur := 0
	vi := 0
	for cur < len(rec.Presence) {
		letter, num := rec.Presence[cur], rec.Presence[cur+1]
		nObs := ow.hdr.NumObs(letter)
		bitmap := rec.Presence[cur+2 : cur+2+(nObs+7)/8]
		buf = append(ow.line[:0], letter, '0'+num/10, '0'+num%10)
		for i := 0; i < nObs; i++ {
			if bitmap[i/8]&(1<<(i%8)) != 0 {
				buf = pad(buf, 3+fieldWidth*i)
				buf = appendFixed(buf, rec.Values[vi], 3, 14)
				buf = append(buf, rec.LLI[vi], rec.SSI[vi])
				vi++
			}
		}
		if err := ow.flushLine(buf); err != nil {
			return err
		}
		cur += 2 + (nObs+7)/8
	}
	return nil
}

// flushLine trims trailing blanks, appends the terminator and writes.
func (ow *ObsWriter) flushLine(buf []byte) error {
	ow.line = buf // keep the grown capacity
	out := bytes.TrimRight(buf, " ")
	out = append(out, '\n')
	_, err := ow.w.Write(out)
	return err
}

func countSats(hdr *ObsHeader, rec *Record) int {
	n := 0
	for cur := 0; cur < len(rec.Presence); n++ {
		cur += 2 + (hdr.NumObs(rec.Presence[cur])+7)/8
	}
	return n
}

// pad extends buf with spaces up to column n.
func pad(buf []byte, n int) []byte {
	for len(buf) < n {
		buf = append(buf, ' ')
	}
	return buf
}

// appendPad renders v space-padded to width.
func appendPad(buf []byte, v, width int) []byte {
	start := len(buf)
	buf = appendUintDigits(buf, int64(v))
	return rightJustify(buf, start, width)
}

// appendZero2 renders v as exactly two digits.
func appendZero2(buf []byte, v int) []byte {
	return append(buf, '0'+byte(v/10), '0'+byte(v%10))
}

// appendFixed renders the e-notation integer v as a fixed-point number with
// frac fractional digits, space-padded to width. The integer part is always
// printed, zero included.
func appendFixed(buf []byte, v int64, frac, width int) []byte {
	start := len(buf)
	neg := v < 0
	if neg {
		v = -v
	}
	pow := int64(1)
	for i := 0; i < frac; i++ {
		pow *= 10
	}
	if neg {
		buf = append(buf, '-')
	}
	buf = appendUintDigits(buf, v/pow)
	buf = append(buf, '.')
	fracPart := v % pow
	for p := pow / 10; p > 0; p /= 10 {
		buf = append(buf, '0'+byte(fracPart/p%10))
	}
	return rightJustify(buf, start, width)
}

func appendUintDigits(buf []byte, v int64) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	start := len(buf)
	for v > 0 {
		buf = append(buf, '0'+byte(v%10))
		v /= 10
	}
	// digits came out reversed
	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}

// rightJustify pads the field written since start out to width.
func rightJustify(buf []byte, start, width int) []byte {
	n := len(buf) - start
	if n >= width {
		return buf
	}
	shift := width - n
	for i := 0; i < shift; i++ {
		buf = append(buf, ' ')
	}
	copy(buf[start+shift:], buf[start:start+n])
	for i := 0; i < shift; i++ {
		buf[start+i] = ' '
	}
	return buf
}
