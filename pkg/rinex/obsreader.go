package rinex

import (
	"fmt"
	"io"
	"runtime"

	"github.com/de-bkg/gosoc/pkg/gnss"
	"github.com/de-bkg/gosoc/pkg/stream"
)

// fieldWidth is the byte width of one observation field: an F14.3 value,
// one LLI byte and one SSI byte.
const fieldWidth = 16

// ObsReader decodes observation records from a RINEX text stream.
// Each Next call advances by exactly one record; the decoded record is
// exposed by borrow through Record and overwritten by the following call.
type ObsReader struct {
	// Header is valid after NewObsReader.
	Header ObsHeader

	ls      *lineScanner
	src     stream.Source
	rec     Record
	satList []byte // scratch: 3 bytes per satellite of the current epoch
	err     error
	failLoc int // reader source line of the first failure
}

// NewObsReader creates a reader for RINEX observation data and decodes the
// header. The source is owned by the reader; Close releases it.
func NewObsReader(src stream.Source) (*ObsReader, error) {
	r := &ObsReader{ls: &lineScanner{src: src}, src: src}
	var err error
	r.Header, err = readHeader(r.ls)
	if err != nil {
		src.Close()
		return nil, err
	}
	return r, nil
}

// Next reads the next record. It returns false at the end of the input or
// on error; Err tells the two apart. After an error the reader only
// supports Close.
func (r *ObsReader) Next() bool {
	if r.err != nil {
		return false
	}
	for {
		line, err := r.ls.next()
		if err == io.EOF {
			return false
		}
		if err != nil {
			return r.fail(err)
		}
		if blank(line) {
			continue
		}
		if r.Header.Major == 2 {
			return r.readRecordV2(line)
		}
		return r.readRecordV3(line)
	}
}

// Record returns the record decoded by the last successful Next. Its
// buffers are invalidated by the following Next call.
func (r *ObsReader) Record() *Record {
	return &r.rec
}

// Err returns the error that stopped the reader, if any.
func (r *ObsReader) Err() error {
	return r.err
}

// FailLine reports the reader source location recorded at the first
// failure; zero when no failure occurred. It is diagnostic only.
func (r *ObsReader) FailLine() int {
	return r.failLoc
}

// InputLine reports the current line number of the input text.
func (r *ObsReader) InputLine() int {
	return r.ls.num
}

// Close releases the underlying source.
func (r *ObsReader) Close() error {
	return r.src.Close()
}

// fail records the first error and the reader line that raised it.
func (r *ObsReader) fail(err error) bool {
	if r.err == nil {
		r.err = err
		if _, _, loc, ok := runtime.Caller(1); ok {
			r.failLoc = loc
		}
	}
	return false
}

func (r *ObsReader) readRecordV2(line []byte) bool {
	r.rec.reset()
	epo := &r.rec.Epoch

	epo.Flag = colByte(line, 28)
	if epo.Flag < '0' || epo.Flag > '6' {
		return r.fail(fmt.Errorf("%w: bad epoch flag %q in line %d", ErrBadFormat, epo.Flag, r.ls.num))
	}

	nSats, err := ParseUint(slice(line, 29, 32))
	if err != nil {
		return r.fail(fmt.Errorf("line %d: %w", r.ls.num, err))
	}
	epo.NumSat = int32(nSats)

	hasEpoch := !blank(slice(line, 1, 26))
	if hasEpoch {
		if !r.parseEpochV2(line, epo) {
			return false
		}
	} else if !epo.IsEvent() {
		return r.fail(fmt.Errorf("%w: observation record without epoch in line %d", ErrBadFormat, r.ls.num))
	}

	if epo.IsEvent() {
		return r.readEventBody(int(nSats))
	}

	// receiver clock offset, optional
	if len(line) > 68 && !blank(slice(line, 68, 80)) {
		off, err := ParseFixed(slice(line, 68, 80), 9)
		if err != nil {
			return r.fail(fmt.Errorf("line %d: %w", r.ls.num, err))
		}
		epo.ClockOffsetE12 = off * 1000
	}

	// satellite list: 12 names per line, continuation lines as needed
	r.satList = r.satList[:0]
	for i := 0; i < int(nSats); i++ {
		if i > 0 && i%12 == 0 {
			if line, err = r.ls.next(); err != nil {
				return r.fail(fmt.Errorf("%w: satellite list truncated in line %d", ErrBadFormat, r.ls.num))
			}
		}
		name := col3(line, 32+3*(i%12))
		if name[0] == ' ' {
			name[0] = 'G'
		}
		r.satList = append(r.satList, name[:]...)
	}

	// per satellite: ceil(nObs/5) data lines
	for i := 0; i < int(nSats); i++ {
		if !r.readSatObsV2(r.satList[3*i : 3*i+3]) {
			return false
		}
	}
	return true
}

func (r *ObsReader) parseEpochV2(line []byte, epo *Epoch) bool {
	year, err := ParseUint(slice(line, 1, 3))
	if err == nil {
		if year < 80 {
			year += 2000
		} else {
			year += 1900
		}
	}
	month, err2 := ParseUint(slice(line, 4, 6))
	day, err3 := ParseUint(slice(line, 7, 9))
	hour, err4 := ParseUint(slice(line, 10, 12))
	min, err5 := ParseUint(slice(line, 13, 15))
	sec, err6 := ParseFixed(slice(line, 15, 26), 7)
	for _, e := range []error{err, err2, err3, err4, err5, err6} {
		if e != nil {
			return r.fail(fmt.Errorf("line %d: %w", r.ls.num, e))
		}
	}
	epo.Date = int32(year*10000 + month*100 + day)
	epo.HourMin = int16(hour*100 + min)
	epo.SecE7 = int32(sec)
	return true
}

func (r *ObsReader) readSatObsV2(name []byte) bool {
	nObs := r.Header.NumObs(name[0])
	if nObs == 0 {
		return r.fail(fmt.Errorf("%w: no observation types for system %q", ErrBadFormat, name[0]))
	}
	entry := r.beginPresence(name)

	var line []byte
	var err error
	for i := 0; i < nObs; i++ {
		if i%5 == 0 {
			if line, err = r.ls.next(); err != nil {
				return r.fail(fmt.Errorf("%w: observations truncated in line %d", ErrBadFormat, r.ls.num))
			}
		}
		if !r.readField(line, fieldWidth*(i%5), entry, i) {
			return false
		}
	}
	return true
}

func (r *ObsReader) readRecordV3(line []byte) bool {
	r.rec.reset()
	epo := &r.rec.Epoch

	if line[0] != '>' {
		return r.fail(fmt.Errorf("%w: record does not start with an epoch line in line %d: %q", ErrBadFormat, r.ls.num, head(line, 16)))
	}

	epo.Flag = colByte(line, 31)
	if epo.Flag < '0' || epo.Flag > '6' {
		return r.fail(fmt.Errorf("%w: bad epoch flag %q in line %d", ErrBadFormat, epo.Flag, r.ls.num))
	}

	nSats, err := ParseUint(slice(line, 32, 35))
	if err != nil {
		return r.fail(fmt.Errorf("line %d: %w", r.ls.num, err))
	}
	epo.NumSat = int32(nSats)

	hasEpoch := !blank(slice(line, 2, 29))
	if hasEpoch {
		if !r.parseEpochV3(line, epo) {
			return false
		}
	} else if !epo.IsEvent() {
		return r.fail(fmt.Errorf("%w: observation record without epoch in line %d", ErrBadFormat, r.ls.num))
	}

	if epo.IsEvent() {
		return r.readEventBody(int(nSats))
	}

	if len(line) > 41 && !blank(slice(line, 41, 56)) {
		off, err := ParseFixed(slice(line, 41, 56), 12)
		if err != nil {
			return r.fail(fmt.Errorf("line %d: %w", r.ls.num, err))
		}
		epo.ClockOffsetE12 = off
	}

	for i := 0; i < int(nSats); i++ {
		if !r.readSatObsV3() {
			return false
		}
	}
	return true
}

func (r *ObsReader) parseEpochV3(line []byte, epo *Epoch) bool {
	year, err := ParseUint(slice(line, 2, 6))
	month, err2 := ParseUint(slice(line, 7, 9))
	day, err3 := ParseUint(slice(line, 10, 12))
	hour, err4 := ParseUint(slice(line, 13, 15))
	min, err5 := ParseUint(slice(line, 16, 18))
	sec, err6 := ParseFixed(slice(line, 18, 29), 7)
	for _, e := range []error{err, err2, err3, err4, err5, err6} {
		if e != nil {
			return r.fail(fmt.Errorf("line %d: %w", r.ls.num, e))
		}
	}
	epo.Date = int32(year*10000 + month*100 + day)
	epo.HourMin = int16(hour*100 + min)
	epo.SecE7 = int32(sec)
	return true
}

func (r *ObsReader) readSatObsV3() bool {
	line, err := r.ls.next()
	if err != nil {
		return r.fail(fmt.Errorf("%w: observations truncated in line %d", ErrBadFormat, r.ls.num))
	}
	if len(line) < 3 {
		return r.fail(fmt.Errorf("%w: short satellite line %d", ErrBadFormat, r.ls.num))
	}

	name := col3(line, 0)
	if name[0] == ' ' {
		name[0] = 'G'
	}
	nObs := r.Header.NumObs(name[0])
	if nObs == 0 {
		return r.fail(fmt.Errorf("%w: no observation types for system %q in line %d", ErrBadFormat, name[0], r.ls.num))
	}
	entry := r.beginPresence(name[:])

	for i := 0; i < nObs; i++ {
		pos := 3 + fieldWidth*i
		if pos >= len(line) {
			break // short line: remaining codes not observed
		}
		if !r.readField(line, pos, entry, i) {
			return false
		}
	}
	return true
}

// beginPresence appends a presence entry for the named satellite and
// returns the offset of its bitmap bytes.
func (r *ObsReader) beginPresence(name []byte) int {
	nObs := r.Header.NumObs(name[0])
	num := byte(0)
	for _, c := range name[1:3] {
		if c != ' ' {
			num = num*10 + (c - '0')
		} else {
			num *= 10
		}
	}
	r.rec.Presence = append(r.rec.Presence, name[0], num)
	entry := len(r.rec.Presence)
	for i := 0; i < (nObs+7)/8; i++ {
		r.rec.Presence = append(r.rec.Presence, 0)
	}
	return entry
}

// readField decodes the 16-byte observation field at pos; a wholly blank or
// absent field clears the presence bit and stores nothing.
func (r *ObsReader) readField(line []byte, pos, entry, bit int) bool {
	field := slice(line, pos, pos+fieldWidth)
	if blank(field) {
		return true
	}
	val, err := ParseFixed(field[:14], 3)
	if err != nil {
		return r.fail(fmt.Errorf("line %d: %w", r.ls.num, err))
	}
	r.rec.Presence[entry+bit/8] |= 1 << (bit % 8)
	r.rec.Values = append(r.rec.Values, val)
	r.rec.LLI = append(r.rec.LLI, colByte(line, pos+14))
	r.rec.SSI = append(r.rec.SSI, colByte(line, pos+15))
	return true
}

// readEventBody copies n lines verbatim into the record.
func (r *ObsReader) readEventBody(n int) bool {
	for i := 0; i < n; i++ {
		line, err := r.ls.next()
		if err != nil {
			return r.fail(fmt.Errorf("%w: event body truncated in line %d", ErrBadFormat, r.ls.num))
		}
		r.rec.Event = append(r.rec.Event, line...)
		r.rec.Event = append(r.rec.Event, '\n')
	}
	return true
}

// slice returns line[from:to], space-padded past the line end. Widths up to
// 32 bytes cover every fixed field the reader touches.
var padSpaces = func() (p [32]byte) {
	for i := range p {
		p[i] = ' '
	}
	return
}()

func slice(line []byte, from, to int) []byte {
	if from >= len(line) {
		return padSpaces[:to-from]
	}
	if to <= len(line) {
		return line[from:to]
	}
	// tail is short: copy into a padded scratch
	var buf [32]byte
	copy(buf[:], padSpaces[:])
	copy(buf[:], line[from:])
	return buf[:to-from]
}

func colByte(line []byte, i int) byte {
	if i < len(line) {
		return line[i]
	}
	return ' '
}

// PRNOf decodes the satellite name at a presence entry.
func PRNOf(sysLetter, num byte) (gnss.PRN, error) {
	return gnss.ParsePRN(string([]byte{sysLetter, '0' + num/10, '0' + num%10}))
}
