// Package rinex provides a streaming parser and writer for RINEX 2.x/3.x
// observation data. The parser is pull-style: it decodes one record per
// call from a stream.Source window and exposes the decoded epoch, the
// per-satellite signal presence bitmaps and the flattened value and
// indicator arrays. Values are kept as exact integers (the F14.3 field
// times 1000); no float conversion happens on the read path.
package rinex

import "errors"

// errors surfaced by the parser
var (
	// ErrNotObservation is returned when the header is valid RINEX but not
	// an observation file.
	ErrNotObservation = errors.New("rinex: not an observation file")

	// ErrUnknownVersion is returned when the version field is neither 2.x
	// nor 3.x.
	ErrUnknownVersion = errors.New("rinex: unknown RINEX version")

	// ErrBadFormat is returned for any structural violation in the text.
	ErrBadFormat = errors.New("rinex: bad format")
)

// ObsCode is a RINEX observation code: two characters for 2.x files, three
// for 3.x, NUL-padded to the fixed slot.
type ObsCode [3]byte

// CodeFromString returns the NUL-padded ObsCode for s.
func CodeFromString(s string) ObsCode {
	var c ObsCode
	copy(c[:], s)
	return c
}

func (c ObsCode) String() string {
	n := len(c)
	for n > 0 && c[n-1] == 0 {
		n--
	}
	return string(c[:n])
}

// Epoch is the timestamp and record header of one RINEX data record.
type Epoch struct {
	Date           int32 // yyyymmdd
	HourMin        int16 // hhmm
	SecE7          int32 // seconds x 1e7
	Flag           byte  // '0'..'6'
	NumSat         int32 // satellite count, or special-record count for events
	ClockOffsetE12 int64 // receiver clock offset, seconds x 1e12
}

// IsEvent reports whether the record is a special event ('2'..'5') rather
// than an observation epoch ('0', '1', '6').
func (e Epoch) IsEvent() bool {
	return e.Flag >= '2' && e.Flag <= '5'
}

// Before reports whether e is strictly earlier than other.
func (e Epoch) Before(other Epoch) bool {
	if e.Date != other.Date {
		return e.Date < other.Date
	}
	if e.HourMin != other.HourMin {
		return e.HourMin < other.HourMin
	}
	return e.SecE7 < other.SecE7
}

// Record is the output of one ObsReader.Next call. Its buffers are owned by
// the reader and overwritten by the next call.
type Record struct {
	Epoch Epoch

	// Presence holds one entry per observed satellite: the system letter,
	// the satellite number, then ceil(nObs/8) bitmap bytes, LSB-first, one
	// bit per observation code declared for the satellite's system.
	Presence []byte

	// Values, LLI and SSI run parallel over all set presence bits, in
	// satellite then code order. Values are the F14.3 field times 1000.
	Values []int64
	LLI    []byte
	SSI    []byte

	// Event holds the verbatim newline-terminated body lines of a special
	// event record; it is empty for observation records.
	Event []byte
}

func (rec *Record) reset() {
	rec.Presence = rec.Presence[:0]
	rec.Values = rec.Values[:0]
	rec.LLI = rec.LLI[:0]
	rec.SSI = rec.SSI[:0]
	rec.Event = rec.Event[:0]
	rec.Epoch = Epoch{}
}
