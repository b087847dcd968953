package soc

import (
	"bytes"
	"fmt"

	"github.com/de-bkg/gosoc/pkg/leb128"
	"github.com/de-bkg/gosoc/pkg/rinex"
	"github.com/de-bkg/gosoc/pkg/stream"
)

// Reader reads a Succinct Observation Container. The SRNX and RHDR prefix
// is validated on open; other chunks are located by forward scan, or
// through the SDIR directory when the file carries one, and decoded on
// demand.
type Reader struct {
	src  stream.Source
	data []byte

	hdr           rinex.ObsHeader
	major, minor  int
	chunkDigestID int
	fileDigestID  int

	bodyStart int // offset of the first chunk after RHDR
	chunksEnd int // offset just past the last chunk

	index map[string][]int

	epochs       []rinex.Epoch
	epochsLoaded bool
	sats         []Satellite
	satsLoaded   bool
	evtPos       int
}

// Satellite is a decoded SATE entry: the satellite name and, per declared
// observation code of its system, the SOCD chunk location and the epoch
// presence runs.
type Satellite struct {
	Name string // e.g. "G05"

	codeOffsets []int        // absolute SOCD offsets, 0 when never observed
	presence    [][]EpochRun // per code
}

// EpochRun is a maximal span of epoch indices during which a signal was
// observed.
type EpochRun struct {
	Start, Count int
}

// Runs returns the presence runs for a code index.
func (s *Satellite) Runs(code int) []EpochRun {
	if code < 0 || code >= len(s.presence) {
		return nil
	}
	return s.presence[code]
}

// Observed reports whether the code index has any data.
func (s *Satellite) Observed(code int) bool {
	return code >= 0 && code < len(s.codeOffsets) && s.codeOffsets[code] != 0
}

// Event is a decoded EVTF chunk: a special event record from the source
// text. Date and time are zero when the event carried no timestamp.
type Event struct {
	Epoch rinex.Epoch
	Body  []byte
}

// Open opens a container file.
func Open(path string) (*Reader, error) {
	src, err := stream.OpenFile(path)
	if err != nil {
		return nil, err
	}
	win, err := src.Advance(0, 0)
	if err != nil {
		src.Close()
		return nil, err
	}
	r, err := NewReader(win)
	if err != nil {
		src.Close()
		return nil, err
	}
	r.src = src
	return r, nil
}

// NewReader reads a container from an in-memory image.
func NewReader(data []byte) (*Reader, error) {
	r := &Reader{data: data, index: map[string][]int{}}
	if err := r.validatePrefix(); err != nil {
		return nil, err
	}
	if err := r.locateChunks(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the underlying source.
func (r *Reader) Close() error {
	r.data = nil
	if r.src != nil {
		return r.src.Close()
	}
	return nil
}

// Header returns the embedded RINEX observation header.
func (r *Reader) Header() *rinex.ObsHeader {
	return &r.hdr
}

// Version returns the container format version.
func (r *Reader) Version() (major, minor int) {
	return r.major, r.minor
}

// validatePrefix decodes SRNX and RHDR, which must open the file in that
// order.
func (r *Reader) validatePrefix() error {
	data := r.data
	if len(data) < 5 || string(data[:4]) != tagSRNX {
		return fmt.Errorf("%w: missing SRNX chunk", ErrCorrupt)
	}
	plen, n := leb128.Uint(data[4:])
	if n == 0 || plen > uint64(len(data)-4-n) {
		return fmt.Errorf("%w: bad SRNX length", ErrCorrupt)
	}
	payload := data[4+n : 4+n+int(plen)]

	var vals [4]uint64
	rest := payload
	for i := range vals {
		var ok bool
		if vals[i], rest, ok = takeUint(rest); !ok {
			return fmt.Errorf("%w: truncated SRNX payload", ErrCorrupt)
		}
	}
	r.major, r.minor = int(vals[0]), int(vals[1])
	r.chunkDigestID, r.fileDigestID = int(vals[2]), int(vals[3])
	if r.major != MajorVersion {
		return fmt.Errorf("%w: %d", ErrBadMajor, r.major)
	}
	if digestSize(r.chunkDigestID) < 0 || digestSize(r.fileDigestID) < 0 {
		return fmt.Errorf("%w: reserved digest id", ErrCorrupt)
	}

	var sdirOff uint64
	if len(rest) > 0 {
		var ok bool
		if sdirOff, rest, ok = takeUint(rest); !ok {
			return fmt.Errorf("%w: bad SDIR offset", ErrCorrupt)
		}
	}
	_ = rest // padding

	// re-walk SRNX with the digest now known
	srnx, err := readChunk(data, 0, r.chunkDigestID)
	if err != nil {
		return err
	}

	rhdr, err := readChunk(data, srnx.end, r.chunkDigestID)
	if err != nil {
		return err
	}
	if rhdr.tag != tagRHDR {
		return fmt.Errorf("%w: second chunk is %s, want RHDR", ErrCorrupt, rhdr.tag)
	}
	hdr, err := rinex.ParseHeader(rhdr.payload)
	if err != nil {
		return fmt.Errorf("%w: embedded header: %v", ErrCorrupt, err)
	}
	r.hdr = hdr
	r.bodyStart = rhdr.end

	r.chunksEnd = len(data) - digestSize(r.fileDigestID)
	if r.chunksEnd < r.bodyStart {
		return fmt.Errorf("%w: file digest overlaps chunks", ErrCorrupt)
	}
	if sdirOff > 0 {
		if sdirOff >= uint64(r.chunksEnd) {
			return fmt.Errorf("%w: SDIR offset out of range", ErrCorrupt)
		}
		r.index[tagSDIR] = []int{int(sdirOff)}
	}
	return nil
}

// locateChunks builds the tag index, from SDIR when present, otherwise by
// a forward scan; it also verifies the file digest and the chunk ordering
// rules.
func (r *Reader) locateChunks() error {
	if r.fileDigestID != DigestNone {
		want := r.data[r.chunksEnd:]
		got := digestSum(nil, r.fileDigestID, r.data[:r.chunksEnd])
		if !bytes.Equal(want, got) {
			return fmt.Errorf("%w: file digest mismatch", ErrCorrupt)
		}
	}

	if sdir, ok := r.index[tagSDIR]; ok {
		if err := r.loadDirectory(sdir[0]); err != nil {
			return err
		}
	} else {
		off := r.bodyStart
		for off < r.chunksEnd {
			c, err := readChunk(r.data, off, r.chunkDigestID)
			if err != nil {
				return err
			}
			r.index[c.tag] = append(r.index[c.tag], off)
			off = c.end
		}
		if off != r.chunksEnd {
			return fmt.Errorf("%w: trailing bytes after last chunk", ErrCorrupt)
		}
	}

	if len(r.index[tagEPOC]) > 1 || len(r.index[tagSDIR]) > 1 {
		return fmt.Errorf("%w: duplicate singleton chunk", ErrCorrupt)
	}
	if len(r.index[tagEPOC]) == 0 {
		for _, tag := range []string{tagEVTF, tagSATE, tagSOCD} {
			if len(r.index[tag]) > 0 {
				return fmt.Errorf("%w: %s chunk without EPOC", ErrCorrupt, tag)
			}
		}
	}
	return nil
}

// loadDirectory reads the SDIR chunk: a count followed by tag/offset pairs
// for every chunk after RHDR.
func (r *Reader) loadDirectory(off int) error {
	c, err := readChunk(r.data, off, r.chunkDigestID)
	if err != nil {
		return err
	}
	if c.tag != tagSDIR {
		return fmt.Errorf("%w: SDIR offset points at %s", ErrCorrupt, c.tag)
	}
	count, buf, ok := takeUint(c.payload)
	if !ok {
		return fmt.Errorf("%w: bad SDIR count", ErrCorrupt)
	}
	for i := uint64(0); i < count; i++ {
		if len(buf) < 4 {
			return fmt.Errorf("%w: truncated SDIR entry", ErrCorrupt)
		}
		tag := string(buf[:4])
		var entryOff uint64
		if entryOff, buf, ok = takeUint(buf[4:]); !ok {
			return fmt.Errorf("%w: truncated SDIR entry", ErrCorrupt)
		}
		if entryOff >= uint64(r.chunksEnd) {
			return fmt.Errorf("%w: SDIR entry out of range", ErrCorrupt)
		}
		if tag != tagSDIR {
			r.index[tag] = append(r.index[tag], int(entryOff))
		}
	}
	return nil
}

// Epochs decodes the EPOC chunk. The returned slice is owned by the reader.
func (r *Reader) Epochs() ([]rinex.Epoch, error) {
	if r.data == nil {
		return nil, ErrBadState
	}
	if r.epochsLoaded {
		return r.epochs, nil
	}
	offs := r.index[tagEPOC]
	if len(offs) == 0 {
		return nil, fmt.Errorf("%w: EPOC", ErrNoChunk)
	}
	c, err := readChunk(r.data, offs[0], r.chunkDigestID)
	if err != nil {
		return nil, err
	}
	epochs, err := decodeEpochs(c.payload)
	if err != nil {
		return nil, err
	}
	r.epochs, r.epochsLoaded = epochs, true
	return epochs, nil
}

// Satellites decodes all SATE chunks. The returned slice is owned by the
// reader.
func (r *Reader) Satellites() ([]Satellite, error) {
	if r.data == nil {
		return nil, ErrBadState
	}
	if r.satsLoaded {
		return r.sats, nil
	}
	seen := map[string]bool{}
	sats := make([]Satellite, 0, len(r.index[tagSATE]))
	for _, off := range r.index[tagSATE] {
		c, err := readChunk(r.data, off, r.chunkDigestID)
		if err != nil {
			return nil, err
		}
		sat, err := r.decodeSatellite(c)
		if err != nil {
			return nil, err
		}
		if seen[sat.Name] {
			return nil, fmt.Errorf("%w: duplicate satellite %s", ErrCorrupt, sat.Name)
		}
		seen[sat.Name] = true
		sats = append(sats, sat)
	}
	r.sats, r.satsLoaded = sats, true
	return sats, nil
}

func (r *Reader) decodeSatellite(c chunk) (Satellite, error) {
	var sat Satellite
	if len(c.payload) < 4 {
		return sat, fmt.Errorf("%w: short SATE payload", ErrCorrupt)
	}
	sat.Name = string(c.payload[:3])
	nObs := r.hdr.NumObs(c.payload[0])
	if nObs == 0 {
		return sat, fmt.Errorf("%w: %q", ErrUnknownSystem, c.payload[0])
	}

	buf := c.payload[4:]
	sat.codeOffsets = make([]int, nObs)
	for i := 0; i < nObs; i++ {
		rel, n := leb128.Int(buf)
		if n == 0 {
			return sat, fmt.Errorf("%w: truncated SATE offsets for %s", ErrCorrupt, sat.Name)
		}
		buf = buf[n:]
		if rel != 0 {
			abs := c.start + int(rel)
			if abs < 0 || abs >= r.chunksEnd {
				return sat, fmt.Errorf("%w: SATE offset out of range for %s", ErrCorrupt, sat.Name)
			}
			sat.codeOffsets[i] = abs
		}
	}

	sat.presence = make([][]EpochRun, nObs)
	for i := 0; i < nObs; i++ {
		if sat.codeOffsets[i] == 0 {
			continue
		}
		nRuns, rest, ok := takeUint(buf)
		if !ok {
			return sat, fmt.Errorf("%w: truncated SATE presence for %s", ErrCorrupt, sat.Name)
		}
		buf = rest
		runs := make([]EpochRun, 0, nRuns+1)
		pos := 0
		for k := uint64(0); k <= nRuns; k++ {
			gap, rest, ok := takeUint(buf)
			if !ok {
				return sat, fmt.Errorf("%w: truncated SATE presence for %s", ErrCorrupt, sat.Name)
			}
			count, rest2, ok := takeUint(rest)
			if !ok {
				return sat, fmt.Errorf("%w: truncated SATE presence for %s", ErrCorrupt, sat.Name)
			}
			buf = rest2
			pos += int(gap)
			runs = append(runs, EpochRun{Start: pos, Count: int(count) + 1})
			pos += int(count) + 1
		}
		sat.presence[i] = runs
	}
	return sat, nil
}

// NextEvent returns the next EVTF record in file order, or ErrEndOfData
// when no events remain.
func (r *Reader) NextEvent() (*Event, error) {
	if r.data == nil {
		return nil, ErrBadState
	}
	offs := r.index[tagEVTF]
	if r.evtPos >= len(offs) {
		return nil, ErrEndOfData
	}
	c, err := readChunk(r.data, offs[r.evtPos], r.chunkDigestID)
	if err != nil {
		return nil, err
	}
	r.evtPos++
	return decodeEvent(c.payload)
}

func decodeEvent(payload []byte) (*Event, error) {
	date, rest, ok := takeUint(payload)
	if !ok {
		return nil, fmt.Errorf("%w: truncated EVTF", ErrCorrupt)
	}
	tval, rest, ok := takeUint(rest)
	if !ok || len(rest) < 1 {
		return nil, fmt.Errorf("%w: truncated EVTF", ErrCorrupt)
	}
	flag := rest[0]
	body := rest[1:]
	if flag < '2' || flag > '5' {
		return nil, fmt.Errorf("%w: bad event flag %q", ErrCorrupt, flag)
	}

	evt := &Event{Body: body}
	evt.Epoch.Flag = flag
	evt.Epoch.Date = int32(date)
	if date != 0 {
		hh := tval / 100_000_000_000
		mm := tval / 1_000_000_000 % 100
		evt.Epoch.HourMin = int16(hh*100 + mm)
		evt.Epoch.SecE7 = int32(tval % 1_000_000_000)
	}
	evt.Epoch.NumSat = int32(bytes.Count(body, []byte{'\n'}))
	return evt, nil
}

// OpenObs opens the per-signal iterator for a satellite name and
// observation code.
func (r *Reader) OpenObs(name, code string) (*ObsIter, error) {
	if len(name) != 3 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSatellite, name)
	}
	want := rinex.CodeFromString(code)
	for i, c := range r.hdr.ObsTypes(name[0]) {
		if c == want {
			return r.OpenObsIndex(name, i)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCode, code)
}

// OpenObsIndex opens the per-signal iterator for a satellite name and the
// index of a code in its system's observation table.
func (r *Reader) OpenObsIndex(name string, code int) (*ObsIter, error) {
	if r.data == nil {
		return nil, ErrBadState
	}
	sats, err := r.Satellites()
	if err != nil {
		return nil, err
	}
	for i := range sats {
		if sats[i].Name == name {
			if code < 0 || code >= len(sats[i].codeOffsets) {
				return nil, fmt.Errorf("%w: index %d", ErrUnknownCode, code)
			}
			if sats[i].codeOffsets[code] == 0 {
				return nil, fmt.Errorf("%w: no data for %s code %d", ErrNoChunk, name, code)
			}
			return r.openObsAt(sats[i].codeOffsets[code])
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSatellite, name)
}

func (r *Reader) openObsAt(off int) (*ObsIter, error) {
	c, err := readChunk(r.data, off, r.chunkDigestID)
	if err != nil {
		return nil, err
	}
	if c.tag != tagSOCD {
		return nil, fmt.Errorf("%w: expected SOCD at offset %d, got %s", ErrCorrupt, off, c.tag)
	}
	return newObsIter(c.payload)
}

// ObsIter iterates one signal's values out of a SOCD chunk. Values are
// decoded in batches into a fixed 256 element buffer refilled on demand.
type ObsIter struct {
	name    [8]byte
	nValues int

	lliRaw []byte // indicator section: LLI then SSI blocks
	dec    *dataDecoder

	ring  [256]int64
	head  int
	avail int
	read  int // values handed out so far
}

func newObsIter(payload []byte) (*ObsIter, error) {
	if len(payload) < 9 {
		return nil, fmt.Errorf("%w: short SOCD payload", ErrCorrupt)
	}
	it := &ObsIter{}
	copy(it.name[:], payload[:8])
	nv, buf, ok := takeUint(payload[8:])
	if !ok {
		return nil, fmt.Errorf("%w: bad SOCD value count", ErrCorrupt)
	}
	it.nValues = int(nv) + 1
	it.lliRaw = buf

	// skip the two indicator blocks to reach the data section
	for i := 0; i < 2; i++ {
		blen, rest, ok := takeUint(buf)
		if !ok || blen > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: bad indicator block", ErrCorrupt)
		}
		buf = rest[blen:]
	}

	dec, err := newDataDecoder(buf, it.nValues)
	if err != nil {
		return nil, err
	}
	it.dec = dec
	return it, nil
}

// Name returns the 8-byte signal name stored in the chunk.
func (it *ObsIter) Name() string {
	return string(it.name[:])
}

// NumValues returns the total number of values in the signal.
func (it *ObsIter) NumValues() int {
	return it.nValues
}

// NextValue returns the next observation value (times 1000), or
// ErrEndOfData once the signal is exhausted.
func (it *ObsIter) NextValue() (int64, error) {
	if it.avail == 0 {
		if it.read == it.nValues {
			return 0, ErrEndOfData
		}
		n, err := it.dec.next(it.ring[:])
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, fmt.Errorf("%w: data section ends before all values", ErrCorrupt)
		}
		it.head, it.avail = 0, n
	}
	v := it.ring[it.head]
	it.head++
	it.avail--
	it.read++
	return v, nil
}

// Indicators decodes the LLI and SSI arrays for the whole signal.
func (it *ObsIter) Indicators() (lli, ssi []byte, err error) {
	lli, rest, err := decodeIndicators(it.lliRaw, it.nValues)
	if err != nil {
		return nil, nil, err
	}
	ssi, _, err = decodeIndicators(rest, it.nValues)
	if err != nil {
		return nil, nil, err
	}
	return lli, ssi, nil
}
