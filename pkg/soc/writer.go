package soc

import (
	"fmt"

	"github.com/de-bkg/gosoc/pkg/gnss"
	"github.com/de-bkg/gosoc/pkg/leb128"
	"github.com/de-bkg/gosoc/pkg/rinex"
	"github.com/go-playground/validator/v10"
)

// signalReserve is the per-signal capacity reserved up front: one day of
// 30-second epochs.
const signalReserve = 2880

// WriterOptions configure container emission.
type WriterOptions struct {
	// ChunkDigest and FileDigest name the digest guarding each chunk and
	// the whole file: "none", "crc32c" or "sha256".
	ChunkDigest string `validate:"omitempty,oneof=none crc32c sha256"`
	FileDigest  string `validate:"omitempty,oneof=none crc32c sha256"`

	// Directory adds an SDIR chunk with the offsets of all chunks after
	// RHDR.
	Directory bool
}

var validate = validator.New()

// Writer accumulates observation records and serializes them as a
// container. Signals are kept in a radix index on the system letter's low
// five bits, then the satellite number.
type Writer struct {
	hdr           *rinex.ObsHeader
	chunkDigestID int
	fileDigestID  int
	directory     bool

	epochs []rinex.Epoch
	events []Event
	sats   [32]*[100]*satAcc
}

type satAcc struct {
	name [3]byte
	sigs []sigAcc
}

type sigAcc struct {
	runs   []EpochRun
	values []int64
	lli    []byte
	ssi    []byte
}

// NewWriter creates a Writer for data described by hdr.
func NewWriter(hdr *rinex.ObsHeader, opts WriterOptions) (*Writer, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("soc: invalid writer options: %w", err)
	}
	return &Writer{
		hdr:           hdr,
		chunkDigestID: digestNames[opts.ChunkDigest],
		fileDigestID:  digestNames[opts.FileDigest],
		directory:     opts.Directory,
	}, nil
}

// AddRecord feeds one decoded RINEX record into the accumulators. Epochs
// must arrive in strictly increasing time order.
func (w *Writer) AddRecord(rec *rinex.Record) error {
	if rec.Epoch.IsEvent() {
		body := make([]byte, len(rec.Event))
		copy(body, rec.Event)
		w.events = append(w.events, Event{Epoch: rec.Epoch, Body: body})
		return nil
	}

	if n := len(w.epochs); n > 0 && !w.epochs[n-1].Before(rec.Epoch) {
		return fmt.Errorf("%w: epochs not strictly increasing", ErrBadState)
	}
	idx := len(w.epochs)
	w.epochs = append(w.epochs, rec.Epoch)

	cur, vi := 0, 0
	for cur < len(rec.Presence) {
		letter, num := rec.Presence[cur], rec.Presence[cur+1]
		nObs := w.hdr.NumObs(letter)
		if nObs == 0 {
			return fmt.Errorf("%w: %q", ErrUnknownSystem, letter)
		}
		sat, err := w.satFor(letter, num, nObs)
		if err != nil {
			return err
		}
		bitmap := rec.Presence[cur+2 : cur+2+(nObs+7)/8]
		for i := 0; i < nObs; i++ {
			if bitmap[i/8]&(1<<(i%8)) == 0 {
				continue
			}
			if vi >= len(rec.Values) {
				return fmt.Errorf("%w: presence bits exceed value count", ErrBadState)
			}
			sig := &sat.sigs[i]
			if n := len(sig.runs); n > 0 && sig.runs[n-1].Start+sig.runs[n-1].Count == idx {
				sig.runs[n-1].Count++
			} else {
				sig.runs = append(sig.runs, EpochRun{Start: idx, Count: 1})
			}
			sig.values = append(sig.values, rec.Values[vi])
			sig.lli = append(sig.lli, rec.LLI[vi])
			sig.ssi = append(sig.ssi, rec.SSI[vi])
			vi++
		}
		cur += 2 + (nObs+7)/8
	}
	if vi != len(rec.Values) {
		return fmt.Errorf("%w: %d values but %d presence bits", ErrBadState, len(rec.Values), vi)
	}
	return nil
}

func (w *Writer) satFor(letter, num byte, nObs int) (*satAcc, error) {
	if num > 99 {
		return nil, fmt.Errorf("%w: satellite number %d", ErrUnknownSatellite, num)
	}
	slot := gnss.SysIndex(letter)
	if w.sats[slot] == nil {
		w.sats[slot] = new([100]*satAcc)
	}
	sat := w.sats[slot][num]
	if sat == nil {
		sat = &satAcc{name: [3]byte{letter, '0' + num/10, '0' + num%10}}
		sat.sigs = make([]sigAcc, nObs)
		for i := range sat.sigs {
			sat.sigs[i].values = make([]int64, 0, signalReserve)
			sat.sigs[i].lli = make([]byte, 0, signalReserve)
			sat.sigs[i].ssi = make([]byte, 0, signalReserve)
		}
		w.sats[slot][num] = sat
	}
	return sat, nil
}

type dirEntry struct {
	tag string
	off int
}

// Bytes serializes the accumulated data into a complete container image.
func (w *Writer) Bytes() ([]byte, error) {
	// SRNX payload; the directory offset slot is patched once known
	payload := leb128.AppendUint(nil, MajorVersion)
	payload = leb128.AppendUint(payload, MinorVersion)
	payload = leb128.AppendUint(payload, uint64(w.chunkDigestID))
	payload = leb128.AppendUint(payload, uint64(w.fileDigestID))
	sdirSlot := len(payload)
	payload = leb128.AppendUintFixed(payload, 0, 8)

	buf := appendChunk(nil, tagSRNX, payload, w.chunkDigestID)
	srnxEnd := len(buf)
	sdirPos := 4 + leb128.UintLen(uint64(len(payload))) + sdirSlot

	buf = appendChunk(buf, tagRHDR, w.hdr.Text, w.chunkDigestID)

	var dir []dirEntry
	mark := func(tag string, off int) {
		dir = append(dir, dirEntry{tag, off})
	}

	haveBody := len(w.epochs) > 0 || len(w.events) > 0
	if haveBody {
		mark(tagEPOC, len(buf))
		buf = appendChunk(buf, tagEPOC, encodeEpochs(nil, w.epochs), w.chunkDigestID)
	}

	for i := range w.events {
		evt := &w.events[i]
		p := leb128.AppendUint(nil, uint64(evt.Epoch.Date))
		if evt.Epoch.Date != 0 {
			p = leb128.AppendUint(p, timeField(evt.Epoch))
		} else {
			p = leb128.AppendUint(p, 0)
		}
		p = append(p, evt.Epoch.Flag)
		p = append(p, evt.Body...)
		mark(tagEVTF, len(buf))
		buf = appendChunk(buf, tagEVTF, p, w.chunkDigestID)
	}

	for slot := 0; slot < 32; slot++ {
		if w.sats[slot] == nil {
			continue
		}
		for num := 0; num < 100; num++ {
			sat := w.sats[slot][num]
			if sat == nil {
				continue
			}
			var err error
			if buf, err = w.appendSatellite(buf, sat, mark); err != nil {
				return nil, err
			}
		}
	}

	if w.directory {
		sdirOff := len(buf)
		p := leb128.AppendUint(nil, uint64(len(dir)))
		for _, e := range dir {
			p = append(p, e.tag...)
			p = leb128.AppendUint(p, uint64(e.off))
		}
		buf = appendChunk(buf, tagSDIR, p, w.chunkDigestID)

		// patch the SRNX slot and refresh its digest
		leb128.PutUintFixed(buf[sdirPos:sdirPos+8], uint64(sdirOff))
		if dsize := digestSize(w.chunkDigestID); dsize > 0 {
			sum := digestSum(nil, w.chunkDigestID, buf[:srnxEnd-dsize])
			copy(buf[srnxEnd-dsize:srnxEnd], sum)
		}
	}

	buf = digestSum(buf, w.fileDigestID, buf)
	return buf, nil
}

// appendSatellite emits the satellite's SOCD chunks followed by its SATE
// entry; SATE offsets are relative to the SATE tag, so they come out
// negative.
func (w *Writer) appendSatellite(buf []byte, sat *satAcc, mark func(string, int)) ([]byte, error) {
	offsets := make([]int, len(sat.sigs))
	codes := w.hdr.ObsTypes(sat.name[0])
	if len(codes) != len(sat.sigs) {
		return nil, fmt.Errorf("%w: observation table changed mid-write", ErrBadState)
	}

	for i := range sat.sigs {
		sig := &sat.sigs[i]
		if len(sig.values) == 0 {
			continue
		}
		offsets[i] = len(buf)
		mark(tagSOCD, len(buf))
		buf = appendChunk(buf, tagSOCD, socdPayload(sat.name, codes[i], sig), w.chunkDigestID)
	}

	sateOff := len(buf)
	p := append([]byte{}, sat.name[:]...)
	p = append(p, 0)
	for i := range offsets {
		if offsets[i] == 0 {
			p = leb128.AppendInt(p, 0)
		} else {
			p = leb128.AppendInt(p, int64(offsets[i]-sateOff))
		}
	}
	for i := range sat.sigs {
		if offsets[i] == 0 {
			continue
		}
		p = appendPresence(p, sat.sigs[i].runs)
	}
	mark(tagSATE, sateOff)
	return appendChunk(buf, tagSATE, p, w.chunkDigestID), nil
}

// appendPresence emits the run list as interleaved gap and length counts,
// starting with the gap before the first run.
func appendPresence(dst []byte, runs []EpochRun) []byte {
	dst = leb128.AppendUint(dst, uint64(len(runs)-1))
	pos := 0
	for _, run := range runs {
		dst = leb128.AppendUint(dst, uint64(run.Start-pos))
		dst = leb128.AppendUint(dst, uint64(run.Count-1))
		pos = run.Start + run.Count
	}
	return dst
}

// socdPayload serializes one signal: name, value count, indicator RLE and
// the delta-coded data section.
func socdPayload(name [3]byte, code rinex.ObsCode, sig *sigAcc) []byte {
	p := make([]byte, 0, 64+len(sig.values))
	p = append(p, name[:]...)
	p = append(p, code[:]...)
	p = append(p, 0, 0)
	p = leb128.AppendUint(p, uint64(len(sig.values)-1))
	p = appendIndicators(p, sig.lli)
	p = appendIndicators(p, sig.ssi)
	return appendDataSection(p, sig.values)
}

// appendDataSection picks the scale and differencing order and emits the
// residual blocks.
func appendDataSection(dst []byte, values []int64) []byte {
	scale := int64(0)
	for _, v := range values {
		scale = gcd64(scale, v)
	}
	if scale == 0 {
		scale = 1
	}

	scaled := make([]int64, len(values))
	for i, v := range values {
		scaled[i] = v / scale
	}

	// order selection: minimal encoded length, ties to the lower order
	var best []byte
	bestOrder := 0
	res := make([]int64, len(scaled))
	for order := 0; order <= maxOrder; order++ {
		integ := integrator{order: order}
		if order > 0 {
			integ.state[0] = scaled[0]
		}
		for i, v := range scaled {
			res[i] = integ.diff(v)
		}
		packed := packResiduals(nil, res)
		cost := len(packed) + initCost(order, scaled[0])
		if best == nil || cost < len(best)+initCost(bestOrder, scaled[0]) {
			best = packed
			bestOrder = order
		}
	}

	schema := uint64(bestOrder)
	if scale != 1 {
		schema |= 8
	}
	dst = leb128.AppendUint(dst, schema)
	if scale != 1 {
		dst = leb128.AppendUint(dst, uint64(scale*1000))
	}
	if bestOrder > 0 {
		dst = leb128.AppendInt(dst, scaled[0])
		for j := 1; j < bestOrder; j++ {
			dst = leb128.AppendInt(dst, 0)
		}
	}
	return append(dst, best...)
}

func initCost(order int, first int64) int {
	if order == 0 {
		return 0
	}
	return leb128.IntLen(first) + (order - 1)
}

func gcd64(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
