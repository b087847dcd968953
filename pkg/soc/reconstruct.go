package soc

import (
	"fmt"

	"github.com/de-bkg/gosoc/pkg/rinex"
)

// sigCursor walks one signal in step with the epoch index.
type sigCursor struct {
	code int
	it   *ObsIter
	lli  []byte
	ssi  []byte
	runs []EpochRun
	run  int // current run index
	read int // values consumed
}

// presentAt reports whether the signal covers the epoch index.
func (sc *sigCursor) presentAt(idx int) bool {
	for sc.run < len(sc.runs) && idx >= sc.runs[sc.run].Start+sc.runs[sc.run].Count {
		sc.run++
	}
	return sc.run < len(sc.runs) && idx >= sc.runs[sc.run].Start
}

// EachRecord reconstructs the observation and event records of the
// container and passes each to fn. The record is reused between calls,
// mirroring the text reader's borrow contract. Observation epochs come in
// time order and events in file order: a timestamped event is delivered
// just before the first epoch later than it. An event without a timestamp,
// and every event after it in the file, is delivered after the last epoch.
func (r *Reader) EachRecord(fn func(*rinex.Record) error) error {
	epochs, err := r.Epochs()
	if err != nil {
		if len(r.index[tagEVTF]) == 0 && len(r.index[tagEPOC]) == 0 {
			return nil // empty container
		}
		return err
	}
	sats, err := r.Satellites()
	if err != nil {
		return err
	}

	events, err := r.allEvents()
	if err != nil {
		return err
	}

	// open one cursor per stored signal
	cursors := make([][]sigCursor, len(sats))
	for i := range sats {
		sat := &sats[i]
		for code := range sat.codeOffsets {
			if sat.codeOffsets[code] == 0 {
				continue
			}
			it, err := r.openObsAt(sat.codeOffsets[code])
			if err != nil {
				return err
			}
			lli, ssi, err := it.Indicators()
			if err != nil {
				return err
			}
			total := 0
			for _, run := range sat.Runs(code) {
				total += run.Count
			}
			if total != it.NumValues() {
				return fmt.Errorf("%w: %s presence covers %d epochs, chunk has %d values",
					ErrCorrupt, sat.Name, total, it.NumValues())
			}
			cursors[i] = append(cursors[i], sigCursor{
				code: code, it: it, lli: lli, ssi: ssi, runs: sat.Runs(code),
			})
		}
	}

	var rec rinex.Record
	evt := 0
	emitEvent := func(e *Event) error {
		rec = rinex.Record{Epoch: e.Epoch, Event: e.Body}
		return fn(&rec)
	}

	for idx, epo := range epochs {
		for evt < len(events) && events[evt].Epoch.Date != 0 && events[evt].Epoch.Before(epo) {
			if err := emitEvent(&events[evt]); err != nil {
				return err
			}
			evt++
		}

		rec = rinex.Record{Epoch: epo}
		nSat := 0
		for i := range sats {
			sat := &sats[i]
			nObs := r.hdr.NumObs(sat.Name[0])
			entry := -1
			for ci := range cursors[i] {
				sc := &cursors[i][ci]
				if !sc.presentAt(idx) {
					continue
				}
				if entry < 0 {
					num := byte((sat.Name[1]-'0')*10 + sat.Name[2] - '0')
					rec.Presence = append(rec.Presence, sat.Name[0], num)
					entry = len(rec.Presence)
					for k := 0; k < (nObs+7)/8; k++ {
						rec.Presence = append(rec.Presence, 0)
					}
					nSat++
				}
				v, err := sc.it.NextValue()
				if err != nil {
					return err
				}
				rec.Presence[entry+sc.code/8] |= 1 << (sc.code % 8)
				rec.Values = append(rec.Values, v)
				rec.LLI = append(rec.LLI, sc.lli[sc.read])
				rec.SSI = append(rec.SSI, sc.ssi[sc.read])
				sc.read++
			}
		}
		rec.Epoch.NumSat = int32(nSat)
		if err := fn(&rec); err != nil {
			return err
		}
	}

	for ; evt < len(events); evt++ {
		if err := emitEvent(&events[evt]); err != nil {
			return err
		}
	}
	return nil
}

// allEvents decodes every EVTF chunk in file order.
func (r *Reader) allEvents() ([]Event, error) {
	offs := r.index[tagEVTF]
	events := make([]Event, 0, len(offs))
	for _, off := range offs {
		c, err := readChunk(r.data, off, r.chunkDigestID)
		if err != nil {
			return nil, err
		}
		e, err := decodeEvent(c.payload)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, nil
}
