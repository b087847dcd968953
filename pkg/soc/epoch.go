package soc

import (
	"fmt"

	"github.com/de-bkg/gosoc/pkg/leb128"
	"github.com/de-bkg/gosoc/pkg/rinex"
)

// The EPOC chunk stores the observation epochs as spans: a start date and
// time, an interval and a tick count. Within a span the seconds advance by
// the interval; minutes and seconds roll over exactly when the new whole
// second value reaches 60. Leap-second epochs and day changes start a new
// span. Receiver clock offsets follow as value runs; the unspecified tail
// is zero.

const wholeMinuteE7 = 600_000_000

// timeField packs hour, minute and e7 seconds into the EPOC time value.
func timeField(e rinex.Epoch) uint64 {
	hh := uint64(e.HourMin / 100)
	mm := uint64(e.HourMin % 100)
	return hh*100_000_000_000 + mm*1_000_000_000 + uint64(e.SecE7)
}

// advanceTick moves e one interval forward the way the decoder does.
func advanceTick(e *rinex.Epoch, intervalE7 int64) {
	sec := int64(e.SecE7) + intervalE7
	if sec == wholeMinuteE7 {
		sec = 0
		mm := e.HourMin%100 + 1
		hh := e.HourMin / 100
		if mm == 60 {
			mm = 0
			hh++
		}
		e.HourMin = hh*100 + mm
	}
	e.SecE7 = int32(sec)
}

// encodeEpochs serializes the epoch list and clock offsets into an EPOC
// payload.
func encodeEpochs(dst []byte, epochs []rinex.Epoch) []byte {
	dst = leb128.AppendUint(dst, uint64(len(epochs)))

	for i := 0; i < len(epochs); {
		start := epochs[i]

		var intervalE7 int64
		if i+1 < len(epochs) && epochs[i+1].Date == start.Date {
			intervalE7 = secOfDayE7(epochs[i+1]) - secOfDayE7(start)
		}

		count := 1
		sim := start
		for intervalE7 > 0 && i+count < len(epochs) {
			advanceTick(&sim, intervalE7)
			next := epochs[i+count]
			if next.Date != start.Date || next.HourMin != sim.HourMin || next.SecE7 != sim.SecE7 {
				break
			}
			count++
		}

		stored := intervalE7
		if stored%10_000_000 == 0 {
			stored = -stored / 10_000_000
		}
		dst = leb128.AppendInt(dst, stored)
		dst = leb128.AppendUint(dst, uint64(count-1))
		dst = leb128.AppendUint(dst, uint64(start.Date))
		dst = leb128.AppendUint(dst, timeField(start))
		i += count
	}

	// clock offset runs, zero tail omitted
	last := len(epochs) - 1
	for last >= 0 && epochs[last].ClockOffsetE12 == 0 {
		last--
	}
	for i := 0; i <= last; {
		v := epochs[i].ClockOffsetE12
		n := 1
		for i+n <= last && epochs[i+n].ClockOffsetE12 == v {
			n++
		}
		dst = leb128.AppendInt(dst, v)
		dst = leb128.AppendUint(dst, uint64(n-1))
		i += n
	}
	return dst
}

// decodeEpochs expands an EPOC payload.
func decodeEpochs(payload []byte) ([]rinex.Epoch, error) {
	nEpoch, n := leb128.Uint(payload)
	if n == 0 {
		return nil, fmt.Errorf("%w: bad epoch count", ErrCorrupt)
	}
	payload = payload[n:]

	epochs := make([]rinex.Epoch, 0, nEpoch)
	for uint64(len(epochs)) < nEpoch {
		var span struct {
			interval int64
			count    uint64
			date     uint64
			time     uint64
		}
		var ok bool
		if span.interval, payload, ok = takeInt(payload); !ok {
			return nil, fmt.Errorf("%w: truncated epoch span", ErrCorrupt)
		}
		if span.count, payload, ok = takeUint(payload); !ok {
			return nil, fmt.Errorf("%w: truncated epoch span", ErrCorrupt)
		}
		if span.date, payload, ok = takeUint(payload); !ok {
			return nil, fmt.Errorf("%w: truncated epoch span", ErrCorrupt)
		}
		if span.time, payload, ok = takeUint(payload); !ok {
			return nil, fmt.Errorf("%w: truncated epoch span", ErrCorrupt)
		}

		intervalE7 := span.interval
		if intervalE7 < 0 {
			intervalE7 = -intervalE7 * 10_000_000
		}

		hh := span.time / 100_000_000_000
		mm := span.time / 1_000_000_000 % 100
		sec := span.time % 1_000_000_000
		if hh > 23 || mm > 59 {
			return nil, fmt.Errorf("%w: epoch time %d out of range", ErrCorrupt, span.time)
		}
		e := rinex.Epoch{
			Date:    int32(span.date),
			HourMin: int16(hh*100 + mm),
			SecE7:   int32(sec),
			Flag:    '0',
		}
		for k := uint64(0); ; k++ {
			epochs = append(epochs, e)
			if k == span.count || uint64(len(epochs)) == nEpoch {
				break
			}
			advanceTick(&e, intervalE7)
		}
	}

	// clock offset runs
	idx := 0
	for len(payload) > 0 {
		var v int64
		var count uint64
		var ok bool
		if v, payload, ok = takeInt(payload); !ok {
			return nil, fmt.Errorf("%w: truncated clock offset run", ErrCorrupt)
		}
		if count, payload, ok = takeUint(payload); !ok {
			return nil, fmt.Errorf("%w: truncated clock offset run", ErrCorrupt)
		}
		for k := uint64(0); k <= count; k++ {
			if idx >= len(epochs) {
				return nil, fmt.Errorf("%w: clock offsets exceed epoch count", ErrCorrupt)
			}
			epochs[idx].ClockOffsetE12 = v
			idx++
		}
	}
	return epochs, nil
}

// secOfDayE7 returns the epoch's time of day in e7 seconds.
func secOfDayE7(e rinex.Epoch) int64 {
	hh := int64(e.HourMin / 100)
	mm := int64(e.HourMin % 100)
	return (hh*60+mm)*60*10_000_000 + int64(e.SecE7)
}

func takeUint(buf []byte) (uint64, []byte, bool) {
	v, n := leb128.Uint(buf)
	if n == 0 {
		return 0, buf, false
	}
	return v, buf[n:], true
}

func takeInt(buf []byte) (int64, []byte, bool) {
	v, n := leb128.Int(buf)
	if n == 0 {
		return 0, buf, false
	}
	return v, buf[n:], true
}
