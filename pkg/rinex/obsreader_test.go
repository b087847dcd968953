package rinex

import (
	"strings"
	"testing"

	"github.com/de-bkg/gosoc/pkg/stream"
	"github.com/stretchr/testify/assert"
)

func newTestReader(t *testing.T, text string) *ObsReader {
	t.Helper()
	r, err := NewObsReader(stream.NewReader(strings.NewReader(text)))
	if err != nil {
		t.Fatalf("new obs reader: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestReadSingleEpochV2(t *testing.T) {
	assert := assert.New(t)

	text := v2Header() +
		" 05  1 15  3 16 12.0000000  0  1G05\n" +
		"  23619095.450\n"
	r := newTestReader(t, text)

	assert.True(r.Next())
	rec := r.Record()
	assert.Equal(int32(20050115), rec.Epoch.Date)
	assert.Equal(int16(316), rec.Epoch.HourMin)
	assert.Equal(int32(120_000_000), rec.Epoch.SecE7)
	assert.Equal(byte('0'), rec.Epoch.Flag)
	assert.Equal(int32(1), rec.Epoch.NumSat)

	// one satellite entry: system, number, one presence byte
	assert.Equal([]byte{'G', 5, 0x01}, rec.Presence)
	assert.Equal([]int64{23_619_095_450}, rec.Values)
	assert.Equal([]byte{' '}, rec.LLI)
	assert.Equal([]byte{' '}, rec.SSI)

	assert.False(r.Next())
	assert.NoError(r.Err())
}

func TestReadEventV2(t *testing.T) {
	assert := assert.New(t)

	text := v2Header() +
		" 05  1 15  3 17  0.0000000  2  2\n" +
		" LINE A\n" +
		" LINE B\n"
	r := newTestReader(t, text)

	assert.True(r.Next())
	rec := r.Record()
	assert.Equal(byte('2'), rec.Epoch.Flag)
	assert.Equal(int32(2), rec.Epoch.NumSat)
	assert.Equal(" LINE A\n LINE B\n", string(rec.Event))
	assert.Empty(rec.Values)
	assert.False(r.Next())
	assert.NoError(r.Err())
}

func TestReadEpochV2BlankSystemIsGPS(t *testing.T) {
	assert := assert.New(t)

	text := v2Header() +
		" 05  1 15  3 16 12.0000000  0  1 05\n" +
		"  23619095.450 8\n"
	r := newTestReader(t, text)

	assert.True(r.Next())
	rec := r.Record()
	assert.Equal(byte('G'), rec.Presence[0])
	assert.Equal([]byte{' '}, rec.LLI)
	assert.Equal([]byte{'8'}, rec.SSI)
}

func TestReadMultiTypeV2(t *testing.T) {
	assert := assert.New(t)

	// seven types force two data lines per satellite
	text := v2VersionLine +
		hline("     7    C1    L1    L2    P1    P2    D1    S1", "# / TYPES OF OBSERV") +
		hline("", "END OF HEADER") +
		" 05  1 15  3 16 12.0000000  0  2G05R12\n" +
		"  23619095.450   124137775.70212  96732424.52347  23619093.824\n" +
		"  23619094.724       230.42\n" +
		"  20155401.321   105919196.48548\n" +
		"\n"
	r := newTestReader(t, text)

	assert.True(r.Next(), "err: %v", r.Err())
	rec := r.Record()
	assert.Equal(int32(2), rec.Epoch.NumSat)

	// G05: all but P2 present (6 values), R12: first two present
	assert.Equal([]byte{'G', 5, 0x6f, 'R', 12, 0x03}, rec.Presence)
	assert.Equal([]int64{
		23_619_095_450, 124_137_775_702, 96_732_424_523, 23_619_093_824,
		23_619_094_724, 230_420,
		20_155_401_321, 105_919_196_485,
	}, rec.Values)
	assert.Equal([]byte{' ', '1', '4', ' ', ' ', ' ', ' ', '4'}, rec.LLI)
	assert.Equal([]byte{' ', '2', '7', ' ', ' ', ' ', ' ', '8'}, rec.SSI)
}

func TestReadSingleEpochV3(t *testing.T) {
	assert := assert.New(t)

	text := "     3.04           OBSERVATION DATA    M                   RINEX VERSION / TYPE\n" +
		hline("G    4 C1C L1C D1C S1C", "SYS / # / OBS TYPES") +
		hline("R    2 C1C L1C", "SYS / # / OBS TYPES") +
		hline("", "END OF HEADER") +
		"> 2020  1  1 12  0  0.0000000  0  2\n" +
		"G05" + "  23619095.450  " + " 124137775.70212" + "     -1630.402  " + "        43.000" + "\n" +
		"R12  20155401.321\n"
	r := newTestReader(t, text)

	assert.True(r.Next(), "err: %v", r.Err())
	rec := r.Record()
	assert.Equal(int32(20200101), rec.Epoch.Date)
	assert.Equal(int16(1200), rec.Epoch.HourMin)
	assert.Equal(int32(0), rec.Epoch.SecE7)
	assert.Equal(byte('0'), rec.Epoch.Flag)

	// G05 has all four codes, the short R12 line leaves L1C unobserved
	assert.Equal([]byte{'G', 5, 0x0f, 'R', 12, 0x01}, rec.Presence)
	assert.Equal([]int64{23_619_095_450, 124_137_775_702, -1_630_402, 43_000, 20_155_401_321}, rec.Values)
	assert.Equal([]byte{' ', '1', ' ', ' ', ' '}, rec.LLI)
	assert.Equal([]byte{' ', '2', ' ', ' ', ' '}, rec.SSI)

	assert.False(r.Next())
	assert.NoError(r.Err())
}

func TestReadClockOffsetV3(t *testing.T) {
	assert := assert.New(t)

	text := "     3.04           OBSERVATION DATA    G                   RINEX VERSION / TYPE\n" +
		hline("G    1 C1C", "SYS / # / OBS TYPES") +
		hline("", "END OF HEADER") +
		"> 2020  1  1 12  0  0.0000000  0  1      -0.000123456789\n" +
		"G05  23619095.450\n"
	r := newTestReader(t, text)

	assert.True(r.Next(), "err: %v", r.Err())
	assert.Equal(int64(-123_456_789), r.Record().Epoch.ClockOffsetE12)
}

func TestReadBlankFieldV3(t *testing.T) {
	assert := assert.New(t)

	text := "     3.04           OBSERVATION DATA    G                   RINEX VERSION / TYPE\n" +
		hline("G    3 C1C L1C S1C", "SYS / # / OBS TYPES") +
		hline("", "END OF HEADER") +
		"> 2020  1  1 12  0  0.0000000  0  1\n" +
		"G05" + "  23619095.450  " + "                " + "        43.000" + "\n"
	r := newTestReader(t, text)

	assert.True(r.Next(), "err: %v", r.Err())
	rec := r.Record()
	assert.Equal([]byte{'G', 5, 0x05}, rec.Presence)
	assert.Equal([]int64{23_619_095_450, 43_000}, rec.Values)
}

func TestReadBadFlag(t *testing.T) {
	assert := assert.New(t)

	text := v2Header() + " 05  1 15  3 16 12.0000000  9  1G05\n"
	r := newTestReader(t, text)

	assert.False(r.Next())
	assert.ErrorIs(r.Err(), ErrBadFormat)
	assert.NotZero(r.FailLine())

	// after a failure the reader stays failed
	assert.False(r.Next())
}

func TestReadTruncatedRecord(t *testing.T) {
	assert := assert.New(t)

	text := v2Header() + " 05  1 15  3 16 12.0000000  0  2G05G07\n" +
		"  23619095.450\n"
	r := newTestReader(t, text)

	assert.False(r.Next())
	assert.ErrorIs(r.Err(), ErrBadFormat)
}

func TestRecordBuffersReused(t *testing.T) {
	assert := assert.New(t)

	text := v2Header() +
		" 05  1 15  3 16 12.0000000  0  1G05\n" +
		"  23619095.450\n" +
		" 05  1 15  3 16 42.0000000  0  1G07\n" +
		"  20155401.321\n"
	r := newTestReader(t, text)

	assert.True(r.Next())
	first := r.Record()
	assert.Equal(byte(5), first.Presence[1])

	assert.True(r.Next())
	second := r.Record()
	assert.Same(first, second)
	assert.Equal(byte(7), second.Presence[1])
	assert.Equal([]int64{20_155_401_321}, second.Values)
}
