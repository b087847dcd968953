// Package soc implements the Succinct Observation Container, a chunked
// binary format for RINEX observation data. A container is an ordered list
// of tagged chunks: a 4-byte ASCII tag, a ULEB128 payload length, the
// payload and an optional digest over tag, length and payload.
//
// Epoch timestamps are delta-coded per span, indicator bytes are run-length
// coded and observation values are stored as delta-coded residuals packed
// into transposed bit matrices, per (satellite, observation code) signal.
package soc

import (
	"crypto/sha256"
	"errors"
	"hash/crc32"
)

// Container format version.
const (
	MajorVersion = 1
	MinorVersion = 0
)

// errors surfaced by the container codec
var (
	// ErrCorrupt is returned for structural violations in a container.
	ErrCorrupt = errors.New("soc: corrupt container")

	// ErrBadMajor is returned when the container's major version is not
	// understood.
	ErrBadMajor = errors.New("soc: unsupported major version")

	// ErrBadState is returned when an operation is invalid in the current
	// reader state.
	ErrBadState = errors.New("soc: invalid reader state")

	// ErrNoChunk is returned when a requested chunk is absent.
	ErrNoChunk = errors.New("soc: no such chunk")

	// lookup failures
	ErrUnknownSystem    = errors.New("soc: unknown satellite system")
	ErrUnknownCode      = errors.New("soc: unknown observation code")
	ErrUnknownSatellite = errors.New("soc: unknown satellite")

	// ErrEndOfData is returned by a per-signal iterator once all values
	// have been read.
	ErrEndOfData = errors.New("soc: end of data")
)

// chunk tags
const (
	tagSRNX = "SRNX"
	tagRHDR = "RHDR"
	tagSDIR = "SDIR"
	tagEPOC = "EPOC"
	tagEVTF = "EVTF"
	tagSATE = "SATE"
	tagSOCD = "SOCD"
)

// Digest identifiers. Zero means no digest.
const (
	DigestNone   = 0
	DigestCRC32C = 2
	DigestSHA256 = 6
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// digestSize returns the stored digest length for an identifier, or -1 for
// reserved identifiers.
func digestSize(id int) int {
	switch id {
	case DigestNone:
		return 0
	case DigestCRC32C:
		return 4
	case DigestSHA256:
		return 32
	default:
		return -1
	}
}

// digestSum appends the digest of data for an identifier.
func digestSum(dst []byte, id int, data []byte) []byte {
	switch id {
	case DigestCRC32C:
		sum := crc32.Checksum(data, castagnoli)
		return append(dst, byte(sum), byte(sum>>8), byte(sum>>16), byte(sum>>24))
	case DigestSHA256:
		sum := sha256.Sum256(data)
		return append(dst, sum[:]...)
	}
	return dst
}

// digestNames maps option strings to identifiers.
var digestNames = map[string]int{
	"":       DigestNone,
	"none":   DigestNone,
	"crc32c": DigestCRC32C,
	"sha256": DigestSHA256,
}
