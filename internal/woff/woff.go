// Package woff unwraps WOFF and WOFF2 font containers into plain SFNT
// (TrueType / OpenType) binaries that an SFNT parser can read.
package woff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sort"
)

const (
	signatureWOFF  = 0x774F4646 // 'wOFF'
	signatureWOFF2 = 0x774F4632 // 'wOF2'
	flavorTTC      = 0x74746366 // 'ttcf'

	// maxSFNTSize bounds the size of a rebuilt font.
	maxSFNTSize = 256 << 20

	headChecksumMagic = 0xB1B0AFBA
)

var (
	ErrInvalidHeader      = errors.New("woff: invalid header")
	ErrInvalidTable       = errors.New("woff: invalid table directory")
	ErrTooLarge           = errors.New("woff: font exceeds size limit")
	ErrCollection         = errors.New("woff: font collections are not supported")
	ErrNoDecompressor     = errors.New("woff: no decompressor configured")
	ErrUnsupportedVersion = errors.New("woff: unsupported table transform")
)

// IsWOFF reports whether data starts with a WOFF 1.0 signature.
func IsWOFF(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data) == signatureWOFF
}

// IsWOFF2 reports whether data starts with a WOFF 2.0 signature.
func IsWOFF2(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data) == signatureWOFF2
}

// table is one SFNT table in its original, uncompressed form.
type table struct {
	tag  uint32
	data []byte
}

func tagString(tag uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], tag)
	return string(b[:])
}

func makeTag(s string) uint32 {
	return binary.BigEndian.Uint32([]byte(s))
}

var (
	tagHead = makeTag("head")
	tagHhea = makeTag("hhea")
	tagHmtx = makeTag("hmtx")
	tagGlyf = makeTag("glyf")
	tagLoca = makeTag("loca")
)

func checksum(data []byte) uint32 {
	var sum uint32
	n := len(data) &^ 3
	for i := 0; i < n; i += 4 {
		sum += binary.BigEndian.Uint32(data[i:])
	}
	if rem := len(data) - n; rem > 0 {
		var last [4]byte
		copy(last[:], data[n:])
		sum += binary.BigEndian.Uint32(last[:])
	}
	return sum
}

func pad4(n int) int {
	return (n + 3) &^ 3
}

// buildSFNT assembles an SFNT binary from its tables, sorting the table
// records by tag and recomputing every checksum including the head table's
// checkSumAdjustment.
func buildSFNT(flavor uint32, tables []table) ([]byte, error) {
	if len(tables) == 0 || len(tables) > 0xFFFF {
		return nil, ErrInvalidTable
	}
	sorted := make([]table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].tag < sorted[j].tag })

	numTables := len(sorted)
	headerSize := 12 + 16*numTables
	size := headerSize
	for _, t := range sorted {
		size += pad4(len(t.data))
		if size > maxSFNTSize {
			return nil, ErrTooLarge
		}
	}

	out := make([]byte, size)
	entrySelector := bits.Len(uint(numTables)) - 1
	searchRange := (1 << entrySelector) * 16
	binary.BigEndian.PutUint32(out[0:], flavor)
	binary.BigEndian.PutUint16(out[4:], uint16(numTables))
	binary.BigEndian.PutUint16(out[6:], uint16(searchRange))
	binary.BigEndian.PutUint16(out[8:], uint16(entrySelector))
	binary.BigEndian.PutUint16(out[10:], uint16(numTables*16-searchRange))

	offset := headerSize
	headOffset := -1
	for i, t := range sorted {
		data := out[offset : offset+len(t.data)]
		copy(data, t.data)
		if t.tag == tagHead {
			if len(data) < 12 {
				return nil, fmt.Errorf("%w: head table too short", ErrInvalidTable)
			}
			binary.BigEndian.PutUint32(data[8:], 0)
			headOffset = offset
		}
		rec := out[12+16*i:]
		binary.BigEndian.PutUint32(rec[0:], t.tag)
		binary.BigEndian.PutUint32(rec[4:], checksum(data))
		binary.BigEndian.PutUint32(rec[8:], uint32(offset))
		binary.BigEndian.PutUint32(rec[12:], uint32(len(t.data)))
		offset += pad4(len(t.data))
	}
	if headOffset >= 0 {
		binary.BigEndian.PutUint32(out[headOffset+8:], headChecksumMagic-checksum(out))
	}
	return out, nil
}
