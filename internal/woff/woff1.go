package woff

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-text/typesetting/font/opentype"
)

const (
	woffHeaderSize   = 44
	woffDirEntrySize = 20
)

// DecodeWOFF rebuilds the SFNT binary wrapped by a WOFF 1.0 container. The
// table directory is read and the tables inflated by the go-text loader.
func DecodeWOFF(data []byte) ([]byte, error) {
	if len(data) < woffHeaderSize || !IsWOFF(data) {
		return nil, ErrInvalidHeader
	}
	flavor := binary.BigEndian.Uint32(data[4:])
	if flavor == flavorTTC {
		return nil, ErrCollection
	}
	length := binary.BigEndian.Uint32(data[8:])
	numTables := int(binary.BigEndian.Uint16(data[12:]))
	if int(length) != len(data) {
		return nil, fmt.Errorf("%w: length %d, have %d bytes", ErrInvalidHeader, length, len(data))
	}
	if numTables == 0 {
		return nil, fmt.Errorf("%w: no tables", ErrInvalidHeader)
	}
	if binary.BigEndian.Uint32(data[16:]) > maxSFNTSize {
		return nil, ErrTooLarge
	}
	if woffHeaderSize+numTables*woffDirEntrySize > len(data) {
		return nil, fmt.Errorf("%w: directory exceeds file", ErrInvalidTable)
	}

	ld, err := opentype.NewLoader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	tags := ld.Tables()
	tables := make([]table, 0, len(tags))
	var total int
	for _, tag := range tags {
		raw, err := ld.RawTable(tag)
		if err != nil {
			return nil, fmt.Errorf("%w: table %q: %v", ErrInvalidTable, tag, err)
		}
		total += pad4(len(raw))
		if total > maxSFNTSize {
			return nil, ErrTooLarge
		}
		tables = append(tables, table{tag: uint32(tag), data: raw})
	}
	return buildSFNT(flavor, tables)
}
