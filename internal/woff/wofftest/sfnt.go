package wofftest

import (
	"bytes"
	"encoding/binary"
	"sort"
	"unicode/utf16"

	"github.com/go-text/typesetting/font/opentype"
)

// WithTable returns a copy of the SFNT font ttf with the table tag
// replaced by data, or added if ttf has no such table.
func WithTable(ttf []byte, tag string, data []byte) ([]byte, error) {
	ld, err := opentype.NewLoader(bytes.NewReader(ttf))
	if err != nil {
		return nil, err
	}
	want := opentype.MustNewTag(tag)
	var tables []opentype.Table
	replaced := false
	for _, t := range ld.Tables() {
		content, err := ld.RawTable(t)
		if err != nil {
			return nil, err
		}
		if t == want {
			content, replaced = data, true
		}
		tables = append(tables, opentype.Table{Tag: t, Content: content})
	}
	if !replaced {
		tables = append(tables, opentype.Table{Tag: want, Content: data})
		sort.Slice(tables, func(i, j int) bool { return tables[i].Tag < tables[j].Tag })
	}
	return opentype.WriteTTF(tables), nil
}

// NameTable builds a format 0 name table holding the given strings as
// Windows Unicode (platform 3, encoding 1, en-US) records.
func NameTable(names map[uint16]string) []byte {
	ids := make([]int, 0, len(names))
	for id := range names {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	var strs []byte
	header := make([]byte, 6+12*len(ids))
	binary.BigEndian.PutUint16(header[2:], uint16(len(ids)))
	binary.BigEndian.PutUint16(header[4:], uint16(len(header)))
	for i, id := range ids {
		var s []byte
		for _, u := range utf16.Encode([]rune(names[uint16(id)])) {
			s = binary.BigEndian.AppendUint16(s, u)
		}
		rec := header[6+12*i:]
		binary.BigEndian.PutUint16(rec[0:], 3)
		binary.BigEndian.PutUint16(rec[2:], 1)
		binary.BigEndian.PutUint16(rec[4:], 0x0409)
		binary.BigEndian.PutUint16(rec[6:], uint16(id))
		binary.BigEndian.PutUint16(rec[8:], uint16(len(s)))
		binary.BigEndian.PutUint16(rec[10:], uint16(len(strs)))
		strs = append(strs, s...)
	}
	return append(header, strs...)
}
