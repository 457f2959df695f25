// Package wofftest builds WOFF and WOFF2 containers, and altered copies of
// plain SFNT fonts, for use in tests.
package wofftest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
)

type table struct {
	tag  uint32
	data []byte
}

func tag(s string) uint32 {
	return binary.BigEndian.Uint32([]byte(s))
}

func parseTables(data []byte) (uint32, []table, error) {
	if len(data) < 12 {
		return 0, nil, errors.New("wofftest: sfnt too short")
	}
	flavor := binary.BigEndian.Uint32(data)
	n := int(binary.BigEndian.Uint16(data[4:]))
	if len(data) < 12+16*n {
		return 0, nil, errors.New("wofftest: truncated table directory")
	}
	tables := make([]table, n)
	for i := range tables {
		rec := data[12+16*i:]
		off := binary.BigEndian.Uint32(rec[8:])
		length := binary.BigEndian.Uint32(rec[12:])
		if uint64(off)+uint64(length) > uint64(len(data)) {
			return 0, nil, fmt.Errorf("wofftest: table %d out of bounds", i)
		}
		tables[i] = table{tag: binary.BigEndian.Uint32(rec), data: data[off : off+length]}
	}
	return flavor, tables, nil
}

func findTable(tables []table, name string) []byte {
	for _, t := range tables {
		if t.tag == tag(name) {
			return t.data
		}
	}
	return nil
}

func checksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		var w [4]byte
		copy(w[:], data[i:])
		sum += binary.BigEndian.Uint32(w[:])
	}
	return sum
}

// EncodeWOFF wraps an SFNT font in a WOFF 1.0 container, zlib-compressing
// every table that gets smaller.
func EncodeWOFF(ttf []byte) ([]byte, error) {
	flavor, tables, err := parseTables(ttf)
	if err != nil {
		return nil, err
	}

	const headerSize, entrySize = 44, 20
	offset := headerSize + len(tables)*entrySize
	var dir, body []byte
	for _, t := range tables {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(t.data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		comp := buf.Bytes()
		if len(comp) >= len(t.data) {
			comp = t.data
		}
		dir = binary.BigEndian.AppendUint32(dir, t.tag)
		dir = binary.BigEndian.AppendUint32(dir, uint32(offset+len(body)))
		dir = binary.BigEndian.AppendUint32(dir, uint32(len(comp)))
		dir = binary.BigEndian.AppendUint32(dir, uint32(len(t.data)))
		dir = binary.BigEndian.AppendUint32(dir, checksum(t.data))
		body = append(body, comp...)
		for len(body)%4 != 0 {
			body = append(body, 0)
		}
	}

	hdr := make([]byte, headerSize)
	binary.BigEndian.PutUint32(hdr[0:], 0x774F4646)
	binary.BigEndian.PutUint32(hdr[4:], flavor)
	binary.BigEndian.PutUint32(hdr[8:], uint32(offset+len(body)))
	binary.BigEndian.PutUint16(hdr[12:], uint16(len(tables)))
	binary.BigEndian.PutUint32(hdr[16:], uint32(len(ttf)))
	binary.BigEndian.PutUint16(hdr[20:], 1)

	out := append(hdr, dir...)
	return append(out, body...), nil
}

var knownTags = []string{
	"cmap", "head", "hhea", "hmtx", "maxp", "name", "OS/2", "post",
	"cvt ", "fpgm", "glyf", "loca", "prep", "CFF ", "VORG", "EBDT",
	"EBLC", "gasp", "hdmx", "kern", "LTSH", "PCLT", "VDMX", "vhea",
	"vmtx", "BASE", "GDEF", "GPOS", "GSUB", "EBSC", "JSTF", "MATH",
	"CBDT", "CBLC", "COLR", "CPAL", "SVG ", "sbix", "acnt", "avar",
	"bdat", "bloc", "bsln", "cvar", "fdsc", "feat", "fmtx", "fvar",
	"gvar", "hsty", "just", "lcar", "mort", "morx", "opbd", "prop",
	"trak", "Zapf", "Silf", "Glat", "Gloc", "Feat", "Sill",
}

// AppendBase128 appends v in UIntBase128 encoding.
func AppendBase128(b []byte, v uint32) []byte {
	var tmp [5]byte
	n := 0
	for {
		tmp[4-n] = byte(v & 0x7F)
		n++
		v >>= 7
		if v == 0 {
			break
		}
	}
	enc := tmp[5-n:]
	for i := 0; i < len(enc)-1; i++ {
		enc[i] |= 0x80
	}
	return append(b, enc...)
}

func append255(b []byte, v int) []byte {
	if v < 253 {
		return append(b, byte(v))
	}
	b = append(b, 253)
	return binary.BigEndian.AppendUint16(b, uint16(v))
}

// EncodeWOFF2 wraps a TrueType font in a WOFF 2.0 container. With
// transformGlyf the glyf and loca tables use the WOFF2 glyf transform,
// otherwise the null transform.
func EncodeWOFF2(ttf []byte, transformGlyf bool) ([]byte, error) {
	flavor, tables, err := parseTables(ttf)
	if err != nil {
		return nil, err
	}

	var dir, stream []byte
	for _, t := range tables {
		idx := 0x3F
		for i, k := range knownTags {
			if tag(k) == t.tag {
				idx = i
			}
		}
		glyfOrLoca := t.tag == tag("glyf") || t.tag == tag("loca")
		flags := byte(idx)
		if glyfOrLoca && !transformGlyf {
			flags |= 3 << 6
		}
		dir = append(dir, flags)
		if idx == 0x3F {
			dir = binary.BigEndian.AppendUint32(dir, t.tag)
		}
		dir = AppendBase128(dir, uint32(len(t.data)))
		switch {
		case glyfOrLoca && transformGlyf && t.tag == tag("glyf"):
			data, err := transform(tables)
			if err != nil {
				return nil, err
			}
			dir = AppendBase128(dir, uint32(len(data)))
			stream = append(stream, data...)
		case glyfOrLoca && transformGlyf:
			dir = AppendBase128(dir, 0)
		default:
			stream = append(stream, t.data...)
		}
	}

	var comp bytes.Buffer
	bw := brotli.NewWriter(&comp)
	if _, err := bw.Write(stream); err != nil {
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}

	const headerSize = 48
	hdr := make([]byte, headerSize)
	binary.BigEndian.PutUint32(hdr[0:], 0x774F4632)
	binary.BigEndian.PutUint32(hdr[4:], flavor)
	binary.BigEndian.PutUint32(hdr[8:], uint32(headerSize+len(dir)+comp.Len()))
	binary.BigEndian.PutUint16(hdr[12:], uint16(len(tables)))
	binary.BigEndian.PutUint32(hdr[16:], uint32(len(ttf)))
	binary.BigEndian.PutUint32(hdr[20:], uint32(comp.Len()))
	binary.BigEndian.PutUint16(hdr[24:], 1)

	out := append(hdr, dir...)
	return append(out, comp.Bytes()...), nil
}
