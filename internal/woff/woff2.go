package woff

import (
	"encoding/binary"
	"fmt"
)

const woff2HeaderSize = 48

// knownTags is the WOFF2 table tag dictionary, indexed by the low six bits
// of a directory entry's flags.
var knownTags = [63]string{
	"cmap", "head", "hhea", "hmtx", "maxp", "name", "OS/2", "post",
	"cvt ", "fpgm", "glyf", "loca", "prep", "CFF ", "VORG", "EBDT",
	"EBLC", "gasp", "hdmx", "kern", "LTSH", "PCLT", "VDMX", "vhea",
	"vmtx", "BASE", "GDEF", "GPOS", "GSUB", "EBSC", "JSTF", "MATH",
	"CBDT", "CBLC", "COLR", "CPAL", "SVG ", "sbix", "acnt", "avar",
	"bdat", "bloc", "bsln", "cvar", "fdsc", "feat", "fmtx", "fvar",
	"gvar", "hsty", "just", "lcar", "mort", "morx", "opbd", "prop",
	"trak", "Zapf", "Silf", "Glat", "Gloc", "Feat", "Sill",
}

type woff2Entry struct {
	tag             uint32
	transform       uint8
	origLength      int
	transformLength int
	transformed     bool
	data            []byte
}

// DecodeWOFF2 rebuilds the SFNT binary wrapped by a WOFF 2.0 container.
// The compressed block is inflated with dec; transformed glyf, loca and
// hmtx tables are reconstructed.
func DecodeWOFF2(data []byte, dec Decompressor) ([]byte, error) {
	if dec == nil {
		return nil, ErrNoDecompressor
	}
	if len(data) < woff2HeaderSize || !IsWOFF2(data) {
		return nil, ErrInvalidHeader
	}
	flavor := binary.BigEndian.Uint32(data[4:])
	if flavor == flavorTTC {
		return nil, ErrCollection
	}
	length := binary.BigEndian.Uint32(data[8:])
	numTables := int(binary.BigEndian.Uint16(data[12:]))
	totalCompressed := int(binary.BigEndian.Uint32(data[20:]))
	if int(length) != len(data) {
		return nil, fmt.Errorf("%w: length %d, have %d bytes", ErrInvalidHeader, length, len(data))
	}
	if numTables == 0 {
		return nil, fmt.Errorf("%w: no tables", ErrInvalidHeader)
	}

	r := &reader{buf: data, off: woff2HeaderSize}
	entries := make([]*woff2Entry, numTables)
	var streamSize int
	for i := range entries {
		e, err := readWOFF2Entry(r)
		if err != nil {
			return nil, err
		}
		entries[i] = e
		if e.transformed {
			streamSize += e.transformLength
		} else {
			streamSize += e.origLength
		}
		if streamSize > maxSFNTSize {
			return nil, ErrTooLarge
		}
	}

	if totalCompressed > len(data)-r.off {
		return nil, fmt.Errorf("%w: compressed block exceeds file", ErrInvalidHeader)
	}
	stream, err := dec.Decompress(data[r.off:r.off+totalCompressed], streamSize)
	if err != nil {
		return nil, err
	}

	var off int
	byTag := make(map[uint32]*woff2Entry, numTables)
	for _, e := range entries {
		n := e.origLength
		if e.transformed {
			n = e.transformLength
		}
		e.data = stream[off : off+n]
		off += n
		if _, dup := byTag[e.tag]; dup {
			return nil, fmt.Errorf("%w: duplicate table %q", ErrInvalidTable, tagString(e.tag))
		}
		byTag[e.tag] = e
	}

	if err := reconstructTables(byTag); err != nil {
		return nil, err
	}

	tables := make([]table, 0, numTables)
	for _, e := range entries {
		tables = append(tables, table{tag: e.tag, data: e.data})
	}
	return buildSFNT(flavor, tables)
}

func readWOFF2Entry(r *reader) (*woff2Entry, error) {
	flags := r.u8()
	e := &woff2Entry{transform: flags >> 6}
	if idx := flags & 0x3F; idx == 0x3F {
		e.tag = r.u32()
	} else {
		e.tag = makeTag(knownTags[idx])
	}
	e.origLength = int(r.base128())

	// glyf and loca use version 3 as the null transform; every other
	// table uses version 0.
	if e.tag == tagGlyf || e.tag == tagLoca {
		e.transformed = e.transform != 3
	} else {
		e.transformed = e.transform != 0
	}
	if e.transformed {
		e.transformLength = int(r.base128())
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, r.err)
	}
	if e.origLength > maxSFNTSize || e.transformLength > maxSFNTSize {
		return nil, ErrTooLarge
	}
	if e.tag == tagLoca && e.transformed && e.transformLength != 0 {
		return nil, fmt.Errorf("%w: transformed loca must be empty", ErrInvalidTable)
	}
	return e, nil
}

func reconstructTables(byTag map[uint32]*woff2Entry) error {
	glyf, loca := byTag[tagGlyf], byTag[tagLoca]
	if (glyf == nil) != (loca == nil) {
		return fmt.Errorf("%w: glyf and loca must appear together", ErrInvalidTable)
	}

	var xMins []int16
	if glyf != nil && glyf.transformed {
		if !loca.transformed {
			return fmt.Errorf("%w: transformed glyf requires transformed loca", ErrInvalidTable)
		}
		res, err := reconstructGlyf(glyf.data)
		if err != nil {
			return err
		}
		glyf.data, loca.data, xMins = res.glyf, res.loca, res.xMins
		if len(loca.data) != loca.origLength {
			return fmt.Errorf("%w: loca length %d, want %d", ErrInvalidTable, len(loca.data), loca.origLength)
		}
	} else if loca != nil && loca.transformed {
		return fmt.Errorf("%w: transformed loca requires transformed glyf", ErrInvalidTable)
	}

	for _, e := range byTag {
		if !e.transformed || e.tag == tagGlyf || e.tag == tagLoca {
			continue
		}
		if e.tag != tagHmtx || e.transform != 1 {
			return fmt.Errorf("%w: table %q version %d", ErrUnsupportedVersion, tagString(e.tag), e.transform)
		}
		if xMins == nil {
			return fmt.Errorf("%w: transformed hmtx requires transformed glyf", ErrInvalidTable)
		}
		hhea := byTag[tagHhea]
		if hhea == nil || len(hhea.data) < 36 {
			return fmt.Errorf("%w: hmtx transform needs hhea", ErrInvalidTable)
		}
		numHMetrics := int(binary.BigEndian.Uint16(hhea.data[34:]))
		hmtx, err := reconstructHmtx(e.data, numHMetrics, xMins)
		if err != nil {
			return err
		}
		if len(hmtx) != e.origLength {
			return fmt.Errorf("%w: hmtx length %d, want %d", ErrInvalidTable, len(hmtx), e.origLength)
		}
		e.data = hmtx
	}
	return nil
}

func reconstructHmtx(data []byte, numHMetrics int, xMins []int16) ([]byte, error) {
	numGlyphs := len(xMins)
	if numHMetrics < 1 || numHMetrics > numGlyphs {
		return nil, fmt.Errorf("%w: numberOfHMetrics %d for %d glyphs", ErrInvalidTable, numHMetrics, numGlyphs)
	}
	r := &reader{buf: data}
	flags := r.u8()
	if flags&^0x03 != 0 {
		return nil, fmt.Errorf("%w: hmtx flags %#x", ErrInvalidTable, flags)
	}
	advances := make([]uint16, numHMetrics)
	for i := range advances {
		advances[i] = r.u16()
	}
	lsbs := make([]int16, numGlyphs)
	for i := 0; i < numHMetrics; i++ {
		if flags&0x01 != 0 {
			lsbs[i] = xMins[i]
		} else {
			lsbs[i] = r.i16()
		}
	}
	for i := numHMetrics; i < numGlyphs; i++ {
		if flags&0x02 != 0 {
			lsbs[i] = xMins[i]
		} else {
			lsbs[i] = r.i16()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: hmtx: %v", ErrInvalidTable, r.err)
	}

	out := make([]byte, 0, 4*numHMetrics+2*(numGlyphs-numHMetrics))
	for i := 0; i < numGlyphs; i++ {
		if i < numHMetrics {
			out = binary.BigEndian.AppendUint16(out, advances[i])
		}
		out = binary.BigEndian.AppendUint16(out, uint16(lsbs[i]))
	}
	return out, nil
}
