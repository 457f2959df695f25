package wofftest

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var errShortGlyph = errors.New("wofftest: glyph data truncated")

type point struct {
	x, y    int
	onCurve bool
}

type simpleGlyph struct {
	endPts []int
	instrs []byte
	points []point
	bbox   [4]int16
}

type cursor struct {
	buf []byte
	off int
	err error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil || n < 0 || c.off+n > len(c.buf) {
		c.err = errShortGlyph
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) u8() byte {
	if b := c.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (c *cursor) u16() uint16 {
	if b := c.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func parseSimpleGlyph(g []byte) (simpleGlyph, error) {
	c := &cursor{buf: g}
	n := int(int16(c.u16()))
	var sg simpleGlyph
	for i := range sg.bbox {
		sg.bbox[i] = int16(c.u16())
	}
	for i := 0; i < n; i++ {
		sg.endPts = append(sg.endPts, int(c.u16()))
	}
	sg.instrs = c.take(int(c.u16()))
	if c.err != nil || n == 0 {
		return sg, errShortGlyph
	}
	total := sg.endPts[n-1] + 1
	flags := make([]byte, 0, total)
	for len(flags) < total && c.err == nil {
		f := c.u8()
		flags = append(flags, f)
		if f&0x08 != 0 {
			for k := int(c.u8()); k > 0; k-- {
				flags = append(flags, f)
			}
		}
	}
	coord := func(f byte, short, same byte) int {
		switch {
		case f&short != 0:
			v := int(c.u8())
			if f&same == 0 {
				v = -v
			}
			return v
		case f&same != 0:
			return 0
		default:
			return int(int16(c.u16()))
		}
	}
	sg.points = make([]point, total)
	x := 0
	for i, f := range flags[:total] {
		x += coord(f, 0x02, 0x10)
		sg.points[i].x = x
		sg.points[i].onCurve = f&0x01 != 0
	}
	y := 0
	for i, f := range flags[:total] {
		y += coord(f, 0x04, 0x20)
		sg.points[i].y = y
	}
	return sg, c.err
}

func bbox(points []point) [4]int16 {
	if len(points) == 0 {
		return [4]int16{}
	}
	xMin, yMin, xMax, yMax := points[0].x, points[0].y, points[0].x, points[0].y
	for _, p := range points[1:] {
		xMin, xMax = min(xMin, p.x), max(xMax, p.x)
		yMin, yMax = min(yMin, p.y), max(yMax, p.y)
	}
	return [4]int16{int16(xMin), int16(yMin), int16(xMax), int16(yMax)}
}

// composite returns the component records of a composite glyph starting at
// offset 10 and whether instructions follow them.
func composite(g []byte) ([]byte, bool, int, error) {
	c := &cursor{buf: g, off: 10}
	start := c.off
	haveInstrs := false
	for {
		flags := c.u16()
		c.take(2)
		if flags&0x0001 != 0 {
			c.take(4)
		} else {
			c.take(2)
		}
		switch {
		case flags&0x0008 != 0:
			c.take(2)
		case flags&0x0040 != 0:
			c.take(4)
		case flags&0x0080 != 0:
			c.take(8)
		}
		if flags&0x0100 != 0 {
			haveInstrs = true
		}
		if c.err != nil {
			return nil, false, 0, c.err
		}
		if flags&0x0020 == 0 {
			break
		}
	}
	return g[start:c.off], haveInstrs, c.off, nil
}

// transform produces a WOFF2 transformed glyf table. Every point is written
// with the four-byte triplet form.
func transform(tables []table) ([]byte, error) {
	head := findTable(tables, "head")
	maxp := findTable(tables, "maxp")
	glyf := findTable(tables, "glyf")
	loca := findTable(tables, "loca")
	if len(head) < 54 || len(maxp) < 6 || glyf == nil || loca == nil {
		return nil, errors.New("wofftest: missing glyf tables")
	}
	numGlyphs := int(binary.BigEndian.Uint16(maxp[4:]))
	indexFormat := binary.BigEndian.Uint16(head[50:])

	offset := func(i int) int {
		if indexFormat == 0 {
			return 2 * int(binary.BigEndian.Uint16(loca[2*i:]))
		}
		return int(binary.BigEndian.Uint32(loca[4*i:]))
	}

	var nContour, nPoints, flagS, glyphS, compS, bboxVals, instrS []byte
	bitmap := make([]byte, 4*((numGlyphs+31)/32))
	for i := 0; i < numGlyphs; i++ {
		g := glyf[offset(i):offset(i+1)]
		if len(g) == 0 {
			nContour = binary.BigEndian.AppendUint16(nContour, 0)
			continue
		}
		n := int16(binary.BigEndian.Uint16(g))
		nContour = binary.BigEndian.AppendUint16(nContour, uint16(n))
		if n < 0 {
			bitmap[i>>3] |= 0x80 >> (i & 7)
			bboxVals = append(bboxVals, g[2:10]...)
			comp, haveInstrs, end, err := composite(g)
			if err != nil {
				return nil, fmt.Errorf("glyph %d: %w", i, err)
			}
			compS = append(compS, comp...)
			if haveInstrs {
				c := &cursor{buf: g, off: end}
				k := int(c.u16())
				glyphS = append255(glyphS, k)
				instrS = append(instrS, c.take(k)...)
				if c.err != nil {
					return nil, fmt.Errorf("glyph %d: %w", i, c.err)
				}
			}
			continue
		}

		sg, err := parseSimpleGlyph(g)
		if err != nil {
			return nil, fmt.Errorf("glyph %d: %w", i, err)
		}
		prev := -1
		for _, e := range sg.endPts {
			nPoints = append255(nPoints, e-prev)
			prev = e
		}
		px, py := 0, 0
		for _, p := range sg.points {
			dx, dy := p.x-px, p.y-py
			px, py = p.x, p.y
			f := byte(124)
			if dx >= 0 {
				f |= 1
			} else {
				dx = -dx
			}
			if dy >= 0 {
				f |= 2
			} else {
				dy = -dy
			}
			if !p.onCurve {
				f |= 0x80
			}
			flagS = append(flagS, f)
			glyphS = binary.BigEndian.AppendUint16(glyphS, uint16(dx))
			glyphS = binary.BigEndian.AppendUint16(glyphS, uint16(dy))
		}
		glyphS = append255(glyphS, len(sg.instrs))
		instrS = append(instrS, sg.instrs...)

		if bbox(sg.points) != sg.bbox {
			bitmap[i>>3] |= 0x80 >> (i & 7)
			for _, v := range sg.bbox {
				bboxVals = binary.BigEndian.AppendUint16(bboxVals, uint16(v))
			}
		}
	}
	bboxS := append(bitmap, bboxVals...)

	out := binary.BigEndian.AppendUint16(nil, 0)
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint16(out, uint16(numGlyphs))
	out = binary.BigEndian.AppendUint16(out, indexFormat)
	streams := [][]byte{nContour, nPoints, flagS, glyphS, compS, bboxS, instrS}
	for _, s := range streams {
		out = binary.BigEndian.AppendUint32(out, uint32(len(s)))
	}
	for _, s := range streams {
		out = append(out, s...)
	}
	return out, nil
}
