package woff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var errShortRead = errors.New("unexpected end of data")

// reader is a big-endian cursor with a sticky error.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf)-r.off {
		r.err = errShortRead
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) i16() int16 { return int16(r.u16()) }

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

// base128 reads a UIntBase128 value.
func (r *reader) base128() uint32 {
	var acc uint32
	for i := 0; i < 5; i++ {
		b := r.u8()
		if r.err != nil {
			return 0
		}
		if i == 0 && b == 0x80 {
			r.err = errors.New("UIntBase128 with leading zeros")
			return 0
		}
		if acc&0xFE000000 != 0 {
			r.err = errors.New("UIntBase128 overflow")
			return 0
		}
		acc = acc<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return acc
		}
	}
	r.err = errors.New("UIntBase128 longer than 5 bytes")
	return 0
}

// uint255 reads a 255UInt16 value.
func (r *reader) uint255() int {
	const (
		oneMoreByteCode1 = 255
		oneMoreByteCode2 = 254
		wordCode         = 253
		lowestUCode      = 253
	)
	code := r.u8()
	switch code {
	case wordCode:
		return int(r.u16())
	case oneMoreByteCode1:
		return int(r.u8()) + lowestUCode
	case oneMoreByteCode2:
		return int(r.u8()) + lowestUCode*2
	default:
		return int(code)
	}
}

type glyfResult struct {
	glyf  []byte
	loca  []byte
	xMins []int16
}

type point struct {
	x, y    int
	onCurve bool
}

const (
	glyfOnCurve     = 0x01
	glyfXShort      = 0x02
	glyfYShort      = 0x04
	glyfRepeat      = 0x08
	glyfXSame       = 0x10
	glyfYSame       = 0x20
	glyfOverlap     = 0x40
	compArgsWords   = 0x0001
	compHaveScale   = 0x0008
	compMore        = 0x0020
	compXYScale     = 0x0040
	compTwoByTwo    = 0x0080
	compHaveInstrs  = 0x0100
	optionOverlapOn = 0x0001
)

// reconstructGlyf rebuilds the glyf and loca tables from a transformed
// WOFF2 glyf table.
func reconstructGlyf(data []byte) (*glyfResult, error) {
	hr := &reader{buf: data}
	version := hr.u16()
	options := hr.u16()
	numGlyphs := int(hr.u16())
	indexFormat := hr.u16()
	var sizes [7]int
	for i := range sizes {
		sizes[i] = int(hr.u32())
	}
	if hr.err != nil {
		return nil, fmt.Errorf("%w: glyf header: %v", ErrInvalidTable, hr.err)
	}
	if version != 0 || indexFormat > 1 {
		return nil, fmt.Errorf("%w: glyf transform version %d index format %d", ErrInvalidTable, version, indexFormat)
	}

	var streams [7]*reader
	for i, n := range sizes {
		b := hr.take(n)
		if hr.err != nil {
			return nil, fmt.Errorf("%w: glyf stream %d exceeds table", ErrInvalidTable, i)
		}
		streams[i] = &reader{buf: b}
	}
	nContourStream, nPointsStream, flagStream := streams[0], streams[1], streams[2]
	glyphStream, compositeStream, bboxStream, instrStream := streams[3], streams[4], streams[5], streams[6]

	var overlap []byte
	if options&optionOverlapOn != 0 {
		overlap = hr.take((numGlyphs + 7) >> 3)
		if hr.err != nil {
			return nil, fmt.Errorf("%w: overlap bitmap", ErrInvalidTable)
		}
	}

	bboxBitmap := bboxStream.take(4 * ((numGlyphs + 31) / 32))
	if bboxStream.err != nil {
		return nil, fmt.Errorf("%w: bbox bitmap", ErrInvalidTable)
	}
	bitSet := func(bitmap []byte, i int) bool {
		return bitmap != nil && bitmap[i>>3]&(0x80>>(i&7)) != 0
	}

	res := &glyfResult{xMins: make([]int16, numGlyphs)}
	offsets := make([]int, numGlyphs+1)
	var out []byte

	for i := 0; i < numGlyphs; i++ {
		offsets[i] = len(out)
		nContours := nContourStream.i16()
		explicitBBox := bitSet(bboxBitmap, i)

		switch {
		case nContours == 0:
			if explicitBBox {
				return nil, fmt.Errorf("%w: empty glyph %d has a bbox", ErrInvalidTable, i)
			}

		case nContours < 0:
			if nContours != -1 || !explicitBBox {
				return nil, fmt.Errorf("%w: composite glyph %d", ErrInvalidTable, i)
			}
			bbox := readBBox(bboxStream)
			comp, haveInstrs := readComposite(compositeStream)
			out = appendGlyphHeader(out, -1, bbox)
			out = append(out, comp...)
			if haveInstrs {
				n := glyphStream.uint255()
				out = binary.BigEndian.AppendUint16(out, uint16(n))
				out = append(out, instrStream.take(n)...)
			}
			res.xMins[i] = bbox[0]

		default:
			endPts := make([]int, nContours)
			total := 0
			for c := range endPts {
				total += nPointsStream.uint255()
				endPts[c] = total - 1
			}
			if total == 0 || total > 0xFFFF {
				return nil, fmt.Errorf("%w: glyph %d has %d points", ErrInvalidTable, i, total)
			}
			flags := flagStream.take(total)
			if flagStream.err != nil {
				return nil, fmt.Errorf("%w: flag stream", ErrInvalidTable)
			}
			points, err := decodeTriplets(flags, glyphStream)
			if err != nil {
				return nil, fmt.Errorf("%w: glyph %d: %v", ErrInvalidTable, i, err)
			}
			var bbox [4]int16
			if explicitBBox {
				bbox = readBBox(bboxStream)
			} else if bbox, err = computeBBox(points); err != nil {
				return nil, fmt.Errorf("%w: glyph %d: %v", ErrInvalidTable, i, err)
			}
			n := glyphStream.uint255()
			instrs := instrStream.take(n)
			out, err = appendSimpleGlyph(out, endPts, bbox, instrs, points, bitSet(overlap, i))
			if err != nil {
				return nil, fmt.Errorf("%w: glyph %d: %v", ErrInvalidTable, i, err)
			}
			res.xMins[i] = bbox[0]
		}

		for _, s := range streams {
			if s.err != nil {
				return nil, fmt.Errorf("%w: glyph %d: %v", ErrInvalidTable, i, s.err)
			}
		}
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
		if len(out) > maxSFNTSize {
			return nil, ErrTooLarge
		}
	}
	offsets[numGlyphs] = len(out)

	res.glyf = out
	if indexFormat == 0 {
		res.loca = make([]byte, 0, 2*len(offsets))
		for _, o := range offsets {
			if o/2 > math.MaxUint16 {
				return nil, fmt.Errorf("%w: glyf too large for short loca", ErrInvalidTable)
			}
			res.loca = binary.BigEndian.AppendUint16(res.loca, uint16(o/2))
		}
	} else {
		res.loca = make([]byte, 0, 4*len(offsets))
		for _, o := range offsets {
			res.loca = binary.BigEndian.AppendUint32(res.loca, uint32(o))
		}
	}
	return res, nil
}

func readBBox(r *reader) [4]int16 {
	return [4]int16{r.i16(), r.i16(), r.i16(), r.i16()}
}

func readComposite(r *reader) (data []byte, haveInstrs bool) {
	start := r.off
	for {
		flags := r.u16()
		r.take(2) // glyph index
		if flags&compArgsWords != 0 {
			r.take(4)
		} else {
			r.take(2)
		}
		switch {
		case flags&compHaveScale != 0:
			r.take(2)
		case flags&compXYScale != 0:
			r.take(4)
		case flags&compTwoByTwo != 0:
			r.take(8)
		}
		if flags&compHaveInstrs != 0 {
			haveInstrs = true
		}
		if r.err != nil || flags&compMore == 0 {
			break
		}
	}
	if r.err != nil {
		return nil, false
	}
	return r.buf[start:r.off], haveInstrs
}

func withSign(flag uint8, v int) int {
	if flag&1 != 0 {
		return v
	}
	return -v
}

// decodeTriplets decodes the point coordinates of a simple glyph.
func decodeTriplets(flags []byte, r *reader) ([]point, error) {
	points := make([]point, len(flags))
	var x, y int
	for i, f := range flags {
		onCurve := f>>7 == 0
		flag := f & 0x7F
		var n int
		switch {
		case flag < 84:
			n = 1
		case flag < 120:
			n = 2
		case flag < 124:
			n = 3
		default:
			n = 4
		}
		in := r.take(n)
		if r.err != nil {
			return nil, r.err
		}

		var dx, dy int
		switch {
		case flag < 10:
			dy = withSign(flag, int(flag&14)<<7+int(in[0]))
		case flag < 20:
			dx = withSign(flag, int((flag-10)&14)<<7+int(in[0]))
		case flag < 84:
			b0 := int(flag - 20)
			b1 := int(in[0])
			dx = withSign(flag, 1+(b0&0x30)+(b1>>4))
			dy = withSign(flag>>1, 1+((b0&0x0C)<<2)+(b1&0x0F))
		case flag < 120:
			b0 := int(flag - 84)
			dx = withSign(flag, 1+((b0/12)<<8)+int(in[0]))
			dy = withSign(flag>>1, 1+(((b0%12)>>2)<<8)+int(in[1]))
		case flag < 124:
			b2 := int(in[1])
			dx = withSign(flag, int(in[0])<<4+b2>>4)
			dy = withSign(flag>>1, (b2&0x0F)<<8+int(in[2]))
		default:
			dx = withSign(flag, int(in[0])<<8+int(in[1]))
			dy = withSign(flag>>1, int(in[2])<<8+int(in[3]))
		}
		x += dx
		y += dy
		points[i] = point{x: x, y: y, onCurve: onCurve}
	}
	return points, nil
}

func computeBBox(points []point) ([4]int16, error) {
	xMin, yMin := points[0].x, points[0].y
	xMax, yMax := xMin, yMin
	for _, p := range points[1:] {
		xMin, xMax = min(xMin, p.x), max(xMax, p.x)
		yMin, yMax = min(yMin, p.y), max(yMax, p.y)
	}
	for _, v := range []int{xMin, yMin, xMax, yMax} {
		if v < math.MinInt16 || v > math.MaxInt16 {
			return [4]int16{}, errors.New("coordinate out of range")
		}
	}
	return [4]int16{int16(xMin), int16(yMin), int16(xMax), int16(yMax)}, nil
}

func appendGlyphHeader(out []byte, nContours int16, bbox [4]int16) []byte {
	out = binary.BigEndian.AppendUint16(out, uint16(nContours))
	for _, v := range bbox {
		out = binary.BigEndian.AppendUint16(out, uint16(v))
	}
	return out
}

// appendSimpleGlyph encodes a simple glyph in the standard glyf layout.
func appendSimpleGlyph(out []byte, endPts []int, bbox [4]int16, instrs []byte, points []point, overlap bool) ([]byte, error) {
	out = appendGlyphHeader(out, int16(len(endPts)), bbox)
	for _, e := range endPts {
		out = binary.BigEndian.AppendUint16(out, uint16(e))
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(instrs)))
	out = append(out, instrs...)

	flags := make([]byte, len(points))
	var xs, ys []byte
	var px, py int
	for i, p := range points {
		dx, dy := p.x-px, p.y-py
		px, py = p.x, p.y
		if dx < math.MinInt16 || dx > math.MaxInt16 || dy < math.MinInt16 || dy > math.MaxInt16 {
			return nil, errors.New("coordinate delta out of range")
		}
		var f byte
		if p.onCurve {
			f |= glyfOnCurve
		}
		if i == 0 && overlap {
			f |= glyfOverlap
		}
		switch {
		case dx == 0:
			f |= glyfXSame
		case dx > -256 && dx < 256:
			f |= glyfXShort
			if dx > 0 {
				f |= glyfXSame
			} else {
				dx = -dx
			}
			xs = append(xs, byte(dx))
		default:
			xs = binary.BigEndian.AppendUint16(xs, uint16(int16(dx)))
		}
		switch {
		case dy == 0:
			f |= glyfYSame
		case dy > -256 && dy < 256:
			f |= glyfYShort
			if dy > 0 {
				f |= glyfYSame
			} else {
				dy = -dy
			}
			ys = append(ys, byte(dy))
		default:
			ys = binary.BigEndian.AppendUint16(ys, uint16(int16(dy)))
		}
		flags[i] = f
	}
	for i := 0; i < len(flags); {
		run := 1
		for i+run < len(flags) && flags[i+run] == flags[i] && run <= 255 {
			run++
		}
		if run > 1 {
			out = append(out, flags[i]|glyfRepeat, byte(run-1))
		} else {
			out = append(out, flags[i])
		}
		i += run
	}
	out = append(out, xs...)
	out = append(out, ys...)
	return out, nil
}
