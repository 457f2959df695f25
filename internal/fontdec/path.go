package fontdec

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/vector"
)

// SegmentOp is the kind of a path segment.
type SegmentOp uint8

const (
	SegmentMoveTo SegmentOp = iota
	SegmentLineTo
	SegmentQuadTo
	SegmentCubeTo
)

// Point is a position in pixel space, y pointing down.
type Point struct {
	X, Y float32
}

// Segment is one drawing command. MoveTo and LineTo use Args[0], QuadTo
// Args[0:2] and CubeTo Args[0:3]; the last used argument is the end point.
type Segment struct {
	Op   SegmentOp
	Args [3]Point
}

// Path is a vector outline made of closed contours.
type Path []Segment

// Rect is an axis-aligned bounding box.
type Rect struct {
	MinX, MinY, MaxX, MaxY float32
}

// Empty reports whether the box has no area.
func (r Rect) Empty() bool {
	return r.MinX >= r.MaxX || r.MinY >= r.MaxY
}

func (op SegmentOp) args() int {
	switch op {
	case SegmentQuadTo:
		return 2
	case SegmentCubeTo:
		return 3
	default:
		return 1
	}
}

// Bounds returns the box enclosing every point of the path, control
// points included.
func (p Path) Bounds() Rect {
	if len(p) == 0 {
		return Rect{}
	}
	r := Rect{MinX: p[0].Args[0].X, MinY: p[0].Args[0].Y, MaxX: p[0].Args[0].X, MaxY: p[0].Args[0].Y}
	for _, s := range p {
		for _, pt := range s.Args[:s.Op.args()] {
			r.MinX, r.MaxX = min(r.MinX, pt.X), max(r.MaxX, pt.X)
			r.MinY, r.MaxY = min(r.MinY, pt.Y), max(r.MaxY, pt.Y)
		}
	}
	return r
}

// AddTo replays the path on a rasterizer, closing every contour.
func (p Path) AddTo(z *vector.Rasterizer) {
	open := false
	for _, s := range p {
		a := s.Args
		switch s.Op {
		case SegmentMoveTo:
			if open {
				z.ClosePath()
			}
			z.MoveTo(a[0].X, a[0].Y)
			open = true
		case SegmentLineTo:
			z.LineTo(a[0].X, a[0].Y)
		case SegmentQuadTo:
			z.QuadTo(a[0].X, a[0].Y, a[1].X, a[1].Y)
		case SegmentCubeTo:
			z.CubeTo(a[0].X, a[0].Y, a[1].X, a[1].Y, a[2].X, a[2].Y)
		}
	}
	if open {
		z.ClosePath()
	}
}

// Fill paints the path onto dst with a solid colour. Path coordinates are
// relative to dst.Bounds().Min.
func (p Path) Fill(dst draw.Image, c color.Color) {
	b := dst.Bounds()
	if len(p) == 0 || b.Empty() {
		return
	}
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	p.AddTo(z)
	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}
