package fontdec

import (
	"errors"
	"fmt"
	"image/color"
	"image/draw"
	"sync"

	"github.com/go-text/typesetting/di"
	gotext "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

var errInvalidSize = errors.New("fontdec: font size must be positive")

// Descriptor is a decoded font. Family and Subfamily are empty when the
// name table does not carry them. A Descriptor is immutable and safe for
// concurrent use.
type Descriptor struct {
	Family    string
	Subfamily string
	Format    Format

	font   *sfnt.Font
	shaped *gotext.Font
	data   []byte
}

// NumGlyphs returns the number of glyphs in the font.
func (d *Descriptor) NumGlyphs() int {
	return d.font.NumGlyphs()
}

// SFNT returns the plain SFNT binary the descriptor was parsed from.
func (d *Descriptor) SFNT() []byte {
	return d.data
}

// Shaped reports whether text layout goes through HarfBuzz shaping.
func (d *Descriptor) Shaped() bool {
	return d.shaped != nil
}

var shaperPool = sync.Pool{
	New: func() any {
		return &shaping.HarfbuzzShaper{}
	},
}

type placedGlyph struct {
	gid  sfnt.GlyphIndex
	x, y float32
}

// layout positions the glyphs of text on a baseline at the origin and
// returns them with the total advance.
func (d *Descriptor) layout(text string, size float64) ([]placedGlyph, float32) {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, 0
	}
	if d.shaped != nil {
		return d.layoutShaped(runes, size)
	}
	return d.layoutPlain(runes, size)
}

func (d *Descriptor) layoutShaped(runes []rune, size float64) ([]placedGlyph, float32) {
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      gotext.NewFace(d.shaped),
		Size:      fixed.Int26_6(size * 64),
		Script:    detectScript(runes),
		Language:  language.NewLanguage("en"),
	}
	hb := shaperPool.Get().(*shaping.HarfbuzzShaper)
	out := hb.Shape(input)
	shaperPool.Put(hb)

	glyphs := make([]placedGlyph, 0, len(out.Glyphs))
	var pen fixed.Int26_6
	for _, g := range out.Glyphs {
		glyphs = append(glyphs, placedGlyph{
			gid: sfnt.GlyphIndex(g.GlyphID),
			x:   fixedToFloat(pen + g.XOffset),
			// go-text offsets point up, the canvas points down.
			y: -fixedToFloat(g.YOffset),
		})
		pen += g.Advance
	}
	return glyphs, fixedToFloat(pen)
}

func (d *Descriptor) layoutPlain(runes []rune, size float64) ([]placedGlyph, float32) {
	var buf sfnt.Buffer
	ppem := fixed.Int26_6(size * 64)
	glyphs := make([]placedGlyph, 0, len(runes))
	var pen fixed.Int26_6
	prev, havePrev := sfnt.GlyphIndex(0), false
	for _, r := range runes {
		gid, err := d.font.GlyphIndex(&buf, r)
		if err != nil {
			gid = 0
		}
		if havePrev {
			if k, err := d.font.Kern(&buf, prev, gid, ppem, xfont.HintingNone); err == nil {
				pen += k
			}
		}
		glyphs = append(glyphs, placedGlyph{gid: gid, x: fixedToFloat(pen)})
		if adv, err := d.font.GlyphAdvance(&buf, gid, ppem, xfont.HintingNone); err == nil {
			pen += adv
		}
		prev, havePrev = gid, true
	}
	return glyphs, fixedToFloat(pen)
}

// Advance returns the width of text set at size pixels.
func (d *Descriptor) Advance(text string, size float64) (adv float32) {
	if size <= 0 {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			adv = 0
		}
	}()
	_, adv = d.layout(text, size)
	return adv
}

// Path returns the outline of text with its baseline starting at (x, y),
// set at size pixels per em. Glyphs without vector outlines (bitmap or
// colour glyphs) are left out.
func (d *Descriptor) Path(text string, x, y, size float64) (p Path, err error) {
	if size <= 0 {
		return nil, errInvalidSize
	}
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, &DecodeError{Format: d.Format, Err: fmt.Errorf("malformed glyph data: %v", r)}
		}
	}()
	glyphs, _ := d.layout(text, size)
	ppem := fixed.Int26_6(size * 64)

	var (
		buf  sfnt.Buffer
		path Path
	)
	for _, g := range glyphs {
		segs, err := d.font.LoadGlyph(&buf, g.gid, ppem, nil)
		if err != nil {
			continue
		}
		ox, oy := float32(x)+g.x, float32(y)+g.y
		for _, s := range segs {
			var out Segment
			switch s.Op {
			case sfnt.SegmentOpMoveTo:
				out.Op = SegmentMoveTo
			case sfnt.SegmentOpLineTo:
				out.Op = SegmentLineTo
			case sfnt.SegmentOpQuadTo:
				out.Op = SegmentQuadTo
			case sfnt.SegmentOpCubeTo:
				out.Op = SegmentCubeTo
			}
			for i := 0; i < out.Op.args(); i++ {
				out.Args[i] = Point{
					X: ox + fixedToFloat(s.Args[i].X),
					Y: oy + fixedToFloat(s.Args[i].Y),
				}
			}
			path = append(path, out)
		}
	}
	return path, nil
}

// Draw fills the outline of text onto dst, the baseline starting at (x, y).
func (d *Descriptor) Draw(dst draw.Image, text string, x, y, size float64, c color.Color) error {
	path, err := d.Path(text, x, y, size)
	if err != nil {
		return err
	}
	path.Fill(dst, c)
	return nil
}

func fixedToFloat(v fixed.Int26_6) float32 {
	return float32(v) / 64
}

// detectScript returns the script of the first non-space rune.
func detectScript(runes []rune) language.Script {
	for _, r := range runes {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		return language.LookupScript(r)
	}
	return language.Latin
}
