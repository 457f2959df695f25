package woff

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"fontshelf/internal/woff/wofftest"
)

// parseTables splits an SFNT binary into its tables, in directory order.
func parseTables(t *testing.T, data []byte) (uint32, []table) {
	t.Helper()
	flavor := binary.BigEndian.Uint32(data)
	n := int(binary.BigEndian.Uint16(data[4:]))
	tables := make([]table, n)
	for i := range tables {
		rec := data[12+16*i:]
		off := binary.BigEndian.Uint32(rec[8:])
		length := binary.BigEndian.Uint32(rec[12:])
		tables[i] = table{tag: binary.BigEndian.Uint32(rec), data: data[off : off+length]}
	}
	return flavor, tables
}

func encodeWOFF(t *testing.T, ttf []byte) []byte {
	t.Helper()
	out, err := wofftest.EncodeWOFF(ttf)
	if err != nil {
		t.Fatalf("EncodeWOFF: %v", err)
	}
	return out
}

func encodeWOFF2(t *testing.T, ttf []byte, transform bool) []byte {
	t.Helper()
	out, err := wofftest.EncodeWOFF2(ttf, transform)
	if err != nil {
		t.Fatalf("EncodeWOFF2: %v", err)
	}
	return out
}

type fontSummary struct {
	Family    string
	Subfamily string
	NumGlyphs int
	Outline   sfnt.Segments
	Advance   fixed.Int26_6
}

func summarize(t *testing.T, data []byte) fontSummary {
	t.Helper()
	f, err := sfnt.Parse(data)
	if err != nil {
		t.Fatalf("sfnt.Parse: %v", err)
	}
	var buf sfnt.Buffer
	family, _ := f.Name(&buf, sfnt.NameIDFamily)
	sub, _ := f.Name(&buf, sfnt.NameIDSubfamily)
	gid, err := f.GlyphIndex(&buf, 'Å')
	if err != nil {
		t.Fatalf("GlyphIndex: %v", err)
	}
	segs, err := f.LoadGlyph(&buf, gid, fixed.I(64), nil)
	if err != nil {
		t.Fatalf("LoadGlyph: %v", err)
	}
	adv, err := f.GlyphAdvance(&buf, gid, fixed.I(64), 0)
	if err != nil {
		t.Fatalf("GlyphAdvance: %v", err)
	}
	return fontSummary{
		Family:    family,
		Subfamily: sub,
		NumGlyphs: f.NumGlyphs(),
		Outline:   append(sfnt.Segments(nil), segs...),
		Advance:   adv,
	}
}

func TestDecodeWOFF(t *testing.T) {
	for name, ttf := range map[string][]byte{"regular": goregular.TTF, "bold": gobold.TTF} {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeWOFF(encodeWOFF(t, ttf))
			if err != nil {
				t.Fatalf("DecodeWOFF() error = %v", err)
			}
			if diff := cmp.Diff(summarize(t, ttf), summarize(t, got)); diff != "" {
				t.Errorf("decoded font mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeWOFF2(t *testing.T) {
	dec, err := NewBrotli(0)
	if err != nil {
		t.Fatal(err)
	}
	for _, transform := range []bool{false, true} {
		name := "null-transform"
		if transform {
			name = "glyf-transform"
		}
		t.Run(name, func(t *testing.T) {
			got, err := DecodeWOFF2(encodeWOFF2(t, goregular.TTF, transform), dec)
			if err != nil {
				t.Fatalf("DecodeWOFF2() error = %v", err)
			}
			if diff := cmp.Diff(summarize(t, goregular.TTF), summarize(t, got)); diff != "" {
				t.Errorf("decoded font mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeWOFF2_NilDecompressor(t *testing.T) {
	if _, err := DecodeWOFF2(encodeWOFF2(t, goregular.TTF, false), nil); !errors.Is(err, ErrNoDecompressor) {
		t.Fatalf("DecodeWOFF2(nil) error = %v, want ErrNoDecompressor", err)
	}
}

func TestDecode_InvalidInput(t *testing.T) {
	dec, _ := NewBrotli(0)
	woff := encodeWOFF(t, goregular.TTF)
	woff2 := encodeWOFF2(t, goregular.TTF, true)

	tests := []struct {
		name   string
		decode func() error
		want   error
	}{
		{"woff empty", func() error { _, err := DecodeWOFF(nil); return err }, ErrInvalidHeader},
		{"woff is ttf", func() error { _, err := DecodeWOFF(goregular.TTF); return err }, ErrInvalidHeader},
		{"woff truncated", func() error { _, err := DecodeWOFF(woff[:len(woff)-10]); return err }, ErrInvalidHeader},
		{"woff2 truncated", func() error { _, err := DecodeWOFF2(woff2[:len(woff2)-10], dec); return err }, ErrInvalidHeader},
		{"woff2 given woff", func() error { _, err := DecodeWOFF2(woff, dec); return err }, ErrInvalidHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.decode(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeWOFF_CorruptTable(t *testing.T) {
	woff := encodeWOFF(t, goregular.TTF)
	// Flip bytes at the start of the zlib-compressed glyf table.
	bad := append([]byte(nil), woff...)
	var glyfOffset int
	for i := 0; i < int(binary.BigEndian.Uint16(bad[12:])); i++ {
		e := bad[woffHeaderSize+i*woffDirEntrySize:]
		if binary.BigEndian.Uint32(e) == tagGlyf {
			glyfOffset = int(binary.BigEndian.Uint32(e[4:]))
		}
	}
	for i := glyfOffset; i < glyfOffset+8; i++ {
		bad[i] ^= 0xFF
	}
	if _, err := DecodeWOFF(bad); err == nil {
		t.Fatal("DecodeWOFF(corrupt) succeeded, want error")
	}
}

func TestReader_Base128(t *testing.T) {
	tests := []struct {
		in      []byte
		want    uint32
		wantErr bool
	}{
		{[]byte{0x3F}, 63, false},
		{[]byte{0x81, 0x00}, 128, false},
		{wofftest.AppendBase128(nil, 0xFFFFFFF), 0xFFFFFFF, false},
		{[]byte{0x80, 0x01}, 0, true},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F}, 0, true},
		{[]byte{0x81}, 0, true},
	}
	for _, tt := range tests {
		r := &reader{buf: tt.in}
		got := r.base128()
		if (r.err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("base128(% x) = %d, err %v; want %d, err %v", tt.in, got, r.err, tt.want, tt.wantErr)
		}
	}
}

func TestReader_Uint255(t *testing.T) {
	tests := []struct {
		in   []byte
		want int
	}{
		{[]byte{0}, 0},
		{[]byte{252}, 252},
		{[]byte{255, 0}, 253},
		{[]byte{254, 0}, 506},
		{[]byte{253, 0x01, 0x00}, 256},
	}
	for _, tt := range tests {
		r := &reader{buf: tt.in}
		if got := r.uint255(); got != tt.want || r.err != nil {
			t.Errorf("uint255(% x) = %d, %v; want %d", tt.in, got, r.err, tt.want)
		}
	}
}

func TestReconstructHmtx(t *testing.T) {
	// Two long metrics, one trailing lsb; proportional lsbs come from xMins.
	data := []byte{
		0x01,       // flags: lsb array absent for proportional glyphs
		0x01, 0xF4, // advance 500
		0x02, 0x58, // advance 600
		0xFF, 0xF6, // lsb -10 for glyph 2
	}
	got, err := reconstructHmtx(data, 2, []int16{5, 7, 9})
	if err != nil {
		t.Fatalf("reconstructHmtx() error = %v", err)
	}
	want := []byte{0x01, 0xF4, 0x00, 0x05, 0x02, 0x58, 0x00, 0x07, 0xFF, 0xF6}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hmtx mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildSFNT_HeadChecksum(t *testing.T) {
	flavor, tables := parseTables(t, goregular.TTF)
	out, err := buildSFNT(flavor, tables)
	if err != nil {
		t.Fatalf("buildSFNT() error = %v", err)
	}
	if sum := checksum(out); sum != headChecksumMagic {
		t.Errorf("whole-font checksum = %#x, want %#x", sum, uint32(headChecksumMagic))
	}
}
