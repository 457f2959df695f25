// Package fontdec turns raw font files into descriptors exposing the
// family names and glyph outlines needed for previews.
package fontdec

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	gotext "github.com/go-text/typesetting/font"
	"go.uber.org/zap"
	"golang.org/x/image/font/sfnt"

	"fontshelf/internal/lazy"
	"fontshelf/internal/woff"
)

// DecompressorInit loads the WOFF2 decompression dependency.
type DecompressorInit func(ctx context.Context) (woff.Decompressor, error)

// DefaultDecompressorInit prepares the brotli decompressor with the given
// output limit in bytes.
func DefaultDecompressorInit(maxSize int) DecompressorInit {
	return func(ctx context.Context) (woff.Decompressor, error) {
		return woff.NewBrotli(maxSize)
	}
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithDecompressorInit replaces the WOFF2 dependency loader.
func WithDecompressorInit(init DecompressorInit) Option {
	return func(d *Decoder) {
		d.init = init
	}
}

// WithoutShaping disables HarfBuzz shaping; glyph positions then come from
// advances and the kern table only.
func WithoutShaping() Option {
	return func(d *Decoder) {
		d.shaping = false
	}
}

// Decoder parses font containers. It is safe for concurrent use.
type Decoder struct {
	init       DecompressorInit
	dependency *lazy.Value[woff.Decompressor]
	shaping    bool
}

// NewDecoder returns a Decoder. The WOFF2 dependency is initialised on the
// first WOFF2 decode or on Prepare, and only once.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		init:    DefaultDecompressorInit(0),
		shaping: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	init := d.init
	d.dependency = lazy.New(func(ctx context.Context) (woff.Decompressor, error) {
		dec, err := init(ctx)
		if err == nil && dec == nil {
			err = errors.New("loader returned no decompressor")
		}
		if err != nil {
			zap.L().Error("WOFF2 decompression dependency failed to load", zap.Error(err))
			return nil, err
		}
		zap.L().Debug("WOFF2 decompression dependency ready")
		return dec, nil
	})
	return d
}

// Prepare starts loading the WOFF2 dependency in the background.
func (d *Decoder) Prepare(ctx context.Context) {
	d.dependency.Start(ctx)
}

// DependencyReady reports whether the WOFF2 dependency finished loading
// successfully.
func (d *Decoder) DependencyReady() bool {
	select {
	case <-d.dependency.Done():
		return d.dependency.Err() == nil
	default:
		return false
	}
}

// Decode parses data declared with the given extension. Unknown extensions
// yield ErrUnsupportedFormat, malformed data a *DecodeError.
func (d *Decoder) Decode(ctx context.Context, data []byte, ext string) (*Descriptor, error) {
	format, err := ParseFormat(ext)
	if err != nil {
		return nil, err
	}
	return d.DecodeFormat(ctx, data, format)
}

// DecodeFormat parses data as the given container format.
func (d *Decoder) DecodeFormat(ctx context.Context, data []byte, format Format) (desc *Descriptor, err error) {
	// The parsers index into attacker-controlled tables and may panic on
	// malformed input.
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("Font parser panicked", zap.String("format", string(format)), zap.Any("panic", r))
			desc, err = nil, &DecodeError{Format: format, Err: fmt.Errorf("malformed font: %v", r)}
		}
	}()

	if len(data) == 0 {
		return nil, &DecodeError{Format: format, Err: errors.New("empty file")}
	}

	sfntData := data
	switch format {
	case FormatTTF, FormatOTF:
	case FormatWOFF:
		rebuilt, err := woff.DecodeWOFF(data)
		if err != nil {
			return nil, &DecodeError{Format: format, Err: err}
		}
		sfntData = rebuilt
	case FormatWOFF2:
		dec, err := d.dependency.Get(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}
		rebuilt, err := woff.DecodeWOFF2(data, dec)
		if err != nil {
			return nil, &DecodeError{Format: format, Err: err}
		}
		sfntData = rebuilt
	default:
		return nil, ErrUnsupportedFormat
	}

	f, err := sfnt.Parse(sfntData)
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}

	desc = &Descriptor{
		Format: format,
		font:   f,
		data:   sfntData,
	}
	var buf sfnt.Buffer
	desc.Family = firstName(f, &buf, sfnt.NameIDFamily, sfnt.NameIDTypographicFamily)
	desc.Subfamily = firstName(f, &buf, sfnt.NameIDSubfamily, sfnt.NameIDTypographicSubfamily)

	if d.shaping {
		face, err := gotext.ParseTTF(bytes.NewReader(sfntData))
		if err != nil {
			zap.L().Debug("Shaping unavailable, using plain advances",
				zap.String("family", desc.Family),
				zap.Error(err),
			)
		} else {
			desc.shaped = face.Font
		}
	}
	return desc, nil
}

func firstName(f *sfnt.Font, buf *sfnt.Buffer, ids ...sfnt.NameID) string {
	for _, id := range ids {
		if name, err := f.Name(buf, id); err == nil && name != "" {
			return name
		}
	}
	return ""
}
