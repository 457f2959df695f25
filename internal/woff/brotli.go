package woff

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Decompressor inflates the single compressed data block of a WOFF2 file.
// size is the exact number of bytes the block must inflate to.
type Decompressor interface {
	Decompress(src []byte, size int) ([]byte, error)
}

// Brotli is the Decompressor used for WOFF2 files.
type Brotli struct {
	maxSize int
}

// NewBrotli returns a Brotli decompressor refusing to inflate more than
// maxSize bytes. A non-positive maxSize selects the package limit.
func NewBrotli(maxSize int) (*Brotli, error) {
	if maxSize <= 0 || maxSize > maxSFNTSize {
		maxSize = maxSFNTSize
	}
	return &Brotli{maxSize: maxSize}, nil
}

// Decompress implements Decompressor.
func (b *Brotli) Decompress(src []byte, size int) ([]byte, error) {
	if size < 0 || size > b.maxSize {
		return nil, ErrTooLarge
	}
	r := brotli.NewReader(bytes.NewReader(src))
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("woff: brotli: %w", err)
	}
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n != 0 {
		return nil, fmt.Errorf("%w: brotli stream exceeds declared size", ErrInvalidTable)
	}
	return out, nil
}
