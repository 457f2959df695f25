package fontdec

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat means the extension is not a known font
	// container. Callers skip such files silently.
	ErrUnsupportedFormat = errors.New("fontdec: unsupported font format")

	// ErrDependencyUnavailable is returned for every WOFF2 decode once the
	// decompression dependency failed to initialise.
	ErrDependencyUnavailable = errors.New("fontdec: woff2 decompression unavailable")
)

// DecodeError reports a font whose container or tables could not be parsed.
type DecodeError struct {
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("fontdec: decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
