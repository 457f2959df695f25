package fontcache

import (
	"context"
	"fmt"

	"fontshelf/internal/collection"
	"fontshelf/internal/fontdec"
)

// Decoder is the part of fontdec.Decoder a loader needs.
type Decoder interface {
	DecodeFormat(ctx context.Context, data []byte, format fontdec.Format) (*fontdec.Descriptor, error)
}

// StoreLoader decodes fonts from their stored bytes. The format comes from
// the stored file name, then from the stored media type.
func StoreLoader(store *collection.Store, dec Decoder) Loader {
	return func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		e, ok := store.Entry(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFont, id)
		}
		format, err := fontdec.FormatFromFilename(e.Name)
		if err != nil {
			if format, err = fontdec.FormatFromMIMEType(e.FontType); err != nil {
				return nil, fmt.Errorf("font %s: %w", id, err)
			}
		}
		data, err := e.Bytes()
		if err != nil {
			return nil, fmt.Errorf("font %s: %w", id, err)
		}
		return dec.DecodeFormat(ctx, data, format)
	}
}
