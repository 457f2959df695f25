package fontdec

import (
	"path/filepath"
	"strings"
)

// Format is a supported font container.
type Format string

const (
	FormatTTF   Format = "ttf"
	FormatOTF   Format = "otf"
	FormatWOFF  Format = "woff"
	FormatWOFF2 Format = "woff2"
)

var supportedFormats = map[string]Format{
	"ttf":   FormatTTF,
	"otf":   FormatOTF,
	"woff":  FormatWOFF,
	"woff2": FormatWOFF2,
}

// Formats lists the supported containers.
func Formats() []Format {
	return []Format{FormatTTF, FormatOTF, FormatWOFF, FormatWOFF2}
}

// ParseFormat maps an extension ("ttf", ".TTF") to a Format.
func ParseFormat(ext string) (Format, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if f, ok := supportedFormats[ext]; ok {
		return f, nil
	}
	return "", ErrUnsupportedFormat
}

// FormatFromFilename derives the Format from a file name's extension.
func FormatFromFilename(name string) (Format, error) {
	return ParseFormat(filepath.Ext(name))
}

// Compressed reports whether the container needs the decompression
// dependency before it can be parsed.
func (f Format) Compressed() bool {
	return f == FormatWOFF2
}

// MIMEType returns the IANA media type for the format.
func (f Format) MIMEType() string {
	switch f {
	case FormatTTF:
		return "font/ttf"
	case FormatOTF:
		return "font/otf"
	case FormatWOFF:
		return "font/woff"
	case FormatWOFF2:
		return "font/woff2"
	default:
		return "application/octet-stream"
	}
}

// FormatFromMIMEType maps a font media type to a Format. Legacy
// application/x-font-* and application/font-* types are accepted.
func FormatFromMIMEType(mimeType string) (Format, error) {
	t := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	for _, prefix := range []string{"font/", "application/x-font-", "application/font-"} {
		if rest, ok := strings.CutPrefix(t, prefix); ok {
			switch rest {
			case "truetype":
				return FormatTTF, nil
			case "opentype":
				return FormatOTF, nil
			}
			return ParseFormat(rest)
		}
	}
	return "", ErrUnsupportedFormat
}
