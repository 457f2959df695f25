package collection

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/zeebo/xxh3"
)

// Field names of a font row.
const (
	FieldFileBase64    = "file_base64"
	FieldName          = "name"
	FieldFontType      = "font_type"
	FieldFontFamily    = "font_family"
	FieldFontSubfamily = "font_subfamily"
	FieldChecksum      = "checksum"
	FieldCreatedAt     = "created_at"
)

var fields = []string{
	FieldFileBase64,
	FieldName,
	FieldFontType,
	FieldFontFamily,
	FieldFontSubfamily,
	FieldChecksum,
	FieldCreatedAt,
}

func knownField(name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// Entry is one stored font file.
type Entry struct {
	FileBase64    string
	Name          string
	FontType      string
	FontFamily    string
	FontSubfamily string
	Checksum      string
	CreatedAt     time.Time
}

// Row pairs an Entry with its identifier.
type Row struct {
	ID string
	Entry
}

// NewEntry builds an Entry for raw font bytes, encoding them and computing
// their checksum.
func NewEntry(data []byte, name, fontType string) Entry {
	return Entry{
		FileBase64: base64.StdEncoding.EncodeToString(data),
		Name:       name,
		FontType:   fontType,
		Checksum:   Checksum(data),
		CreatedAt:  time.Now().UTC(),
	}
}

// Bytes decodes the stored font file.
func (e Entry) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(e.FileBase64)
	if err != nil {
		return nil, fmt.Errorf("decode file data: %w", err)
	}
	return data, nil
}

// Size returns the length of the decoded file without decoding it.
func (e Entry) Size() int {
	s := e.FileBase64
	n := base64.StdEncoding.DecodedLen(len(s))
	for i := len(s) - 1; i >= 0 && s[i] == '='; i-- {
		n--
	}
	return n
}

// Verify checks the decoded bytes against the stored checksum. Entries
// without a checksum pass.
func (e Entry) Verify() error {
	data, err := e.Bytes()
	if err != nil {
		return err
	}
	if e.Checksum != "" && Checksum(data) != e.Checksum {
		return ErrChecksumMismatch
	}
	return nil
}

// Checksum returns the hex xxh3 digest used to detect damaged rows.
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}

func (e Entry) cells() map[string]string {
	c := map[string]string{
		FieldFileBase64:    e.FileBase64,
		FieldName:          e.Name,
		FieldFontType:      e.FontType,
		FieldFontFamily:    e.FontFamily,
		FieldFontSubfamily: e.FontSubfamily,
		FieldChecksum:      e.Checksum,
	}
	if !e.CreatedAt.IsZero() {
		c[FieldCreatedAt] = e.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return c
}

func entryFromCells(c map[string]string) Entry {
	e := Entry{
		FileBase64:    c[FieldFileBase64],
		Name:          c[FieldName],
		FontType:      c[FieldFontType],
		FontFamily:    c[FieldFontFamily],
		FontSubfamily: c[FieldFontSubfamily],
		Checksum:      c[FieldChecksum],
	}
	if ts, ok := c[FieldCreatedAt]; ok {
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return e
}
