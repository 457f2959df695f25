// Package ingest turns batches of user-supplied files into stored,
// decoded fonts.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fontshelf/internal/collection"
	"fontshelf/internal/fontcache"
	"fontshelf/internal/fontdec"
	"fontshelf/internal/storage"
)

// DefaultMaxFileSize is the per-file limit when none is configured.
const DefaultMaxFileSize = 30 << 20

// ErrTooLarge is recorded for files over the size limit.
var ErrTooLarge = errors.New("ingest: file exceeds size limit")

// Failure stages.
const (
	StageRead    = "read"
	StageDecode  = "decode"
	StagePersist = "persist"
)

// File is one input, independent of where it came from.
type File struct {
	Name string
	// Type is the declared MIME type, possibly empty.
	Type string
	Open func() (io.ReadCloser, error)
}

// Registered describes a font that was added to the collection.
type Registered struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Family    string `json:"family"`
	Subfamily string `json:"subfamily"`
	Format    string `json:"format"`
}

// Failure describes a file that could not be added.
type Failure struct {
	Name  string `json:"name"`
	ID    string `json:"id,omitempty"`
	Stage string `json:"stage"`
	Err   error  `json:"-"`
	Error string `json:"error"`
}

// Result summarises one batch. Each input file appears in exactly one list,
// in input order.
type Result struct {
	Registered []Registered `json:"registered"`
	Skipped    []string     `json:"skipped"`
	Failed     []Failure    `json:"failed"`
}

// Decoder is the part of fontdec.Decoder the pipeline needs.
type Decoder interface {
	DecodeFormat(ctx context.Context, data []byte, format fontdec.Format) (*fontdec.Descriptor, error)
}

// Store is where accepted fonts are written.
type Store interface {
	Put(id string, e collection.Entry) error
}

// Pipeline validates, decodes and registers fonts.
type Pipeline struct {
	decoder  Decoder
	store    Store
	registry *fontcache.Registry
	maxSize  int64
	newID    func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxFileSize sets the per-file limit in bytes.
func WithMaxFileSize(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxSize = n
		}
	}
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) {
		p.newID = fn
	}
}

// New returns a Pipeline writing to store and registry.
func New(decoder Decoder, store Store, registry *fontcache.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		decoder:  decoder,
		store:    store,
		registry: registry,
		maxSize:  DefaultMaxFileSize,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest processes files in order. Unsupported extensions are skipped
// silently; a file that fails never stops the batch.
func (p *Pipeline) Ingest(ctx context.Context, files []File) Result {
	var res Result
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, failure(f.Name, "", StageRead, err))
			continue
		}
		p.ingestOne(ctx, f, &res)
	}

	zap.L().Info("Font batch ingested",
		zap.Int("files", len(files)),
		zap.Int("registered", len(res.Registered)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)),
	)
	return res
}

func (p *Pipeline) ingestOne(ctx context.Context, f File, res *Result) {
	format, err := fontdec.FormatFromFilename(f.Name)
	if err != nil {
		zap.L().Debug("Skipping unsupported file", zap.String("name", f.Name))
		res.Skipped = append(res.Skipped, f.Name)
		return
	}

	data, err := p.read(f)
	if err != nil {
		zap.L().Warn("Failed to read font file", zap.String("name", f.Name), zap.Error(err))
		res.Failed = append(res.Failed, failure(f.Name, "", StageRead, err))
		return
	}

	id := p.newID()
	desc, err := p.decoder.DecodeFormat(ctx, data, format)
	if err != nil {
		zap.L().Warn("Failed to decode font",
			zap.String("name", f.Name),
			zap.String("format", string(format)),
			zap.Error(err),
		)
		res.Failed = append(res.Failed, failure(f.Name, "", StageDecode, err))
		return
	}

	fontType := f.Type
	if fontType == "" || fontType == "application/octet-stream" {
		fontType = format.MIMEType()
	}
	entry := collection.NewEntry(data, f.Name, fontType)
	entry.FontFamily = desc.Family
	entry.FontSubfamily = desc.Subfamily

	// The descriptor is usable even if the store rejects the row.
	p.registry.Register(id, desc)
	if err := p.store.Put(id, entry); err != nil {
		zap.L().Error("Failed to store font", zap.String("id", id), zap.String("name", f.Name), zap.Error(err))
		res.Failed = append(res.Failed, failure(f.Name, id, StagePersist, err))
		return
	}

	zap.L().Debug("Font registered",
		zap.String("id", id),
		zap.String("name", f.Name),
		zap.String("family", desc.Family),
	)
	res.Registered = append(res.Registered, Registered{
		ID:        id,
		Name:      f.Name,
		Family:    desc.Family,
		Subfamily: desc.Subfamily,
		Format:    string(format),
	})
}

func (p *Pipeline) read(f File) ([]byte, error) {
	if f.Open == nil {
		return nil, errors.New("no content")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rc, p.maxSize+1))
	if err != nil {
		return nil, err
	}
	if n > p.maxSize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, p.maxSize)
	}
	return buf.Bytes(), nil
}

func failure(name, id, stage string, err error) Failure {
	return Failure{Name: name, ID: id, Stage: stage, Err: err, Error: err.Error()}
}

// BytesFile wraps in-memory content.
func BytesFile(name, mimeType string, data []byte) File {
	return File{
		Name: name,
		Type: mimeType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// DirectoryFiles flattens a directory tree into Files named by their path
// relative to dir.
func DirectoryFiles(fsys *storage.FileSystem, dir string, excludes []string) ([]File, error) {
	paths, err := fsys.FindFiles(dir, excludes)
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		if rel, err := filepath.Rel(dir, p); err == nil {
			name = filepath.ToSlash(rel)
		}
		full := p
		files = append(files, File{
			Name: name,
			Open: func() (io.ReadCloser, error) {
				return fsys.Open(full)
			},
		})
	}
	return files, nil
}
