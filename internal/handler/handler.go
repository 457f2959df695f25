package handler

import (
	"sync"

	"fontshelf/internal/collection"
	"fontshelf/internal/fontcache"
	"fontshelf/internal/fontdec"
	"fontshelf/internal/grouping"
	"fontshelf/internal/ingest"
	"fontshelf/internal/preview"
	"fontshelf/internal/session"
	"fontshelf/internal/snapshot"
	"fontshelf/internal/storage"
)

// Deps are the services the HTTP layer works with. FontRoot, Persist and
// Snapshots may be nil.
type Deps struct {
	Store        *collection.Store
	Persist      *collection.AutoPersist
	Registry     *fontcache.Registry
	Decoder      *fontdec.Decoder
	Pipeline     *ingest.Pipeline
	Board        *preview.Board
	SampleText   *session.State
	FontRoot     *storage.FileSystem
	ScanExcludes []string
	Snapshots    *snapshot.Manager
	Grouping     grouping.Options
	MaxFileSize  int64
}

type Handler struct {
	store        *collection.Store
	persist      *collection.AutoPersist
	registry     *fontcache.Registry
	decoder      *fontdec.Decoder
	pipeline     *ingest.Pipeline
	board        *preview.Board
	text         *session.State
	fontRoot     *storage.FileSystem
	scanExcludes []string
	snapshots    *snapshot.Manager
	grouping     grouping.Options
	maxFileSize  int64

	done      chan struct{}
	closeOnce sync.Once
}

func NewHandler(d Deps) *Handler {
	maxSize := d.MaxFileSize
	if maxSize <= 0 {
		maxSize = ingest.DefaultMaxFileSize
	}
	return &Handler{
		store:        d.Store,
		persist:      d.Persist,
		registry:     d.Registry,
		decoder:      d.Decoder,
		pipeline:     d.Pipeline,
		board:        d.Board,
		text:         d.SampleText,
		fontRoot:     d.FontRoot,
		scanExcludes: d.ScanExcludes,
		snapshots:    d.Snapshots,
		grouping:     d.Grouping,
		maxFileSize:  maxSize,
		done:         make(chan struct{}),
	}
}

// Close ends open event streams so the server can shut down.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
