package preview

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"fontshelf/internal/fontcache"
	"fontshelf/internal/session"
)

const (
	defaultMaxViews    = 256
	defaultIdleTimeout = 10 * time.Minute
)

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithMaxViews caps the number of open views. The least recently used view
// is closed to make room.
func WithMaxViews(n int) BoardOption {
	return func(b *Board) {
		if n > 0 {
			b.maxViews = n
		}
	}
}

// WithIdleTimeout closes views that have not been requested for d.
func WithIdleTimeout(d time.Duration) BoardOption {
	return func(b *Board) {
		if d > 0 {
			b.idleTimeout = d
		}
	}
}

type boardEntry struct {
	view *View
	used time.Time
}

// Board owns the live views shown to clients.
type Board struct {
	renderer    Renderer
	registry    *fontcache.Registry
	text        *session.State
	maxViews    int
	idleTimeout time.Duration
	now         func() time.Time

	mu    sync.Mutex
	views map[string]*boardEntry
}

// NewBoard returns an empty Board.
func NewBoard(r Renderer, reg *fontcache.Registry, text *session.State, opts ...BoardOption) *Board {
	b := &Board{
		renderer:    r,
		registry:    reg,
		text:        text,
		maxViews:    defaultMaxViews,
		idleTimeout: defaultIdleTimeout,
		now:         time.Now,
		views:       make(map[string]*boardEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func viewKey(id string, dpr float64) string {
	return fmt.Sprintf("%s@%g", id, normalizeDPR(dpr))
}

// View returns the view of id at dpr, creating it if needed. Views idle
// past the timeout are closed first.
func (b *Board) View(id string, dpr float64) *View {
	key := viewKey(id, dpr)
	now := b.now()

	b.mu.Lock()
	closing := b.expireLocked(now)
	e, ok := b.views[key]
	if ok {
		e.used = now
	} else {
		if len(b.views) >= b.maxViews {
			closing = append(closing, b.evictOldestLocked())
		}
		e = &boardEntry{view: NewView(id, dpr, b.renderer, b.registry, b.text), used: now}
		b.views[key] = e
	}
	b.mu.Unlock()

	for _, v := range closing {
		v.Close()
	}
	return e.view
}

func (b *Board) expireLocked(now time.Time) []*View {
	var closing []*View
	for key, e := range b.views {
		if now.Sub(e.used) > b.idleTimeout {
			closing = append(closing, e.view)
			delete(b.views, key)
		}
	}
	if len(closing) > 0 {
		zap.L().Debug("Closed idle previews", zap.Int("count", len(closing)))
	}
	return closing
}

func (b *Board) evictOldestLocked() *View {
	var oldestKey string
	var oldest *boardEntry
	for key, e := range b.views {
		if oldest == nil || e.used.Before(oldest.used) {
			oldestKey, oldest = key, e
		}
	}
	delete(b.views, oldestKey)
	return oldest.view
}

// Len returns the number of open views.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.views)
}

// Forget closes every view of a deleted font.
func (b *Board) Forget(id string) {
	b.mu.Lock()
	var closing []*View
	for key, e := range b.views {
		if e.view.ID() == id {
			closing = append(closing, e.view)
			delete(b.views, key)
		}
	}
	b.mu.Unlock()
	for _, v := range closing {
		v.Close()
	}
}

// Close closes every view.
func (b *Board) Close() {
	b.mu.Lock()
	views := b.views
	b.views = make(map[string]*boardEntry)
	b.mu.Unlock()
	for _, e := range views {
		e.view.Close()
	}
}
