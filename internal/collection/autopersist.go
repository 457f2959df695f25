package collection

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Persister loads and saves rows in durable storage.
type Persister interface {
	Load(ctx context.Context) ([]Row, error)
	Save(ctx context.Context, rows []Row, deleted []string) error
}

// DefaultSaveDelay is how long AutoPersist waits after a change before
// saving, so a batch of uploads becomes one write.
const DefaultSaveDelay = 200 * time.Millisecond

// AutoPersist keeps a Persister in sync with a Store. Saves run in the
// background; callers mutating the store never wait for them.
type AutoPersist struct {
	store *Store
	p     Persister
	delay time.Duration

	mu      sync.Mutex
	dirty   map[string]struct{}
	lastErr error
	remove  func()

	saveMu sync.Mutex
	kick   chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// NewAutoPersist binds store to p. A non-positive delay uses
// DefaultSaveDelay.
func NewAutoPersist(store *Store, p Persister, delay time.Duration) *AutoPersist {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	return &AutoPersist{
		store: store,
		p:     p,
		delay: delay,
		dirty: make(map[string]struct{}),
		kick:  make(chan struct{}, 1),
	}
}

// StartAutoLoad reads every persisted row into the store. Rows whose bytes
// do not match their checksum are logged and left out.
func (a *AutoPersist) StartAutoLoad(ctx context.Context) error {
	rows, err := a.p.Load(ctx)
	if err != nil {
		a.setErr(err)
		return err
	}
	valid := rows[:0]
	for _, r := range rows {
		if err := r.Verify(); err != nil {
			zap.L().Warn("Skipping damaged font row",
				zap.String("id", r.ID),
				zap.String("name", r.Name),
				zap.Error(err),
			)
			continue
		}
		valid = append(valid, r)
	}
	a.store.Load(valid)
	zap.L().Info("Font collection loaded",
		zap.Int("rows", len(valid)),
		zap.Int("skipped", len(rows)-len(valid)),
	)
	return nil
}

// StartAutoSave begins saving changed rows in the background until Stop.
func (a *AutoPersist) StartAutoSave() {
	a.mu.Lock()
	if a.remove != nil {
		a.mu.Unlock()
		return
	}
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	a.remove = a.store.AddListener(a.onChange)
	a.mu.Unlock()

	go a.loop()
}

func (a *AutoPersist) onChange(ch Change) {
	if ch.Loaded {
		return
	}
	a.mu.Lock()
	for _, id := range ch.Updated {
		a.dirty[id] = struct{}{}
	}
	for _, id := range ch.Deleted {
		a.dirty[id] = struct{}{}
	}
	a.mu.Unlock()

	select {
	case a.kick <- struct{}{}:
	default:
	}
}

func (a *AutoPersist) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.stop:
			return
		case <-a.kick:
		}

		timer := time.NewTimer(a.delay)
		select {
		case <-a.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = a.Flush(ctx)
		cancel()
	}
}

// Flush saves every pending change now and returns the save error, if any.
func (a *AutoPersist) Flush(ctx context.Context) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	if len(a.dirty) == 0 {
		a.mu.Unlock()
		return nil
	}
	pending := a.dirty
	a.dirty = make(map[string]struct{})
	a.mu.Unlock()

	// Rows are saved in store order so a reload keeps it.
	var ids []string
	for _, id := range a.store.IDs() {
		if _, ok := pending[id]; ok {
			ids = append(ids, id)
			delete(pending, id)
		}
	}
	var rows []Row
	if len(ids) > 0 {
		rows = a.store.Rows(ids...)
	}
	deleted := make([]string, 0, len(pending))
	for id := range pending {
		deleted = append(deleted, id)
	}

	if err := a.p.Save(ctx, rows, deleted); err != nil {
		zap.L().Error("Failed to save font collection",
			zap.Int("rows", len(rows)),
			zap.Int("deleted", len(deleted)),
			zap.Error(err),
		)
		a.mu.Lock()
		for _, id := range ids {
			a.dirty[id] = struct{}{}
		}
		for _, id := range deleted {
			a.dirty[id] = struct{}{}
		}
		a.mu.Unlock()
		a.setErr(err)
		return err
	}
	a.setErr(nil)
	zap.L().Debug("Font collection saved", zap.Int("rows", len(rows)), zap.Int("deleted", len(deleted)))
	return nil
}

// Pending returns the number of rows waiting to be saved.
func (a *AutoPersist) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.dirty)
}

// LastError returns the error of the most recent load or save, or nil if
// it succeeded.
func (a *AutoPersist) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *AutoPersist) setErr(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}

// Stop ends background saving and flushes what is pending.
func (a *AutoPersist) Stop(ctx context.Context) error {
	a.mu.Lock()
	remove := a.remove
	a.remove = nil
	a.mu.Unlock()
	if remove == nil {
		return a.Flush(ctx)
	}
	remove()
	close(a.stop)
	<-a.done
	return a.Flush(ctx)
}
