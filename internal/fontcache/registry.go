// Package fontcache tracks the decoded descriptor of every font in the
// collection and decodes stored fonts on demand.
package fontcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"fontshelf/internal/fontdec"
)

// ErrUnknownFont is returned when no descriptor exists and the loader has
// nothing stored under the id.
var ErrUnknownFont = errors.New("fontcache: unknown font")

// State is the lifecycle position of one font.
type State int

const (
	StateAbsent State = iota
	StateDecoding
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDecoding:
		return "decoding"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "absent"
	}
}

// Event reports that a font reached a terminal state.
type Event struct {
	ID    string
	State State
	Err   error
}

// Loader decodes the stored bytes of a font.
type Loader func(ctx context.Context, id string) (*fontdec.Descriptor, error)

type slot struct {
	state State
	desc  *fontdec.Descriptor
	err   error
}

// Registry maps font ids to descriptors. Ready and failed are terminal for
// the lifetime of the registry; only Forget resets an id.
type Registry struct {
	load Loader

	mu    sync.RWMutex
	slots map[string]*slot
	group singleflight.Group

	smu  sync.Mutex
	subs map[int]chan Event
	next int
}

// NewRegistry returns a Registry that decodes unknown ids with load.
func NewRegistry(load Loader) *Registry {
	return &Registry{
		load:  load,
		slots: make(map[string]*slot),
		subs:  make(map[int]chan Event),
	}
}

// Register stores an already decoded descriptor. A font that is already
// ready keeps its first descriptor.
func (r *Registry) Register(id string, desc *fontdec.Descriptor) {
	r.mu.Lock()
	if s, ok := r.slots[id]; ok && s.state == StateReady {
		r.mu.Unlock()
		return
	}
	r.slots[id] = &slot{state: StateReady, desc: desc}
	r.mu.Unlock()
	r.publish(Event{ID: id, State: StateReady})
}

// State returns the lifecycle state of id.
func (r *Registry) State(id string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.slots[id]; ok {
		return s.state
	}
	return StateAbsent
}

// Get returns the descriptor of a ready font.
func (r *Registry) Get(id string) (*fontdec.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.slots[id]; ok && s.state == StateReady {
		return s.desc, true
	}
	return nil, false
}

// Err returns the decode error of a failed font.
func (r *Registry) Err(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.slots[id]; ok && s.state == StateFailed {
		return s.err
	}
	return nil
}

// Acquire returns the descriptor of id, decoding it with the loader if it
// is absent. Concurrent callers share a single decode. A failed font
// returns its original error without decoding again.
func (r *Registry) Acquire(ctx context.Context, id string) (*fontdec.Descriptor, error) {
	r.mu.Lock()
	if s, ok := r.slots[id]; ok {
		switch s.state {
		case StateReady:
			r.mu.Unlock()
			return s.desc, nil
		case StateFailed:
			r.mu.Unlock()
			return nil, s.err
		}
	} else {
		r.slots[id] = &slot{state: StateDecoding}
	}
	r.mu.Unlock()

	ch := r.group.DoChan(id, func() (any, error) {
		return r.decode(context.WithoutCancel(ctx), id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*fontdec.Descriptor), nil
	}
}

// safeLoad runs the loader, turning a panic into an error so it cannot
// escape the singleflight goroutine.
func (r *Registry) safeLoad(ctx context.Context, id string) (desc *fontdec.Descriptor, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			desc, err = nil, fmt.Errorf("fontcache: decoding %s panicked: %v", id, rec)
		}
	}()
	return r.load(ctx, id)
}

func (r *Registry) decode(ctx context.Context, id string) (*fontdec.Descriptor, error) {
	desc, err := r.safeLoad(ctx, id)

	r.mu.Lock()
	s, ok := r.slots[id]
	if !ok {
		// Forgotten while decoding.
		r.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return nil, ErrUnknownFont
	}
	if s.state == StateReady {
		r.mu.Unlock()
		return s.desc, nil
	}
	if err != nil {
		if errors.Is(err, ErrUnknownFont) {
			delete(r.slots, id)
			r.mu.Unlock()
			return nil, err
		}
		s.state, s.err = StateFailed, err
		r.mu.Unlock()
		zap.L().Warn("Font failed to decode", zap.String("id", id), zap.Error(err))
		r.publish(Event{ID: id, State: StateFailed, Err: err})
		return nil, err
	}
	s.state, s.desc = StateReady, desc
	r.mu.Unlock()
	r.publish(Event{ID: id, State: StateReady})
	return desc, nil
}

// Forget drops the descriptor of a deleted font.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	delete(r.slots, id)
	r.mu.Unlock()
	r.group.Forget(id)
}

// Len returns the number of ids the registry knows about.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// Subscribe returns a channel of ready and failed transitions. Events are
// dropped for subscribers that fall behind by more than the buffer.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	r.smu.Lock()
	defer r.smu.Unlock()
	id := r.next
	r.next++
	ch := make(chan Event, 64)
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.smu.Lock()
			defer r.smu.Unlock()
			delete(r.subs, id)
			close(ch)
		})
	}
}

func (r *Registry) publish(ev Event) {
	r.smu.Lock()
	defer r.smu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
