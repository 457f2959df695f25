// Package lazy provides a once-only asynchronous initialisation primitive.
package lazy

import (
	"context"
	"sync"
)

// Value holds the result of an initialisation that runs at most once per
// process. Every caller of Get shares the same in-flight or completed
// outcome, including a failure.
type Value[T any] struct {
	init func(ctx context.Context) (T, error)

	once sync.Once
	done chan struct{}
	val  T
	err  error

	mu      sync.Mutex
	started bool
}

// New returns a Value that runs init on first use.
func New[T any](init func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{
		init: init,
		done: make(chan struct{}),
	}
}

// Start triggers the initialisation without waiting for it.
// The init function runs detached from the caller's context cancellation
// so that an abandoned request does not poison the shared result.
func (v *Value[T]) Start(ctx context.Context) {
	v.once.Do(func() {
		v.mu.Lock()
		v.started = true
		v.mu.Unlock()

		initCtx := context.WithoutCancel(ctx)
		go func() {
			defer close(v.done)
			v.val, v.err = v.init(initCtx)
		}()
	})
}

// Get starts the initialisation if needed and waits for its outcome or for
// ctx to be done, whichever comes first.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	v.Start(ctx)
	select {
	case <-v.done:
		return v.val, v.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Started reports whether the initialisation has been triggered.
func (v *Value[T]) Started() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.started
}

// Done returns a channel closed once the initialisation has finished.
func (v *Value[T]) Done() <-chan struct{} {
	return v.done
}

// Err returns the initialisation error, or nil if it has not finished or
// succeeded.
func (v *Value[T]) Err() error {
	select {
	case <-v.done:
		return v.err
	default:
		return nil
	}
}
