package fontcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/image/font/gofont/goregular"

	"fontshelf/internal/fontdec"
)

func decodeRegular(t *testing.T) *fontdec.Descriptor {
	t.Helper()
	desc, err := fontdec.NewDecoder().Decode(context.Background(), goregular.TTF, "ttf")
	if err != nil {
		t.Fatal(err)
	}
	return desc
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	desc := decodeRegular(t)
	r := NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		t.Fatal("loader called for a registered font")
		return nil, nil
	})
	if got := r.State("a"); got != StateAbsent {
		t.Errorf("State() = %v, want absent", got)
	}
	r.Register("a", desc)
	if got := r.State("a"); got != StateReady {
		t.Errorf("State() = %v, want ready", got)
	}
	got, err := r.Acquire(context.Background(), "a")
	if err != nil || got != desc {
		t.Errorf("Acquire() = %p, %v; want %p", got, err, desc)
	}
}

func TestRegistry_SingleDecode(t *testing.T) {
	desc := decodeRegular(t)
	var calls atomic.Int32
	release := make(chan struct{})
	r := NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		calls.Add(1)
		<-release
		return desc, nil
	})

	var wg sync.WaitGroup
	results := make([]*fontdec.Descriptor, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Acquire(context.Background(), "a")
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	if got := r.State("a"); got != StateDecoding {
		t.Errorf("State() during decode = %v, want decoding", got)
	}
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}
	for i, d := range results {
		if d != desc {
			t.Errorf("caller %d got %p, want %p", i, d, desc)
		}
	}
}

func TestRegistry_FailureIsTerminal(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("corrupt glyf")
	r := NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		calls.Add(1)
		return nil, boom
	})
	events, cancel := r.Subscribe()
	defer cancel()

	for i := 0; i < 3; i++ {
		if _, err := r.Acquire(context.Background(), "bad"); !errors.Is(err, boom) {
			t.Fatalf("Acquire() error = %v, want %v", err, boom)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}
	if got := r.State("bad"); got != StateFailed {
		t.Errorf("State() = %v, want failed", got)
	}
	select {
	case ev := <-events:
		if ev.ID != "bad" || ev.State != StateFailed {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("no failure event")
	}

	r.Forget("bad")
	if got := r.State("bad"); got != StateAbsent {
		t.Errorf("State() after Forget = %v, want absent", got)
	}
}

func TestRegistry_LoaderPanicFails(t *testing.T) {
	r := NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		var offsets []uint32
		_ = offsets[44]
		return nil, nil
	})
	if _, err := r.Acquire(context.Background(), "bad"); err == nil {
		t.Fatal("Acquire() succeeded, want error")
	}
	if got := r.State("bad"); got != StateFailed {
		t.Errorf("State() = %v, want failed", got)
	}
	if r.Err("bad") == nil {
		t.Error("Err() = nil for a failed font")
	}
}

func TestRegistry_UnknownFont(t *testing.T) {
	r := NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		return nil, ErrUnknownFont
	})
	if _, err := r.Acquire(context.Background(), "ghost"); !errors.Is(err, ErrUnknownFont) {
		t.Fatalf("Acquire() error = %v, want ErrUnknownFont", err)
	}
	if got := r.State("ghost"); got != StateAbsent {
		t.Errorf("State() = %v, want absent", got)
	}
}

func TestRegistry_AcquireCancelled(t *testing.T) {
	desc := decodeRegular(t)
	release := make(chan struct{})
	r := NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		<-release
		return desc, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Acquire(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() error = %v, want deadline exceeded", err)
	}
	close(release)

	// The decode still completes for later callers.
	got, err := r.Acquire(context.Background(), "slow")
	if err != nil || got != desc {
		t.Errorf("Acquire() = %p, %v", got, err)
	}
}
