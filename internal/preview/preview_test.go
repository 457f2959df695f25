package preview

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/image/font/gofont/goregular"

	"fontshelf/internal/fontcache"
	"fontshelf/internal/fontdec"
	"fontshelf/internal/session"
)

func regular(t *testing.T) *fontdec.Descriptor {
	t.Helper()
	desc, err := fontdec.NewDecoder().Decode(context.Background(), goregular.TTF, "ttf")
	if err != nil {
		t.Fatal(err)
	}
	return desc
}

func inked(img *image.RGBA) (n int, minY, maxY int) {
	minY, maxY = img.Bounds().Dy(), -1
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y).A != 0 {
				n++
				minY, maxY = min(minY, y), max(maxY, y)
			}
		}
	}
	return n, minY, maxY
}

func TestRenderer_Render(t *testing.T) {
	desc := regular(t)
	r := DefaultRenderer()

	tests := []struct {
		dpr          float64
		wantW, wantH int
	}{
		{1, 1000, 40},
		{2, 2000, 80},
		{0, 1000, 40},
		{1.5, 1500, 60},
		{1.1, 1000, 40},
		{10, 4000, 160},
	}
	for _, tt := range tests {
		img, err := r.Render(desc, "Hamburgefonstiv", tt.dpr)
		if err != nil {
			t.Fatalf("Render(dpr %v) error = %v", tt.dpr, err)
		}
		if got := img.Bounds().Size(); got != image.Pt(tt.wantW, tt.wantH) {
			t.Errorf("Render(dpr %v) size = %v, want %dx%d", tt.dpr, got, tt.wantW, tt.wantH)
		}
		n, minY, maxY := inked(img)
		if n == 0 {
			t.Errorf("Render(dpr %v) drew nothing", tt.dpr)
			continue
		}
		dpr := normalizeDPR(tt.dpr)
		// Cap height sits well above the baseline, which is near the bottom.
		if float64(maxY) > 40*dpr || float64(minY) > 32*dpr {
			t.Errorf("Render(dpr %v) ink rows %d..%d outside canvas layout", tt.dpr, minY, maxY)
		}
	}
}

func TestRenderer_NilDescriptor(t *testing.T) {
	img, err := DefaultRenderer().Render(nil, "anything", 2)
	if img != nil || err != nil {
		t.Errorf("Render(nil) = %v, %v; want nil, nil", img, err)
	}
}

func TestDisplayText(t *testing.T) {
	desc := regular(t)
	if got := DisplayText("", desc); got != "Go" {
		t.Errorf("DisplayText(\"\") = %q, want family name", got)
	}
	if got := DisplayText("Hi", desc); got != "Hi" {
		t.Errorf("DisplayText(Hi) = %q", got)
	}
	if got := DisplayText("", nil); got != "" {
		t.Errorf("DisplayText(nil) = %q", got)
	}
}

func TestEncodePNG(t *testing.T) {
	img, err := DefaultRenderer().Render(regular(t), "Go", 1)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		t.Fatal(err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("decoded bounds = %v, want %v", decoded.Bounds(), img.Bounds())
	}
}

func TestView_DecodesOnShowAndFollowsText(t *testing.T) {
	desc := regular(t)
	var loads atomic.Int32
	reg := fontcache.NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		loads.Add(1)
		return desc, nil
	})
	text := session.New()
	board := NewBoard(DefaultRenderer(), reg, text)
	defer board.Close()

	v := board.View("font-1", 1)
	if board.View("font-1", 1) != v {
		t.Fatal("Board.View returned a second view for the same key")
	}
	time.Sleep(10 * time.Millisecond)
	if loads.Load() != 0 {
		t.Fatal("font decoded before the view was shown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v.Show(ctx)
	f, err := v.WaitSettled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f.State != fontcache.StateReady || f.Text != "Go" || f.Image == nil {
		t.Fatalf("first frame = state %v text %q image %v", f.State, f.Text, f.Image != nil)
	}

	text.SetText("Sphinx")
	for f.Text != "Sphinx" {
		if f, err = v.Wait(ctx, f.Revision); err != nil {
			t.Fatalf("no frame for new text: %v", err)
		}
	}
	if f.Image == nil {
		t.Error("re-render produced no image")
	}
	if loads.Load() != 1 {
		t.Errorf("font decoded %d times, want 1", loads.Load())
	}
}

func TestView_WaitCurrentSeesLatestText(t *testing.T) {
	desc := regular(t)
	reg := fontcache.NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		return desc, nil
	})
	text := session.New()
	v := NewView("font-1", 1, DefaultRenderer(), reg, text)
	defer v.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v.Show(ctx)
	for i, sample := range []string{"one", "two", "three", "four", "five"} {
		text.SetText(sample)
		f, err := v.WaitCurrent(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if f.Text != sample || f.TextRevision != uint64(i+1) {
			t.Errorf("frame after SetText(%q) = text %q revision %d", sample, f.Text, f.TextRevision)
		}
	}
}

func TestView_Failed(t *testing.T) {
	boom := errors.New("bad table")
	reg := fontcache.NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		return nil, boom
	})
	v := NewView("bad", 1, DefaultRenderer(), reg, session.New())
	defer v.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v.Show(ctx)
	f, err := v.WaitSettled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f.State != fontcache.StateFailed || !errors.Is(f.Err, boom) || f.Image != nil {
		t.Errorf("frame = %+v, want failed without image", f)
	}
}

func TestBoard_Forget(t *testing.T) {
	reg := fontcache.NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		return nil, fontcache.ErrUnknownFont
	})
	board := NewBoard(DefaultRenderer(), reg, session.New())
	board.View("a", 1)
	board.View("a", 2)
	board.View("b", 1)
	board.Forget("a")
	if got := board.Len(); got != 1 {
		t.Errorf("Len() = %d after Forget, want 1", got)
	}
}

func TestBoard_SnapsPixelRatio(t *testing.T) {
	reg := fontcache.NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		return nil, fontcache.ErrUnknownFont
	})
	board := NewBoard(DefaultRenderer(), reg, session.New())
	defer board.Close()

	for i := range 1000 {
		board.View("a", 0.9+float64(i)*0.0002)
	}
	if got := board.Len(); got != 1 {
		t.Errorf("Len() = %d after ratios 0.9..1.1, want 1", got)
	}
	for i := range 1000 {
		board.View("a", float64(i)*0.01)
	}
	// Quarter steps from 0.25 to 4.
	if got := board.Len(); got != 16 {
		t.Errorf("Len() = %d after ratios 0..10, want 16", got)
	}
}

func TestBoard_EvictsLeastRecentlyUsed(t *testing.T) {
	reg := fontcache.NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		return nil, fontcache.ErrUnknownFont
	})
	board := NewBoard(DefaultRenderer(), reg, session.New(), WithMaxViews(2))
	defer board.Close()
	clock := time.Unix(1700000000, 0)
	board.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	a := board.View("a", 1)
	b := board.View("b", 1)
	board.View("a", 1)
	board.View("c", 1)

	if got := board.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	if !b.isClosed() {
		t.Error("least recently used view b still open")
	}
	if a.isClosed() || board.View("a", 1) != a {
		t.Error("recently used view a was evicted")
	}
}

func TestBoard_ClosesIdleViews(t *testing.T) {
	reg := fontcache.NewRegistry(func(ctx context.Context, id string) (*fontdec.Descriptor, error) {
		return nil, fontcache.ErrUnknownFont
	})
	board := NewBoard(DefaultRenderer(), reg, session.New(), WithIdleTimeout(time.Minute))
	defer board.Close()
	clock := time.Unix(1700000000, 0)
	board.now = func() time.Time { return clock }

	stale := board.View("a", 1)
	clock = clock.Add(30 * time.Second)
	fresh := board.View("b", 1)
	clock = clock.Add(45 * time.Second)
	board.View("c", 1)

	if !stale.isClosed() {
		t.Error("view idle for 75s still open")
	}
	if fresh.isClosed() {
		t.Error("view idle for 45s was closed")
	}
	if got := board.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}
