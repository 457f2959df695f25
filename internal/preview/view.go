package preview

import (
	"context"
	"image"
	"sync"

	"go.uber.org/zap"

	"fontshelf/internal/fontcache"
	"fontshelf/internal/fontdec"
	"fontshelf/internal/session"
)

// Frame is one rendered state of a view.
type Frame struct {
	Revision uint64
	State    fontcache.State
	Text     string
	Image    *image.RGBA
	Err      error

	// TextRevision is the sample text revision the image was drawn from.
	TextRevision uint64
}

// View is the live preview of one font at one pixel ratio. It decodes the
// font when first shown and re-renders whenever the sample text changes.
type View struct {
	id       string
	dpr      float64
	renderer Renderer
	registry *fontcache.Registry
	text     *session.State

	mu      sync.Mutex
	frame   Frame
	changed chan struct{}
	shown   bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewView returns a hidden view. Nothing is decoded until Show.
func NewView(id string, dpr float64, r Renderer, reg *fontcache.Registry, text *session.State) *View {
	return &View{
		id:       id,
		dpr:      normalizeDPR(dpr),
		renderer: r,
		registry: reg,
		text:     text,
		frame:    Frame{State: reg.State(id)},
		changed:  make(chan struct{}),
	}
}

// ID returns the font id.
func (v *View) ID() string { return v.id }

// Show marks the view visible. The first call starts decoding the font and
// tracking the sample text; later calls do nothing.
func (v *View) Show(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.shown || v.closed {
		return
	}
	v.shown = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	v.cancel = cancel
	v.done = make(chan struct{})
	go v.run(runCtx)
}

func (v *View) run(ctx context.Context) {
	defer close(v.done)

	texts, unsubscribe := v.text.Subscribe()
	defer unsubscribe()

	v.publish(Frame{State: fontcache.StateDecoding})
	desc, err := v.registry.Acquire(ctx, v.id)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		v.publish(Frame{State: fontcache.StateFailed, Err: err})
		return
	}

	v.render(desc)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-texts:
			if !ok {
				return
			}
			v.render(desc)
		}
	}
}

// render draws the current sample text. The text and its revision are read
// together so a frame never claims a revision it did not draw.
func (v *View) render(desc *fontdec.Descriptor) {
	sample, rev := v.text.Current()
	text := DisplayText(sample, desc)
	img, err := v.renderer.Render(desc, text, v.dpr)
	if err != nil {
		zap.L().Warn("Preview render failed", zap.String("id", v.id), zap.Error(err))
	}
	v.publish(Frame{State: fontcache.StateReady, Text: text, Image: img, Err: err, TextRevision: rev})
}

func (v *View) publish(f Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	f.Revision = v.frame.Revision + 1
	v.frame = f
	close(v.changed)
	v.changed = make(chan struct{})
}

// Frame returns the latest frame.
func (v *View) Frame() Frame {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame
}

// Wait blocks until a frame newer than revision exists and returns it.
func (v *View) Wait(ctx context.Context, revision uint64) (Frame, error) {
	for {
		v.mu.Lock()
		f, ch, closed := v.frame, v.changed, v.closed
		v.mu.Unlock()
		if f.Revision > revision || closed {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return f, ctx.Err()
		case <-ch:
		}
	}
}

// WaitSettled blocks until the font is ready and rendered, or has failed.
func (v *View) WaitSettled(ctx context.Context) (Frame, error) {
	var rev uint64
	for {
		f, err := v.Wait(ctx, rev)
		if err != nil {
			return f, err
		}
		if f.State == fontcache.StateFailed || (f.State == fontcache.StateReady && (f.Image != nil || f.Err != nil)) || v.isClosed() {
			return f, nil
		}
		rev = f.Revision
	}
}

// WaitCurrent blocks until the view has settled on the sample text as it is
// at the time of the call. Failed and closed views return at once.
func (v *View) WaitCurrent(ctx context.Context) (Frame, error) {
	want := v.text.Revision()
	var rev uint64
	for {
		f, err := v.Wait(ctx, rev)
		if err != nil {
			return f, err
		}
		if f.State == fontcache.StateFailed || v.isClosed() {
			return f, nil
		}
		if f.State == fontcache.StateReady && (f.Image != nil || f.Err != nil) && f.TextRevision >= want {
			return f, nil
		}
		rev = f.Revision
	}
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Close stops tracking the sample text and releases waiters.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	cancel, done := v.cancel, v.done
	close(v.changed)
	v.changed = make(chan struct{})
	v.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
