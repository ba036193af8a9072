package processor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"subrender/internal/renderer"
)

type fakeEngine struct {
	bundleDelay time.Duration
	// bundleErrs are returned by successive builds before they succeed.
	bundleErrs   []error
	bundleCalls  atomic.Int32
	selectErr    error
	renderErr    error
	renderBlock  bool
	renderCalls  atomic.Int32
	inFlight     atomic.Int32
	maxInFlight  atomic.Int32
	renderDelay  time.Duration
	onRenderFile func(opts renderer.RenderOptions)

	mu        sync.Mutex
	lastOpts  renderer.RenderOptions
	lastProps map[string]any
}

func (f *fakeEngine) Bundle(ctx context.Context, entryPoint string) (renderer.Bundle, error) {
	n := int(f.bundleCalls.Add(1))
	if f.bundleDelay > 0 {
		select {
		case <-time.After(f.bundleDelay):
		case <-ctx.Done():
			return renderer.Bundle{}, ctx.Err()
		}
	}
	if n <= len(f.bundleErrs) {
		return renderer.Bundle{}, f.bundleErrs[n-1]
	}
	return renderer.Bundle{ID: fmt.Sprintf("bundle-%d", n), ServeURL: "http://engine/bundle", BuiltAt: time.Now()}, nil
}

func (f *fakeEngine) SelectComposition(ctx context.Context, b renderer.Bundle, id string, props map[string]any) (renderer.Composition, error) {
	f.mu.Lock()
	f.lastProps = props
	f.mu.Unlock()
	if f.selectErr != nil {
		return renderer.Composition{}, f.selectErr
	}
	return renderer.Composition{ID: id, Width: 1080, Height: 1080, FPS: 60, DurationInFrames: 1}, nil
}

func (f *fakeEngine) RenderMedia(ctx context.Context, opts renderer.RenderOptions, onProgress renderer.ProgressFunc) error {
	f.renderCalls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if cur <= peak || f.maxInFlight.CompareAndSwap(peak, cur) {
			break
		}
	}

	f.mu.Lock()
	f.lastOpts = opts
	f.mu.Unlock()

	if err := os.WriteFile(opts.OutputPath, []byte("partial"), 0o644); err != nil {
		return err
	}
	if f.onRenderFile != nil {
		f.onRenderFile(opts)
	}
	if onProgress != nil {
		onProgress(0.5)
	}

	if f.renderBlock {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.renderDelay > 0 {
		select {
		case <-time.After(f.renderDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.renderErr != nil {
		return f.renderErr
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

func (f *fakeEngine) options() renderer.RenderOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOpts
}

func (f *fakeEngine) props() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastProps
}

type ledgerEvent struct {
	ID     string
	Status string
	Detail string
}

type fakeLedger struct {
	mu     sync.Mutex
	events []ledgerEvent
	err    error
}

func (l *fakeLedger) record(id, status, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ledgerEvent{ID: id, Status: status, Detail: detail})
	return l.err
}

func (l *fakeLedger) MarkRunning(ctx context.Context, id string) error {
	return l.record(id, "RUNNING", "")
}

func (l *fakeLedger) MarkDone(ctx context.Context, id, artifact, mirrorKey string) error {
	return l.record(id, "DONE", artifact)
}

func (l *fakeLedger) MarkFailed(ctx context.Context, id, reason string) error {
	return l.record(id, "FAILED", reason)
}

func (l *fakeLedger) statuses() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Status)
	}
	return out
}
