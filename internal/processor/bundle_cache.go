package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"subrender/internal/pkg/errors"
	"subrender/internal/pkg/logger"
	"subrender/internal/renderer"
)

type BundleState string

const (
	BundleIdle     BundleState = "idle"
	BundleBuilding BundleState = "building"
	BundleBuilt    BundleState = "built"
	BundleFailed   BundleState = "failed"
)

// BundleStatus is a snapshot of the cache for health reporting.
type BundleStatus struct {
	State     BundleState `json:"state"`
	BundleID  string      `json:"bundle_id,omitempty"`
	BuiltAt   *time.Time  `json:"built_at,omitempty"`
	Builds    int64       `json:"builds"`
	LastError string      `json:"last_error,omitempty"`
}

// BundleCache builds the engine bundle once per process. Concurrent callers
// share one in-flight build; a failed build is retried by the next caller.
type BundleCache struct {
	engine     renderer.Engine
	entryPoint string
	timeout    time.Duration
	log        *logger.Logger

	group singleflight.Group

	mu      sync.RWMutex
	bundle  *renderer.Bundle
	state   BundleState
	lastErr error

	builds atomic.Int64
}

func NewBundleCache(engine renderer.Engine, entryPoint string, timeout time.Duration, log *logger.Logger) *BundleCache {
	return &BundleCache{
		engine:     engine,
		entryPoint: entryPoint,
		timeout:    timeout,
		log:        log.WithComponent("bundle"),
		state:      BundleIdle,
	}
}

// Ensure returns the cached bundle, building it if needed. The build itself
// is detached from ctx so one impatient caller cannot fail it for the rest;
// ctx only bounds how long this caller waits.
func (c *BundleCache) Ensure(ctx context.Context) (renderer.Bundle, error) {
	if b, ok := c.cached(); ok {
		return b, nil
	}

	ch := c.group.DoChan("bundle", func() (any, error) {
		if b, ok := c.cached(); ok {
			return b, nil
		}
		return c.build(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return renderer.Bundle{}, res.Err
		}
		return res.Val.(renderer.Bundle), nil
	case <-ctx.Done():
		return renderer.Bundle{}, ctx.Err()
	}
}

func (c *BundleCache) build(ctx context.Context) (renderer.Bundle, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.mu.Lock()
	c.state = BundleBuilding
	c.mu.Unlock()

	n := c.builds.Add(1)
	start := time.Now()
	c.log.Info("building bundle", "entry_point", c.entryPoint, "attempt", n)

	b, err := c.engine.Bundle(ctx, c.entryPoint)
	if err != nil {
		err = errors.WrapWithCode(err, errors.CodeBundleBuild, "bundle.build", "bundle build failed").
			WithField("entry_point", c.entryPoint)

		c.mu.Lock()
		c.state = BundleFailed
		c.lastErr = err
		c.mu.Unlock()

		c.log.Error("bundle build failed",
			"entry_point", c.entryPoint,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err.Error(),
		)
		return renderer.Bundle{}, err
	}

	if b.BuiltAt.IsZero() {
		b.BuiltAt = time.Now().UTC()
	}

	c.mu.Lock()
	c.bundle = &b
	c.state = BundleBuilt
	c.lastErr = nil
	c.mu.Unlock()

	c.log.Info("bundle ready",
		"bundle_id", b.ID,
		"serve_url", b.ServeURL,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return b, nil
}

func (c *BundleCache) cached() (renderer.Bundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bundle == nil {
		return renderer.Bundle{}, false
	}
	return *c.bundle, true
}

// Status reports the cache state.
func (c *BundleCache) Status() BundleStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := BundleStatus{State: c.state, Builds: c.builds.Load()}
	if c.bundle != nil {
		builtAt := c.bundle.BuiltAt
		st.BundleID = c.bundle.ID
		st.BuiltAt = &builtAt
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}
