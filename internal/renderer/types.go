package renderer

import (
	"context"
	"time"
)

// Bundle is a compiled, reusable packaging of the engine's compositions.
type Bundle struct {
	ID       string
	ServeURL string
	BuiltAt  time.Time
}

// Composition is a resolved composition with its geometry and length.
type Composition struct {
	ID               string
	Width            int
	Height           int
	FPS              int
	DurationInFrames int
	DefaultProps     map[string]any
}

// RenderOptions is everything the engine needs for one render.
type RenderOptions struct {
	Bundle      Bundle
	Composition Composition
	Codec       string
	CRF         int
	X264Preset  string
	// Concurrency is the engine-internal worker count.
	Concurrency int
	InputProps  map[string]any
	OutputPath  string
}

// ProgressFunc receives fractional progress in [0, 1]. It is called on the
// render's own goroutine and must return quickly.
type ProgressFunc func(fraction float64)

// Engine is the render backend. Errors are *errors.Error values coded
// BUNDLE_BUILD_ERROR, COMPOSITION_NOT_FOUND, COMPOSITION_INPUT_ERROR or
// RENDER_FAILED.
type Engine interface {
	Bundle(ctx context.Context, entryPoint string) (Bundle, error)
	SelectComposition(ctx context.Context, bundle Bundle, id string, inputProps map[string]any) (Composition, error)
	RenderMedia(ctx context.Context, opts RenderOptions, onProgress ProgressFunc) error
}
