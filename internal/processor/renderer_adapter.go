package processor

import (
	"context"

	"subrender/internal/pkg/errors"
	"subrender/internal/renderer"
)

// RendererAdapter resolves the composition and drives the engine.
type RendererAdapter struct {
	engine        renderer.Engine
	compositionID string
	codec         string
	x264Preset    string
	concurrency   int
}

func NewRendererAdapter(engine renderer.Engine, compositionID, codec, x264Preset string, concurrency int) *RendererAdapter {
	return &RendererAdapter{
		engine:        engine,
		compositionID: compositionID,
		codec:         codec,
		x264Preset:    x264Preset,
		concurrency:   concurrency,
	}
}

// Resolve selects the composition from bundle and lets the engine validate
// inputProps against it.
func (ra *RendererAdapter) Resolve(ctx context.Context, bundle renderer.Bundle, inputProps map[string]any) (renderer.Composition, error) {
	comp, err := ra.engine.SelectComposition(ctx, bundle, ra.compositionID, inputProps)
	if err != nil {
		return renderer.Composition{}, withCode(err, errors.CodeInternal, "processor.resolve", "failed to resolve composition")
	}
	return comp, nil
}

// RenderRequest is one engine invocation.
type RenderRequest struct {
	Bundle      renderer.Bundle
	Composition renderer.Composition
	Preset      Preset
	Frames      int
	InputProps  map[string]any
	OutputPath  string
}

// Merge overrides the composition's geometry and length with the derived
// values.
func (r RenderRequest) Merge() renderer.Composition {
	c := r.Composition
	c.DurationInFrames = r.Frames
	c.FPS = r.Preset.FrameRate
	c.Width = r.Preset.Width
	c.Height = r.Preset.Height
	return c
}

// Render runs the engine to completion. onProgress may be nil.
func (ra *RendererAdapter) Render(ctx context.Context, req RenderRequest, onProgress renderer.ProgressFunc) error {
	err := ra.engine.RenderMedia(ctx, renderer.RenderOptions{
		Bundle:      req.Bundle,
		Composition: req.Merge(),
		Codec:       ra.codec,
		CRF:         req.Preset.CRF,
		X264Preset:  ra.x264Preset,
		Concurrency: ra.concurrency,
		InputProps:  req.InputProps,
		OutputPath:  req.OutputPath,
	}, onProgress)
	if err != nil {
		return withCode(err, errors.CodeRenderFailed, "processor.render", "render failed")
	}
	return nil
}
