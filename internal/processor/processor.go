// Package processor turns one render request into a finished artifact:
// staging inline media, sharing the engine bundle, deriving geometry and
// length, rendering and cleaning up.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"subrender/internal/config"
	"subrender/internal/pkg/errors"
	"subrender/internal/pkg/logger"
	"subrender/internal/ports"
	"subrender/internal/renderer"
)

const ledgerWriteTimeout = 5 * time.Second

// Ledger records render lifecycle transitions. Writes are best effort.
type Ledger interface {
	MarkRunning(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id, artifact, mirrorKey string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type Deps struct {
	Engine renderer.Engine
	Config config.Render
	// Ledger, Storage and Progress are optional.
	Ledger   Ledger
	Storage  ports.StorageProvider
	Progress ProgressSink
	Log      *logger.Logger
}

type Processor struct {
	cfg      config.Render
	ledger   Ledger
	progress ProgressSink
	log      *logger.Logger
	slots    *semaphore.Weighted

	bundles         *BundleCache
	inputHandler    *InputHandler
	outputHandler   *OutputHandler
	rendererAdapter *RendererAdapter
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	maxConcurrent := d.Config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Processor{
		cfg:      d.Config,
		ledger:   d.Ledger,
		progress: d.Progress,
		log:      log,
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),

		bundles:         NewBundleCache(d.Engine, d.Config.EntryPoint, d.Config.BundleTimeout, log),
		inputHandler:    NewInputHandler(d.Config.StagingDir),
		outputHandler:   NewOutputHandler(d.Storage),
		rendererAdapter: NewRendererAdapter(d.Engine, d.Config.CompositionID, d.Config.Codec, d.Config.X264Preset, d.Config.EngineConcurrency),
		cleanup:         NewCleanup(log),
	}
}

// Bundles exposes the bundle cache for health reporting and warm up.
func (p *Processor) Bundles() *BundleCache { return p.bundles }

// OutputDir is where artifacts are written.
func (p *Processor) OutputDir() string { return p.cfg.OutputDir }

// WarmUp builds the bundle ahead of the first request and sweeps stale
// staged inputs. Failures are logged; the next render retries the build.
func (p *Processor) WarmUp(ctx context.Context) {
	p.cleanup.SweepStale(p.cfg.StagingDir, p.cfg.StagingMaxAge)
	if _, err := p.bundles.Ensure(ctx); err != nil {
		p.log.Warn("bundle warm up failed", "error", err.Error())
	}
}

// Run executes one render. It waits for a free render slot, bounded by ctx,
// and then runs under the configured render timeout.
func (p *Processor) Run(ctx context.Context, renderID string, req *Request) (*Result, error) {
	ctx = logger.ContextWithRenderID(ctx, renderID)
	log := p.log.FromContext(ctx)

	if req == nil {
		return nil, errors.Validation("render request is required")
	}
	if err := req.Validate(); err != nil {
		p.markFailed(ctx, renderID, err)
		return nil, err
	}

	waitStart := time.Now()
	if err := p.slots.Acquire(ctx, 1); err != nil {
		err = errors.WrapWithCode(err, errors.CodeUnavailable, "processor.acquire", "no render slot became available").
			WithField("max_concurrent", p.cfg.MaxConcurrent)
		p.markFailed(ctx, renderID, err)
		return nil, err
	}
	defer p.slots.Release(1)

	if wait := time.Since(waitStart); wait > time.Second {
		log.Info("render slot acquired", "wait_ms", wait.Milliseconds())
	}
	p.markRunning(ctx, renderID)

	renderCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := p.render(renderCtx, log, renderID, req)
	if err != nil {
		err = p.classify(ctx, renderCtx, err)
		p.markFailed(ctx, renderID, err)

		var coded *errors.Error
		if errors.As(err, &coded) {
			log.Error("render failed",
				"code", string(coded.Code),
				"op", coded.Op,
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		} else {
			log.Error("render failed", "error", err.Error(), "duration_ms", time.Since(start).Milliseconds())
		}
		return nil, err
	}

	p.markDone(ctx, renderID, res)
	log.Info("render completed",
		"artifact", res.Artifact,
		"frames", res.Params.DurationInFrames,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (p *Processor) render(ctx context.Context, log *logger.Logger, renderID string, req *Request) (*Result, error) {
	// 1. Stage inline media; staged files are removed on every path.
	staged, err := p.inputHandler.Materialize(ctx, req.Video)
	if err != nil {
		return nil, err
	}
	defer p.cleanup.RemoveStaged(staged)
	if staged.Temp {
		log.Debug("inline video staged", "path", staged.Path)
	}

	// 2. Shared bundle.
	bundle, err := p.bundles.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	// 3. Geometry and length.
	preset, err := ResolvePreset(req.Quality, req.AspectRatio)
	if err != nil {
		return nil, err
	}
	frames, err := DurationInFrames(req.Transcript.Chunks, preset.FrameRate)
	if err != nil {
		return nil, err
	}

	// 4. Composition.
	props := req.InputProps(staged.Path)
	comp, err := p.rendererAdapter.Resolve(ctx, bundle, props)
	if err != nil {
		return nil, err
	}

	// 5. Render.
	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeRenderFailed, "processor.render", "failed to create output directory")
	}
	artifact := NewArtifactName(time.Now())
	outputPath := filepath.Join(p.cfg.OutputDir, artifact)

	log.Info("starting render",
		"quality", string(req.Quality),
		"aspect_ratio", string(req.AspectRatio),
		"fps", preset.FrameRate,
		"width", preset.Width,
		"height", preset.Height,
		"frames", frames,
		"crf", preset.CRF,
	)

	sampler := newProgressLogger(log, 0.1)
	sink := MultiSink{
		ProgressFunc(func(_ string, fraction float64) { sampler.observe(fraction) }),
		p.progress,
	}
	err = p.rendererAdapter.Render(ctx, RenderRequest{
		Bundle:      bundle,
		Composition: comp,
		Preset:      preset,
		Frames:      frames,
		InputProps:  props,
		OutputPath:  outputPath,
	}, func(fraction float64) {
		sink.Report(renderID, clampFraction(fraction))
	})
	if err != nil {
		p.cleanup.DiscardOutput(outputPath)
		return nil, err
	}

	res := &Result{
		RenderID: renderID,
		Artifact: artifact,
		Path:     outputPath,
		Params: Params{
			FPS:              preset.FrameRate,
			Width:            preset.Width,
			Height:           preset.Height,
			DurationInFrames: frames,
			CRF:              preset.CRF,
		},
	}

	// 6. Optional mirror.
	if p.outputHandler.Enabled() {
		key, err := p.outputHandler.Publish(ctx, outputPath, artifact)
		if err != nil {
			log.Warn("artifact mirror failed", "artifact", artifact, "error", err.Error())
		} else {
			res.MirrorKey = key
		}
	}

	return res, nil
}

// classify maps an expired render deadline to TIMEOUT and a canceled caller
// to RENDER_FAILED.
func (p *Processor) classify(parent, renderCtx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return errors.WrapWithCode(err, errors.CodeRenderFailed, "processor.run", "render canceled")
	case errors.Is(renderCtx.Err(), context.DeadlineExceeded):
		return errors.WrapWithCode(err, errors.CodeTimeout, "processor.run", fmt.Sprintf("render exceeded %s", p.cfg.Timeout)).
			WithField("timeout", p.cfg.Timeout.String())
	default:
		return err
	}
}

func (p *Processor) ledgerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
}

func (p *Processor) markRunning(ctx context.Context, id string) {
	if p.ledger == nil {
		return
	}
	lctx, cancel := p.ledgerCtx(ctx)
	defer cancel()
	if err := p.ledger.MarkRunning(lctx, id); err != nil {
		p.log.FromContext(ctx).Warn("ledger update failed", "status", "RUNNING", "error", err.Error())
	}
}

func (p *Processor) markDone(ctx context.Context, id string, res *Result) {
	if p.ledger == nil {
		return
	}
	lctx, cancel := p.ledgerCtx(ctx)
	defer cancel()
	if err := p.ledger.MarkDone(lctx, id, res.Artifact, res.MirrorKey); err != nil {
		p.log.FromContext(ctx).Warn("ledger update failed", "status", "DONE", "error", err.Error())
	}
}

func (p *Processor) markFailed(ctx context.Context, id string, cause error) {
	if p.ledger == nil {
		return
	}
	msg := cause.Error()
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	lctx, cancel := p.ledgerCtx(ctx)
	defer cancel()
	if err := p.ledger.MarkFailed(lctx, id, msg); err != nil {
		p.log.FromContext(ctx).Warn("ledger update failed", "status", "FAILED", "error", err.Error())
	}
}
