package worker

import (
	"context"
	"time"

	"subrender/internal/models"
	"subrender/internal/pkg/logger"
	"subrender/internal/processor"
)

// Run pops render ids until ctx is canceled. Each render runs to completion
// before the next pop.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	popTimeout := d.PopTimeout
	if popTimeout <= 0 {
		popTimeout = defaultPopTimeout
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		renderID, err := d.Queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}

			log.Warn("queue pop error, retrying", "error", err.Error())
			if !sleep(ctx, popRetryDelay) {
				return ctx.Err()
			}
			continue
		}

		if renderID == "" {
			continue
		}

		process(logger.ContextWithRenderID(ctx, renderID), d, log.WithRenderID(renderID), renderID)
	}
}

func process(ctx context.Context, d Deps, log *logger.Logger, renderID string) {
	rnd, err := d.Ledger.Get(ctx, renderID)
	if err != nil {
		log.Error("failed to load render", "error", err.Error())
		return
	}
	if rnd.Status != models.RenderQueued {
		log.Warn("skipping render that is not queued", "status", rnd.Status)
		return
	}

	req, err := processor.ParseRequest(rnd.Request)
	if err != nil {
		log.Warn("stored request is invalid", "error", err.Error())
		if mErr := d.Ledger.MarkFailed(context.WithoutCancel(ctx), renderID, err.Error()); mErr != nil {
			log.Error("failed to mark render failed", "error", mErr.Error())
		}
		return
	}

	log.Info("processing render")
	start := time.Now()

	res, err := d.Runner.Run(ctx, renderID, req)
	if err != nil {
		log.Error("render failed",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}

	log.Info("render completed",
		"artifact", res.Artifact,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
