package worker

import (
	"context"
	"time"

	"subrender/internal/models"
	"subrender/internal/pkg/logger"
	"subrender/internal/processor"
)

const (
	defaultPopTimeout = 5 * time.Second
	popRetryDelay     = time.Second
)

// Runner executes one render.
type Runner interface {
	Run(ctx context.Context, renderID string, req *processor.Request) (*processor.Result, error)
}

// Ledger loads queued renders and fails the ones that cannot run.
type Ledger interface {
	Get(ctx context.Context, id string) (*models.Render, error)
	MarkFailed(ctx context.Context, id, reason string) error
}

// Queue yields render ids; an empty id means the wait timed out.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

type Deps struct {
	Runner Runner
	Ledger Ledger
	Queue  Queue
	Log    *logger.Logger

	// PopTimeout bounds each blocking queue read.
	PopTimeout time.Duration
}
