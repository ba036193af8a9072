package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"subrender/internal/artifacts"
	"subrender/internal/models"
	"subrender/internal/pkg/errors"
	"subrender/internal/pkg/logger"
	"subrender/internal/ports"
	"subrender/internal/processor"
)

// Runner executes renders in-process.
type Runner interface {
	Run(ctx context.Context, renderID string, req *processor.Request) (*processor.Result, error)
	Bundles() *processor.BundleCache
}

// RenderStore is the render ledger.
type RenderStore interface {
	Create(ctx context.Context, rnd *models.Render) error
	Get(ctx context.Context, id string) (*models.Render, error)
	MarkFailed(ctx context.Context, id, reason string) error
}

// Enqueuer hands render ids to the worker.
type Enqueuer interface {
	Push(ctx context.Context, renderID string) error
}

// QueueInspector reports how many renders wait in the queue.
type QueueInspector interface {
	Len(ctx context.Context) (int64, error)
}

// ProgressReader returns the last known progress of a render.
type ProgressReader func(ctx context.Context, renderID string) (fraction float64, ok bool, err error)

type Deps struct {
	Runner    Runner
	Renders   RenderStore
	Queue     Enqueuer
	Progress  ProgressReader
	Artifacts *artifacts.Store

	// Pool, RDB and SP are only consulted by deep health checks.
	Pool *pgxpool.Pool
	RDB  redis.UniversalClient
	SP   ports.StorageProvider
	Log  *logger.Logger
}

type Handler struct {
	runner    Runner
	renders   RenderStore
	queue     Enqueuer
	progress  ProgressReader
	artifacts *artifacts.Store

	pool *pgxpool.Pool
	rdb  redis.UniversalClient
	sp   ports.StorageProvider
	log  *logger.Logger

	started time.Time
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		runner:    d.Runner,
		renders:   d.Renders,
		queue:     d.Queue,
		progress:  d.Progress,
		artifacts: d.Artifacts,
		pool:      d.Pool,
		rdb:       d.RDB,
		sp:        d.SP,
		log:       log.WithComponent("http"),
		started:   time.Now(),
	}
}

// Log is the handler's logger, used to wrap error returning handlers.
func (h *Handler) Log() *logger.Logger { return h.log }

// ArtifactURL is the download path of an artifact.
func ArtifactURL(name string) string {
	return "/output/" + name
}

// RouteNotFound is the error for paths no route matches.
func RouteNotFound(r *http.Request) error {
	return errors.NotFound("route", r.URL.Path)
}
