package main

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"subrender/internal/config"
	"subrender/internal/pkg/logger"
	"subrender/internal/pkg/shutdown"
	"subrender/internal/processor"
	"subrender/internal/progress"
	"subrender/internal/queue"
	"subrender/internal/renderer"
	"subrender/internal/repositories"
	"subrender/internal/storage"
	"subrender/internal/worker"
)

const progressTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "subrender-worker",
		AddSource:   cfg.LogSource,
	})

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)

	renders := repositories.NewRenderRepository(pool)
	if err := renders.EnsureSchema(ctx); err != nil {
		log.LogFatal("failed to ensure render ledger schema", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	sink := progress.NewRedisSink(rdb, progressTTL, log)
	shutdownMgr.RegisterSimple("progress-sink", sink.Close)

	proc := processor.New(processor.Deps{
		Engine:   renderer.NewHTTPClient(cfg.Render.RendererBaseURL),
		Config:   cfg.Render,
		Ledger:   renders,
		Storage:  sp,
		Progress: sink,
		Log:      log,
	})
	proc.WarmUp(ctx)

	// Registered last so it runs first: the loop stops popping before the
	// clients it uses are closed.
	runCtx, cancel := shutdownMgr.Context()
	defer cancel()

	waitCtx, stop := context.WithCancel(context.Background())
	go func() {
		defer stop()
		log.Info("subrender worker started", "queue", cfg.QueueName)
		err := worker.Run(runCtx, worker.Deps{
			Runner: proc,
			Ledger: renders,
			Queue:  queue.NewRedisQueue(rdb, cfg.QueueName),
			Log:    log,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker stopped", "error", err.Error())
		}
	}()

	shutdownMgr.Wait(waitCtx)
}
