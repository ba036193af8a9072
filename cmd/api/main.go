package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"subrender/internal/artifacts"
	"subrender/internal/config"
	"subrender/internal/httpapi"
	"subrender/internal/httpapi/handlers"
	"subrender/internal/pkg/logger"
	"subrender/internal/pkg/shutdown"
	"subrender/internal/processor"
	"subrender/internal/progress"
	"subrender/internal/queue"
	"subrender/internal/renderer"
	"subrender/internal/repositories"
	"subrender/internal/storage"
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
		ServiceName: "subrender-api",
		AddSource:   cfg.LogSource,
	})

	log.Info("starting subrender API", "version", "0.1.0")

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	// Connect to PostgreSQL
	log.Info("connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)

	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}
	renders := repositories.NewRenderRepository(pool)
	if err := renders.EnsureSchema(ctx); err != nil {
		log.LogFatal("failed to ensure render ledger schema", err)
	}
	log.Info("PostgreSQL connected")

	// Connect to Redis
	log.Info("connecting to Redis")
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	log.Info("Redis connected")

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	if sp != nil {
		log.Info("artifact mirror enabled", "provider", sp.Provider())
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
	// The first render waits on the bundle anyway; warming up only hides
	// that latency when the engine is already reachable.
	go proc.WarmUp(ctx)

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Runner:    proc,
			Renders:   renders,
			Queue:     queue.NewRedisQueue(rdb, cfg.QueueName),
			Artifacts: artifacts.NewStore(proc.OutputDir()),
			Progress: func(ctx context.Context, id string) (float64, bool, error) {
				return progress.Get(ctx, rdb, id)
			},
			Pool: pool,
			RDB:  rdb,
			SP:   sp,
			Log:  log,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// WriteTimeout stays zero: POST /render holds the connection for the
	// whole render and downloads stream large files.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr, "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait(context.Background())
}
