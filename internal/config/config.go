// Package config loads subrender settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full runtime configuration shared by the API and the worker.
type Config struct {
	HTTPPort  string
	LogLevel  string
	LogFormat string
	LogSource bool

	DatabaseURL string
	RedisAddr   string
	QueueName   string

	Render  Render
	Storage Storage

	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

// Render groups the orchestration knobs.
type Render struct {
	// RendererBaseURL is the render engine service.
	RendererBaseURL string
	// EntryPoint is the composition source the engine bundles.
	EntryPoint string
	// CompositionID names the composition selected for every render.
	CompositionID string
	// StagingDir receives decoded inline videos. It must be visible to the
	// engine under the same path.
	StagingDir string
	// OutputDir receives finished artifacts and backs the artifact server.
	OutputDir string
	// MaxConcurrent caps simultaneous renders in this process.
	MaxConcurrent int
	// Timeout bounds a single render, slot wait excluded.
	Timeout time.Duration
	// EngineConcurrency is passed to the engine as its worker count.
	EngineConcurrency int
	Codec             string
	X264Preset        string
	// BundleTimeout bounds one bundle build.
	BundleTimeout time.Duration
	// StagingMaxAge is the age past which leftover staged inputs are swept
	// at startup.
	StagingMaxAge time.Duration
}

// Storage configures the optional artifact mirror.
type Storage struct {
	// Provider is none, localfs or gdrive.
	Provider  string
	LocalRoot string

	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string
}

// Load reads and validates the environment. The API and the worker both
// need Postgres, Redis and the render engine.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:    Env("HTTP_PORT", "8080"),
		LogLevel:    Env("LOG_LEVEL", "info"),
		LogFormat:   Env("LOG_FORMAT", "json"),
		LogSource:   BoolEnv("LOG_SOURCE", false),
		DatabaseURL: Env("DATABASE_URL", ""),
		RedisAddr:   Env("REDIS_ADDR", ""),
		QueueName:   Env("RENDER_QUEUE_NAME", "subrender:renders"),
		Render: Render{
			RendererBaseURL:   Env("RENDERER_HTTP_BASEURL", ""),
			EntryPoint:        Env("RENDER_ENTRY_POINT", "src/index.ts"),
			CompositionID:     Env("RENDER_COMPOSITION_ID", "CaptionedVideo"),
			StagingDir:        Env("STAGING_DIR", "/data/staging"),
			OutputDir:         Env("OUTPUT_DIR", "/data/renders"),
			MaxConcurrent:     IntEnv("RENDER_MAX_CONCURRENT", 2),
			Timeout:           DurationEnv("RENDER_TIMEOUT", 15*time.Minute),
			EngineConcurrency: IntEnv("RENDER_ENGINE_CONCURRENCY", 4),
			Codec:             Env("RENDER_CODEC", "h264"),
			X264Preset:        Env("RENDER_X264_PRESET", "veryfast"),
			BundleTimeout:     DurationEnv("RENDER_BUNDLE_TIMEOUT", 5*time.Minute),
			StagingMaxAge:     DurationEnv("STAGING_MAX_AGE", 24*time.Hour),
		},
		Storage: Storage{
			Provider:           strings.ToLower(Env("STORAGE_PROVIDER", "none")),
			LocalRoot:          Env("STORAGE_LOCAL_ROOT", ""),
			GDriveClientID:     Env("GDRIVE_CLIENT_ID", ""),
			GDriveClientSecret: Env("GDRIVE_CLIENT_SECRET", ""),
			GDriveRefreshToken: Env("GDRIVE_REFRESH_TOKEN", ""),
			GDriveFolderID:     Env("GDRIVE_FOLDER_ID", ""),
		},
		CORSAllowedOrigins: CSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),
		ShutdownTimeout: DurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every process needs.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if c.Render.RendererBaseURL == "" {
		missing = append(missing, "RENDERER_HTTP_BASEURL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Render.StagingDir == c.Render.OutputDir {
		return fmt.Errorf("STAGING_DIR and OUTPUT_DIR must differ")
	}

	switch c.Storage.Provider {
	case "none":
	case "localfs":
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("STORAGE_LOCAL_ROOT is required for localfs storage")
		}
	case "gdrive":
		if c.Storage.GDriveClientID == "" || c.Storage.GDriveClientSecret == "" || c.Storage.GDriveRefreshToken == "" {
			return fmt.Errorf("GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required for gdrive storage")
		}
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}

	return nil
}
