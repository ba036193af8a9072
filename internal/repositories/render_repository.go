package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"subrender/internal/httpkit"
	"subrender/internal/models"
)

var ErrRenderNotFound = errors.New("render not found")
var ErrRenderExists = errors.New("render id already exists")

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS renders (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	quality       TEXT NOT NULL,
	aspect_ratio  TEXT NOT NULL,
	request_json  JSONB NOT NULL,
	artifact      TEXT,
	mirror_key    TEXT,
	error_text    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS renders_status_created_idx ON renders (status, created_at);
`

type RenderRepository struct {
	db DB
}

func NewRenderRepository(db DB) *RenderRepository {
	return &RenderRepository{db: db}
}

// EnsureSchema creates the renders table when missing.
func (r *RenderRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

func (r *RenderRepository) Create(ctx context.Context, rnd *models.Render) error {
	if rnd.Status == "" {
		rnd.Status = models.RenderQueued
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO renders (id, status, quality, aspect_ratio, request_json)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, rnd.ID, string(rnd.Status), rnd.Quality, rnd.AspectRatio, string(rnd.Request)).Scan(&rnd.CreatedAt)

	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return ErrRenderExists
		}
		return err
	}
	return nil
}

func (r *RenderRepository) Get(ctx context.Context, id string) (*models.Render, error) {
	var (
		rnd    models.Render
		status string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, status, quality, aspect_ratio, request_json,
		       COALESCE(artifact, ''), COALESCE(mirror_key, ''), COALESCE(error_text, ''),
		       created_at, started_at, finished_at
		FROM renders
		WHERE id=$1
	`, id).Scan(
		&rnd.ID,
		&status,
		&rnd.Quality,
		&rnd.AspectRatio,
		&rnd.Request,
		&rnd.Artifact,
		&rnd.MirrorKey,
		&rnd.Error,
		&rnd.CreatedAt,
		&rnd.StartedAt,
		&rnd.FinishedAt,
	)
	if err != nil {
		if httpkit.IsNoRows(err) {
			return nil, ErrRenderNotFound
		}
		return nil, err
	}
	rnd.Status = models.RenderStatus(status)
	return &rnd, nil
}

func (r *RenderRepository) MarkRunning(ctx context.Context, id string) error {
	return r.update(ctx, `
		UPDATE renders
		SET status='RUNNING', started_at=now(), finished_at=NULL, error_text=NULL
		WHERE id=$1
	`, id)
}

func (r *RenderRepository) MarkDone(ctx context.Context, id, artifact, mirrorKey string) error {
	return r.update(ctx, `
		UPDATE renders
		SET status='DONE', finished_at=now(), artifact=$2, mirror_key=NULLIF($3, '')
		WHERE id=$1
	`, id, artifact, mirrorKey)
}

func (r *RenderRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.update(ctx, `
		UPDATE renders
		SET status='FAILED', finished_at=now(), error_text=$2
		WHERE id=$1
	`, id, reason)
}

func (r *RenderRepository) update(ctx context.Context, sql string, args ...any) error {
	cmd, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRenderNotFound
	}
	return nil
}
