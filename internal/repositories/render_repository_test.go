package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subrender/internal/models"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, v := range r.values {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	execs    []execCall
	queries  []execCall
	affected int
	execErr  error
	row      fakeRow
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, execCall{sql: sql, args: args})
	if db.execErr != nil {
		return pgconn.CommandTag{}, db.execErr
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", db.affected)), nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.queries = append(db.queries, execCall{sql: sql, args: args})
	return db.row
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, NewRenderRepository(db).EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS renders")
}

func TestCreate(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: []any{created}}}

	rnd := &models.Render{ID: "rnd_1", Quality: "high", AspectRatio: "9:16", Request: json.RawMessage(`{"video":"a.mp4"}`)}
	require.NoError(t, NewRenderRepository(db).Create(context.Background(), rnd))

	assert.Equal(t, models.RenderQueued, rnd.Status)
	assert.Equal(t, created, rnd.CreatedAt)
	require.Len(t, db.queries, 1)
	assert.Equal(t, []any{"rnd_1", "QUEUED", "high", "9:16", `{"video":"a.mp4"}`}, db.queries[0].args)
}

func TestCreateDuplicate(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: &pgconn.PgError{Code: "23505"}}}
	err := NewRenderRepository(db).Create(context.Background(), &models.Render{ID: "rnd_1"})
	assert.ErrorIs(t, err, ErrRenderExists)
}

func TestGet(t *testing.T) {
	created := time.Now().UTC()
	started := created.Add(time.Second)
	db := &fakeDB{row: fakeRow{values: []any{
		"rnd_1", "DONE", "medium", "16:9", json.RawMessage(`{}`),
		"captioned_1.mp4", "renders/captioned_1.mp4", "",
		created, &started, (*time.Time)(nil),
	}}}

	rnd, err := NewRenderRepository(db).Get(context.Background(), "rnd_1")
	require.NoError(t, err)
	assert.Equal(t, models.RenderDone, rnd.Status)
	assert.True(t, rnd.Status.Terminal())
	assert.Equal(t, "captioned_1.mp4", rnd.Artifact)
	assert.Equal(t, &started, rnd.StartedAt)
	assert.Nil(t, rnd.FinishedAt)
}

func TestGetNotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	_, err := NewRenderRepository(db).Get(context.Background(), "rnd_missing")
	assert.ErrorIs(t, err, ErrRenderNotFound)
}

func TestTransitions(t *testing.T) {
	db := &fakeDB{affected: 1}
	repo := NewRenderRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.MarkRunning(ctx, "rnd_1"))
	require.NoError(t, repo.MarkDone(ctx, "rnd_1", "captioned_1.mp4", ""))
	require.NoError(t, repo.MarkFailed(ctx, "rnd_2", "render failed"))

	require.Len(t, db.execs, 3)
	assert.True(t, strings.Contains(db.execs[0].sql, "status='RUNNING'"))
	assert.Equal(t, []any{"rnd_1", "captioned_1.mp4", ""}, db.execs[1].args)
	assert.Equal(t, []any{"rnd_2", "render failed"}, db.execs[2].args)
}

func TestTransitionMissingRow(t *testing.T) {
	db := &fakeDB{affected: 0}
	assert.ErrorIs(t, NewRenderRepository(db).MarkRunning(context.Background(), "rnd_gone"), ErrRenderNotFound)
}
