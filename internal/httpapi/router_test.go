package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subrender/internal/artifacts"
	"subrender/internal/httpapi/handlers"
	"subrender/internal/httpkit"
	"subrender/internal/models"
	"subrender/internal/pkg/errors"
	"subrender/internal/pkg/logger"
	"subrender/internal/processor"
	"subrender/internal/renderer"
	"subrender/internal/repositories"
)

const renderBody = `{
	"video": "/data/uploads/clip.mp4",
	"transcript": {"text": "hi", "chunks": [{"text": "hi", "timestamp": [0, 12.5]}]},
	"subtitle_style": {"font": "Inter"},
	"quality": "high"
}`

type idleEngine struct{}

func (idleEngine) Bundle(context.Context, string) (renderer.Bundle, error) {
	return renderer.Bundle{ID: "b1", ServeURL: "http://bundle", BuiltAt: time.Now()}, nil
}

func (idleEngine) SelectComposition(context.Context, renderer.Bundle, string, map[string]any) (renderer.Composition, error) {
	return renderer.Composition{}, nil
}

func (idleEngine) RenderMedia(context.Context, renderer.RenderOptions, renderer.ProgressFunc) error {
	return nil
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []*processor.Request
	ids     []string
	err     error
	bundles *processor.BundleCache
}

func (f *fakeRunner) Run(_ context.Context, id string, req *processor.Request) (*processor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	f.ids = append(f.ids, id)
	if f.err != nil {
		return nil, f.err
	}
	return &processor.Result{
		RenderID: id,
		Artifact: "captioned_1_abcd1234.mp4",
		Params:   processor.Params{FPS: 60, Width: 1920, Height: 1080, DurationInFrames: 750, CRF: 18},
	}, nil
}

func (f *fakeRunner) Bundles() *processor.BundleCache { return f.bundles }

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]*models.Render
	createErr error
	failErr   error
	failed    map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*models.Render{}, failed: map[string]string{}}
}

func (s *fakeStore) Create(_ context.Context, rnd *models.Render) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	rnd.CreatedAt = time.Now()
	cp := *rnd
	s.rows[rnd.ID] = &cp
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*models.Render, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rnd, ok := s.rows[id]
	if !ok {
		return nil, repositories.ErrRenderNotFound
	}
	cp := *rnd
	return &cp, nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.failed[id] = reason
	if rnd, ok := s.rows[id]; ok {
		rnd.Status = models.RenderFailed
		rnd.Error = reason
	}
	return nil
}

type fakeQueue struct {
	mu     sync.Mutex
	pushed []string
	err    error
}

func (q *fakeQueue) Push(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.pushed = append(q.pushed, id)
	return nil
}

func (q *fakeQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return 0, q.err
	}
	return int64(len(q.pushed)), nil
}

type testEnv struct {
	runner *fakeRunner
	store  *fakeStore
	queue  *fakeQueue
	outDir string
	router http.Handler
}

func newTestEnv(t *testing.T, progress map[string]float64, mutate ...func(*handlers.Deps)) *testEnv {
	t.Helper()
	env := &testEnv{
		runner: &fakeRunner{bundles: processor.NewBundleCache(idleEngine{}, "src/index.ts", time.Second, logger.Nop())},
		store:  newFakeStore(),
		queue:  &fakeQueue{},
		outDir: t.TempDir(),
	}
	deps := handlers.Deps{
		Runner:    env.runner,
		Renders:   env.store,
		Queue:     env.queue,
		Artifacts: artifacts.NewStore(env.outDir),
		Progress: func(_ context.Context, id string) (float64, bool, error) {
			f, ok := progress[id]
			return f, ok, nil
		},
		Log: logger.Nop(),
	}
	for _, m := range mutate {
		m(&deps)
	}
	env.router = NewRouter(Deps{
		Handlers:           deps,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	})
	return env
}

func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httpkit.ErrorEnvelope {
	t.Helper()
	var env httpkit.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Nil(t, body["checks"])
}

func TestHealthDeep(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/health?deep=true", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "disabled", body.Checks["postgres"]["status"])
	assert.Equal(t, "disabled", body.Checks["redis"]["status"])
	assert.Equal(t, "ok", body.Checks["queue"]["status"])
	assert.EqualValues(t, 0, body.Checks["queue"]["depth"])
	assert.Equal(t, "idle", body.Checks["bundle"]["state"])
	assert.Equal(t, "none", body.Checks["storage"]["provider"])
}

func TestHealthDeepQueueDown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.queue.err = fmt.Errorf("connection refused")

	rec := env.do(http.MethodGet, "/health?deep=true", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "error", body.Checks["queue"]["status"])
	assert.Contains(t, body.Checks["queue"]["error"], "connection refused")
}

func TestPostRender(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/render", renderBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Success  bool             `json:"success"`
		RenderID string           `json:"render_id"`
		Artifact string           `json:"artifact"`
		URL      string           `json:"url"`
		Params   processor.Params `json:"params"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.True(t, strings.HasPrefix(body.RenderID, "rnd_"))
	assert.Equal(t, "/output/captioned_1_abcd1234.mp4", body.URL)
	assert.Equal(t, 750, body.Params.DurationInFrames)

	require.Len(t, env.runner.calls, 1)
	assert.Equal(t, processor.QualityHigh, env.runner.calls[0].Quality)

	row, err := env.store.Get(context.Background(), body.RenderID)
	require.NoError(t, err)
	assert.Equal(t, "high", row.Quality)
	assert.JSONEq(t, renderBody, string(row.Request))
}

func TestPostRenderValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"video":`},
		{"missing style", `{"video":"a.mp4","transcript":{"chunks":[]}}`},
		{"bad quality", `{"video":"a.mp4","transcript":{"chunks":[]},"subtitle_style":{},"quality":"ultra"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/render", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(errors.CodeValidation), decodeEnvelope(t, rec).Error.Code)
		})
	}
	assert.Empty(t, env.runner.calls)
	assert.Empty(t, env.store.rows)
}

func TestPostRenderFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runner.err = errors.New(errors.CodeCompositionNotFound, `composition "CaptionedVideo" not found`)

	rec := env.do(http.MethodPost, "/render", renderBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	envlp := decodeEnvelope(t, rec)
	assert.Equal(t, string(errors.CodeCompositionNotFound), envlp.Error.Code)
	assert.Contains(t, envlp.Error.Message, "CaptionedVideo")
}

func TestPostRenderTimeout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runner.err = errors.Timeout("render")

	rec := env.do(http.MethodPost, "/render", renderBody)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestPostRenderLedgerFailureIsIgnored(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.createErr = fmt.Errorf("db down")

	rec := env.do(http.MethodPost, "/render", renderBody)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostRenderAsync(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/renders", renderBody)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	id, _ := body["render_id"].(string)
	assert.Equal(t, "QUEUED", body["status"])
	assert.Equal(t, "/renders/"+id, body["status_url"])
	assert.Equal(t, []string{id}, env.queue.pushed)
	assert.Empty(t, env.runner.calls)

	rec = env.do(http.MethodGet, "/renders/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"QUEUED"`)
	assert.NotContains(t, rec.Body.String(), `"url"`)
}

func TestPostRenderAsyncRejectsZeroLengthTranscript(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/renders", `{"video":"a.mp4","subtitle_style":{},
		"transcript":{"chunks":[{"text":"","timestamp":[0,0]}]}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errors.CodeValidation), decodeEnvelope(t, rec).Error.Code)
	assert.Empty(t, env.store.rows)
	assert.Empty(t, env.queue.pushed)
}

func TestPostRenderAsyncQueueDown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.queue.err = fmt.Errorf("connection refused")

	rec := env.do(http.MethodPost, "/renders", renderBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Len(t, env.store.failed, 1)
}

func TestPostRenderAsyncLogsUnrecordedQueueFailure(t *testing.T) {
	var logBuf bytes.Buffer
	env := newTestEnv(t, nil, func(d *handlers.Deps) {
		d.Log = logger.New(logger.Config{Level: "info", Format: "json", Output: &logBuf})
	})
	env.queue.err = fmt.Errorf("connection refused")
	env.store.failErr = fmt.Errorf("db down")

	rec := env.do(http.MethodPost, "/renders", renderBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, logBuf.String(), "ledger update failed")
	assert.Contains(t, logBuf.String(), "db down")
}

func TestPostRenderAsyncLedgerDown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.createErr = fmt.Errorf("db down")

	rec := env.do(http.MethodPost, "/renders", renderBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, env.queue.pushed)
}

func TestGetRender(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.rows["rnd_done"] = &models.Render{ID: "rnd_done", Status: models.RenderDone, Artifact: "captioned_9.mp4"}

	rec := env.do(http.MethodGet, "/renders/rnd_done", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"url":"/output/captioned_9.mp4"`)

	rec = env.do(http.MethodGet, "/renders/rnd_missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(errors.CodeNotFound), decodeEnvelope(t, rec).Error.Code)
}

func TestGetRenderProgress(t *testing.T) {
	env := newTestEnv(t, map[string]float64{"rnd_1": 0.4})

	rec := env.do(http.MethodGet, "/renders/rnd_1/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"render_id":"rnd_1","progress":0.4}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/renders/rnd_2/progress", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetArtifact(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(env.outDir, "captioned_1.mp4"), []byte("mp4data"), 0o644))

	rec := env.do(http.MethodGet, "/output/captioned_1.mp4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp4data", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "captioned_1.mp4")

	rec = env.do(http.MethodHead, "/output/captioned_1.mp4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = env.do(http.MethodGet, "/output/nope.mp4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/output/..%2F..%2Fetc%2Fpasswd", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errors.CodeInvalidPath), decodeEnvelope(t, rec).Error.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/jobs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(errors.CodeNotFound), decodeEnvelope(t, rec).Error.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/render", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "HEAD")
}
