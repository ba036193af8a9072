package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"subrender/internal/httpkit"
	"subrender/internal/models"
	apperrors "subrender/internal/pkg/errors"
	"subrender/internal/processor"
	"subrender/internal/repositories"
)

type renderResponse struct {
	Success  bool             `json:"success"`
	RenderID string           `json:"render_id"`
	Artifact string           `json:"artifact"`
	URL      string           `json:"url"`
	Params   processor.Params `json:"params"`
}

// PostRender runs a render inside the request and answers with the artifact.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	raw, req, err := parseRenderRequest(r)
	if err != nil {
		return err
	}
	if h.runner == nil {
		return apperrors.Unavailable("renderer")
	}

	id := models.NewRenderID()
	if h.renders != nil {
		rnd := newLedgerRow(id, req, raw)
		if err := h.renders.Create(ctx, rnd); err != nil {
			h.log.FromContext(ctx).Warn("ledger insert failed", "render_id", id, "error", err.Error())
		}
	}

	res, err := h.runner.Run(ctx, id, req)
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusOK, renderResponse{
		Success:  true,
		RenderID: res.RenderID,
		Artifact: res.Artifact,
		URL:      ArtifactURL(res.Artifact),
		Params:   res.Params,
	})
	return nil
}

// PostRenderAsync records the render and queues it for the worker.
func (h *Handler) PostRenderAsync(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	raw, req, err := parseRenderRequest(r)
	if err != nil {
		return err
	}
	if h.renders == nil || h.queue == nil {
		return apperrors.Unavailable("render queue")
	}

	id := models.NewRenderID()
	rnd := newLedgerRow(id, req, raw)
	if err := h.renders.Create(ctx, rnd); err != nil {
		return apperrors.Wrap(err, "handlers.enqueue", "failed to record render")
	}

	if err := h.queue.Push(ctx, id); err != nil {
		if mErr := h.renders.MarkFailed(context.WithoutCancel(ctx), id, "queue push failed: "+err.Error()); mErr != nil {
			h.log.FromContext(ctx).Warn("ledger update failed", "render_id", id, "status", "FAILED", "error", mErr.Error())
		}
		return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "handlers.enqueue", "failed to queue render")
	}

	h.log.FromContext(ctx).Info("render queued", "render_id", id, "quality", rnd.Quality)
	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{
		"render_id":  id,
		"status":     rnd.Status,
		"status_url": "/renders/" + id,
		"created_at": rnd.CreatedAt,
	})
	return nil
}

// GetRender returns a render's ledger row.
func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) error {
	id := strings.TrimSpace(chi.URLParam(r, "renderId"))
	if h.renders == nil {
		return apperrors.Unavailable("render ledger")
	}

	rnd, err := h.renders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrRenderNotFound) {
			return apperrors.NotFound("render", id)
		}
		return apperrors.Wrap(err, "handlers.get_render", "failed to load render")
	}

	body := map[string]any{"render": rnd}
	if rnd.Status == models.RenderDone && rnd.Artifact != "" {
		body["url"] = ArtifactURL(rnd.Artifact)
	}
	httpkit.WriteJSON(w, http.StatusOK, body)
	return nil
}

// GetRenderProgress returns the last fraction reported for a render.
func (h *Handler) GetRenderProgress(w http.ResponseWriter, r *http.Request) error {
	id := strings.TrimSpace(chi.URLParam(r, "renderId"))
	if h.progress == nil {
		return apperrors.Unavailable("progress store")
	}

	fraction, ok, err := h.progress(r.Context(), id)
	if err != nil {
		return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "handlers.progress", "failed to read progress")
	}
	if !ok {
		return apperrors.NotFound("progress", id)
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"render_id": id,
		"progress":  fraction,
	})
	return nil
}

func parseRenderRequest(r *http.Request) ([]byte, *processor.Request, error) {
	raw, err := httpkit.ReadBody(r)
	if err != nil {
		return nil, nil, apperrors.WrapWithCode(err, apperrors.CodeValidation, "handlers.read_body", "failed to read request body")
	}
	req, err := processor.ParseRequest(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, req, nil
}

func newLedgerRow(id string, req *processor.Request, raw []byte) *models.Render {
	return &models.Render{
		ID:          id,
		Status:      models.RenderQueued,
		Quality:     string(req.Quality),
		AspectRatio: string(req.AspectRatio),
		Request:     raw,
	}
}
