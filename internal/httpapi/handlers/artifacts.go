package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"subrender/internal/pkg/errors"
)

// GetArtifact streams a finished render as a download.
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) error {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		return errors.InvalidPath(chi.URLParam(r, "name"))
	}
	return h.artifacts.Serve(w, r, name)
}
