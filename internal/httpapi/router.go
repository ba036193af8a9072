package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"subrender/internal/httpapi/handlers"
	"subrender/internal/httpkit"
	"subrender/internal/pkg/middleware"
)

type Deps struct {
	Handlers           handlers.Deps
	CORSAllowedOrigins []string
}

func NewRouter(d Deps) http.Handler {
	h := handlers.New(d.Handlers)
	log := h.Log()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   d.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- RENDER ----
	r.Post("/render", middleware.WrapHandler(log, h.PostRender))
	r.Post("/renders", middleware.WrapHandler(log, h.PostRenderAsync))
	r.Get("/renders/{renderId}", middleware.WrapHandler(log, h.GetRender))
	r.Get("/renders/{renderId}/progress", middleware.WrapHandler(log, h.GetRenderProgress))

	// ---- ARTIFACTS ----
	artifact := middleware.WrapHandler(log, h.GetArtifact)
	r.Get("/output/{name}", artifact)
	r.Head("/output/{name}", artifact)

	r.NotFound(middleware.WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
		return handlers.RouteNotFound(r)
	}))

	return r
}
