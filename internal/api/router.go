package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// maxImageBytes caps direct image uploads.
func NewRouter(d Deps, authEnabled bool, token string, sseHandler http.Handler, maxImageBytes int64) chi.Router {
	h := NewHandler(d)
	ih := NewImageHandler(d.Remote, d.Publication, maxImageBytes)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Conversion.
	r.Post("/convert", h.Convert)
	r.Post("/preview", h.Preview)

	// Publishing.
	r.Post("/publish", h.Publish)
	r.Get("/sections", h.Sections)
	r.Get("/history", h.History)

	// Vault state.
	r.Get("/notes", h.ListNotes)

	// Images go straight to the CDN.
	r.Post("/images", ih.Upload)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
