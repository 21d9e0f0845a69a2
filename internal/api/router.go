package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter mounts the bridge. authEnabled controls whether Bearer token
// auth is enforced. events, if non-nil, is served at GET /events behind the
// same auth.
func NewRouter(b *Bridge, authEnabled bool, token string, events http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}
	r.Post("/{channel}", b.ServeIPC)

	return r
}
