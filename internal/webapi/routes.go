package webapi

import (
	"log/slog"
	"net/http"
)

// NewRouter creates the HTTP router with all routes configured, using
// method-qualified ServeMux patterns.
func NewRouter(h *Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/events", h.Events)
	mux.HandleFunc("GET /api/transmissions", h.Transmissions)
	mux.HandleFunc("GET /api/search", h.Search)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
	)

	return chain(mux)
}
