package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/burningmantech/ranger-transmissions/internal/search"
	"github.com/burningmantech/ranger-transmissions/internal/store"
)

// Catalog is the store surface the API reads from.
type Catalog interface {
	Events(ctx context.Context) ([]store.Event, error)
	Find(ctx context.Context, f store.Filter) ([]store.Transmission, error)
}

// Searcher is the index surface the API queries.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	catalog Catalog
	index   Searcher
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(catalog Catalog, index Searcher, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		catalog: catalog,
		index:   index,
		logger:  logger,
	}
}

// Root handles GET / requests with a plain-text service banner.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "transmissions API server")
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Events handles GET /api/events requests.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.catalog.Events(r.Context())
	if err != nil {
		h.logger.Error("failed to list events",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events", "EVENT_LIST_FAILED")
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, EventResponse{ID: e.ID, Name: e.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Transmissions handles GET /api/transmissions requests. The query
// parameters event, station, system, channel, search, start, and end
// narrow the result.
func (h *Handlers) Transmissions(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_FILTER")
		return
	}

	records, err := h.catalog.Find(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to query transmissions",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to query transmissions", "TRANSMISSION_QUERY_FAILED")
		return
	}

	resp := make([]TransmissionResponse, 0, len(records))
	for _, t := range records {
		resp = append(resp, transmissionResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Search handles GET /api/search requests.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required", "MISSING_QUERY")
		return
	}

	limit := search.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "INVALID_LIMIT")
			return
		}
		limit = n
	}

	hits, err := h.index.Search(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, search.ErrBadQuery) {
			writeError(w, http.StatusBadRequest, "unparsable search query", "BAD_QUERY")
			return
		}
		h.logger.Error("search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "search failed", "SEARCH_FAILED")
		return
	}

	resp := make([]SearchHit, 0, len(hits))
	for _, hit := range hits {
		resp = append(resp, SearchHit{
			TransmissionResponse: transmissionResponse(hit.Transmission),
			Score:                hit.Score,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func filterFromQuery(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		EventID: q.Get("event"),
		Station: q.Get("station"),
		System:  q.Get("system"),
		Channel: q.Get("channel"),
		Text:    q.Get("search"),
	}

	var err error
	if f.Start, err = parseTimeParam(q.Get("start")); err != nil {
		return f, err
	}
	if f.End, err = parseTimeParam(q.Get("end")); err != nil {
		return f, err
	}
	return f, nil
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q is not RFC 3339", v)
	}
	return t, nil
}

func transmissionResponse(t store.Transmission) TransmissionResponse {
	resp := TransmissionResponse{
		EventID:       t.EventID,
		Station:       t.Station,
		System:        t.System,
		Channel:       t.Channel,
		StartTime:     t.StartTime.UTC(),
		FileName:      t.FileName,
		SHA256:        t.SHA256,
		Transcription: t.Transcription,
	}
	if t.Duration != nil {
		seconds := t.Duration.Seconds()
		resp.Duration = &seconds
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
