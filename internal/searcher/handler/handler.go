package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/webseek/webseek/internal/analytics"
	"github.com/webseek/webseek/internal/searcher"
	"github.com/webseek/webseek/internal/tokenizer"
	apperrors "github.com/webseek/webseek/pkg/errors"
	"github.com/webseek/webseek/pkg/logger"
	"github.com/webseek/webseek/pkg/metrics"
)

// SearchService is the slice of the searcher the HTTP layer depends on.
type SearchService interface {
	Search(ctx context.Context, query string, limit int) ([]searcher.Result, error)
}

// SearchResponse is the public wire shape of a search call.
type SearchResponse struct {
	Query   string            `json:"query"`
	Count   int               `json:"count"`
	Results []searcher.Result `json:"results"`
}

type Handler struct {
	search       SearchService
	collector    *analytics.Collector
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(search SearchService, collector *analytics.Collector, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	return &Handler{
		search:       search,
		collector:    collector,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.countQuery("invalid")
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.countQuery("invalid")
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	results, err := h.search.Search(ctx, query, limit)
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		h.countQuery("error")
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}
	if results == nil {
		results = []searcher.Result{}
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("search completed",
		"query", query,
		"returned", len(results),
		"latency_ms", latencyMs,
	)

	outcome := "ok"
	if len(results) == 0 {
		outcome = "miss"
	}
	h.countQuery(outcome)
	if h.metrics != nil {
		h.metrics.SearchLatency.Observe(time.Since(start).Seconds())
		h.metrics.SearchResultsCount.Observe(float64(len(results)))
	}

	h.collector.Track(analytics.SearchEvent{
		Type:      analytics.EventSearch,
		Query:     query,
		Terms:     tokenizer.Tokenize(query),
		TotalHits: len(results),
		Returned:  len(results),
		LatencyMs: latencyMs,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestIDFromContext(ctx),
	})

	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Count:   len(results),
		Results: results,
	})
}

// Root answers the service banner the original public API exposed.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Search engine API. Use /search?q=your+query",
	})
}

func (h *Handler) countQuery(outcome string) {
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
