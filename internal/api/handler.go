// Package api serves the database over HTTP:
//
//	GET  /v1/query?q=paris+tex*         field-agnostic AND query
//	GET  /v1/search?field=City&term=... term search on one field
//	GET  /v1/value?field=City&value=... whole-value match
//	GET  /v1/wildcard?field=City&pattern=Par*
//	GET  /v1/records/{id}
//	PUT  /v1/records/{id}               body: {"Name": "x", "Port": 1}
//	GET  /v1/stats
//	GET  /v1/cache/stats
//	POST /v1/cache/invalidate
//
// Query endpoints accept an optional limit; count always reports the full
// match count.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/database"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/querycache"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/value"
	apperrors "github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/middleware"
)

const maxBodyBytes = 4 << 20

type Handler struct {
	db           *database.Database
	cache        *querycache.QueryCache
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New builds the handler. cache may be nil.
func New(db *database.Database, cache *querycache.QueryCache, defaultLimit, maxResults int) *Handler {
	if maxResults <= 0 {
		maxResults = 10000
	}
	if defaultLimit <= 0 || defaultLimit > maxResults {
		defaultLimit = maxResults
	}
	return &Handler{
		db:           db,
		cache:        cache,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "api"),
	}
}

// Routes returns the API mux wrapped in query-ID and metrics middleware.
func (h *Handler) Routes(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/query", h.Query)
	mux.HandleFunc("GET /v1/search", h.Search)
	mux.HandleFunc("GET /v1/value", h.SearchValue)
	mux.HandleFunc("GET /v1/wildcard", h.WildcardSearch)
	mux.HandleFunc("GET /v1/records/{id}", h.GetRecord)
	mux.HandleFunc("PUT /v1/records/{id}", h.PutRecord)
	mux.HandleFunc("GET /v1/stats", h.Stats)
	mux.HandleFunc("GET /v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /v1/cache/invalidate", h.CacheInvalidate)
	return middleware.Metrics(m)(middleware.QueryID(mux))
}

type queryResponse struct {
	Count     int             `json:"count"`
	Returned  int             `json:"returned"`
	Cached    bool            `json:"cached"`
	LatencyMs int64           `json:"latency_ms"`
	Records   []record.Record `json:"records"`
}

type runFunc func(ctx context.Context) ([]record.Record, bool, error)

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	h.run(w, r, database.OpQuery, func(ctx context.Context) ([]record.Record, bool, error) {
		if h.cache != nil {
			return h.cache.Query(ctx, q)
		}
		recs, err := h.db.Query(ctx, q)
		return recs, false, err
	})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	field, term, ok := h.fieldParams(w, r, "term")
	if !ok {
		return
	}
	h.run(w, r, database.OpSearch, func(ctx context.Context) ([]record.Record, bool, error) {
		if h.cache != nil {
			return h.cache.Search(ctx, field, term)
		}
		recs, err := h.db.Search(ctx, field, term)
		return recs, false, err
	})
}

func (h *Handler) SearchValue(w http.ResponseWriter, r *http.Request) {
	field, raw, ok := h.fieldParams(w, r, "value")
	if !ok {
		return
	}
	h.run(w, r, database.OpSearchValue, func(ctx context.Context) ([]record.Record, bool, error) {
		if h.cache != nil {
			return h.cache.SearchValue(ctx, field, raw)
		}
		recs, err := h.db.SearchValue(ctx, field, raw)
		return recs, false, err
	})
}

func (h *Handler) WildcardSearch(w http.ResponseWriter, r *http.Request) {
	field, pattern, ok := h.fieldParams(w, r, "pattern")
	if !ok {
		return
	}
	h.run(w, r, database.OpWildcardSearch, func(ctx context.Context) ([]record.Record, bool, error) {
		if h.cache != nil {
			return h.cache.WildcardSearch(ctx, field, pattern)
		}
		recs, err := h.db.WildcardSearch(ctx, field, pattern)
		return recs, false, err
	})
}

func (h *Handler) fieldParams(w http.ResponseWriter, r *http.Request, name string) (string, string, bool) {
	field := r.URL.Query().Get("field")
	arg := r.URL.Query().Get(name)
	if field == "" || arg == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("query parameters 'field' and '%s' are required", name))
		return "", "", false
	}
	return field, arg, true
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, op string, fn runFunc) {
	start := time.Now()
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	recs, cached, err := fn(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("query failed", "op", op, "error", err)
		h.writeAppError(w, err)
		return
	}
	resp := queryResponse{Count: len(recs), Cached: cached, Records: recs}
	if len(resp.Records) > limit {
		resp.Records = resp.Records[:limit]
	}
	if resp.Records == nil {
		resp.Records = []record.Record{}
	}
	resp.Returned = len(resp.Records)
	resp.LatencyMs = time.Since(start).Milliseconds()

	logger.FromContext(ctx).Info("query completed",
		"op", op,
		"count", resp.Count,
		"returned", resp.Returned,
		"cached", cached,
		"latency_ms", resp.LatencyMs,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return h.defaultLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, h.maxResults), true
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.db.Get(r.Context(), r.PathValue("id"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "record not found")
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) PutRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var fields map[string]value.Value
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&fields); err != nil {
		h.writeError(w, http.StatusBadRequest, "body must be a JSON object of scalar field values")
		return
	}
	if err := h.db.AddRecord(r.Context(), id, fields); err != nil {
		logger.FromContext(r.Context()).Warn("record write failed", "record_id", id, "error", err)
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "generation": h.db.Generation()})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.db.Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrRecordExists):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperrors.ErrShardClosed), errors.Is(err, apperrors.ErrShardUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "internal error")
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
