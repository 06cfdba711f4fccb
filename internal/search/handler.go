package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/docstream-labs/docsearch/internal/ratelimit"
	apperrors "github.com/docstream-labs/docsearch/pkg/errors"
	"github.com/docstream-labs/docsearch/pkg/logger"
	"github.com/docstream-labs/docsearch/pkg/metrics"
)

// Handler serves the search endpoint: rate limiter, then cache, then ranker.
type Handler struct {
	searcher         *Searcher
	limiter          *ratelimit.Limiter
	metrics          *metrics.Metrics
	defaultTopK      int
	defaultThreshold float64
	logger           *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(searcher *Searcher, limiter *ratelimit.Limiter, m *metrics.Metrics, defaultTopK int, defaultThreshold float64) *Handler {
	return &Handler{
		searcher:         searcher,
		limiter:          limiter,
		metrics:          m,
		defaultTopK:      defaultTopK,
		defaultThreshold: defaultThreshold,
		logger:           slog.Default().With("component", "search-handler"),
	}
}

type searchResponse struct {
	Results []Hit `json:"results"`
}

// Search handles GET /api/v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	callerID := r.URL.Query().Get("caller_id")
	if callerID == "" {
		h.countOutcome("invalid")
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'caller_id' is required"))
		return
	}

	query := r.URL.Query().Get("text")

	topK := h.defaultTopK
	if topKStr := r.URL.Query().Get("top_k"); topKStr != "" {
		parsed, err := strconv.Atoi(topKStr)
		if err != nil {
			h.countOutcome("invalid")
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "top_k must be an integer"))
			return
		}
		topK = parsed
	}

	threshold := h.defaultThreshold
	if thresholdStr := r.URL.Query().Get("threshold"); thresholdStr != "" {
		parsed, err := strconv.ParseFloat(thresholdStr, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			h.countOutcome("invalid")
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "threshold must be a number in [0,1]"))
			return
		}
		threshold = parsed
	}

	if !h.limiter.Allow(callerID) {
		h.countOutcome("rejected")
		if h.metrics != nil {
			h.metrics.RateLimitRejections.Inc()
		}
		log.Info("request rate limited", "caller_id", callerID)
		w.Header().Set("Retry-After", strconv.Itoa(int(h.limiter.Window().Seconds())))
		h.writeError(w, apperrors.New(apperrors.ErrRateLimited, http.StatusTooManyRequests, "too many requests"))
		return
	}

	hits, cacheHit, err := h.searcher.Search(ctx, callerID, query, topK, threshold)
	if err != nil {
		h.countOutcome("error")
		log.Error("search failed", "caller_id", callerID, "query", query, "error", err)
		h.writeError(w, apperrors.New(apperrors.ErrStoreUnavailable, apperrors.HTTPStatusCode(err), "search temporarily unavailable"))
		return
	}

	h.countOutcome("served")
	if h.metrics != nil {
		cacheStatus := "miss"
		if cacheHit {
			h.metrics.CacheHitsTotal.Inc()
			cacheStatus = "hit"
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
		h.metrics.SearchResultsCount.Observe(float64(len(hits)))
	}
	log.Info("search completed",
		"caller_id", callerID,
		"query", query,
		"returned", len(hits),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	h.writeJSON(w, http.StatusOK, searchResponse{Results: hits})
}

func (h *Handler) countOutcome(outcome string) {
	if h.metrics != nil {
		h.metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatusCode(err))
	fmt.Fprintf(w, `{"error":%q}`+"\n", message)
}
