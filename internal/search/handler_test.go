package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/docstream-labs/docsearch/internal/index"
	"github.com/docstream-labs/docsearch/internal/ratelimit"
	"github.com/docstream-labs/docsearch/internal/store"
)

// memSnapshotter serves an in-memory corpus, optionally failing.
type memSnapshotter struct {
	docs []store.Document
	err  error
}

func (s *memSnapshotter) All(ctx context.Context) ([]store.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

func newTestHandler(t *testing.T, snap *memSnapshotter, maxRequests int) (*Handler, *index.Manager) {
	t.Helper()
	limiter, err := ratelimit.New(maxRequests, time.Minute, nil)
	if err != nil {
		t.Fatal(err)
	}
	manager := index.NewManager(snap, nil)
	searcher := NewSearcher(manager, NewMemoryCache())
	return NewHandler(searcher, limiter, nil, 10, 0.5), manager
}

func doSearch(h *Handler, params url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)
	return rec
}

func decodeResults(t *testing.T, rec *httptest.ResponseRecorder) []Hit {
	t.Helper()
	var resp struct {
		Results []Hit `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.Results
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return resp.Error
}

func TestSearchRequiresCallerID(t *testing.T) {
	h, _ := newTestHandler(t, &memSnapshotter{}, 5)
	rec := doSearch(h, url.Values{"text": {"irish"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing caller_id: status = %d, want 400", rec.Code)
	}
	if msg := decodeError(t, rec); !strings.Contains(msg, "caller_id") {
		t.Errorf("error body %q should name the missing parameter", msg)
	}
}

func TestSearchRejectsBadTopK(t *testing.T) {
	h, _ := newTestHandler(t, &memSnapshotter{}, 5)
	rec := doSearch(h, url.Values{"caller_id": {"alice"}, "text": {"irish"}, "top_k": {"ten"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-integer top_k: status = %d, want 400", rec.Code)
	}
}

func TestSearchRejectsBadThreshold(t *testing.T) {
	h, _ := newTestHandler(t, &memSnapshotter{}, 50)
	for _, bad := range []string{"high", "-0.1", "1.5"} {
		rec := doSearch(h, url.Values{"caller_id": {"alice"}, "text": {"irish"}, "threshold": {bad}})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("threshold %q: status = %d, want 400", bad, rec.Code)
		}
	}
}

func TestSearchEmptyCorpus(t *testing.T) {
	h, _ := newTestHandler(t, &memSnapshotter{}, 5)
	rec := doSearch(h, url.Values{"caller_id": {"alice"}, "text": {"irish"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if results := decodeResults(t, rec); len(results) != 0 {
		t.Errorf("empty corpus returned %v", results)
	}
}

func TestSearchRanksAndBreaksTies(t *testing.T) {
	snap := &memSnapshotter{docs: []store.Document{
		{ID: 1, URL: "http://example.com/setter", Title: "setter", Text: "irish setter dog"},
		{ID: 2, URL: "http://example.com/coffee", Title: "coffee", Text: "irish coffee recipe"},
	}}
	h, _ := newTestHandler(t, snap, 50)

	rec := doSearch(h, url.Values{
		"caller_id": {"alice"},
		"text":      {"irish"},
		"top_k":     {"2"},
		"threshold": {"0"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	results := decodeResults(t, rec)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 1 || results[1].ID != 2 {
		t.Errorf("expected id order 1, 2, got %d, %d", results[0].ID, results[1].ID)
	}
	if results[0].URL != "http://example.com/setter" {
		t.Errorf("unexpected url %q", results[0].URL)
	}
}

func TestSearchRateLimits(t *testing.T) {
	h, _ := newTestHandler(t, &memSnapshotter{}, 5)
	params := url.Values{"caller_id": {"alice"}, "text": {"irish"}}

	for i := 0; i < 5; i++ {
		if rec := doSearch(h, params); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
	rec := doSearch(h, params)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("6th request: status = %d, want 429", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "too many requests" {
		t.Errorf("429 error body = %q, want %q", msg, "too many requests")
	}
	if retry := rec.Header().Get("Retry-After"); retry == "" {
		t.Error("429 response must carry Retry-After")
	} else if secs, err := strconv.Atoi(retry); err != nil || secs <= 0 {
		t.Errorf("Retry-After = %q, want a positive integer", retry)
	}

	// A different caller is unaffected.
	other := url.Values{"caller_id": {"bob"}, "text": {"irish"}}
	if rec := doSearch(h, other); rec.Code != http.StatusOK {
		t.Errorf("other caller: status = %d, want 200", rec.Code)
	}
}

func TestSearchStoreFailure(t *testing.T) {
	h, _ := newTestHandler(t, &memSnapshotter{err: errors.New("connection refused")}, 5)
	rec := doSearch(h, url.Values{"caller_id": {"alice"}, "text": {"irish"}})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("snapshot failure: status = %d, want 503", rec.Code)
	}
	// The caller gets a generic message, not storage internals.
	if msg := decodeError(t, rec); strings.Contains(msg, "connection refused") {
		t.Errorf("error body %q leaks the underlying failure", msg)
	}
}

func TestSearchReflectsNewDocuments(t *testing.T) {
	snap := &memSnapshotter{docs: []store.Document{
		{ID: 1, Title: "setter", Text: "irish setter dog"},
	}}
	h, manager := newTestHandler(t, snap, 50)
	params := url.Values{"caller_id": {"alice"}, "text": {"irish"}, "threshold": {"0"}}

	rec := doSearch(h, params)
	if got := len(decodeResults(t, rec)); got != 1 {
		t.Fatalf("expected 1 result before ingestion, got %d", got)
	}

	snap.docs = append(snap.docs, store.Document{ID: 2, Title: "coffee", Text: "irish coffee recipe"})
	manager.MarkStale()

	rec = doSearch(h, params)
	results := decodeResults(t, rec)
	if len(results) != 2 {
		t.Fatalf("expected 2 results after rebuild, got %d", len(results))
	}
}

func TestSearchServesCacheAcrossRepeats(t *testing.T) {
	snap := &memSnapshotter{docs: []store.Document{
		{ID: 1, Title: "setter", Text: "irish setter dog"},
	}}
	limiter, err := ratelimit.New(50, time.Minute, nil)
	if err != nil {
		t.Fatal(err)
	}
	cache := NewMemoryCache()
	manager := index.NewManager(snap, nil)
	searcher := NewSearcher(manager, cache)
	h := NewHandler(searcher, limiter, nil, 10, 0.5)
	params := url.Values{"caller_id": {"alice"}, "text": {"irish"}, "threshold": {"0"}}

	first := doSearch(h, params)
	second := doSearch(h, params)
	if first.Body.String() != second.Body.String() {
		t.Errorf("repeated query must produce identical bodies:\n%s\n%s", first.Body.String(), second.Body.String())
	}
	if hits, _ := cache.Stats(); hits != 1 {
		t.Errorf("second request should have hit the cache, hits = %d", hits)
	}
}
