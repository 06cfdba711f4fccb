package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// WebpageSource fetches a fixed set of URLs over HTTP and extracts a
// (url, title, text) candidate from each page with readability. A page that
// fails to fetch or parse is logged and skipped; the source only errors when
// every page failed.
type WebpageSource struct {
	name   string
	urls   []string
	client *http.Client
	logger *slog.Logger
}

// NewWebpageSource creates a WebpageSource over the given page URLs.
func NewWebpageSource(name string, urls []string) *WebpageSource {
	return &WebpageSource{
		name: name,
		urls: urls,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: slog.Default().With("component", "webpage-source", "source", name),
	}
}

// Name implements Source.
func (s *WebpageSource) Name() string {
	return s.name
}

// Fetch implements Source.
func (s *WebpageSource) Fetch(ctx context.Context) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(s.urls))
	var lastErr error
	for _, pageURL := range s.urls {
		if ctx.Err() != nil {
			return candidates, ctx.Err()
		}
		candidate, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			lastErr = err
			s.logger.Warn("page fetch failed, skipping", "url", pageURL, "error", err)
			continue
		}
		candidates = append(candidates, candidate)
	}
	if len(candidates) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all %d pages failed, last error: %w", len(s.urls), lastErr)
	}
	return candidates, nil
}

func (s *WebpageSource) fetchPage(ctx context.Context, pageURL string) (Candidate, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Candidate{}, fmt.Errorf("parsing url %q: %w", pageURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Candidate{}, fmt.Errorf("building request for %q: %w", pageURL, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Candidate{}, fmt.Errorf("fetching %q: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Candidate{}, fmt.Errorf("fetching %q: status %d", pageURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return Candidate{}, fmt.Errorf("extracting article from %q: %w", pageURL, err)
	}

	return Candidate{
		URL:   pageURL,
		Title: article.Title,
		Text:  article.TextContent,
	}, nil
}
