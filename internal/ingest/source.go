// Package ingest grows the corpus in the background. A Coordinator
// periodically pulls candidate documents from pluggable sources, inserts the
// new ones, and keeps the relevance index and result cache in step with the
// corpus.
package ingest

import "context"

// Candidate is one raw document produced by a source, before validation and
// deduplication.
type Candidate struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Source pulls candidate documents from one external origin. Fetch is called
// once per ingestion cycle under a bounded context; implementations must
// respect cancellation. Adding an origin means adding a Source, never
// touching the coordinator.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Candidate, error)
}

// StaticSource serves a fixed candidate list. Useful for seeding a corpus
// and for tests.
type StaticSource struct {
	SourceName string
	Candidates []Candidate
}

// Name implements Source.
func (s *StaticSource) Name() string {
	return s.SourceName
}

// Fetch implements Source.
func (s *StaticSource) Fetch(ctx context.Context) ([]Candidate, error) {
	return s.Candidates, nil
}
