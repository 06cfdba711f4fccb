package search

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/docstream-labs/docsearch/internal/index"
)

// Searcher runs a query through the result cache and the ranker against the
// current index generation.
type Searcher struct {
	index  *index.Manager
	cache  ResultCache
	group  singleflight.Group
	logger *slog.Logger
}

// NewSearcher creates a Searcher.
func NewSearcher(manager *index.Manager, cache ResultCache) *Searcher {
	return &Searcher{
		index:  manager,
		cache:  cache,
		logger: slog.Default().With("component", "searcher"),
	}
}

// Search returns the ranked hits for the query, reporting whether they came
// from the cache. Identical concurrent misses are collapsed into one ranking
// computation.
func (s *Searcher) Search(ctx context.Context, callerID, query string, topK int, threshold float64) ([]Hit, bool, error) {
	idx, err := s.index.Current(ctx)
	if err != nil {
		return nil, false, err
	}
	generation := idx.Generation()
	key := CacheKey{CallerID: callerID, Query: query, TopK: topK, Threshold: threshold}

	if hits, ok := s.cache.Get(ctx, key, generation); ok {
		return hits, true, nil
	}

	flightKey := fmt.Sprintf("%d:%s", generation, key.String())
	val, err, _ := s.group.Do(flightKey, func() (interface{}, error) {
		if hits, ok := s.cache.Get(ctx, key, generation); ok {
			return hits, nil
		}
		hits := Rank(idx, query, topK, threshold)
		s.cache.Put(ctx, key, generation, hits)
		return hits, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]Hit), false, nil
}
