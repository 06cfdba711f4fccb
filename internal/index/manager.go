package index

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/docstream-labs/docsearch/internal/store"
	apperrors "github.com/docstream-labs/docsearch/pkg/errors"
	"github.com/docstream-labs/docsearch/pkg/metrics"
)

// Snapshotter supplies the document snapshot an index is built from.
type Snapshotter interface {
	All(ctx context.Context) ([]store.Document, error)
}

// Manager owns the current Index and keeps it consistent with the document
// store. Indexes are immutable and published by atomic pointer swap, so a
// ranking call always observes exactly one snapshot even while a rebuild is
// in flight.
type Manager struct {
	source     Snapshotter
	current    atomic.Pointer[Index]
	stale      atomic.Bool
	generation atomic.Uint64
	rebuildMu  sync.Mutex
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewManager creates a Manager. The index starts stale so the first read
// builds it from the store.
func NewManager(source Snapshotter, m *metrics.Metrics) *Manager {
	mgr := &Manager{
		source:  source,
		metrics: m,
		logger:  slog.Default().With("component", "index-manager"),
	}
	mgr.stale.Store(true)
	return mgr
}

// MarkStale records that the corpus has grown past the published index. The
// next read that requires freshness triggers a rebuild.
func (m *Manager) MarkStale() {
	m.stale.Store(true)
}

// Current returns an index consistent with the latest store snapshot,
// rebuilding first if the published one is stale.
func (m *Manager) Current(ctx context.Context) (*Index, error) {
	if !m.stale.Load() {
		if idx := m.current.Load(); idx != nil {
			return idx, nil
		}
	}
	return m.Rebuild(ctx)
}

// Rebuild loads a snapshot, builds a fresh index one generation up, and
// publishes it. Concurrent callers serialise on the rebuild lock; whoever
// arrives second reuses the index the first one just published.
func (m *Manager) Rebuild(ctx context.Context) (*Index, error) {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	if !m.stale.Load() {
		if idx := m.current.Load(); idx != nil {
			return idx, nil
		}
	}

	docs, err := m.source.All(ctx)
	if err != nil {
		if m.metrics != nil {
			m.metrics.IndexRebuildsTotal.WithLabelValues("error").Inc()
		}
		return nil, apperrors.Newf(apperrors.ErrStoreUnavailable, http.StatusServiceUnavailable, "loading document snapshot: %v", err)
	}

	generation := m.generation.Add(1)
	idx := Build(generation, docs)
	m.current.Store(idx)
	m.stale.Store(false)

	if m.metrics != nil {
		m.metrics.IndexRebuildsTotal.WithLabelValues("ok").Inc()
		m.metrics.IndexGeneration.Set(float64(generation))
		m.metrics.IndexDocuments.Set(float64(len(docs)))
	}
	m.logger.Info("index rebuilt", "generation", generation, "documents", len(docs))
	return idx, nil
}

// Generation returns the generation of the published index, or 0 when none
// has been built yet.
func (m *Manager) Generation() uint64 {
	if idx := m.current.Load(); idx != nil {
		return idx.Generation()
	}
	return 0
}

// String describes the manager state for health reporting.
func (m *Manager) String() string {
	idx := m.current.Load()
	if idx == nil {
		return "no index built"
	}
	return fmt.Sprintf("generation %d, %d documents", idx.Generation(), idx.Size())
}
