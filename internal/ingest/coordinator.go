package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/docstream-labs/docsearch/internal/index"
	"github.com/docstream-labs/docsearch/internal/search"
	"github.com/docstream-labs/docsearch/internal/store"
	"github.com/docstream-labs/docsearch/pkg/config"
	apperrors "github.com/docstream-labs/docsearch/pkg/errors"
	"github.com/docstream-labs/docsearch/pkg/metrics"
	"github.com/docstream-labs/docsearch/pkg/resilience"
)

// Coordinator runs the recurring ingestion task. It never shares execution
// resources with the serving path: a hung source stalls at most one cycle,
// and only within its own timeout.
type Coordinator struct {
	store    *store.Store
	index    *index.Manager
	cache    search.ResultCache
	sources  []Source
	breakers map[string]*resilience.CircuitBreaker
	cfg      config.IngestConfig
	schedule *cronexpr.Expression
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Coordinator over the given sources. Each source gets its own
// circuit breaker so one repeatedly failing origin is skipped cheaply while
// the rest keep ingesting.
func New(st *store.Store, idx *index.Manager, cache search.ResultCache, sources []Source, cfg config.IngestConfig, m *metrics.Metrics) (*Coordinator, error) {
	var schedule *cronexpr.Expression
	if cfg.Schedule != "" {
		expr, err := cronexpr.Parse(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("parsing ingest schedule %q: %w", cfg.Schedule, err)
		}
		schedule = expr
	}

	breakers := make(map[string]*resilience.CircuitBreaker, len(sources))
	for _, src := range sources {
		breakers[src.Name()] = resilience.NewCircuitBreaker(src.Name(), resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     5 * time.Minute,
		})
	}

	return &Coordinator{
		store:    st,
		index:    idx,
		cache:    cache,
		sources:  sources,
		breakers: breakers,
		cfg:      cfg,
		schedule: schedule,
		metrics:  m,
		logger:   slog.Default().With("component", "ingest-coordinator"),
	}, nil
}

// Run executes ingestion cycles until ctx is cancelled. It blocks; callers
// start it on its own goroutine.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("ingestion coordinator started",
		"sources", len(c.sources),
		"interval", c.cfg.Interval,
		"schedule", c.cfg.Schedule,
	)
	for {
		wait := c.nextWait()
		select {
		case <-ctx.Done():
			c.logger.Info("ingestion coordinator stopping", "reason", ctx.Err())
			return nil
		case <-time.After(wait):
		}
		c.RunCycle(ctx)
	}
}

// nextWait returns how long to sleep before the next cycle.
func (c *Coordinator) nextWait() time.Duration {
	if c.schedule != nil {
		return time.Until(c.schedule.Next(time.Now()))
	}
	return c.cfg.Interval
}

// RunCycle pulls every source once, inserting new documents up to the
// per-cycle cap. When at least one document was added, the index is rebuilt
// and the result cache invalidated so the next query reflects the new
// corpus.
func (c *Coordinator) RunCycle(ctx context.Context) {
	start := time.Now()
	accepted := 0
	failures := 0

	for _, src := range c.sources {
		if ctx.Err() != nil {
			return
		}
		if accepted >= c.cfg.MaxDocsPerCycle {
			c.logger.Info("per-cycle document cap reached", "cap", c.cfg.MaxDocsPerCycle)
			break
		}

		candidates, err := c.fetchSource(ctx, src)
		if err != nil {
			failures++
			if c.metrics != nil {
				c.metrics.SourceFetchFailures.WithLabelValues(src.Name()).Inc()
			}
			if errors.Is(err, resilience.ErrCircuitOpen) {
				c.logger.Debug("source skipped, circuit open", "source", src.Name())
			} else {
				c.logger.Warn("source fetch failed, skipping", "source", src.Name(), "error", err)
			}
			continue
		}

		for _, candidate := range candidates {
			if accepted >= c.cfg.MaxDocsPerCycle {
				break
			}
			if err := ValidateCandidate(candidate); err != nil {
				c.logger.Warn("dropping invalid candidate", "source", src.Name(), "url", candidate.URL, "error", err)
				continue
			}
			_, inserted, err := c.store.Insert(ctx, candidate.URL, candidate.Title, candidate.Text)
			if err != nil {
				c.logger.Error("insert failed", "source", src.Name(), "title", candidate.Title, "error", err)
				continue
			}
			if inserted {
				accepted++
				if c.metrics != nil {
					c.metrics.DocsIngestedTotal.Inc()
				}
			}
		}
	}

	if accepted > 0 {
		c.index.MarkStale()
		if _, err := c.index.Rebuild(ctx); err != nil {
			c.logger.Error("index rebuild failed after ingestion", "error", err)
		}
		if err := c.cache.InvalidateAll(ctx); err != nil {
			c.logger.Error("cache invalidation failed after ingestion", "error", err)
		}
	}

	status := "clean"
	if failures > 0 {
		status = "partial"
	}
	if c.metrics != nil {
		c.metrics.IngestCyclesTotal.WithLabelValues(status).Inc()
	}
	c.logger.Info("ingestion cycle finished",
		"accepted", accepted,
		"source_failures", failures,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// fetchSource runs one source fetch under its circuit breaker and the
// per-source timeout. Fetch failures carry the source-fetch sentinel;
// circuit-open rejections pass through unwrapped.
func (c *Coordinator) fetchSource(ctx context.Context, src Source) ([]Candidate, error) {
	var candidates []Candidate
	err := c.breakers[src.Name()].Execute(func() error {
		fetchCtx := ctx
		if c.cfg.SourceTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, c.cfg.SourceTimeout)
			defer cancel()
		}
		return resilience.Retry(fetchCtx, src.Name(), resilience.RetryConfig{
			MaxAttempts:  2,
			InitialDelay: 500 * time.Millisecond,
		}, func() error {
			var err error
			candidates, err = src.Fetch(fetchCtx)
			return err
		})
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrSourceFetch, src.Name(), err)
	}
	return candidates, err
}
