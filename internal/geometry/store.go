package geometry

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/tract-overlays/internal/metrics"
)

// Store loads the base collection at most once per process and shares it
// across views. Concurrent callers wait on the same in-flight load. A failed
// load is not cached, so a later view may retry.
type Store struct {
	source Source
	group  singleflight.Group

	mu     sync.RWMutex
	loaded *Collection
}

// NewStore creates a Store over source.
func NewStore(source Source) *Store {
	return &Store{source: source}
}

// Loaded returns the collection if it has been loaded.
func (s *Store) Loaded() (*Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded, s.loaded != nil
}

// Get returns the shared collection, loading it on first use. The load
// itself is detached from ctx so one caller giving up does not fail the
// others; ctx only bounds how long this caller waits.
func (s *Store) Get(ctx context.Context) (*Collection, error) {
	if c, ok := s.Loaded(); ok {
		return c, nil
	}

	ch := s.group.DoChan("geometry", func() (any, error) {
		if c, ok := s.Loaded(); ok {
			return c, nil
		}
		start := time.Now()
		c, err := s.source.Load(context.WithoutCancel(ctx))
		if err != nil {
			metrics.GeometryLoadsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			return nil, err
		}
		metrics.GeometryLoadsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
		zap.L().Info("geometry: collection loaded",
			zap.Int("features", c.Len()),
			zap.Duration("elapsed", time.Since(start)),
		)

		s.mu.Lock()
		s.loaded = c
		s.mu.Unlock()
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "geometry: wait for load")
	case res := <-ch:
		if res.Err != nil {
			return nil, eris.Wrap(res.Err, "geometry: load")
		}
		return res.Val.(*Collection), nil
	}
}
