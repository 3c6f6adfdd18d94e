// Package metric loads per-overlay tabular datasets into geography-keyed
// records and buffers them until every overlay has settled.
package metric

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-overlays/internal/metrics"
	"github.com/sells-group/tract-overlays/internal/overlay"
)

// Record maps a geography identifier to the overlay's value for it.
type Record map[string]float64

// Lookup returns the value for geoid, or nil when the record has no entry.
func (r Record) Lookup(geoid string) *float64 {
	v, ok := r[geoid]
	if !ok {
		return nil
	}
	return &v
}

// ErrIncompleteSnapshot is returned when a snapshot is requested before every
// overlay's record has settled.
var ErrIncompleteSnapshot = errors.New("metric: snapshot incomplete")

// Snapshot is a read-only view of the records for a set of overlays.
type Snapshot map[string]Record

// Store buffers one Record per overlay id. Records are append-only: the first
// Put for an id wins and later puts are ignored.
type Store struct {
	mu       sync.RWMutex
	records  map[string]Record
	degraded map[string]error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		records:  make(map[string]Record),
		degraded: make(map[string]error),
	}
}

// Put stores rec for id unless a record is already present. It reports
// whether rec was stored.
func (s *Store) Put(id string, rec Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; ok {
		return false
	}
	if rec == nil {
		rec = Record{}
	}
	s.records[id] = rec
	return true
}

func (s *Store) putDegraded(id string, cause error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; ok {
		return false
	}
	s.records[id] = Record{}
	s.degraded[id] = cause
	return true
}

// Has reports whether a record for id has settled.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// Degraded returns the load error for each overlay that fell back to an
// empty record.
func (s *Store) Degraded() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]error, len(s.degraded))
	for id, err := range s.degraded {
		out[id] = err
	}
	return out
}

// Snapshot returns the records for defs. It fails with ErrIncompleteSnapshot
// naming the missing overlays if any has not settled.
func (s *Store) Snapshot(defs []overlay.Definition) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(Snapshot, len(defs))
	var missing []string
	for _, def := range defs {
		rec, ok := s.records[def.ID]
		if !ok {
			missing = append(missing, def.ID)
			continue
		}
		snap[def.ID] = rec
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, eris.Wrapf(ErrIncompleteSnapshot, "missing %s", strings.Join(missing, ", "))
	}
	return snap, nil
}

// Fill loads def's dataset through l and stores the result. A failed load
// is logged and degrades the overlay to an empty record; a load abandoned
// because ctx was cancelled stores nothing. Fill never returns the load
// error: it reports whether a record was stored.
func (s *Store) Fill(ctx context.Context, l Loader, def overlay.Definition) bool {
	log := zap.L().With(zap.String("overlay", def.ID), zap.String("source", def.Source))
	start := time.Now()

	rec, err := l.Load(ctx, def)
	metrics.DatasetLoadSeconds.WithLabelValues(def.ID).Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		log.Debug("metric: load abandoned", zap.Error(ctx.Err()))
		return false
	}
	if err != nil {
		log.Warn("metric: dataset unavailable, overlay degraded to missing data", zap.Error(err))
		metrics.DatasetLoadsTotal.WithLabelValues(def.ID, metrics.OutcomeDegraded).Inc()
		return s.putDegraded(def.ID, err)
	}

	metrics.DatasetLoadsTotal.WithLabelValues(def.ID, metrics.OutcomeOK).Inc()
	log.Info("metric: dataset loaded", zap.Int("records", len(rec)))
	return s.Put(def.ID, rec)
}
