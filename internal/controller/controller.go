// Package controller drives one map view: it gates first paint on every
// dataset and the geometry settling, and swaps the active overlay's paint
// expression afterwards.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tract-overlays/internal/expr"
	"github.com/sells-group/tract-overlays/internal/geometry"
	"github.com/sells-group/tract-overlays/internal/join"
	"github.com/sells-group/tract-overlays/internal/metric"
	"github.com/sells-group/tract-overlays/internal/metrics"
	"github.com/sells-group/tract-overlays/internal/overlay"
	"github.com/sells-group/tract-overlays/internal/render"
)

// State is the lifecycle state of a view.
type State string

// View states.
const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateFailed        State = "failed"
	StateDisposed      State = "disposed"
)

// SwitchResult describes the outcome of Select.
type SwitchResult string

// Select outcomes. Everything except SwitchError leaves the view untouched
// or fully switched; none of them is a user-facing failure.
const (
	SwitchApplied        SwitchResult = "applied"
	SwitchAlreadyActive  SwitchResult = "already_active"
	SwitchUnknownOverlay SwitchResult = "unknown_overlay"
	SwitchNotReady       SwitchResult = "not_ready"
	SwitchError          SwitchResult = "error"
)

// ErrAlreadyMounted is returned by a second Mount.
var ErrAlreadyMounted = errors.New("controller: already mounted")

// GeometrySource provides the shared base collection.
type GeometrySource interface {
	Get(ctx context.Context) (*geometry.Collection, error)
}

// Deps are the collaborators of a view.
type Deps struct {
	Overlays *overlay.Set
	Geometry GeometrySource
	Metrics  metric.Loader
	NewMap   render.Factory
}

// Controller owns one view's overlay state machine. All methods are safe for
// concurrent use.
type Controller struct {
	deps Deps
	log  *zap.Logger

	mu       sync.Mutex
	state    State
	active   string
	enriched *join.Enriched
	view     render.Map
	err      error
	store    *metric.Store
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an unmounted controller.
func New(deps Deps) *Controller {
	c := &Controller{
		deps:  deps,
		log:   zap.L().With(zap.String("component", "controller")),
		state: StateUninitialized,
		store: metric.NewStore(),
		done:  make(chan struct{}),
	}
	metrics.ViewsActive.WithLabelValues(string(StateUninitialized)).Inc()
	return c
}

// setState must be called with mu held.
func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	metrics.ViewsActive.WithLabelValues(string(c.state)).Dec()
	if s != StateDisposed {
		metrics.ViewsActive.WithLabelValues(string(s)).Inc()
	}
	c.state = s
}

// Mount starts the geometry load and one metric load per overlay, all
// concurrently, and returns immediately. The loads outlive ctx's
// cancellation; Unmount stops them.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUninitialized {
		return ErrAlreadyMounted
	}

	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.setState(StateLoading)

	go c.load(loadCtx)
	return nil
}

func (c *Controller) load(ctx context.Context) {
	defer close(c.done)
	start := time.Now()

	defs := c.deps.Overlays.All()
	var base *geometry.Collection

	// Geometry failure cancels outstanding dataset loads; the view cannot
	// become ready either way.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		base, err = c.deps.Geometry.Get(gctx)
		return err
	})
	for _, def := range defs {
		g.Go(func() error {
			c.store.Fill(gctx, c.deps.Metrics, def)
			return nil
		})
	}
	loadErr := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateLoading {
		c.log.Debug("discarding load results for closed view", zap.String("state", string(c.state)))
		return
	}
	if loadErr != nil {
		c.fail(eris.Wrap(loadErr, "controller: geometry"))
		return
	}

	snap, err := c.store.Snapshot(defs)
	if err != nil {
		c.log.DPanic("join attempted on incomplete snapshot", zap.Error(err))
		c.fail(err)
		return
	}
	enriched, err := join.Join(base, snap, defs)
	if err != nil {
		c.log.DPanic("join precondition violated", zap.Error(err))
		c.fail(err)
		return
	}

	view, err := c.firstPaint(ctx, enriched)
	if err != nil {
		c.fail(err)
		return
	}

	c.enriched = enriched
	c.view = view
	c.active = c.deps.Overlays.Default().ID
	c.setState(StateReady)

	stats := enriched.Stats()
	c.log.Info("view ready",
		zap.String("overlay", c.active),
		zap.Int("features", stats.Features),
		zap.Int("unkeyed", stats.Unkeyed),
		zap.Int("degraded", len(c.store.Degraded())),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// firstPaint creates the map and installs the source and layers painted
// with the default overlay. Must be called with mu held.
func (c *Controller) firstPaint(ctx context.Context, enriched *join.Enriched) (render.Map, error) {
	def := c.deps.Overlays.Default()
	fill := expr.Compile(def, c.deps.Overlays.Palette())

	view, err := c.deps.NewMap(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "controller: create map")
	}
	steps := []func() error{
		func() error { return view.AddSource(render.SourceID, enriched) },
		func() error { return view.AddLayer(render.FillLayer(fill)) },
		func() error { return view.AddLayer(render.BoundaryLayer()) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			view.Remove()
			return nil, eris.Wrap(err, "controller: first paint")
		}
	}
	return view, nil
}

// fail must be called with mu held.
func (c *Controller) fail(err error) {
	c.err = err
	c.setState(StateFailed)
	c.log.Error("view failed", zap.Error(err))
}

// Select makes id the active overlay by replacing the fill layer's paint
// expression. Nothing else about the view changes.
func (c *Controller) Select(id string) (SwitchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.selectLocked(id)
	metrics.SwitchesTotal.WithLabelValues(string(res)).Inc()
	return res, err
}

func (c *Controller) selectLocked(id string) (SwitchResult, error) {
	if c.state != StateReady || !c.view.HasLayer(render.FillLayerID) {
		return SwitchNotReady, nil
	}
	def, ok := c.deps.Overlays.Get(id)
	if !ok {
		c.log.Debug("ignoring unknown overlay", zap.String("overlay", id))
		return SwitchUnknownOverlay, nil
	}
	if id == c.active {
		return SwitchAlreadyActive, nil
	}

	fill := expr.Compile(def, c.deps.Overlays.Palette())
	if err := c.view.SetPaintProperty(render.FillLayerID, render.PaintFillColor, fill); err != nil {
		return SwitchError, eris.Wrapf(err, "controller: switch to %s", id)
	}
	c.active = id
	return SwitchApplied, nil
}

// Unmount cancels outstanding loads and releases the map. Results that
// arrive afterwards are discarded. Unmount is idempotent.
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisposed {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.view != nil {
		c.view.Remove()
		c.view = nil
	}
	c.setState(StateDisposed)
}

// Wait blocks until loading has settled or ctx is done. It returns
// immediately for a view that was never mounted.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	mounted := c.cancel != nil
	c.mu.Unlock()
	if !mounted {
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
