package controller

import (
	"github.com/sells-group/tract-overlays/internal/expr"
	"github.com/sells-group/tract-overlays/internal/join"
	"github.com/sells-group/tract-overlays/internal/overlay"
	"github.com/sells-group/tract-overlays/internal/render"
)

// Status is a point-in-time summary of a view.
type Status struct {
	State    State             `json:"state"`
	Active   string            `json:"active,omitempty"`
	Error    string            `json:"error,omitempty"`
	Degraded map[string]string `json:"degraded,omitempty"`
	Join     *join.Stats       `json:"join,omitempty"`
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the active overlay id, or "" before the view is ready.
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Err returns the failure that moved the view to StateFailed.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Enriched returns the joined collection once the view is ready.
func (c *Controller) Enriched() (*join.Enriched, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enriched, c.enriched != nil && c.state == StateReady
}

// Map returns the live map once the view is ready.
func (c *Controller) Map() (render.Map, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view, c.view != nil && c.state == StateReady
}

// Status summarizes the view.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{State: c.state, Active: c.active}
	if c.err != nil {
		s.Error = c.err.Error()
	}
	if degraded := c.store.Degraded(); len(degraded) > 0 {
		s.Degraded = make(map[string]string, len(degraded))
		for id, err := range degraded {
			s.Degraded[id] = err.Error()
		}
	}
	if c.enriched != nil {
		stats := c.enriched.Stats()
		s.Join = &stats
	}
	return s
}

// OverlayValue is one overlay's reading for a feature.
type OverlayValue struct {
	Overlay  string        `json:"overlay"`
	Property string        `json:"property"`
	Value    *float64      `json:"value"`
	Display  string        `json:"display,omitempty"`
	Class    overlay.Class `json:"class"`
	// Fill is the color the compiled expression resolves to for this
	// feature. It always equals Class.Color.
	Fill any `json:"fill"`
}

// Inspection is every overlay's reading for one feature.
type Inspection struct {
	GEOID    string         `json:"geoid"`
	Active   string         `json:"active"`
	Overlays []OverlayValue `json:"overlays"`
}

// Inspect reports the joined value, classification and evaluated fill of
// every overlay for the feature with the given identifier.
func (c *Controller) Inspect(geoid string) (Inspection, bool, error) {
	c.mu.Lock()
	enriched, active := c.enriched, c.active
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready || enriched == nil {
		return Inspection{}, false, nil
	}
	f, ok := enriched.Feature(geoid)
	if !ok {
		return Inspection{}, false, nil
	}

	set := c.deps.Overlays
	out := Inspection{GEOID: geoid, Active: active}
	for _, def := range set.All() {
		v := join.Value(f, def.Property)
		fill, err := expr.Eval(expr.Compile(def, set.Palette()), f.Properties)
		if err != nil {
			return Inspection{}, false, err
		}
		ov := OverlayValue{
			Overlay:  def.ID,
			Property: def.Property,
			Value:    v,
			Class:    overlay.Classify(v, def, set.Palette()),
			Fill:     fill,
		}
		if v != nil {
			ov.Display = def.Format.Value(*v)
		}
		out.Overlays = append(out.Overlays, ov)
	}
	return out, true, nil
}
