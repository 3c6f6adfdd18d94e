// Package render is the boundary to the host map engine: a handle that
// accepts sources, layers and paint updates, plus an in-memory
// implementation that maintains a MapLibre style document.
package render

import (
	"context"
	"errors"
)

// Identifiers of the source and layers a map view installs.
const (
	SourceID        = "tracts"
	FillLayerID     = "tract-overlay-fill"
	BoundaryLayerID = "tract-boundaries"

	PaintFillColor = "fill-color"
)

// ErrRemoved is returned by a Map after Remove.
var ErrRemoved = errors.New("render: map removed")

// Layer is one style layer.
type Layer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Paint  map[string]any `json:"paint,omitempty"`
}

// Map is a live map instance. Implementations need not be safe for
// concurrent use; the owning view serializes calls.
type Map interface {
	AddSource(id string, data any) error
	AddLayer(l Layer) error
	HasLayer(id string) bool
	SetPaintProperty(layerID, name string, value any) error
	// Remove releases the instance. Later calls fail with ErrRemoved.
	Remove()
}

// Factory creates the map instance for a view once its data is ready.
type Factory func(ctx context.Context) (Map, error)

// FillLayer returns the choropleth fill layer painted with fillColor.
func FillLayer(fillColor any) Layer {
	return Layer{
		ID:     FillLayerID,
		Type:   "fill",
		Source: SourceID,
		Paint: map[string]any{
			PaintFillColor: fillColor,
			"fill-opacity": 0.7,
		},
	}
}

// BoundaryLayer returns the tract outline layer.
func BoundaryLayer() Layer {
	return Layer{
		ID:     BoundaryLayerID,
		Type:   "line",
		Source: SourceID,
		Paint: map[string]any{
			"line-color":   "#ffffff",
			"line-width":   0.5,
			"line-opacity": 0.8,
		},
	}
}
