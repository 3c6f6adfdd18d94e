// Package geometry loads the shared feature collection that every map view
// joins its overlays onto.
package geometry

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Collection is the immutable base geometry. Its features and their
// property bags must not be modified after loading; the join copies
// properties before enriching them.
type Collection struct {
	features []*geojson.Feature
}

// NewCollection wraps features. Features with nil property bags get an
// empty one.
func NewCollection(features []*geojson.Feature) *Collection {
	for _, f := range features {
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
	}
	return &Collection{features: features}
}

// Len returns the number of features.
func (c *Collection) Len() int { return len(c.features) }

// Features returns the features. Callers must treat them as read-only.
func (c *Collection) Features() []*geojson.Feature { return c.features }

// DecodeGeoJSON reads a GeoJSON FeatureCollection.
func DecodeGeoJSON(r io.Reader) (*Collection, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "geometry: decode geojson")
	}
	return NewCollection(fc.Features), nil
}
