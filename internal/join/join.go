// Package join attaches every overlay's metric values to the base geometry,
// producing the enriched collection a map view renders from.
package join

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/tract-overlays/internal/geometry"
	"github.com/sells-group/tract-overlays/internal/metric"
	"github.com/sells-group/tract-overlays/internal/metrics"
	"github.com/sells-group/tract-overlays/internal/overlay"
)

// Conventional spellings of the geography identifier property, checked in
// order before falling back to a case-insensitive match.
var idKeys = []string{"GEOID", "geoid"}

// Stats summarizes a join.
type Stats struct {
	Features int            `json:"features"`
	Unkeyed  int            `json:"unkeyed"`
	Matched  map[string]int `json:"matched"`
}

// Enriched is the base geometry with one property per overlay attached to
// every feature. It is built once and read-only afterwards.
type Enriched struct {
	features []*geojson.Feature
	index    map[string]int
	stats    Stats
}

// Join builds the enriched collection. Every feature gets a property for
// every overlay in defs: a float64 when the overlay's record has the
// feature's identifier, nil otherwise. The base collection is not modified.
// It fails with metric.ErrIncompleteSnapshot when snap lacks any overlay.
func Join(base *geometry.Collection, snap metric.Snapshot, defs []overlay.Definition) (*Enriched, error) {
	if base == nil {
		return nil, eris.New("join: geometry not loaded")
	}
	for _, def := range defs {
		if _, ok := snap[def.ID]; !ok {
			return nil, eris.Wrapf(metric.ErrIncompleteSnapshot, "join: no record for %s", def.ID)
		}
	}

	start := time.Now()
	src := base.Features()
	e := &Enriched{
		features: make([]*geojson.Feature, len(src)),
		index:    make(map[string]int, len(src)),
		stats:    Stats{Features: len(src), Matched: make(map[string]int, len(defs))},
	}

	for i, f := range src {
		props := make(map[string]any, len(f.Properties)+len(defs))
		for k, v := range f.Properties {
			props[k] = v
		}

		id, ok := Identifier(f.Properties)
		if !ok {
			e.stats.Unkeyed++
		} else if _, dup := e.index[id]; !dup {
			e.index[id] = i
		}

		for _, def := range defs {
			var val any
			if ok {
				if v, found := snap[def.ID][id]; found {
					val = v
					e.stats.Matched[def.ID]++
				}
			}
			props[def.Property] = val
		}

		e.features[i] = &geojson.Feature{
			ID:         f.ID,
			BBox:       f.BBox,
			Geometry:   f.Geometry,
			Properties: props,
		}
	}

	metrics.JoinDurationSeconds.Observe(time.Since(start).Seconds())
	return e, nil
}

// Identifier returns a feature's geography identifier: GEOID, then geoid,
// then any other casing of the same key in sorted order. Numeric identifiers
// are zero-padded to the tract width, since a number cannot keep the leading
// zero of states such as 06.
func Identifier(props map[string]any) (string, bool) {
	for _, k := range idKeys {
		if id, ok := idString(props[k]); ok {
			return id, true
		}
	}

	var other []string
	for k := range props {
		if strings.EqualFold(k, "geoid") {
			other = append(other, k)
		}
	}
	sort.Strings(other)
	for _, k := range other {
		if id, ok := idString(props[k]); ok {
			return id, true
		}
	}
	return "", false
}

// TractIDWidth is the digit count of a census tract GEOID
// (2 state + 3 county + 6 tract).
const TractIDWidth = 11

func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		id = strings.TrimSpace(id)
		return id, id != ""
	case float64:
		if id != math.Trunc(id) || id < 0 {
			return strconv.FormatFloat(id, 'f', -1, 64), true
		}
		return padID(strconv.FormatFloat(id, 'f', 0, 64)), true
	case int:
		return padID(strconv.Itoa(id)), id >= 0
	case int64:
		return padID(strconv.FormatInt(id, 10)), id >= 0
	case json.Number:
		if n, err := id.Int64(); err == nil && n >= 0 {
			return padID(strconv.FormatInt(n, 10)), true
		}
		return id.String(), true
	default:
		return "", false
	}
}

func padID(s string) string {
	if len(s) >= TractIDWidth {
		return s
	}
	return strings.Repeat("0", TractIDWidth-len(s)) + s
}

// Len returns the number of features.
func (e *Enriched) Len() int { return len(e.features) }

// Features returns the enriched features. Callers must not modify them.
func (e *Enriched) Features() []*geojson.Feature { return e.features }

// Stats returns the join summary.
func (e *Enriched) Stats() Stats { return e.stats }

// Feature returns the first feature with the given identifier.
func (e *Enriched) Feature(geoid string) (*geojson.Feature, bool) {
	i, ok := e.index[geoid]
	if !ok {
		return nil, false
	}
	return e.features[i], true
}

// Value returns the joined value of property on f, or nil when missing.
func Value(f *geojson.Feature, property string) *float64 {
	v, ok := f.Properties[property].(float64)
	if !ok {
		return nil
	}
	return &v
}

// MarshalJSON encodes the collection as a GeoJSON FeatureCollection, the
// form installed as the map's source.
func (e *Enriched) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(&geojson.FeatureCollection{Features: e.features})
	if err != nil {
		return nil, eris.Wrap(err, "join: encode collection")
	}
	return data, nil
}
