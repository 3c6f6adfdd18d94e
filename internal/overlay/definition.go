// Package overlay defines choropleth overlays as plain configuration records
// and the pure classification rules shared by the legend and the map fill.
package overlay

import (
	"encoding/json"
	"math"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// Source formats for tabular metric datasets.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Bracket maps the half-open range [Min, Max) to a fill color.
// The final bracket of a table is right-unbounded (Max = +Inf).
type Bracket struct {
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
	Color string  `yaml:"color" json:"color"`
}

// Unbounded reports whether the bracket has no upper bound.
func (b Bracket) Unbounded() bool {
	return math.IsInf(b.Max, 1)
}

// MarshalJSON encodes an unbounded Max as null, since JSON has no infinity.
func (b Bracket) MarshalJSON() ([]byte, error) {
	out := struct {
		Min   float64  `json:"min"`
		Max   *float64 `json:"max"`
		Color string   `json:"color"`
	}{Min: b.Min, Color: b.Color}
	if !b.Unbounded() {
		out.Max = &b.Max
	}
	return json.Marshal(out)
}

// Columns selects the value and key columns of an ordered-column dataset.
type Columns struct {
	Value int `yaml:"value" json:"value"`
	Key   int `yaml:"key" json:"key"`
}

// DefaultColumns is the (value, identifier) layout of the census extracts.
var DefaultColumns = Columns{Value: 0, Key: 1}

// Definition is the static configuration of one selectable metric.
type Definition struct {
	ID           string    `yaml:"id" json:"id"`
	Title        string    `yaml:"title" json:"title"`
	Source       string    `yaml:"source" json:"source"`
	SourceFormat string    `yaml:"source_format" json:"source_format,omitempty"`
	Property     string    `yaml:"property" json:"property"`
	Columns      *Columns  `yaml:"columns" json:"columns,omitempty"`
	Brackets     []Bracket `yaml:"brackets" json:"brackets"`
	Format       Format    `yaml:"format" json:"format"`
}

// Layout returns the configured column layout, or DefaultColumns.
func (d Definition) Layout() Columns {
	if d.Columns == nil {
		return DefaultColumns
	}
	return *d.Columns
}

// DatasetFormat returns the dataset format, inferring it from the source extension.
func (d Definition) DatasetFormat() string {
	if d.SourceFormat != "" {
		return strings.ToLower(d.SourceFormat)
	}
	if strings.EqualFold(path.Ext(d.Source), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// normalize fills the implicit +Inf bound of the last bracket.
func (d *Definition) normalize() {
	if n := len(d.Brackets); n > 0 && d.Brackets[n-1].Max == 0 {
		d.Brackets[n-1].Max = math.Inf(1)
	}
}

// Validate checks the definition and its bracket table. Brackets must be
// contiguous and strictly increasing with an unbounded last bracket; the
// classifier's boundary rule depends on it.
func (d Definition) Validate() error {
	switch {
	case d.ID == "":
		return eris.New("overlay: id is required")
	case d.Title == "":
		return eris.Errorf("overlay %s: title is required", d.ID)
	case d.Source == "":
		return eris.Errorf("overlay %s: source is required", d.ID)
	case d.Property == "":
		return eris.Errorf("overlay %s: property is required", d.ID)
	}

	switch d.DatasetFormat() {
	case FormatCSV, FormatXLSX:
	default:
		return eris.Errorf("overlay %s: unsupported source format %q", d.ID, d.SourceFormat)
	}

	cols := d.Layout()
	if cols.Value < 0 || cols.Key < 0 || cols.Value == cols.Key {
		return eris.Errorf("overlay %s: invalid columns value=%d key=%d", d.ID, cols.Value, cols.Key)
	}

	if len(d.Brackets) == 0 {
		return eris.Errorf("overlay %s: at least one bracket is required", d.ID)
	}
	last := len(d.Brackets) - 1
	for i, b := range d.Brackets {
		if b.Color == "" {
			return eris.Errorf("overlay %s: bracket %d has no color", d.ID, i)
		}
		if math.IsNaN(b.Min) || math.IsNaN(b.Max) {
			return eris.Errorf("overlay %s: bracket %d has a NaN bound", d.ID, i)
		}
		if i == last {
			if !b.Unbounded() {
				return eris.Errorf("overlay %s: last bracket must be unbounded, got max %v", d.ID, b.Max)
			}
			continue
		}
		if b.Unbounded() {
			return eris.Errorf("overlay %s: only the last bracket may be unbounded (bracket %d)", d.ID, i)
		}
		if b.Min >= b.Max {
			return eris.Errorf("overlay %s: bracket %d min %v is not below max %v", d.ID, i, b.Min, b.Max)
		}
		if next := d.Brackets[i+1]; next.Min != b.Max {
			return eris.Errorf("overlay %s: bracket %d max %v does not meet bracket %d min %v",
				d.ID, i, b.Max, i+1, next.Min)
		}
	}

	if err := d.Format.Validate(); err != nil {
		return eris.Wrapf(err, "overlay %s", d.ID)
	}
	return nil
}

// Palette holds the two reserved colors shared by every overlay.
type Palette struct {
	Missing     string `yaml:"missing" json:"missing"`
	NonPositive string `yaml:"non_positive" json:"non_positive"`
}

// DefaultPalette keeps missing data grey and flags non-positive values in a
// color no bracket ramp uses.
var DefaultPalette = Palette{
	Missing:     "#808080",
	NonPositive: "#e7298a",
}

// Set is an ordered, validated collection of overlay definitions. The first
// definition is the default overlay.
type Set struct {
	defs    []Definition
	byID    map[string]int
	palette Palette
}

// NewSet validates defs against each other and the palette.
func NewSet(defs []Definition, palette Palette) (*Set, error) {
	if len(defs) == 0 {
		return nil, eris.New("overlay: at least one overlay is required")
	}
	if palette.Missing == "" || palette.NonPositive == "" {
		return nil, eris.New("overlay: palette colors are required")
	}
	if strings.EqualFold(palette.Missing, palette.NonPositive) {
		return nil, eris.Errorf("overlay: missing and non-positive colors must differ (both %s)", palette.Missing)
	}

	s := &Set{
		defs:    make([]Definition, 0, len(defs)),
		byID:    make(map[string]int, len(defs)),
		palette: palette,
	}
	props := make(map[string]string, len(defs))

	for _, d := range defs {
		d.Brackets = append([]Bracket(nil), d.Brackets...)
		d.normalize()
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.byID[d.ID]; dup {
			return nil, eris.Errorf("overlay: duplicate id %q", d.ID)
		}
		if other, dup := props[d.Property]; dup {
			return nil, eris.Errorf("overlay: %s and %s share property %q", other, d.ID, d.Property)
		}
		for i, b := range d.Brackets {
			if strings.EqualFold(b.Color, palette.Missing) || strings.EqualFold(b.Color, palette.NonPositive) {
				return nil, eris.Errorf("overlay %s: bracket %d color %s collides with a reserved palette color", d.ID, i, b.Color)
			}
		}
		props[d.Property] = d.ID
		s.byID[d.ID] = len(s.defs)
		s.defs = append(s.defs, d)
	}
	return s, nil
}

// Get looks up a definition by id.
func (s *Set) Get(id string) (Definition, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Definition{}, false
	}
	return s.defs[i], true
}

// Default returns the first configured overlay.
func (s *Set) Default() Definition {
	return s.defs[0]
}

// All returns the definitions in configured order.
func (s *Set) All() []Definition {
	return append([]Definition(nil), s.defs...)
}

// IDs returns overlay ids in configured order.
func (s *Set) IDs() []string {
	ids := make([]string, len(s.defs))
	for i, d := range s.defs {
		ids[i] = d.ID
	}
	return ids
}

// Len returns the number of overlays.
func (s *Set) Len() int {
	return len(s.defs)
}

// Palette returns the reserved colors.
func (s *Set) Palette() Palette {
	return s.palette
}
