package render

import (
	"maps"
	"sync"

	"github.com/rotisserie/eris"
)

// Camera is the initial view of a style document.
type Camera struct {
	Center [2]float64 `json:"center"`
	Zoom   float64    `json:"zoom"`
}

// DefaultCamera frames Los Angeles County.
var DefaultCamera = Camera{Center: [2]float64{-118.2437, 34.0522}, Zoom: 8}

// StyleOptions configures a StyleMap.
type StyleOptions struct {
	Name   string
	Camera Camera
	// BaseStyle is the basemap style URL the client renders beneath the
	// overlay layers.
	BaseStyle string
	// SourceURL, when set, is emitted as the GeoJSON source's data in place
	// of the data itself, so clients fetch the collection separately.
	SourceURL string
}

// Document is a MapLibre style document.
type Document struct {
	Version  int                       `json:"version"`
	Name     string                    `json:"name,omitempty"`
	Center   [2]float64                `json:"center"`
	Zoom     float64                   `json:"zoom"`
	Sources  map[string]map[string]any `json:"sources"`
	Layers   []Layer                   `json:"layers"`
	Metadata map[string]any            `json:"metadata,omitempty"`
}

// StyleMap is a Map that records its state as a style document. It is safe
// for concurrent use.
type StyleMap struct {
	opts StyleOptions

	mu       sync.RWMutex
	sources  map[string]any
	layers   []Layer
	revision int
	removed  bool
}

// NewStyleMap creates an empty StyleMap.
func NewStyleMap(opts StyleOptions) *StyleMap {
	if opts.Camera == (Camera{}) {
		opts.Camera = DefaultCamera
	}
	return &StyleMap{opts: opts, sources: make(map[string]any)}
}

// AddSource implements Map.
func (m *StyleMap) AddSource(id string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return ErrRemoved
	}
	if _, ok := m.sources[id]; ok {
		return eris.Errorf("render: source %q already exists", id)
	}
	m.sources[id] = data
	m.revision++
	return nil
}

// AddLayer implements Map.
func (m *StyleMap) AddLayer(l Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return ErrRemoved
	}
	if m.indexOf(l.ID) >= 0 {
		return eris.Errorf("render: layer %q already exists", l.ID)
	}
	if _, ok := m.sources[l.Source]; !ok {
		return eris.Errorf("render: layer %q references unknown source %q", l.ID, l.Source)
	}
	l.Paint = maps.Clone(l.Paint)
	m.layers = append(m.layers, l)
	m.revision++
	return nil
}

// HasLayer implements Map.
func (m *StyleMap) HasLayer(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.removed && m.indexOf(id) >= 0
}

// SetPaintProperty implements Map.
func (m *StyleMap) SetPaintProperty(layerID, name string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed {
		return ErrRemoved
	}
	i := m.indexOf(layerID)
	if i < 0 {
		return eris.Errorf("render: no layer %q", layerID)
	}
	if m.layers[i].Paint == nil {
		m.layers[i].Paint = map[string]any{}
	}
	m.layers[i].Paint[name] = value
	m.revision++
	return nil
}

// Remove implements Map.
func (m *StyleMap) Remove() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = true
	m.sources = map[string]any{}
	m.layers = nil
}

// Removed reports whether Remove has been called.
func (m *StyleMap) Removed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.removed
}

// Revision counts the mutations applied so far.
func (m *StyleMap) Revision() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revision
}

// SourceData returns the data installed under id.
func (m *StyleMap) SourceData(id string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.sources[id]
	return data, ok
}

// Paint returns a copy of a layer's paint properties.
func (m *StyleMap) Paint(layerID string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexOf(layerID)
	if i < 0 {
		return nil, false
	}
	return maps.Clone(m.layers[i].Paint), true
}

// Document returns the current style document.
func (m *StyleMap) Document() Document {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc := Document{
		Version: 8,
		Name:    m.opts.Name,
		Center:  m.opts.Camera.Center,
		Zoom:    m.opts.Camera.Zoom,
		Sources: make(map[string]map[string]any, len(m.sources)),
		Layers:  make([]Layer, len(m.layers)),
		Metadata: map[string]any{
			"revision": m.revision,
		},
	}
	if m.opts.BaseStyle != "" {
		doc.Metadata["basemap"] = m.opts.BaseStyle
	}
	for id, data := range m.sources {
		var ref any = data
		if m.opts.SourceURL != "" {
			ref = m.opts.SourceURL
		}
		doc.Sources[id] = map[string]any{"type": "geojson", "data": ref}
	}
	for i, l := range m.layers {
		l.Paint = maps.Clone(l.Paint)
		doc.Layers[i] = l
	}
	return doc
}

func (m *StyleMap) indexOf(id string) int {
	for i, l := range m.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}
