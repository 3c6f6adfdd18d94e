package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tract-overlays/internal/overlay"
)

// OverlayFile is the on-disk layout of an overlays file.
type OverlayFile struct {
	Palette  *overlay.Palette     `yaml:"palette"`
	Overlays []overlay.Definition `yaml:"overlays"`
}

// Palette returns the reserved colors from configuration.
func (c OverlaysConfig) Palette() overlay.Palette {
	return overlay.Palette{Missing: c.MissingColor, NonPositive: c.NonPositiveColor}
}

// LoadOverlays builds the overlay set from the configured file, or the
// built-in set when no file is configured. A palette in the file takes
// precedence over the configured colors.
func LoadOverlays(c OverlaysConfig) (*overlay.Set, error) {
	if c.File == "" {
		return overlay.NewSet(overlay.Builtin(), c.Palette())
	}

	data, err := os.ReadFile(c.File)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read overlays file %s", c.File)
	}
	f, err := DecodeOverlays(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrapf(err, "config: overlays file %s", c.File)
	}

	palette := c.Palette()
	if f.Palette != nil {
		palette = *f.Palette
	}
	return overlay.NewSet(f.Overlays, palette)
}

// DecodeOverlays strictly decodes an overlays document. Unknown keys are
// rejected so a misspelled field cannot silently drop a bracket or format.
func DecodeOverlays(r io.Reader) (*OverlayFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f OverlayFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.New("config: overlays document is empty")
		}
		return nil, eris.Wrap(err, "config: decode overlays")
	}
	if len(f.Overlays) == 0 {
		return nil, eris.New("config: overlays document lists no overlays")
	}
	return &f, nil
}
