package geometry

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tract-overlays/internal/fetcher"
	"github.com/sells-group/tract-overlays/internal/resilience"
)

// Source produces the base collection.
type Source interface {
	Load(ctx context.Context) (*Collection, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Collection, error)

// Load implements Source.
func (f SourceFunc) Load(ctx context.Context) (*Collection, error) { return f(ctx) }

// WithRetry retries transient load failures of src under cfg.
func WithRetry(src Source, cfg resilience.RetryConfig) Source {
	cfg.OnRetry = resilience.RetryLogger("geometry", "collection")
	return SourceFunc(func(ctx context.Context) (*Collection, error) {
		return resilience.DoVal(ctx, cfg, src.Load)
	})
}

// GeoJSONSource reads a FeatureCollection document.
type GeoJSONSource struct {
	Fetcher  fetcher.Fetcher
	Location string
}

// Load implements Source.
func (s *GeoJSONSource) Load(ctx context.Context) (*Collection, error) {
	body, err := s.Fetcher.Download(ctx, s.Location)
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: fetch %s", s.Location)
	}
	defer body.Close() //nolint:errcheck
	return DecodeGeoJSON(body)
}

// ShapefileSource reads a polygon shapefile, either a bare .shp with its
// sidecar files next to it or a .zip bundle such as the TIGER/Line tract
// downloads.
type ShapefileSource struct {
	Fetcher  fetcher.Fetcher
	Location string
	TempDir  string
}

// Load implements Source.
func (s *ShapefileSource) Load(ctx context.Context) (*Collection, error) {
	work, err := os.MkdirTemp(s.TempDir, "tracts-*")
	if err != nil {
		return nil, eris.Wrap(err, "geometry: create work dir")
	}
	defer os.RemoveAll(work) //nolint:errcheck

	if strings.EqualFold(path.Ext(s.Location), ".shp") {
		// go-shp opens the .dbf and .shx by path, so fetch all three.
		base := strings.TrimSuffix(s.Location, path.Ext(s.Location))
		for _, ext := range []string{".shp", ".shx", ".dbf"} {
			if _, err := s.Fetcher.DownloadToFile(ctx, base+ext, filepath.Join(work, "layer"+ext)); err != nil {
				return nil, eris.Wrapf(err, "geometry: fetch %s", base+ext)
			}
		}
		return ReadShapefile(filepath.Join(work, "layer.shp"))
	}

	archive := filepath.Join(work, "bundle.zip")
	if _, err := s.Fetcher.DownloadToFile(ctx, s.Location, archive); err != nil {
		return nil, eris.Wrapf(err, "geometry: fetch %s", s.Location)
	}
	files, err := fetcher.ExtractZIP(archive, filepath.Join(work, "x"))
	if err != nil {
		return nil, eris.Wrap(err, "geometry: extract shapefile bundle")
	}
	shpPath := fetcher.FindByExt(files, ".shp")
	if shpPath == "" {
		return nil, eris.Errorf("geometry: no .shp in %s", s.Location)
	}
	return ReadShapefile(shpPath)
}

// NewSource picks a source for location by extension: .zip and .shp read
// shapefiles, anything else is treated as GeoJSON.
func NewSource(f fetcher.Fetcher, location, tempDir string) Source {
	switch strings.ToLower(path.Ext(location)) {
	case ".zip", ".shp":
		return &ShapefileSource{Fetcher: f, Location: location, TempDir: tempDir}
	default:
		return &GeoJSONSource{Fetcher: f, Location: location}
	}
}
