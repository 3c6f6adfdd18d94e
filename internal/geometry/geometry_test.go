package geometry

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/tract-overlays/internal/fetcher"
	"github.com/sells-group/tract-overlays/internal/resilience"
)

const tractsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"GEOID": "06037101110", "NAME": "1011.10"},
     "geometry": {"type": "Polygon", "coordinates": [[[-118.3,34.2],[-118.2,34.2],[-118.2,34.3],[-118.3,34.2]]]}},
    {"type": "Feature", "properties": {"geoid": "06037101122"},
     "geometry": {"type": "Polygon", "coordinates": [[[-118.4,34.2],[-118.3,34.2],[-118.3,34.3],[-118.4,34.2]]]}},
    {"type": "Feature", "properties": null,
     "geometry": {"type": "Polygon", "coordinates": [[[-118.5,34.2],[-118.4,34.2],[-118.4,34.3],[-118.5,34.2]]]}}
  ]
}`

func TestDecodeGeoJSON(t *testing.T) {
	c, err := DecodeGeoJSON(strings.NewReader(tractsGeoJSON))
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())
	assert.Equal(t, "06037101110", c.Features()[0].Properties["GEOID"])
	assert.NotNil(t, c.Features()[2].Properties)
	_, ok := c.Features()[0].Geometry.(*geom.Polygon)
	assert.True(t, ok)
}

func TestDecodeGeoJSON_Invalid(t *testing.T) {
	_, err := DecodeGeoJSON(strings.NewReader(`{"type": "FeatureCollection", "features": [`))
	assert.Error(t, err)
}

func TestGeoJSONSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tracts.geojson"), []byte(tractsGeoJSON), 0o644))

	src := NewSource(fetcher.NewFileFetcher(dir), "tracts.geojson", "")
	require.IsType(t, &GeoJSONSource{}, src)

	c, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	_, err = NewSource(fetcher.NewFileFetcher(dir), "absent.geojson", "").Load(context.Background())
	assert.Error(t, err)
}

func TestNewSource(t *testing.T) {
	f := fetcher.NewFileFetcher("")
	assert.IsType(t, &ShapefileSource{}, NewSource(f, "tl_2023_06_tract.zip", ""))
	assert.IsType(t, &ShapefileSource{}, NewSource(f, "tracts.SHP", ""))
	assert.IsType(t, &GeoJSONSource{}, NewSource(f, "https://example.com/tracts.json", ""))
}

// writeTestShapefile writes a two-record tract layer: one square with a hole
// and one plain square.
func writeTestShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "tl_2023_06_tract.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("GEOID", 11),
		shp.FloatField("ALAND", 16, 1),
	}))

	// Outer rings clockwise, hole counter-clockwise.
	outer := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	hole := []shp.Point{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}}
	second := []shp.Point{{X: 20, Y: 0}, {X: 20, Y: 5}, {X: 25, Y: 5}, {X: 25, Y: 0}, {X: 20, Y: 0}}

	for i, parts := range [][][]shp.Point{{outer, hole}, {second}} {
		poly := shp.Polygon(*shp.NewPolyLine(parts))
		w.Write(&poly)
		require.NoError(t, w.WriteAttribute(i, 0, []string{"06037101110", "06037101122"}[i]))
		require.NoError(t, w.WriteAttribute(i, 1, []float64{1234.5, 99}[i]))
	}
	w.Close()
	return path
}

func TestReadShapefile(t *testing.T) {
	path := writeTestShapefile(t, t.TempDir())

	c, err := ReadShapefile(path)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	first := c.Features()[0]
	assert.Equal(t, "06037101110", first.Properties["GEOID"])
	assert.Equal(t, 1234.5, first.Properties["ALAND"])

	mp, ok := first.Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings(), "hole stays with its outer ring")
}

func TestShapefileSource_Zip(t *testing.T) {
	src := t.TempDir()
	writeTestShapefile(t, src)

	bundle := filepath.Join(t.TempDir(), "tl_2023_06_tract.zip")
	out, err := os.Create(bundle)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		w, err := zw.Create("tl_2023_06_tract" + ext)
		require.NoError(t, err)
		in, err := os.Open(filepath.Join(src, "tl_2023_06_tract"+ext))
		require.NoError(t, err)
		_, err = io.Copy(w, in)
		require.NoError(t, err)
		in.Close()
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	c, err := NewSource(fetcher.NewFileFetcher(""), bundle, t.TempDir()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestShapefileSource_BareShp(t *testing.T) {
	dir := t.TempDir()
	writeTestShapefile(t, dir)

	c, err := NewSource(fetcher.NewFileFetcher(dir), "tl_2023_06_tract.shp", t.TempDir()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "06037101122", c.Features()[1].Properties["GEOID"])
}

func TestSignedArea(t *testing.T) {
	cw := []float64{0, 0, 0, 1, 1, 1, 1, 0, 0, 0}
	ccw := []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}
	assert.Less(t, signedArea(cw), 0.0)
	assert.Greater(t, signedArea(ccw), 0.0)
}

func TestStore_LoadsOnce(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	s := NewStore(SourceFunc(func(context.Context) (*Collection, error) {
		loads.Add(1)
		<-release
		return NewCollection(nil), nil
	}))

	var wg sync.WaitGroup
	results := make([]*Collection, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.Get(context.Background())
			assert.NoError(t, err)
			results[i] = c
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, c := range results {
		assert.Same(t, results[0], c)
	}

	_, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), loads.Load())
}

func TestStore_FailureNotCached(t *testing.T) {
	var loads atomic.Int32
	s := NewStore(SourceFunc(func(context.Context) (*Collection, error) {
		if loads.Add(1) == 1 {
			return nil, errors.New("tracts unavailable")
		}
		return NewCollection(nil), nil
	}))

	_, err := s.Get(context.Background())
	require.Error(t, err)
	_, ok := s.Loaded()
	assert.False(t, ok)

	_, err = s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestWithRetry(t *testing.T) {
	cfg := resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	t.Run("transient failures retried", func(t *testing.T) {
		var loads atomic.Int32
		src := WithRetry(SourceFunc(func(context.Context) (*Collection, error) {
			if loads.Add(1) < 3 {
				return nil, resilience.NewTransientError(errors.New("http 503"), 503)
			}
			return NewCollection(nil), nil
		}), cfg)

		_, err := src.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(3), loads.Load())
	})

	t.Run("attempts capped", func(t *testing.T) {
		var loads atomic.Int32
		src := WithRetry(SourceFunc(func(context.Context) (*Collection, error) {
			loads.Add(1)
			return nil, resilience.NewTransientError(errors.New("http 503"), 503)
		}), cfg)

		_, err := src.Load(context.Background())
		require.Error(t, err)
		assert.Equal(t, int32(3), loads.Load())
	})

	t.Run("permanent failure not retried", func(t *testing.T) {
		var loads atomic.Int32
		src := WithRetry(SourceFunc(func(context.Context) (*Collection, error) {
			loads.Add(1)
			return nil, errors.New("invalid geojson")
		}), cfg)

		_, err := src.Load(context.Background())
		require.Error(t, err)
		assert.Equal(t, int32(1), loads.Load())
	})
}

func TestStore_CallerCancelDoesNotAbortLoad(t *testing.T) {
	release := make(chan struct{})
	s := NewStore(SourceFunc(func(ctx context.Context) (*Collection, error) {
		<-release
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return NewCollection(nil), nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Get(ctx)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.Error(t, <-errCh)

	close(release)
	c, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c)
}
