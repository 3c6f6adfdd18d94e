package metric

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-overlays/internal/fetcher"
	"github.com/sells-group/tract-overlays/internal/metrics"
	"github.com/sells-group/tract-overlays/internal/overlay"
	"github.com/sells-group/tract-overlays/internal/resilience"
)

// Loader fetches and parses one overlay's dataset.
type Loader interface {
	Load(ctx context.Context, def overlay.Definition) (Record, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, def overlay.Definition) (Record, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, def overlay.Definition) (Record, error) {
	return f(ctx, def)
}

// FetchLoader loads datasets through a fetcher, retrying transient failures.
// Retry is the only retry policy a load gets, so the fetcher should make a
// single attempt per call.
type FetchLoader struct {
	Fetcher fetcher.Fetcher
	Retry   resilience.RetryConfig
	// TempDir holds workbook downloads, which must be seekable. Empty uses
	// the OS default.
	TempDir string
}

// NewFetchLoader creates a FetchLoader with the given retry policy.
func NewFetchLoader(f fetcher.Fetcher, tempDir string, retry resilience.RetryConfig) *FetchLoader {
	return &FetchLoader{Fetcher: f, Retry: retry, TempDir: tempDir}
}

type parsed struct {
	rec   Record
	stats ParseStats
}

// Load implements Loader.
func (l *FetchLoader) Load(ctx context.Context, def overlay.Definition) (Record, error) {
	cfg := l.Retry
	cfg.OnRetry = resilience.RetryLogger("metric", def.Source)

	out, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (parsed, error) {
		return l.loadOnce(ctx, def)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "metric: load %s", def.ID)
	}

	if out.stats.Skipped > 0 {
		metrics.DatasetRowsSkippedTotal.WithLabelValues(def.ID).Add(float64(out.stats.Skipped))
	}
	zap.L().Debug("metric: parsed dataset",
		zap.String("overlay", def.ID),
		zap.Int("rows", out.stats.Rows),
		zap.Int("kept", out.stats.Kept),
		zap.Int("skipped", out.stats.Skipped),
		zap.Strings("header", out.stats.Header),
	)
	return out.rec, nil
}

func (l *FetchLoader) loadOnce(ctx context.Context, def overlay.Definition) (parsed, error) {
	switch def.DatasetFormat() {
	case overlay.FormatCSV:
		body, err := l.Fetcher.Download(ctx, def.Source)
		if err != nil {
			return parsed{}, err
		}
		defer body.Close() //nolint:errcheck

		rec, stats, err := ParseCSV(ctx, body, def.Layout())
		return parsed{rec, stats}, err

	case overlay.FormatXLSX:
		tmp, err := os.CreateTemp(l.TempDir, "overlay-*.xlsx")
		if err != nil {
			return parsed{}, eris.Wrap(err, "metric: create temp file")
		}
		path := tmp.Name()
		_ = tmp.Close()
		defer os.Remove(path) //nolint:errcheck

		if _, err := l.Fetcher.DownloadToFile(ctx, def.Source, path); err != nil {
			return parsed{}, err
		}
		rec, stats, err := ParseXLSX(ctx, path, def.Layout())
		return parsed{rec, stats}, err

	default:
		return parsed{}, eris.Errorf("metric: unsupported source format %q", def.DatasetFormat())
	}
}
