package census

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result describes one dataset written (or skipped) by Run.
type Result struct {
	Dataset string `json:"dataset"`
	Path    string `json:"path"`
	Rows    int    `json:"rows"`
	Dropped int    `json:"dropped"`
	Existed bool   `json:"existed"`
}

// Writer fetches datasets and writes them as value,GEOID CSV files named
// "<state><county>_<dataset>.csv" under OutDir.
type Writer struct {
	Client      Client
	Query       Query
	OutDir      string
	Force       bool
	Concurrency int
}

// Path returns the output path of a dataset.
func (w *Writer) Path(d Dataset) string {
	return filepath.Join(w.OutDir, w.Query.Prefix()+"_"+d.Name+".csv")
}

// Run fetches every dataset concurrently. Existing files are kept unless
// Force is set. The first failure cancels the remaining fetches.
func (w *Writer) Run(ctx context.Context, datasets []Dataset) ([]Result, error) {
	if err := w.mkdir(); err != nil {
		return nil, err
	}

	results := make([]Result, len(datasets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.Concurrency, 1))

	for i, d := range datasets {
		g.Go(func() error {
			res, err := w.one(gctx, d)
			if err != nil {
				return eris.Wrapf(err, "census: dataset %s", d.Name)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (w *Writer) mkdir() error {
	if err := os.MkdirAll(w.OutDir, 0o755); err != nil {
		return eris.Wrapf(err, "census: create %s", w.OutDir)
	}
	return nil
}

// exists reports whether path should be kept rather than rewritten.
func (w *Writer) exists(path string) bool {
	if w.Force {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func (w *Writer) one(ctx context.Context, d Dataset) (Result, error) {
	path := w.Path(d)
	res := Result{Dataset: d.Name, Path: path}
	log := zap.L().With(zap.String("dataset", d.Name), zap.String("path", path))

	if w.exists(path) {
		log.Info("dataset exists, skipping")
		res.Existed = true
		return res, nil
	}

	t, err := w.Client.Tracts(ctx, w.Query, d.Vars)
	if err != nil {
		return res, err
	}
	rows, dropped := Build(t, d)
	if err := writeCSV(path, []string{d.Name, "GEOID"}, rows); err != nil {
		return res, err
	}

	res.Rows, res.Dropped = len(rows), dropped
	log.Info("dataset written", zap.Int("rows", res.Rows), zap.Int("dropped", dropped))
	return res, nil
}

// writeCSV writes to a temp file and renames it into place so readers never
// see a partial dataset.
func writeCSV(path string, header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".census-*.csv")
	if err != nil {
		return eris.Wrap(err, "census: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	cw := csv.NewWriter(tmp)
	if err := cw.Write(header); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "census: write header")
	}
	if err := cw.WriteAll(rows); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "census: write rows")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "census: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrap(err, "census: rename")
	}
	return nil
}
