package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// FileFetcher reads datasets from the local filesystem. Relative paths
// resolve against BaseDir.
type FileFetcher struct {
	BaseDir string
}

// NewFileFetcher creates a FileFetcher rooted at baseDir.
func NewFileFetcher(baseDir string) *FileFetcher {
	return &FileFetcher{BaseDir: baseDir}
}

func (f *FileFetcher) resolve(location string) (string, error) {
	p := location
	if strings.HasPrefix(strings.ToLower(location), "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return "", eris.Wrapf(err, "file: parse %q", location)
		}
		p = u.Path
	}
	if p == "" {
		return "", eris.New("file: empty path")
	}
	if !filepath.IsAbs(p) && f.BaseDir != "" {
		p = filepath.Join(f.BaseDir, p)
	}
	return filepath.Clean(p), nil
}

// Download opens the file at location.
func (f *FileFetcher) Download(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "file: context cancelled")
	}
	p, err := f.resolve(location)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if err != nil {
		return nil, eris.Wrapf(err, "file: open %s", p)
	}
	return file, nil
}

// DownloadToFile copies the file at location to path.
func (f *FileFetcher) DownloadToFile(ctx context.Context, location string, path string) (int64, error) {
	rc, err := f.Download(ctx, location)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck
	return copyToFile(rc, path)
}
