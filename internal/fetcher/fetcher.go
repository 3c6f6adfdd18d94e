// Package fetcher retrieves raw overlay datasets and geometry from HTTP, FTP
// and local sources, and streams CSV and XLSX rows out of them.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a dataset by location.
type Fetcher interface {
	// Download fetches the location and returns the body. The caller closes it.
	Download(ctx context.Context, location string) (io.ReadCloser, error)

	// DownloadToFile fetches the location into path. Returns bytes written.
	DownloadToFile(ctx context.Context, location string, path string) (int64, error)
}

// Router dispatches locations to a fetcher by URL scheme: http and https go
// to HTTP, ftp to FTP, and bare paths or file:// URLs to the local fetcher.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
	File Fetcher
}

// Options configures NewRouter.
type Options struct {
	HTTP    HTTPOptions
	FTP     FTPOptions
	BaseDir string
}

// NewRouter builds a Router with the default HTTP, FTP and file fetchers.
func NewRouter(opts Options) *Router {
	return &Router{
		HTTP: NewHTTPFetcher(opts.HTTP),
		FTP:  NewFTPFetcher(opts.FTP),
		File: NewFileFetcher(opts.BaseDir),
	}
}

func (r *Router) route(location string) (Fetcher, error) {
	scheme := ""
	if i := strings.Index(location, "://"); i > 0 {
		u, err := url.Parse(location)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: parse location %q", location)
		}
		scheme = strings.ToLower(u.Scheme)
	}

	var f Fetcher
	switch scheme {
	case "http", "https":
		f = r.HTTP
	case "ftp":
		f = r.FTP
	case "", "file":
		f = r.File
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", scheme)
	}
	if f == nil {
		return nil, eris.Errorf("fetcher: no fetcher configured for %q", location)
	}
	return f, nil
}

// Download implements Fetcher.
func (r *Router) Download(ctx context.Context, location string) (io.ReadCloser, error) {
	f, err := r.route(location)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, location)
}

// DownloadToFile implements Fetcher.
func (r *Router) DownloadToFile(ctx context.Context, location string, path string) (int64, error) {
	f, err := r.route(location)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, location, path)
}

// createFile opens download targets; tests swap it to fail the close.
var createFile = func(path string) (io.WriteCloser, error) { return os.Create(path) }

// copyToFile drains body into a new file at path. A failed close is
// reported, since it can mean buffered data never reached disk.
func copyToFile(body io.Reader, path string) (n int64, err error) {
	file, err := createFile(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = eris.Wrap(cerr, "close file")
		}
	}()

	n, err = io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}
	return n, nil
}
