package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Dispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, writeTestFile(filepath.Join(dir, "local.csv"), "local"))

	r := NewRouter(Options{BaseDir: dir})

	tests := []struct {
		name     string
		location string
		want     string
	}{
		{name: "http", location: srv.URL + "/x.csv", want: "remote"},
		{name: "relative path", location: "local.csv", want: "local"},
		{name: "absolute path", location: filepath.Join(dir, "local.csv"), want: "local"},
		{name: "file url", location: "file://" + filepath.Join(dir, "local.csv"), want: "local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := r.Download(context.Background(), tt.location)
			require.NoError(t, err)
			defer body.Close()
			data, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestRouter_Errors(t *testing.T) {
	r := NewRouter(Options{BaseDir: t.TempDir()})

	_, err := r.Download(context.Background(), "s3://bucket/key.csv")
	assert.ErrorContains(t, err, "unsupported scheme")

	_, err = r.Download(context.Background(), "missing.csv")
	assert.Error(t, err)

	empty := &Router{}
	_, err = empty.Download(context.Background(), "https://example.com/a.csv")
	assert.ErrorContains(t, err, "no fetcher configured")
}

func TestRouter_DownloadToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeTestFile(filepath.Join(dir, "src.csv"), "value,GEOID\n"))

	r := NewRouter(Options{BaseDir: dir})
	out := filepath.Join(t.TempDir(), "copy.csv")
	n, err := r.DownloadToFile(context.Background(), "src.csv", out)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "value,GEOID\n", string(data))
}

func TestFileFetcher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileFetcher("").Download(ctx, "/etc/hostname")
	assert.Error(t, err)
}

type failingClose struct {
	bytes.Buffer
}

func (f *failingClose) Close() error { return errors.New("disk quota exceeded") }

func TestCopyToFile_ReportsCloseError(t *testing.T) {
	orig := createFile
	t.Cleanup(func() { createFile = orig })
	dst := &failingClose{}
	createFile = func(string) (io.WriteCloser, error) { return dst, nil }

	n, err := copyToFile(bytes.NewReader([]byte("value,GEOID\n")), "ignored")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close file")
	assert.Contains(t, err.Error(), "disk quota exceeded")
	assert.Equal(t, int64(12), n)
	assert.Equal(t, "value,GEOID\n", dst.String())
}

func TestCopyToFile_WriteErrorWins(t *testing.T) {
	orig := createFile
	t.Cleanup(func() { createFile = orig })
	createFile = func(string) (io.WriteCloser, error) { return &failingClose{}, nil }

	_, err := copyToFile(errReader{}, "ignored")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write file")
	assert.NotContains(t, err.Error(), "close file")
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
