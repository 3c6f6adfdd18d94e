package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// MaxExtractBytes caps the uncompressed size of a single archive entry.
const MaxExtractBytes int64 = 2 << 30

// ExtractZIP extracts every file in the archive under destDir and returns the
// extracted paths in archive order. Directory entries are created but not
// returned.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		path, err := extractEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if path != "" {
			extracted = append(extracted, path)
		}
	}
	return extracted, nil
}

// FindByExt returns the first path with the given extension, compared case
// insensitively, or "" when none matches. Shapefile bundles use it to locate
// the .shp member.
func FindByExt(paths []string, ext string) string {
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ext) {
			return p
		}
	}
	return ""
}

func extractEntry(f *zip.File, destDir string) (string, error) {
	root := filepath.Clean(destDir)
	destPath := filepath.Join(root, f.Name)
	if !strings.HasPrefix(destPath, root+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "zip: create directory")
		}
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, io.LimitReader(rc, MaxExtractBytes+1))
	if err != nil {
		return "", eris.Wrapf(err, "zip: write %s", f.Name)
	}
	if n > MaxExtractBytes {
		return "", eris.Errorf("zip: entry %s exceeds %d bytes", f.Name, MaxExtractBytes)
	}
	return destPath, nil
}
