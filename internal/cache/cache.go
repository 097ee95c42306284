// Package cache persists remote taxonomy files on disk. The first request
// for a URL downloads it; every later request returns the already-cached
// local path. Cache paths mirror the URL structure so relative references
// inside cached schemas keep resolving against their neighbors.
package cache

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/xbrl-cli/internal/fetcher"
)

var schemePrefixRe = regexp.MustCompile(`^https?://`)

// FileCache downloads remote files once and serves local paths.
type FileCache struct {
	dir     string
	fetcher fetcher.Fetcher
}

// New creates a FileCache rooted at dir, downloading through f.
func New(dir string, f fetcher.Fetcher) *FileCache {
	return &FileCache{dir: strings.TrimSuffix(dir, "/"), fetcher: f}
}

// Dir returns the cache root directory.
func (c *FileCache) Dir() string { return c.dir }

// URLToPath maps a URL to its location inside the cache directory.
func (c *FileCache) URLToPath(url string) string {
	return filepath.Join(c.dir, filepath.FromSlash(schemePrefixRe.ReplaceAllString(url, "")))
}

// CacheFile returns the local path for the given URL, downloading and
// persisting it on a cache miss. Idempotent: a second call with the same URL
// returns the existing file without re-fetching.
func (c *FileCache) CacheFile(ctx context.Context, url string) (string, error) {
	path := c.URLToPath(url)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", eris.Wrapf(err, "cache: create dir for %s", url)
	}

	zap.L().Debug("cache miss, downloading", zap.String("url", url))
	if _, err := c.fetcher.DownloadToFile(ctx, url, path); err != nil {
		// Do not leave a partial file behind to poison later hits.
		_ = os.Remove(path)
		return "", eris.Wrapf(err, "cache: fetch %s", url)
	}
	return path, nil
}

// Purge removes a cached file. Returns false if it was not cached.
func (c *FileCache) Purge(url string) bool {
	return os.Remove(c.URLToPath(url)) == nil
}

// CacheEnclosure downloads a ZIP filing enclosure, extracts it next to its
// cache location, and returns the extraction directory. SEC filings ship the
// instance document, extension schema, and linkbases in one archive.
func (c *FileCache) CacheEnclosure(ctx context.Context, url string) (string, error) {
	if !strings.HasSuffix(url, ".zip") {
		return "", eris.Errorf("cache: %s is not a zip enclosure", url)
	}
	archivePath, err := c.CacheFile(ctx, url)
	if err != nil {
		return "", err
	}
	destDir := filepath.Dir(archivePath)

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", eris.Wrapf(err, "cache: open enclosure %s", url)
	}
	defer r.Close() //nolint:errcheck

	for _, zf := range r.File {
		target := filepath.Join(destDir, filepath.FromSlash(zf.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return "", eris.Errorf("cache: enclosure entry %q escapes extraction dir", zf.Name)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", eris.Wrap(err, "cache: extract dir")
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", eris.Wrap(err, "cache: extract dir")
		}
		if err := extractFile(zf, target); err != nil {
			return "", err
		}
	}
	return destDir, nil
}

func extractFile(zf *zip.File, target string) error {
	src, err := zf.Open()
	if err != nil {
		return eris.Wrapf(err, "cache: open enclosure entry %s", zf.Name)
	}
	defer src.Close() //nolint:errcheck

	dst, err := os.Create(target)
	if err != nil {
		return eris.Wrapf(err, "cache: create %s", target)
	}
	defer dst.Close() //nolint:errcheck

	if _, err := io.Copy(dst, src); err != nil {
		return eris.Wrapf(err, "cache: extract %s", zf.Name)
	}
	return nil
}
