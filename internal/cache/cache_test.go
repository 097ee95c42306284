package cache

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/xbrl-cli/internal/fetcher"
)

func newTestCache(t *testing.T, handler http.Handler) (*FileCache, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 2})
	return New(t.TempDir(), f), srv
}

func TestCacheFileIdempotent(t *testing.T) {
	var hits atomic.Int32
	c, srv := newTestCache(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("<schema/>"))
	}))

	url := srv.URL + "/elts/us-gaap-2021-01-31.xsd"
	p1, err := c.CacheFile(context.Background(), url)
	require.NoError(t, err)
	p2, err := c.CacheFile(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, int32(1), hits.Load())

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "<schema/>", string(data))
}

func TestURLToPathStripsScheme(t *testing.T) {
	c := New("/cache", nil)
	assert.Equal(t,
		filepath.Join("/cache", "xbrl.sec.gov", "dei", "2021", "dei-2021.xsd"),
		c.URLToPath("https://xbrl.sec.gov/dei/2021/dei-2021.xsd"))
}

func TestPurge(t *testing.T) {
	c, srv := newTestCache(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))

	url := srv.URL + "/a.xsd"
	_, err := c.CacheFile(context.Background(), url)
	require.NoError(t, err)

	assert.True(t, c.Purge(url))
	assert.False(t, c.Purge(url))
}

func TestCacheFileMissNotFound(t *testing.T) {
	c, srv := newTestCache(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.CacheFile(context.Background(), srv.URL+"/gone.xsd")
	require.Error(t, err)
	// No partial file may remain after a failed download.
	_, statErr := os.Stat(c.URLToPath(srv.URL + "/gone.xsd"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCacheEnclosure(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("aapl-20200926.xsd")
	require.NoError(t, err)
	_, err = fw.Write([]byte("<schema/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	c, srv := newTestCache(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))

	dir, err := c.CacheEnclosure(context.Background(), srv.URL+"/filing.zip")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "aapl-20200926.xsd"))
	require.NoError(t, err)
	assert.Equal(t, "<schema/>", string(data))
}

func TestCacheEnclosureRejectsNonZip(t *testing.T) {
	c := New(t.TempDir(), nil)
	_, err := c.CacheEnclosure(context.Background(), "http://example.com/filing.htm")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not a zip"))
}
