package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/xbrl-cli/internal/config"
	"github.com/sells-group/xbrl-cli/internal/fetcher"
)

func TestRateLimiters_ZeroKeepsDefaults(t *testing.T) {
	assert.Nil(t, rateLimiters(0))
	assert.Nil(t, rateLimiters(-1))
}

func TestRateLimiters_UniformOverride(t *testing.T) {
	limiters := rateLimiters(2.5)
	require.NotNil(t, limiters)

	// Same host set as the defaults, every limiter at the configured rate.
	assert.Len(t, limiters, len(fetcher.DefaultRateLimiters()))
	for host, l := range limiters {
		assert.Equal(t, rate.Limit(2.5), l.Limit(), "host %s", host)
		assert.Equal(t, 2, l.Burst(), "host %s", host)
	}
}

func TestRateLimiters_MinimumBurst(t *testing.T) {
	limiters := rateLimiters(0.5)
	require.NotNil(t, limiters)
	for _, l := range limiters {
		assert.Equal(t, 1, l.Burst())
	}
}

func TestNewRegistry_NoFile(t *testing.T) {
	reg, err := newRegistry(&config.Config{})
	require.NoError(t, err)

	url, ok := reg.Lookup("http://fasb.org/us-gaap/2021-01-31")
	assert.True(t, ok)
	assert.Equal(t, "http://xbrl.fasb.org/us-gaap/2021/elts/us-gaap-2021-01-31.xsd", url)
}

func TestNewRegistry_MergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	yaml := `"http://example.com/tax/2024": "https://example.com/tax/2024/tax-2024.xsd"` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	c := &config.Config{}
	c.Registry.File = path

	reg, err := newRegistry(c)
	require.NoError(t, err)

	url, ok := reg.Lookup("http://example.com/tax/2024")
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/tax/2024/tax-2024.xsd", url)
}

func TestNewRegistry_MissingFile(t *testing.T) {
	c := &config.Config{}
	c.Registry.File = "/nonexistent/registry.yaml"

	_, err := newRegistry(c)
	assert.Error(t, err)
}
