package main

import (
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/xbrl-cli/internal/cache"
	"github.com/sells-group/xbrl-cli/internal/config"
	"github.com/sells-group/xbrl-cli/internal/fetcher"
	"github.com/sells-group/xbrl-cli/internal/taxonomy"
)

// newCache builds the on-disk taxonomy cache backed by an HTTP fetcher
// configured from cfg.
func newCache(c *config.Config) *cache.FileCache {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    c.HTTP.UserAgent,
		Timeout:      time.Duration(c.HTTP.TimeoutSecs) * time.Second,
		MaxRetries:   c.HTTP.MaxRetries,
		RateLimiters: rateLimiters(c.HTTP.RequestsPerSecond),
	})
	return cache.New(c.Cache.Dir, f)
}

// rateLimiters overrides the per-host default limiters with a uniform rate
// when the config sets one. A zero or negative rate keeps the defaults.
func rateLimiters(rps float64) map[string]*rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	limiters := fetcher.DefaultRateLimiters()
	for host := range limiters {
		limiters[host] = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return limiters
}

// newRegistry builds the well-known taxonomy registry, merging the user's
// registry file when one is configured.
func newRegistry(c *config.Config) (*taxonomy.Registry, error) {
	reg := taxonomy.DefaultRegistry()
	if c.Registry.File != "" {
		if err := reg.LoadFile(c.Registry.File); err != nil {
			return nil, eris.Wrap(err, "load registry file")
		}
	}
	return reg, nil
}
