package media

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var cleanupFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "media_cleanup_failures_total",
	Help: "Images that could not be removed from the media host.",
})

func init() {
	prometheus.MustRegister(cleanupFailures)
}

// Cleaner removes images that are no longer referenced by any recipe.
// Removal is best effort: failures are logged and counted, never returned.
type Cleaner struct {
	Host    Host
	Timeout time.Duration // per asset; 0 means 10s
}

// NewCleaner returns a Cleaner for host. A nil host disables cleanup.
func NewCleaner(host Host, timeout time.Duration) *Cleaner {
	if host == nil {
		host = Noop{}
	}
	return &Cleaner{Host: host, Timeout: timeout}
}

// Remove deletes every url and returns how many could not be removed. The
// caller's cancellation is ignored so cleanup after a committed delete is
// not cut short by a client disconnect.
func (c *Cleaner) Remove(ctx context.Context, urls []string) int {
	if c == nil || len(urls) == 0 {
		return 0
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := context.WithoutCancel(ctx)

	failed := 0
	for _, u := range urls {
		if u == "" {
			continue
		}
		actx, cancel := context.WithTimeout(base, timeout)
		ok, err := c.Host.DeleteAsset(actx, u)
		cancel()
		if err != nil || !ok {
			failed++
			cleanupFailures.Inc()
			log.Warn().Err(err).Str("host", c.Host.Name()).Str("url", u).Bool("deleted", ok).
				Msg("media cleanup failed")
		}
	}
	return failed
}

// Removed returns the entries of before that are absent from after,
// preserving order.
func Removed(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, u := range after {
		keep[u] = struct{}{}
	}
	var out []string
	for _, u := range before {
		if _, ok := keep[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}
