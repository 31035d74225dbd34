package media

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

var breakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "media_host_breaker_state",
		Help: "Circuit breaker state of the media host (0 closed, 1 half-open, 2 open).",
	},
	[]string{"host"},
)

func init() {
	prometheus.MustRegister(breakerState)
}

// BreakerSettings tunes a Breaker.
type BreakerSettings struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold uint32
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
}

// DefaultBreakerSettings trips after 5 consecutive failures for 30s.
var DefaultBreakerSettings = BreakerSettings{FailureThreshold: 5, Cooldown: 30 * time.Second}

// Breaker wraps a Host so that a failing provider is not called again until
// a cool-down has elapsed. Calls made while open fail fast with
// gobreaker.ErrOpenState.
type Breaker struct {
	host Host
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreaker wraps host.
func NewBreaker(host Host, s BreakerSettings) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultBreakerSettings.FailureThreshold
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultBreakerSettings.Cooldown
	}
	name := host.Name()
	breakerState.WithLabelValues(name).Set(0)
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(float64(to))
			log.Warn().Str("host", name).Str("from", from.String()).Str("to", to.String()).
				Msg("media host breaker state change")
		},
	})
	return &Breaker{host: host, cb: cb}
}

func (b *Breaker) Name() string { return b.host.Name() }

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) Upload(ctx context.Context, data, folder string) (*Asset, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.host.Upload(ctx, data, folder)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Asset), nil
}

func (b *Breaker) DeleteAsset(ctx context.Context, url string) (bool, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.host.DeleteAsset(ctx, url)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Ping bypasses the breaker so health checks see the real provider.
func (b *Breaker) Ping(ctx context.Context) error { return b.host.Ping(ctx) }
