// Package providers carries the shared guard stack for upstream data
// sources: every client calls through a circuit breaker so a flapping
// endpoint cannot stall a whole fetch run.
package providers

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// GuardConfig tunes one provider's circuit breaker.
type GuardConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// Guard wraps calls to one upstream provider.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
}

// NewGuard builds a named guard. Zero-valued config fields get
// conservative defaults.
func NewGuard(name string, cfg GuardConfig) *Guard {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}
	return &Guard{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs fn through the breaker.
func (g *Guard) Do(fn func() error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State reports the breaker state for health endpoints.
func (g *Guard) State() string {
	return g.breaker.State().String()
}
