package mediabrowser

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerClient wraps a Client so that a failing sessions endpoint stops being
// hammered by the poll loop. All other calls go straight to the Client.
type BreakerClient struct {
	*Client
	cb *gobreaker.CircuitBreaker[[]Session]
}

// NewBreakerClient wraps c with a circuit breaker on GetSessions.
// The circuit opens once at least 5 requests have a failure rate of 60% or
// more, and probes again after a minute.
func NewBreakerClient(c *Client) *BreakerClient {
	name := c.Name()

	cb := gobreaker.NewCircuitBreaker[[]Session](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    2 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().
				Str("server", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Sessions circuit breaker state changed")
		},
	})

	return &BreakerClient{Client: c, cb: cb}
}

// GetSessions fetches sessions through the circuit breaker. A rejected call
// surfaces as a TransportError.
func (b *BreakerClient) GetSessions(ctx context.Context) ([]Session, error) {
	sessions, err := b.cb.Execute(func() ([]Session, error) {
		return b.Client.GetSessions(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransportError{Op: "get sessions", Err: err}
		}
		return nil, err
	}
	return sessions, nil
}

// State returns the breaker state
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}
