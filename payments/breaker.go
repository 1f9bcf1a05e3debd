package payments

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"jyurniq/monitoring"
)

type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// breakerGateway guards checkout creation with a circuit breaker. Webhook
// parsing is local and passes straight through.
type breakerGateway struct {
	Gateway
	cb *gobreaker.CircuitBreaker
}

// WithBreaker wraps gateway so that consecutive checkout failures open the
// circuit and further checkouts fail fast with ErrGatewayUnavailable.
func WithBreaker(gateway Gateway, cfg BreakerConfig) Gateway {
	name := gateway.Name()
	monitoring.SetBreakerState(name, stateValue(gobreaker.StateClosed))
	return &breakerGateway{
		Gateway: gateway,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("gateway", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("payment gateway circuit breaker state changed")
				monitoring.SetBreakerState(name, stateValue(to))
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotConfigured) || errors.Is(err, context.Canceled)
			},
		}),
	}
}

func (b *breakerGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.Gateway.CreateCheckout(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrGatewayUnavailable
		}
		return nil, err
	}
	return result.(*CheckoutResult), nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	}
	return 0
}
