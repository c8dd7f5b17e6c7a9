// Package resilience provides fault tolerance for calls into the backing store.
package resilience

import (
	"context"
	"errors"
	"time"

	"crm_server/pkg/logger"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	Name                string
	MaxHalfOpenRequests uint32        // requests allowed through while half-open
	Interval            time.Duration // closed-state counter reset interval
	Timeout             time.Duration // open duration before half-open
	ConsecutiveFailures uint32        // trip after this many consecutive failures
	MinRequests         uint32        // minimum requests before the ratio applies
	FailureRatio        float64
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                name,
		MaxHalfOpenRequests: 3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		MinRequests:         10,
		FailureRatio:        0.6,
	}
}

// CircuitBreaker wraps gobreaker with the settings above.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a breaker. A nil config uses the defaults.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig("default")
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxHalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithField("breaker", name).Warn("circuit breaker state changed from %s to %s", from.String(), to.String())
		},
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// isSuccessful keeps caller cancellation out of the failure counts. A pass
// that is superseded or abandoned says nothing about store health.
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Name returns the breaker name.
func (b *CircuitBreaker) Name() string {
	return b.cb.Name()
}

// State returns "closed", "half-open" or "open".
func (b *CircuitBreaker) State() string {
	return b.cb.State().String()
}

// IsOpen reports whether calls are currently rejected.
func (b *CircuitBreaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// Execute runs fn under the breaker.
func (b *CircuitBreaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// Call runs fn under the breaker and returns its value.
func Call[T any](b *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	if b == nil {
		return fn()
	}
	v, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, errors.New("resilience: unexpected result type")
	}
	return out, nil
}
