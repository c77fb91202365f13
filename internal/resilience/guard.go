// Package resilience wraps remote capability calls with bounded retry and a
// circuit breaker. Policies are plain data handed to the constructor; the
// call sites compose the wrapper explicitly instead of relying on any
// interception machinery.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"

	"github.com/example/agri-procurement/internal/errs"
)

// Policy configures one guarded downstream.
type Policy struct {
	// Attempts is the total attempt count, first call included.
	Attempts uint
	// Delay is the wait between attempts; backoff doubles it per attempt.
	Delay    time.Duration
	MaxDelay time.Duration
	// ConsecutiveFailures trips the breaker open.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests limits probes while half-open.
	HalfOpenRequests uint32
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts:            3,
		Delay:               200 * time.Millisecond,
		MaxDelay:            2 * time.Second,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// Guard is a retry loop around a named circuit breaker. Each attempt runs
// through the breaker, so once it opens the remaining attempts fast-fail.
type Guard struct {
	name    string
	policy  Policy
	breaker *gobreaker.CircuitBreaker
}

func NewGuard(name string, policy Policy) *Guard {
	if policy.Attempts == 0 {
		policy = DefaultPolicy()
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: policy.HalfOpenRequests,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= policy.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[Resilience] Circuit breaker %s: %s -> %s", name, from, to)
		},
	}
	return &Guard{
		name:    name,
		policy:  policy,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Do executes op under the guard. It returns errs.ErrUnavailable when the
// breaker rejects the call, and the last attempt's error otherwise.
func (g *Guard) Do(ctx context.Context, op func() error) error {
	return retry.Do(
		func() error {
			_, err := g.breaker.Execute(func() (any, error) {
				return nil, op()
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return fmt.Errorf("%w: %s circuit open", errs.ErrUnavailable, g.name)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(g.policy.Attempts),
		retry.Delay(g.policy.Delay),
		retry.MaxDelay(g.policy.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// An open breaker means the downstream is judged unavailable;
			// retrying inside the same call adds nothing.
			return !errors.Is(err, errs.ErrUnavailable)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[Resilience] %s attempt %d failed: %v", g.name, n+1, err)
		}),
	)
}
