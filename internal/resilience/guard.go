package resilience

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Guard is the call path to one external service. Each attempt waits for a
// rate limit token and passes through the service's circuit breaker; transient
// failures are retried with backoff. A Guard is safe for concurrent use and is
// meant to be shared by every session talking to the same service.
type Guard struct {
	service string
	limiter *rate.Limiter
	breaker *CircuitBreaker
	retry   RetryConfig
}

// NewGuard builds a guard. A nil limiter disables rate limiting.
func NewGuard(service string, limiter *rate.Limiter, breaker CircuitBreakerConfig, retry RetryConfig) *Guard {
	if breaker.OnStateChange == nil {
		breaker.OnStateChange = func(from, to CircuitState) {
			zap.L().Warn("circuit state change",
				zap.String("service", service),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	return &Guard{
		service: service,
		limiter: limiter,
		breaker: NewCircuitBreaker(breaker),
		retry:   retry,
	}
}

// NewLimiter returns a token bucket limiter, or nil when rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Service returns the guarded service name.
func (g *Guard) Service() string {
	return g.service
}

// Breaker exposes the circuit breaker for status reporting.
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}

// Call runs fn through g. A nil guard calls fn directly.
func Call[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}

	cfg := g.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = RetryLogger(g.service, op)
	}

	return DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, eris.Wrapf(err, "%s: %s: rate limit wait", g.service, op)
			}
		}
		return ExecuteVal(ctx, g.breaker, fn)
	})
}
