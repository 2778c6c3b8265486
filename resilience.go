package gatecache

import (
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// ResilienceConfig holds optional policies applied to origin fetches.
// Both are disabled by default: the state machine itself never retries an
// origin exchange.
type ResilienceConfig struct {
	// RetryPolicy configures retry behavior for origin requests.
	// If nil, retry is disabled.
	RetryPolicy retrypolicy.RetryPolicy[*http.Response]

	// CircuitBreaker short-circuits origin requests after repeated
	// failures. If nil, circuit breaking is disabled.
	CircuitBreaker circuitbreaker.CircuitBreaker[*http.Response]
}

// RetryPolicyBuilder returns a retry policy builder preconfigured for
// origin fetches: retries on transport errors and 5xx responses, up to
// three retries after the first attempt, with exponential backoff from
// 100ms to 10s. Customize further before calling Build().
func RetryPolicyBuilder() retrypolicy.Builder[*http.Response] {
	return retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(r *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return r != nil && r.StatusCode >= http.StatusInternalServerError
		}).
		WithMaxRetries(3).
		WithBackoff(100*time.Millisecond, 10*time.Second)
}

// CircuitBreakerBuilder returns a circuit breaker builder preconfigured
// for origin fetches: opens after 5 consecutive failures, half-opens after
// 60s, closes on 2 consecutive successes.
func CircuitBreakerBuilder() circuitbreaker.Builder[*http.Response] {
	return circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(r *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return r != nil && r.StatusCode >= http.StatusInternalServerError
		}).
		WithFailureThreshold(5).
		WithSuccessThreshold(2).
		WithDelay(60 * time.Second)
}

// executeWithResilience wraps one origin fetch with the configured
// policies.
func (g *Gateway) executeWithResilience(fn func() (*http.Response, error)) (*http.Response, error) {
	if g.resilience == nil {
		return fn()
	}

	var policies []failsafe.Policy[*http.Response]
	if g.resilience.RetryPolicy != nil {
		policies = append(policies, g.resilience.RetryPolicy)
	}
	if g.resilience.CircuitBreaker != nil {
		policies = append(policies, g.resilience.CircuitBreaker)
	}
	if len(policies) == 0 {
		return fn()
	}
	return failsafe.With(policies...).Get(fn)
}
