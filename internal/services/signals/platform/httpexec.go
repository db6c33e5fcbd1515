package platform

import (
	"context"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/louisbranch/signals.agent/internal/platform/logging"
)

// ExecutorConfig configures retries and the circuit breaker wrapped around
// every outbound call of a remote adapter.
type ExecutorConfig struct {
	Name       string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// BreakerDelay is how long the breaker stays open before probing.
	BreakerDelay time.Duration
	Logger       logging.Logger
}

func (cfg ExecutorConfig) normalized() ExecutorConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = max(cfg.BaseDelay, 2*time.Second)
	}
	if cfg.BreakerDelay <= 0 {
		cfg.BreakerDelay = 15 * time.Second
	}
	return cfg
}

// shouldRetry retries network errors, server errors and rate limits.
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// Executor runs HTTP requests through a retry policy and a circuit breaker.
type Executor struct {
	executor failsafe.Executor[*http.Response]
}

// NewExecutor builds an Executor.
//
//nolint:bodyclose // *http.Response is a type parameter here
func NewExecutor(cfg ExecutorConfig) *Executor {
	cfg = cfg.normalized()
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(shouldRetry).
		ReturnLastFailure().
		Build()

	breakerBuilder := circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(cfg.BreakerDelay).
		WithSuccessThreshold(1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= 500
		})
	if cfg.Logger != nil {
		name := cfg.Name
		logger := cfg.Logger
		breakerBuilder = breakerBuilder.OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.WithFields(logging.Fields{
				"circuit_breaker": name,
				"from_state":      breakerState(event.OldState),
				"to_state":        breakerState(event.NewState),
			}).Warn("circuit breaker state change")
		})
	}
	return &Executor{executor: failsafe.With(retry, breakerBuilder.Build())}
}

// Do sends a request built by newRequest. newRequest runs once per attempt
// so request bodies can be replayed. A response is returned only with a nil
// error; retried responses are closed.
func (e *Executor) Do(ctx context.Context, client *http.Client, newRequest func(context.Context) (*http.Request, error)) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	var last *http.Response
	resp, err := e.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		if last != nil {
			last.Body.Close()
			last = nil
		}
		req, err := newRequest(ctx)
		if err != nil {
			return nil, err
		}
		res, err := client.Do(req)
		if err == nil {
			last = res
		}
		return res, err
	})
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return resp, nil
}

func breakerState(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}
