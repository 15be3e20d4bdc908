package tuxedo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	appLog "showsync/internal/log"
	"showsync/internal/metrics"
)

// API is the provider surface used by the importer and the show cache.
type API interface {
	Authenticate(ctx context.Context, creds Credentials) (Token, error)
	FetchEvents(ctx context.Context, tok Token) ([]Event, error)
	FetchShows(ctx context.Context, tok Token) ([]ShowSummary, error)
}

// BreakerConfig tunes the circuit breaker around the provider.
type BreakerConfig struct {
	// ConsecutiveFailures opens the circuit. Default 3.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before a probe. Default 5m.
	OpenTimeout time.Duration
}

// BreakerClient wraps an API with a circuit breaker so that an unavailable
// provider is not hit on every trigger. It never retries; a rejected call
// fails like any other network error.
type BreakerClient struct {
	api  API
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewBreakerClient wraps api. Client errors (4xx, e.g. bad credentials)
// do not count against the provider's health.
func NewBreakerClient(api API, cfg BreakerConfig) *BreakerClient {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 5 * time.Minute
	}
	name := "tuxedo-api"

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			appLog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &BreakerClient{api: api, cb: cb, name: name}
}

// State reports the breaker state as "closed", "half-open" or "open".
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}

func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return res, err
}

func (b *BreakerClient) Authenticate(ctx context.Context, creds Credentials) (Token, error) {
	res, err := b.execute(func() (any, error) {
		return b.api.Authenticate(ctx, creds)
	})
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) {
			return Token{}, err
		}
		return Token{}, &AuthError{Err: err}
	}
	return castResult[Token](res)
}

func (b *BreakerClient) FetchEvents(ctx context.Context, tok Token) ([]Event, error) {
	res, err := b.execute(func() (any, error) {
		return b.api.FetchEvents(ctx, tok)
	})
	if err != nil {
		return nil, asFetchError("events", err)
	}
	return castResult[[]Event](res)
}

func (b *BreakerClient) FetchShows(ctx context.Context, tok Token) ([]ShowSummary, error) {
	res, err := b.execute(func() (any, error) {
		return b.api.FetchShows(ctx, tok)
	})
	if err != nil {
		return nil, asFetchError("shows", err)
	}
	return castResult[[]ShowSummary](res)
}

func castResult[T any](res any) (T, error) {
	typed, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", res)
	}
	return typed, nil
}

func asFetchError(resource string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Resource: resource, Err: err}
}

func isClientError(err error) bool {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Status >= http.StatusBadRequest && ae.Status < http.StatusInternalServerError
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Status >= http.StatusBadRequest && fe.Status < http.StatusInternalServerError
	}
	return false
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
