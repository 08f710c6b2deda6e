package marketdata

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jfenner/gexengine/internal/models"
)

// CircuitBreakerSource wraps a Source with circuit breaker protection, for
// sources backed by flaky media (network mounts, remote archives). Repeated
// failures trip the breaker and fail fast instead of hammering the backend.
type CircuitBreakerSource struct {
	source  Source
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerSource wraps a source with sensible defaults.
func NewCircuitBreakerSource(source Source) *CircuitBreakerSource {
	return NewCircuitBreakerSourceWithSettings(source, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerSourceWithSettings wraps a source with custom settings.
func NewCircuitBreakerSourceWithSettings(source Source, settings CircuitBreakerSettings) *CircuitBreakerSource {
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// A missing day is a normal condition, not a backend failure.
			return err == nil || errors.Is(err, ErrNoData)
		},
	}

	return &CircuitBreakerSource{
		source:  source,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// exec is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	source Source,
	fn func(Source) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(source) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// Snapshot wraps the underlying source call with circuit breaker.
func (c *CircuitBreakerSource) Snapshot(ctx context.Context, symbol string, date time.Time) (*models.MarketSnapshot, error) {
	return execCircuitBreaker(c.breaker, c.source, func(s Source) (*models.MarketSnapshot, error) {
		return s.Snapshot(ctx, symbol, date)
	})
}

// Dates wraps the underlying source call with circuit breaker.
func (c *CircuitBreakerSource) Dates(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error) {
	return execCircuitBreaker(c.breaker, c.source, func(s Source) ([]time.Time, error) {
		return s.Dates(ctx, symbol, start, end)
	})
}

var _ Source = (*CircuitBreakerSource)(nil)
var _ Source = (*FileSource)(nil)
