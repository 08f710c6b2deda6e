package marketdata

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"time"

	"github.com/jfenner/gexengine/internal/models"
)

// RetryConfig controls the backoff schedule of a RetrySource.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig retries three times with exponential backoff.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 250 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

// RetrySource wraps a Source and retries transient read failures with
// exponential backoff and jitter. ErrNoData is never retried: a missing day
// stays missing.
type RetrySource struct {
	source Source
	logger *log.Logger
	config RetryConfig
}

// NewRetrySource wraps a source. A nil logger suppresses retry logging.
func NewRetrySource(source Source, logger *log.Logger, config ...RetryConfig) *RetrySource {
	cfg := DefaultRetryConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &RetrySource{source: source, logger: logger, config: cfg}
}

// Snapshot retries the underlying read on transient failure.
func (r *RetrySource) Snapshot(ctx context.Context, symbol string, date time.Time) (*models.MarketSnapshot, error) {
	var snap *models.MarketSnapshot
	err := r.withRetry(ctx, "snapshot", func() error {
		var err error
		snap, err = r.source.Snapshot(ctx, symbol, date)
		return err
	})
	return snap, err
}

// Dates retries the underlying listing on transient failure.
func (r *RetrySource) Dates(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error) {
	var dates []time.Time
	err := r.withRetry(ctx, "dates", func() error {
		var err error
		dates, err = r.source.Dates(ctx, symbol, start, end)
		return err
	})
	return dates, err
}

func (r *RetrySource) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil || errors.Is(lastErr, ErrNoData) {
			return lastErr
		}

		if attempt == r.config.MaxRetries {
			break
		}
		if r.logger != nil {
			r.logger.Printf("Retrying %s after attempt %d/%d: %v", op, attempt+1, r.config.MaxRetries+1, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(backoff)):
		}
		backoff *= 2
		if backoff > r.config.MaxBackoff {
			backoff = r.config.MaxBackoff
		}
	}
	return lastErr
}

// jitter spreads a backoff over [d/2, d) so concurrent retries fan out.
func jitter(d time.Duration) time.Duration {
	half := int64(d / 2)
	if half <= 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, big.NewInt(half))
	if err != nil {
		return d
	}
	return time.Duration(half + n.Int64())
}

var _ Source = (*RetrySource)(nil)
