// Package marketdata supplies daily option-chain snapshots to the analytics
// and backtest layers, from disk or from a synthetic generator.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jfenner/gexengine/internal/models"
)

// ErrNoData signals that no snapshot exists for the requested date. Callers
// typically skip the date (weekend, holiday, gap in the archive).
var ErrNoData = errors.New("marketdata: no snapshot for date")

// DataError wraps a snapshot that exists but cannot be used: unreadable file,
// malformed JSON, or contents that fail basic validation.
type DataError struct {
	Date   time.Time
	Path   string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("market data error on %s (%s): %s", e.Date.Format("2006-01-02"), e.Path, e.Reason)
}

// Source yields one chain snapshot per trading day.
type Source interface {
	// Snapshot returns the chain for the given symbol and date, or ErrNoData.
	Snapshot(ctx context.Context, symbol string, date time.Time) (*models.MarketSnapshot, error)
	// Dates lists the days in [start, end] for which snapshots exist, ascending.
	Dates(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error)
}
