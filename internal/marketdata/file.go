package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jfenner/gexengine/internal/models"
)

const dateLayout = "2006-01-02"

// FileSource serves snapshots from a directory of per-day JSON files named
// SYMBOL_YYYY-MM-DD.json. Loaded snapshots are cached; the cache is safe for
// concurrent readers.
type FileSource struct {
	mu    sync.RWMutex
	dir   string
	cache map[string]*models.MarketSnapshot
}

// NewFileSource creates a source over the given directory.
func NewFileSource(dir string) (*FileSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data path %s is not a directory", dir)
	}
	return &FileSource{
		dir:   dir,
		cache: make(map[string]*models.MarketSnapshot),
	}, nil
}

func snapshotKey(symbol string, date time.Time) string {
	return symbol + "_" + date.UTC().Format(dateLayout)
}

func (f *FileSource) path(symbol string, date time.Time) string {
	return filepath.Join(f.dir, snapshotKey(symbol, date)+".json")
}

// Snapshot loads the chain for one day, consulting the cache first.
func (f *FileSource) Snapshot(ctx context.Context, symbol string, date time.Time) (*models.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := snapshotKey(symbol, date)
	f.mu.RLock()
	snap, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		return snap, nil
	}

	path := f.path(symbol, date)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, symbol, date.Format(dateLayout))
	}
	if err != nil {
		return nil, &DataError{Date: date, Path: path, Reason: err.Error()}
	}

	snap = &models.MarketSnapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, &DataError{Date: date, Path: path, Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if snap.Spot <= 0 || len(snap.Quotes) == 0 {
		return nil, &DataError{Date: date, Path: path, Reason: "missing spot price or empty chain"}
	}

	f.mu.Lock()
	f.cache[key] = snap
	f.mu.Unlock()
	return snap, nil
}

// Dates scans the directory for snapshot files in the range.
func (f *FileSource) Dates(ctx context.Context, symbol string, start, end time.Time) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("listing data directory: %w", err)
	}

	prefix := symbol + "_"
	var dates []time.Time
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		base := name[:len(name)-len(".json")]
		if len(base) <= len(prefix) || base[:len(prefix)] != prefix {
			continue
		}
		date, err := time.Parse(dateLayout, base[len(prefix):])
		if err != nil {
			continue
		}
		if date.Before(start) || date.After(end) {
			continue
		}
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Preload reads every snapshot in the range into the cache so the backtest
// loop never touches disk.
func (f *FileSource) Preload(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	dates, err := f.Dates(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}
	for _, date := range dates {
		if _, err := f.Snapshot(ctx, symbol, date); err != nil {
			return 0, err
		}
	}
	return len(dates), nil
}

// SaveSnapshot writes a snapshot to the directory, via a temp file and atomic
// rename so readers never observe a partial write.
func (f *FileSource) SaveSnapshot(snap *models.MarketSnapshot) error {
	if snap == nil || snap.Symbol == "" {
		return fmt.Errorf("cannot save snapshot without a symbol")
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	path := f.path(snap.Symbol, snap.Date)
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpFile, path); err != nil {
		return err
	}

	f.mu.Lock()
	f.cache[snapshotKey(snap.Symbol, snap.Date)] = snap
	f.mu.Unlock()
	return nil
}
