package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jfenner/gexengine/internal/allocator"
	"github.com/jfenner/gexengine/internal/models"
)

// resultsFile is the on-disk shape of a Store.
type resultsFile struct {
	Runs        map[string]*models.BacktestRun  `json:"runs"`
	Profiles    map[string]*models.GammaProfile `json:"profiles"`
	Allocations map[string]allocator.BotStats   `json:"allocations"`
	Weights     map[string]float64              `json:"weights"`
	SavedAt     time.Time                       `json:"saved_at"`
}

// Save writes the store to a JSON file, via a temp file and atomic rename so
// a crash never leaves a truncated results file behind.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	out := resultsFile{
		Runs:        s.runs,
		Profiles:    s.profiles,
		Allocations: s.allocations,
		Weights:     s.weights,
		SavedAt:     time.Now().UTC(),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpFile, path)
}

// LoadStore reads a previously saved results file.
func LoadStore(path string) (*Store, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a user-provided results file
	if err != nil {
		return nil, fmt.Errorf("reading results file: %w", err)
	}

	var in resultsFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parsing results file: %w", err)
	}

	store := NewStore()
	if in.Runs != nil {
		store.runs = in.Runs
	}
	if in.Profiles != nil {
		store.profiles = in.Profiles
	}
	if in.Allocations != nil {
		store.allocations = in.Allocations
	}
	if in.Weights != nil {
		store.weights = in.Weights
	}
	return store, nil
}
