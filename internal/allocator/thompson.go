// Package allocator apportions capital across competing strategy
// configurations ("bots") with Thompson sampling: each bot's win probability
// carries a Beta posterior, and allocation weights come from sampling the
// posteriors and normalizing.
package allocator

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// AllocationError indicates an allocation request that cannot be satisfied:
// no bots registered, or an unknown bot name.
type AllocationError struct {
	Bot    string
	Reason string
}

func (e *AllocationError) Error() string {
	if e.Bot == "" {
		return fmt.Sprintf("allocation error: %s", e.Reason)
	}
	return fmt.Sprintf("allocation error (bot %s): %s", e.Bot, e.Reason)
}

// botState carries one bot's posterior. Its mutex covers the counters so
// outcome recording never contends on the allocator-wide lock.
type botState struct {
	mu     sync.Mutex
	alpha  float64
	beta   float64
	trades int
	wins   int
}

// BotStats is a read-only view of one bot's posterior.
type BotStats struct {
	Alpha    float64 `json:"alpha"`
	Beta     float64 `json:"beta"`
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Expected float64 `json:"expected"` // posterior mean win probability
}

// ThompsonAllocator is safe for concurrent registration, recording, and
// allocation. Every bot starts from a uniform Beta(1, 1) prior.
type ThompsonAllocator struct {
	mu   sync.RWMutex
	bots map[string]*botState
	rng  *rand.Rand
}

// NewThompsonAllocator creates an allocator with a seeded sampler, so
// allocation sequences are reproducible.
func NewThompsonAllocator(seed uint64) *ThompsonAllocator {
	return &ThompsonAllocator{
		bots: make(map[string]*botState),
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Register adds a bot under the uniform prior. Registering an existing bot is
// a no-op.
func (a *ThompsonAllocator) Register(bot string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.bots[bot]; !ok {
		a.bots[bot] = &botState{alpha: 1, beta: 1}
	}
}

// RecordOutcome updates a bot's posterior with one closed trade: profit
// increments alpha, loss increments beta, breakeven updates neither.
func (a *ThompsonAllocator) RecordOutcome(bot string, pnl float64) error {
	a.mu.RLock()
	state, ok := a.bots[bot]
	a.mu.RUnlock()
	if !ok {
		return &AllocationError{Bot: bot, Reason: "not registered"}
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	switch {
	case pnl > 0:
		state.alpha++
		state.trades++
		state.wins++
	case pnl < 0:
		state.beta++
		state.trades++
	}
	return nil
}

// Allocate samples every posterior once and returns weights normalized to
// sum to 1.
func (a *ThompsonAllocator) Allocate() (map[string]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.bots) == 0 {
		return nil, &AllocationError{Reason: "no bots registered"}
	}

	// Deterministic iteration keeps seeded runs reproducible.
	names := make([]string, 0, len(a.bots))
	for name := range a.bots {
		names = append(names, name)
	}
	sort.Strings(names)

	samples := make(map[string]float64, len(names))
	total := 0.0
	for _, name := range names {
		state := a.bots[name]
		state.mu.Lock()
		dist := distuv.Beta{Alpha: state.alpha, Beta: state.beta, Src: a.rng}
		state.mu.Unlock()
		s := dist.Rand()
		samples[name] = s
		total += s
	}
	if total <= 0 {
		return nil, &AllocationError{Reason: "degenerate posterior samples"}
	}

	for name := range samples {
		samples[name] /= total
	}
	return samples, nil
}

// Expected returns a bot's posterior mean win probability, alpha/(alpha+beta).
func (a *ThompsonAllocator) Expected(bot string) (float64, error) {
	a.mu.RLock()
	state, ok := a.bots[bot]
	a.mu.RUnlock()
	if !ok {
		return 0, &AllocationError{Bot: bot, Reason: "not registered"}
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.alpha / (state.alpha + state.beta), nil
}

// Snapshot returns every bot's posterior for reporting.
func (a *ThompsonAllocator) Snapshot() map[string]BotStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]BotStats, len(a.bots))
	for name, state := range a.bots {
		state.mu.Lock()
		out[name] = BotStats{
			Alpha:    state.alpha,
			Beta:     state.beta,
			Trades:   state.trades,
			Wins:     state.wins,
			Expected: state.alpha / (state.alpha + state.beta),
		}
		state.mu.Unlock()
	}
	return out
}
