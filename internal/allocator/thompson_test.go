package allocator

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateSumsToOne(t *testing.T) {
	a := NewThompsonAllocator(1)
	a.Register("sd1.00_w5_dte30_pt0.50")
	a.Register("sd1.20_w5_dte30_pt0.50")
	a.Register("sd1.50_w10_dte45_pt0.50")

	for i := 0; i < 50; i++ {
		weights, err := a.Allocate()
		require.NoError(t, err)
		require.Len(t, weights, 3)

		sum := 0.0
		for _, w := range weights {
			assert.Greater(t, w, 0.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestAllocateEmpty(t *testing.T) {
	a := NewThompsonAllocator(1)
	_, err := a.Allocate()
	var allocErr *AllocationError
	require.True(t, errors.As(err, &allocErr))
}

func TestRecordOutcomeUpdatesPosterior(t *testing.T) {
	a := NewThompsonAllocator(1)
	a.Register("winner")

	for i := 0; i < 40; i++ {
		require.NoError(t, a.RecordOutcome("winner", 100))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, a.RecordOutcome("winner", -50))
	}
	// Breakeven trades leave the posterior untouched.
	require.NoError(t, a.RecordOutcome("winner", 0))

	expected, err := a.Expected("winner")
	require.NoError(t, err)
	// Beta(41, 11) mean.
	assert.InDelta(t, 41.0/52.0, expected, 1e-9)

	stats := a.Snapshot()["winner"]
	assert.Equal(t, 50, stats.Trades)
	assert.Equal(t, 40, stats.Wins)
}

func TestRecordOutcomeUnknownBot(t *testing.T) {
	a := NewThompsonAllocator(1)
	err := a.RecordOutcome("ghost", 100)
	var allocErr *AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, "ghost", allocErr.Bot)
}

func TestAllocationConvergesToBetterBot(t *testing.T) {
	a := NewThompsonAllocator(7)
	a.Register("strong")
	a.Register("weak")

	for i := 0; i < 40; i++ {
		require.NoError(t, a.RecordOutcome("strong", 100))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, a.RecordOutcome("strong", -50))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, a.RecordOutcome("weak", 100))
	}
	for i := 0; i < 40; i++ {
		require.NoError(t, a.RecordOutcome("weak", -50))
	}

	total := 0.0
	const rounds = 500
	for i := 0; i < rounds; i++ {
		weights, err := a.Allocate()
		require.NoError(t, err)
		total += weights["strong"]
	}
	// Beta(41,11) vs Beta(11,41): the strong bot should dominate clearly.
	assert.Greater(t, total/rounds, 0.7)
}

func TestAllocatorDeterministicWithSeed(t *testing.T) {
	build := func() *ThompsonAllocator {
		a := NewThompsonAllocator(99)
		a.Register("a")
		a.Register("b")
		require.NoError(t, a.RecordOutcome("a", 10))
		require.NoError(t, a.RecordOutcome("b", -10))
		return a
	}

	x, err := build().Allocate()
	require.NoError(t, err)
	y, err := build().Allocate()
	require.NoError(t, err)
	assert.Equal(t, x, y)
}

func TestConcurrentRecordingAndAllocation(t *testing.T) {
	a := NewThompsonAllocator(3)
	bots := []string{"a", "b", "c", "d"}
	for _, b := range bots {
		a.Register(b)
	}

	var wg sync.WaitGroup
	for _, b := range bots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				pnl := 100.0
				if i%3 == 0 {
					pnl = -50
				}
				_ = a.RecordOutcome(b, pnl)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if _, err := a.Allocate(); err != nil {
				t.Errorf("allocate: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	for _, b := range bots {
		stats := a.Snapshot()[b]
		assert.Equal(t, 200, stats.Trades)
	}
}
