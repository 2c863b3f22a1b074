package election

import (
	"math/rand/v2"
	"testing"

	"github.com/mtzanidakis/convoy/internal/membership"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWinnerHighestTieBreakWins(t *testing.T) {
	reg := membership.New()
	reg.RecordProposal("A", 50)
	reg.RecordProposal("B", 900)
	reg.RecordProposal("C", 300)

	winner, ok := Winner(Candidates(reg))
	require.True(t, ok)
	assert.Equal(t, "B", winner.Agent)
}

func TestWinnerIsOrderIndependent(t *testing.T) {
	cands := []Candidate{{"A", 50}, {"B", 900}, {"C", 300}, {"D", 899}}
	rng := rand.New(rand.NewPCG(7, 7))

	for i := 0; i < 20; i++ {
		rng.Shuffle(len(cands), func(a, b int) { cands[a], cands[b] = cands[b], cands[a] })
		w, ok := Winner(cands)
		require.True(t, ok)
		assert.Equal(t, "B", w.Agent)
	}
}

func TestWinnerTieFallsBackToID(t *testing.T) {
	w, ok := Winner([]Candidate{{"alpha", 10}, {"charlie", 10}, {"bravo", 10}})
	require.True(t, ok)
	assert.Equal(t, "charlie", w.Agent)
}

func TestWinnerSkipsDeadCandidates(t *testing.T) {
	reg := membership.New()
	reg.RecordProposal("A", 50)
	reg.RecordProposal("B", 900)
	reg.MarkDead("B")

	winner, ok := Winner(Candidates(reg))
	require.True(t, ok)
	assert.Equal(t, "A", winner.Agent)
}

func TestWinnerEmpty(t *testing.T) {
	_, ok := Winner(Candidates(membership.New()))
	assert.False(t, ok)
}

func TestNewTieBreakInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		v := NewTieBreak(rng, 1000)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 1000)
	}
}
