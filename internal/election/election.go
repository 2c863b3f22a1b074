// Package election picks the team's first commander from the candidacies an
// agent observed during the bootstrap window.
package election

import (
	"math/rand/v2"

	"github.com/mtzanidakis/convoy/internal/membership"
)

// Candidate is a (member, tie-break) proposal.
type Candidate struct {
	Agent    string
	TieBreak int
}

// Outranks reports whether c beats other. Higher tie-break wins; equal values
// fall back to the greater id so every agent reaches the same answer.
func (c Candidate) Outranks(other Candidate) bool {
	if c.TieBreak != other.TieBreak {
		return c.TieBreak > other.TieBreak
	}
	return c.Agent > other.Agent
}

// NewTieBreak draws a tie-break value in [0, n).
func NewTieBreak(rng *rand.Rand, n int) int {
	return rng.IntN(n)
}

// Winner returns the best candidate, or false when there are none.
func Winner(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Outranks(best) {
			best = c
		}
	}
	return best, true
}

// Candidates lists every alive member of reg that has a recorded proposal.
func Candidates(reg *membership.Registry) []Candidate {
	var out []Candidate
	for _, id := range reg.Alive() {
		tb, ok := reg.TieBreak(id)
		if !ok || tb < 0 {
			continue
		}
		out = append(out, Candidate{Agent: id, TieBreak: tb})
	}
	return out
}
