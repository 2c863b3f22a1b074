package hierarchy

import "sort"

// Report is a member's distance to the commander at bootstrap.
type Report struct {
	Agent    string
	Distance float64
}

// Build ranks reports by ascending distance (ties by id) and threads each
// member to the next closer one, the closest following the commander.
// Reports from the commander itself and repeated agents are ignored.
func Build(commander string, reports []Report) *Hierarchy {
	seen := make(map[string]bool, len(reports))
	ranked := make([]Report, 0, len(reports))
	for _, r := range reports {
		if r.Agent == commander || seen[r.Agent] {
			continue
		}
		seen[r.Agent] = true
		ranked = append(ranked, r)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].Agent < ranked[j].Agent
	})

	h := New()
	prev := commander
	for _, r := range ranked {
		h.Set(r.Agent, prev)
		prev = r.Agent
	}
	return h
}

// RotationOrder is the candidate list used by role rotation: the commander
// followed by the chain members in chain order.
func RotationOrder(commander string, h *Hierarchy) []string {
	out := make([]string, 0, h.Len()+1)
	out = append(out, commander)
	for _, m := range h.order {
		if m != commander {
			out = append(out, m)
		}
	}
	return out
}

// Rotate picks the alive candidate nearest the end of candidates as the new
// commander and threads the other alive candidates behind it in list order.
// Dead candidates are left out entirely.
func Rotate(candidates []string, alive func(string) bool) (string, *Hierarchy, bool) {
	commander := ""
	for i := len(candidates) - 1; i >= 0; i-- {
		if alive(candidates[i]) {
			commander = candidates[i]
			break
		}
	}
	if commander == "" {
		return "", nil, false
	}

	h := New()
	prev := commander
	for _, c := range candidates {
		if c == commander || !alive(c) || h.Contains(c) {
			continue
		}
		h.Set(c, prev)
		prev = c
	}
	return commander, h, true
}
