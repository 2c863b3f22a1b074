package hierarchy

// Resolve returns the member id should follow right now: its predecessor,
// skipping dead links. When the walk runs off the chain, a non-commander gets
// the commander; the commander itself gets "".
func Resolve(h *Hierarchy, alive func(string) bool, commander, id string) string {
	p, ok := h.Predecessor(id)
	for steps := 0; ok && !alive(p) && steps <= h.Len(); steps++ {
		p, ok = h.Predecessor(p)
	}
	if ok && alive(p) {
		return p
	}
	if id == commander {
		return ""
	}
	return commander
}

// FirstAlive returns the alive member closest to the head of the chain.
func FirstAlive(h *Hierarchy, alive func(string) bool) (string, bool) {
	for _, m := range h.order {
		if alive(m) {
			return m, true
		}
	}
	return "", false
}

// Unlink removes dead from the chain. Members that followed dead are rewired
// to dead's nearest alive ancestor before dead's own entry is dropped, so the
// chain keeps its shape. It returns the rewired members.
func Unlink(h *Hierarchy, dead string, alive func(string) bool, commander string) []string {
	var rewired []string
	for _, m := range h.order {
		if m == dead || h.pred[m] != dead {
			continue
		}
		h.pred[m] = Resolve(h, alive, commander, m)
		rewired = append(rewired, m)
	}
	h.Remove(dead)
	return rewired
}
