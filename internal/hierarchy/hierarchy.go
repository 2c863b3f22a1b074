// Package hierarchy holds the team's follow chain: every non-commander member
// points at a predecessor, and following predecessors from any member ends at
// the commander.
package hierarchy

import (
	"errors"
	"fmt"

	"github.com/mtzanidakis/convoy/internal/protocol"
)

var (
	ErrCycle    = errors.New("follow chain contains a cycle")
	ErrDetached = errors.New("follow chain does not reach the commander")
)

// Hierarchy maps members to predecessors and remembers chain order, closest
// to the commander first.
type Hierarchy struct {
	pred  map[string]string
	order []string
}

func New() *Hierarchy {
	return &Hierarchy{pred: make(map[string]string)}
}

// FromLinks rebuilds a hierarchy from its wire form. Link order is kept as
// chain order; a repeated member keeps its first position and last link.
func FromLinks(links []protocol.Link) *Hierarchy {
	h := New()
	for _, l := range links {
		h.Set(l.Member, l.Predecessor)
	}
	return h
}

// Links returns the wire form in chain order.
func (h *Hierarchy) Links() []protocol.Link {
	out := make([]protocol.Link, 0, len(h.order))
	for _, m := range h.order {
		out = append(out, protocol.Link{Member: m, Predecessor: h.pred[m]})
	}
	return out
}

func (h *Hierarchy) Predecessor(id string) (string, bool) {
	p, ok := h.pred[id]
	return p, ok
}

func (h *Hierarchy) Contains(id string) bool {
	_, ok := h.pred[id]
	return ok
}

// Members returns the chain members in chain order.
func (h *Hierarchy) Members() []string {
	return append([]string(nil), h.order...)
}

func (h *Hierarchy) Len() int {
	return len(h.order)
}

// Set points member at pred, appending member to the chain if it is new.
func (h *Hierarchy) Set(member, pred string) {
	if _, ok := h.pred[member]; !ok {
		h.order = append(h.order, member)
	}
	h.pred[member] = pred
}

// Remove drops member's own entry. Links pointing at member are left alone.
func (h *Hierarchy) Remove(member string) bool {
	if _, ok := h.pred[member]; !ok {
		return false
	}
	delete(h.pred, member)
	for i, m := range h.order {
		if m == member {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return true
}

func (h *Hierarchy) Clone() *Hierarchy {
	c := &Hierarchy{
		pred:  make(map[string]string, len(h.pred)),
		order: append([]string(nil), h.order...),
	}
	for k, v := range h.pred {
		c.pred[k] = v
	}
	return c
}

// Equal reports whether both hierarchies hold the same links in the same order.
func (h *Hierarchy) Equal(o *Hierarchy) bool {
	if len(h.order) != len(o.order) {
		return false
	}
	for i, m := range h.order {
		if o.order[i] != m || o.pred[m] != h.pred[m] {
			return false
		}
	}
	return true
}

// Validate checks that every member reaches commander within Len() steps.
func (h *Hierarchy) Validate(commander string) error {
	if h.Contains(commander) {
		return fmt.Errorf("%w: commander %q has a predecessor", ErrCycle, commander)
	}
	for _, m := range h.order {
		cur := m
		for steps := 0; ; steps++ {
			if steps > len(h.order) {
				return fmt.Errorf("%w: walking from %q", ErrCycle, m)
			}
			p := h.pred[cur]
			if p == commander {
				break
			}
			if !h.Contains(p) {
				return fmt.Errorf("%w: %q ends at %q", ErrDetached, m, p)
			}
			cur = p
		}
	}
	return nil
}
