// Package membership tracks which team identities are known and which of them
// are still alive. Entries are never removed: a dead member stays resolvable so
// that follow-chain links through it can still be walked.
package membership

import "sort"

type member struct {
	tieBreak int
	alive    bool
}

// Registry is owned by a single agent loop and is not safe for concurrent use.
type Registry struct {
	members map[string]*member
}

func New() *Registry {
	return &Registry{members: make(map[string]*member)}
}

// RecordProposal adds id with its tie-break value. The first proposal seen for
// an id wins; later ones are ignored. It reports whether id was new.
func (r *Registry) RecordProposal(id string, tieBreak int) bool {
	if _, ok := r.members[id]; ok {
		return false
	}
	r.members[id] = &member{tieBreak: tieBreak, alive: true}
	return true
}

// MarkDead flips id to dead. Unknown ids are recorded as dead so a late
// proposal cannot resurrect them. It reports whether the call changed state.
func (r *Registry) MarkDead(id string) bool {
	m, ok := r.members[id]
	if !ok {
		r.members[id] = &member{tieBreak: -1}
		return true
	}
	if !m.alive {
		return false
	}
	m.alive = false
	return true
}

func (r *Registry) IsAlive(id string) bool {
	m, ok := r.members[id]
	return ok && m.alive
}

func (r *Registry) Known(id string) bool {
	_, ok := r.members[id]
	return ok
}

// TieBreak returns the tie-break value recorded for id.
func (r *Registry) TieBreak(id string) (int, bool) {
	m, ok := r.members[id]
	if !ok {
		return 0, false
	}
	return m.tieBreak, true
}

// Members returns every known id, dead or alive, sorted.
func (r *Registry) Members() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Alive returns the alive ids, sorted.
func (r *Registry) Alive() []string {
	ids := make([]string, 0, len(r.members))
	for id, m := range r.members {
		if m.alive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	return len(r.members)
}
