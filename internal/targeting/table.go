// Package targeting keeps the sighting records an agent holds and the team's
// shared target.
package targeting

import (
	"sort"

	"github.com/mtzanidakis/convoy/internal/protocol"
)

// Table holds the latest sighting per subject.
type Table struct {
	records map[string]protocol.Sighting
}

func NewTable() *Table {
	return &Table{records: make(map[string]protocol.Sighting)}
}

// Upsert stores s unless an entry for the same subject from a later tick is
// already held. Equal ticks overwrite, so a duplicate delivery is a no-op.
func (t *Table) Upsert(s protocol.Sighting) bool {
	if cur, ok := t.records[s.Subject]; ok && cur.Tick > s.Tick {
		return false
	}
	t.records[s.Subject] = s
	return true
}

func (t *Table) Remove(subject string) bool {
	if _, ok := t.records[subject]; !ok {
		return false
	}
	delete(t.records, subject)
	return true
}

func (t *Table) Len() int {
	return len(t.records)
}

// Prune drops records that are stale at now and returns how many were dropped.
func (t *Table) Prune(now, freshness int64) int {
	n := 0
	for subject, s := range t.records {
		if !Fresh(s.Tick, now, freshness) {
			delete(t.records, subject)
			n++
		}
	}
	return n
}

// Select returns the record with the smallest distance. Equal distances go to
// the lexicographically smallest subject.
func (t *Table) Select() (protocol.Sighting, bool) {
	var (
		best  protocol.Sighting
		found bool
	)
	for _, s := range t.records {
		if !found || s.Distance < best.Distance || (s.Distance == best.Distance && s.Subject < best.Subject) {
			best = s
			found = true
		}
	}
	return best, found
}

// Subjects returns the held subjects, sorted.
func (t *Table) Subjects() []string {
	out := make([]string, 0, len(t.records))
	for s := range t.records {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Fresh reports whether something refreshed at tick is still usable at now.
func Fresh(tick, now, freshness int64) bool {
	return now-tick < freshness
}
