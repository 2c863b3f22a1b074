package targeting

import "github.com/mtzanidakis/convoy/internal/protocol"

// SharedTarget is the target the team engages. Its age is the age of the
// sighting it carries.
type SharedTarget struct {
	sighting protocol.Sighting
	set      bool
}

func (st *SharedTarget) Set(s protocol.Sighting) {
	st.sighting = s
	st.set = true
}

// Refresh updates the snapshot if s is a newer sighting of the current target.
func (st *SharedTarget) Refresh(s protocol.Sighting) bool {
	if !st.set || st.sighting.Subject != s.Subject || s.Tick < st.sighting.Tick {
		return false
	}
	st.sighting = s
	return true
}

func (st *SharedTarget) Clear() {
	*st = SharedTarget{}
}

// Subject returns the target subject regardless of freshness.
func (st *SharedTarget) Subject() (string, bool) {
	return st.sighting.Subject, st.set
}

// Current returns the target only while it is fresh at now.
func (st *SharedTarget) Current(now, freshness int64) (protocol.Sighting, bool) {
	if !st.set || !Fresh(st.sighting.Tick, now, freshness) {
		return protocol.Sighting{}, false
	}
	return st.sighting, true
}
