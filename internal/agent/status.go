package agent

import "github.com/mtzanidakis/convoy/internal/protocol"

// Status is a point-in-time view of an agent, safe to read from any goroutine.
type Status struct {
	Agent       string          `json:"agent"`
	Alive       bool            `json:"alive"`
	Phase       Phase           `json:"phase"`
	Role        Role            `json:"role"`
	Commander   string          `json:"commander"`
	Epoch       uint64          `json:"epoch"`
	Predecessor string          `json:"predecessor,omitempty"`
	Chain       []protocol.Link `json:"chain"`
	Members     []string        `json:"members"`
	Target      string          `json:"target,omitempty"`
	Contacts    []string        `json:"contacts"`
	Position    protocol.Point  `json:"position"`
	Tick        int64           `json:"tick"`
}

// Status returns the snapshot taken at the end of the last tick.
func (a *Agent) Status() Status {
	return *a.status.Load()
}

func (a *Agent) publishStatus(now int64) {
	st := &Status{
		Agent:     a.id,
		Alive:     a.alive,
		Phase:     a.phase,
		Role:      a.role,
		Commander: a.commander,
		Epoch:     a.epoch,
		Chain:     a.chain.Links(),
		Members:   a.members.Alive(),
		Contacts:  a.sightings.Subjects(),
		Position:  a.body.Position(),
		Tick:      now,
	}
	if a.commander != "" && a.role == RoleFollower {
		st.Predecessor = a.predecessor()
	}
	if subject, ok := a.target.Subject(); ok {
		st.Target = subject
	}
	a.status.Store(st)
}
