package agent

import (
	"github.com/mtzanidakis/convoy/internal/hierarchy"
	"github.com/mtzanidakis/convoy/internal/protocol"
)

const (
	patrolInset = 0.1
	patrolReach = 20.0
)

func (a *Agent) predecessor() string {
	return hierarchy.Resolve(a.chain, a.isAlive, a.commander, a.id)
}

// follow keeps the agent between FollowMin and FollowMax of its resolved
// predecessor's last reported position.
func (a *Agent) follow() {
	pred := a.predecessor()
	if pred == "" {
		return
	}
	snap, ok := a.positions[pred]
	if !ok {
		return
	}

	here := a.body.Position()
	d := here.Dist(snap.Position)
	switch {
	case d > a.cfg.FollowMax:
		a.body.MoveToward(snap.Position)
	case d < a.cfg.FollowMin && d > 0:
		a.body.MoveToward(protocol.Point{
			X: 2*here.X - snap.Position.X,
			Y: 2*here.Y - snap.Position.Y,
		})
	}
}

// patrol walks the commander around the arena corners, reversing direction
// on every rotation.
func (a *Agent) patrol() {
	if a.arena.Width <= 0 || a.arena.Height <= 0 {
		return
	}
	corners := a.corners()
	here := a.body.Position()

	if a.corner < 0 {
		a.corner = 0
		for i, c := range corners {
			if here.Dist(c) < here.Dist(corners[a.corner]) {
				a.corner = i
			}
		}
	}

	if here.Dist(corners[a.corner]) < patrolReach {
		if a.clockwise {
			a.corner = (a.corner + len(corners) - 1) % len(corners)
		} else {
			a.corner = (a.corner + 1) % len(corners)
		}
	}
	a.body.MoveToward(corners[a.corner])
}

func (a *Agent) corners() [4]protocol.Point {
	mx := a.arena.Width * patrolInset
	my := a.arena.Height * patrolInset
	return [4]protocol.Point{
		{X: mx, Y: my},
		{X: a.arena.Width - mx, Y: my},
		{X: a.arena.Width - mx, Y: a.arena.Height - my},
		{X: mx, Y: a.arena.Height - my},
	}
}
