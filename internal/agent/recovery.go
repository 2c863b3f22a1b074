package agent

import (
	"log/slog"

	"github.com/mtzanidakis/convoy/internal/hierarchy"
)

// peerDied applies a death reported by the environment. Repeated reports
// are no-ops.
func (a *Agent) peerDied(now int64, id string) {
	if id == a.id {
		a.members.MarkDead(id)
		a.alive = false
		slog.Info("agent died", "agent", a.id, "role", a.role)
		a.emit(now, EventDied, map[string]any{"role": a.role})
		return
	}

	if !a.team[id] {
		a.sightings.Remove(id)
		if subject, ok := a.target.Subject(); ok && subject == id {
			a.target.Clear()
			if a.role == RoleCommander {
				a.emit(now, EventTargetChanged, map[string]any{"target": "", "previous": id})
			}
		}
		return
	}

	if !a.members.MarkDead(id) {
		return
	}

	wasCommander := id == a.commander
	slog.Info("teammate lost", "agent", a.id, "member", id, "commander", wasCommander)
	a.emit(now, EventMemberLost, map[string]any{
		"member":    id,
		"commander": wasCommander,
	})

	if wasCommander {
		a.replaceCommander(now, id)
		return
	}
	hierarchy.Unlink(a.chain, id, a.isAlive, a.commander)
}

// replaceCommander hands command to the closest-ranked alive member. Every
// agent computes the same successor from its own chain; the successor
// claims the role on the bus under the next epoch.
func (a *Agent) replaceCommander(now int64, dead string) {
	next, ok := hierarchy.FirstAlive(a.chain, a.isAlive)
	if !ok {
		next = a.id
	}

	a.epoch++
	a.setCommander(now, next)
	hierarchy.Unlink(a.chain, dead, a.isAlive, next)

	if next != a.id {
		return
	}

	slog.Info("promoted to commander", "agent", a.id, "epoch", a.epoch, "replacing", dead)
	a.emit(now, EventPromoted, map[string]any{
		"replacing": dead,
		"epoch":     a.epoch,
	})

	switch a.phase {
	case PhaseSteady:
		a.stampChain(now)
		a.announce(now)
	case PhaseReporting, PhaseAwaiting:
		a.startCollecting(now)
	}
}
