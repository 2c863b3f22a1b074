package agent

import (
	"log/slog"

	"github.com/mtzanidakis/convoy/internal/protocol"
)

// sighted records a local observation. Followers relay it to the commander;
// a sighting of the current target refreshes it locally.
func (a *Agent) sighted(now int64, s protocol.Sighting) {
	if a.team[s.Subject] {
		return
	}
	a.sightings.Upsert(s)
	a.target.Refresh(s)

	if a.role == RoleFollower && a.commander != "" {
		a.send(now, a.commander, protocol.SightingReport{Sighting: s})
	}
}

// coordinateTarget picks the closest fresh sighting and shares it.
func (a *Agent) coordinateTarget(now int64) {
	a.sightings.Prune(now, a.cfg.TargetFreshness)
	prev, had := a.target.Subject()

	best, ok := a.sightings.Select()
	if !ok {
		if had {
			a.target.Clear()
			slog.Debug("target lost", "agent", a.id, "previous", prev)
			a.emit(now, EventTargetChanged, map[string]any{"target": "", "previous": prev})
		}
		return
	}

	a.target.Set(best)
	if !had || prev != best.Subject {
		slog.Debug("target selected", "agent", a.id, "target", best.Subject, "distance", best.Distance)
		a.emit(now, EventTargetChanged, map[string]any{
			"target":   best.Subject,
			"previous": prev,
			"distance": best.Distance,
		})
	}
	a.broadcast(now, protocol.SharedTargetUpdate{Sighting: best})
}

func (a *Agent) engage(now int64) {
	t, ok := a.target.Current(now, a.cfg.TargetFreshness)
	if !ok {
		return
	}
	a.body.TurnToward(t.Position())
	a.body.Engage(t)
}
