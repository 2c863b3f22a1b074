package agent

import (
	"log/slog"

	"github.com/mtzanidakis/convoy/internal/election"
	"github.com/mtzanidakis/convoy/internal/hierarchy"
	"github.com/mtzanidakis/convoy/internal/protocol"
)

// bootstrap draws the tie-break and opens the election window.
func (a *Agent) bootstrap(now int64) {
	a.tieBreak = a.drawTieBreak()
	a.members.RecordProposal(a.id, a.tieBreak)
	a.phase = PhaseElecting
	a.phaseStarted = now

	slog.Debug("candidacy", "agent", a.id, "tie_break", a.tieBreak)
	a.broadcast(now, protocol.Candidacy{Agent: a.id, TieBreak: a.tieBreak})
}

// concludeElection closes the window and settles on a commander. A claim
// adopted during the window is kept unless the local winner outranks it.
func (a *Agent) concludeElection(now int64) {
	local, ok := election.Winner(election.Candidates(a.members))
	if ok && (a.epoch == 0 || (a.epoch == 1 && a.outranksCommander(local))) {
		a.epoch = 1
		a.setCommander(now, local.Agent)
	}

	slog.Info("election concluded", "agent", a.id, "commander", a.commander, "tie_break", a.tieBreak)
	a.emit(now, EventElected, map[string]any{
		"commander": a.commander,
		"tie_break": a.tieBreak,
		"members":   a.members.Alive(),
	})

	if a.role == RoleCommander {
		a.startCollecting(now)
	} else {
		a.startReporting(now)
	}
}

func (a *Agent) startCollecting(now int64) {
	a.phase = PhaseCollecting
	a.phaseStarted = now
	a.distances = make(map[string]float64)
	a.announceCommander(now)
}

func (a *Agent) startReporting(now int64) {
	a.phase = PhaseReporting
	a.phaseStarted = now
}

// collect builds the follow chain once every alive member has reported its
// distance, or when the timeout expires with whatever arrived.
func (a *Agent) collect(now int64) {
	var reports []hierarchy.Report
	missing := 0
	for _, m := range a.members.Alive() {
		if m == a.id {
			continue
		}
		d, ok := a.distances[m]
		if !ok {
			missing++
			continue
		}
		reports = append(reports, hierarchy.Report{Agent: m, Distance: d})
	}

	if missing > 0 {
		if now-a.phaseStarted < a.cfg.DistanceTimeout {
			return
		}
		slog.Warn("distance collection timed out", "agent", a.id, "missing", missing, "reported", len(reports))
	}

	a.chain = hierarchy.Build(a.id, reports)
	a.distances = nil
	a.stampChain(now)
	a.enterSteady(now)
	a.markRotation(now)
	a.announceHierarchy(now)

	slog.Info("hierarchy built", "agent", a.id, "links", a.chain.Len())
	a.emit(now, EventHierarchyBuilt, map[string]any{
		"epoch": a.epoch,
		"links": a.chain.Links(),
	})
}

// report sends this member's distance once the commander's position is known
// and waits for the follow chain. Without one it falls back to following the
// commander directly.
func (a *Agent) report(now int64) {
	if a.phase == PhaseReporting {
		if snap, ok := a.positions[a.commander]; ok {
			d := a.body.Position().Dist(snap.Position)
			a.send(now, a.commander, protocol.DistanceReport{Agent: a.id, Distance: d})
			a.phase = PhaseAwaiting
		}
	}

	if now-a.phaseStarted >= 2*a.cfg.DistanceTimeout {
		slog.Warn("no hierarchy received, following commander", "agent", a.id, "commander", a.commander)
		a.enterSteady(now)
		a.markRotation(now)
	}
}

func (a *Agent) enterSteady(now int64) {
	a.phase = PhaseSteady
	a.phaseStarted = now
}

// markRotation advances the rotation timer; it never moves backwards.
func (a *Agent) markRotation(at int64) {
	if at > a.lastRotation {
		a.lastRotation = at
	}
}

// outranksCommander reports whether c beats the current commander claim.
func (a *Agent) outranksCommander(c election.Candidate) bool {
	if a.commander == "" {
		return true
	}
	if c.Agent == a.commander {
		return false
	}
	return c.Outranks(election.Candidate{Agent: a.commander, TieBreak: a.tieBreakOf(a.commander)})
}

func (a *Agent) tieBreakOf(id string) int {
	tb, ok := a.members.TieBreak(id)
	if !ok {
		return -1
	}
	return tb
}
