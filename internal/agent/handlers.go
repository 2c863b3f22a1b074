package agent

import (
	"log/slog"

	"github.com/mtzanidakis/convoy/internal/election"
	"github.com/mtzanidakis/convoy/internal/hierarchy"
	"github.com/mtzanidakis/convoy/internal/protocol"
)

func (a *Agent) dispatch(now int64, d protocol.Delivery) {
	if d.From != protocol.EnvironmentSender && !a.team[d.From] {
		slog.Warn("dropping message from outside the team", "agent", a.id, "from", d.From, "kind", d.Message.Kind())
		return
	}

	switch m := d.Message.(type) {
	case protocol.Candidacy:
		a.onCandidacy(m)
	case protocol.CommanderAnnouncement:
		a.onAnnouncement(now, d.Tick, m)
	case protocol.PositionUpdate:
		a.recordPosition(m.PositionSnapshot)
	case protocol.DistanceReport:
		a.onDistanceReport(now, m)
	case protocol.HierarchyUpdate:
		a.onHierarchy(now, m)
	case protocol.SightingReport:
		if !a.team[m.Subject] {
			a.sightings.Upsert(m.Sighting)
		}
	case protocol.SharedTargetUpdate:
		a.onSharedTarget(d.From, m.Sighting)
	case protocol.DeathNotification:
		if d.From != protocol.EnvironmentSender {
			slog.Warn("ignoring death notification from team member", "agent", a.id, "from", d.From)
			return
		}
		a.peerDied(now, m.Agent)
	}
}

func (a *Agent) onCandidacy(m protocol.Candidacy) {
	if a.phase != PhaseElecting {
		slog.Debug("late candidacy ignored", "agent", a.id, "candidate", m.Agent)
		return
	}
	if !a.team[m.Agent] {
		return
	}
	a.members.RecordProposal(m.Agent, m.TieBreak)
}

// claimAccepted reports whether a commander claim at epoch replaces the
// current one: a newer epoch always does, an equal one only when the
// claimant outranks the current commander.
func (a *Agent) claimAccepted(epoch uint64, claimant string) bool {
	switch {
	case epoch > a.epoch:
		return true
	case epoch < a.epoch:
		return false
	default:
		return a.outranksCommander(election.Candidate{Agent: claimant, TieBreak: a.tieBreakOf(claimant)})
	}
}

func (a *Agent) onAnnouncement(now, sent int64, m protocol.CommanderAnnouncement) {
	if !a.team[m.Agent] {
		return
	}
	a.recordPosition(protocol.PositionSnapshot{Agent: m.Agent, Position: m.Position, Tick: sent})
	a.members.RecordProposal(m.Agent, m.TieBreak)

	if !a.isAlive(m.Agent) {
		slog.Debug("ignoring claim from dead member", "agent", a.id, "claimant", m.Agent)
		return
	}
	if !a.claimAccepted(m.Epoch, m.Agent) {
		return
	}
	a.adopt(now, m.Epoch, m.Agent, m.RotatedAt)
}

// adopt installs a commander claim received from the bus.
func (a *Agent) adopt(now int64, epoch uint64, commander string, rotatedAt int64) {
	a.epoch = epoch
	a.markRotation(rotatedAt)
	a.setCommander(now, commander)

	switch a.phase {
	case PhaseCollecting:
		if commander != a.id {
			a.distances = nil
			a.startReporting(now)
		}
	case PhaseAwaiting:
		a.phase = PhaseReporting
	}
}

func (a *Agent) onHierarchy(now int64, m protocol.HierarchyUpdate) {
	if !a.team[m.Commander] || !a.isAlive(m.Commander) {
		return
	}
	if m.Epoch < a.epoch {
		return
	}
	if m.Epoch == a.epoch && m.Commander != a.commander && !a.claimAccepted(m.Epoch, m.Commander) {
		return
	}

	if m.Commander == a.commander && m.Epoch == a.chainEpoch && m.Version < a.chainVersion {
		slog.Debug("stale hierarchy ignored", "agent", a.id, "epoch", m.Epoch, "version", m.Version, "held", a.chainVersion)
		return
	}

	chain := hierarchy.FromLinks(m.Links)
	for _, member := range chain.Members() {
		if a.members.Known(member) && !a.isAlive(member) {
			hierarchy.Unlink(chain, member, a.isAlive, m.Commander)
		}
	}
	if err := chain.Validate(m.Commander); err != nil {
		slog.Warn("rejecting hierarchy update", "agent", a.id, "commander", m.Commander, "epoch", m.Epoch, "error", err)
		return
	}

	changed := !chain.Equal(a.chain) || m.Commander != a.commander || m.Epoch != a.epoch
	a.epoch = m.Epoch
	a.chain = chain
	a.stampChain(m.Version)
	a.markRotation(m.RotatedAt)
	a.setCommander(now, m.Commander)
	if a.phase != PhaseSteady {
		a.enterSteady(now)
	}

	if changed {
		slog.Debug("hierarchy applied", "agent", a.id, "commander", m.Commander, "epoch", m.Epoch, "links", chain.Len())
		a.emit(now, EventHierarchyApplied, map[string]any{
			"commander": m.Commander,
			"epoch":     m.Epoch,
			"links":     chain.Links(),
		})
	}
}

func (a *Agent) onDistanceReport(now int64, m protocol.DistanceReport) {
	if a.role != RoleCommander || m.Agent == a.id || !a.isAlive(m.Agent) {
		return
	}

	switch a.phase {
	case PhaseCollecting:
		a.distances[m.Agent] = m.Distance
	case PhaseSteady:
		// A report after the chain was built appends the member at the tail.
		if a.chain.Contains(m.Agent) {
			return
		}
		tail := a.id
		if members := a.chain.Members(); len(members) > 0 {
			tail = members[len(members)-1]
		}
		next := a.chain.Clone()
		next.Set(m.Agent, tail)
		if err := next.Validate(a.id); err != nil {
			slog.Warn("cannot append late member", "agent", a.id, "member", m.Agent, "error", err)
			return
		}
		a.chain = next
		a.stampChain(now)
		slog.Info("late member appended to chain", "agent", a.id, "member", m.Agent, "predecessor", tail)
		a.announceHierarchy(now)
	}
}

func (a *Agent) onSharedTarget(from string, s protocol.Sighting) {
	if from != a.commander || a.role == RoleCommander {
		slog.Debug("ignoring target from non-commander", "agent", a.id, "from", from)
		return
	}
	a.target.Set(s)
}

func (a *Agent) recordPosition(snap protocol.PositionSnapshot) {
	if prev, ok := a.positions[snap.Agent]; ok && prev.Tick > snap.Tick {
		return
	}
	a.positions[snap.Agent] = snap
}
