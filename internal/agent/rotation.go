package agent

import (
	"log/slog"

	"github.com/mtzanidakis/convoy/internal/hierarchy"
)

// rotate hands command to the last alive member of the chain and threads
// everyone else behind it in the old order. Every agent runs the same
// computation; only the new commander broadcasts the result.
func (a *Agent) rotate(now int64) {
	a.lastRotation = now

	order := hierarchy.RotationOrder(a.commander, a.chain)
	commander, chain, ok := hierarchy.Rotate(order, a.isAlive)
	if !ok {
		return
	}

	prev := a.commander
	a.clockwise = !a.clockwise
	a.epoch++
	a.chain = chain
	a.setCommander(now, commander)

	slog.Info("role rotation", "agent", a.id, "commander", commander, "previous", prev, "epoch", a.epoch)
	a.emit(now, EventRotated, map[string]any{
		"commander": commander,
		"previous":  prev,
		"epoch":     a.epoch,
	})

	if commander == a.id {
		a.stampChain(now)
		a.announce(now)
	}
}
