package agent

// Event types emitted to the EventSink.
const (
	EventElected          = "elected"
	EventCommanderChanged = "commander_changed"
	EventHierarchyBuilt   = "hierarchy_built"
	EventHierarchyApplied = "hierarchy_applied"
	EventRotated          = "rotated"
	EventPromoted         = "promoted"
	EventMemberLost       = "member_lost"
	EventTargetChanged    = "target_changed"
	EventDied             = "died"
)

func (a *Agent) emit(now int64, typ string, data map[string]any) {
	if a.events == nil {
		return
	}
	a.events.Emit(now, typ, data)
}
