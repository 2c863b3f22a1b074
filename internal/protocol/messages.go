package protocol

// Kind identifies a message variant on the wire.
type Kind string

const (
	KindCandidacy             Kind = "candidacy"
	KindCommanderAnnouncement Kind = "commander_announcement"
	KindPositionUpdate        Kind = "position_update"
	KindDistanceReport        Kind = "distance_report"
	KindHierarchyUpdate       Kind = "hierarchy_update"
	KindSightingReport        Kind = "sighting_report"
	KindSharedTargetUpdate    Kind = "shared_target_update"
	KindDeathNotification     Kind = "death_notification"
)

// Broadcast reports whether the kind is addressed to the whole team.
func (k Kind) Broadcast() bool {
	switch k {
	case KindDistanceReport, KindSightingReport:
		return false
	default:
		return true
	}
}

// Message is implemented by every payload variant. The set is closed: only
// the types in this file satisfy it.
type Message interface {
	Kind() Kind
	sealed()
}

type Candidacy struct {
	Agent    string `json:"agent"`
	TieBreak int    `json:"tie_break"`
}

// CommanderAnnouncement claims the commander role for Agent at Epoch.
// RotatedAt is the tick of the last rotation the sender applied.
type CommanderAnnouncement struct {
	Agent     string `json:"agent"`
	Position  Point  `json:"position"`
	Epoch     uint64 `json:"epoch"`
	TieBreak  int    `json:"tie_break"`
	RotatedAt int64  `json:"rotated_at"`
}

type PositionUpdate struct {
	PositionSnapshot
}

type DistanceReport struct {
	Agent    string  `json:"agent"`
	Distance float64 `json:"distance"`
}

// HierarchyUpdate carries the follow chain of Commander at Epoch. Version is
// the tick the commander last changed the chain; within one epoch a lower
// version is stale.
type HierarchyUpdate struct {
	Commander string `json:"commander"`
	Epoch     uint64 `json:"epoch"`
	Version   int64  `json:"version"`
	RotatedAt int64  `json:"rotated_at"`
	Links     []Link `json:"links"`
}

type SightingReport struct {
	Sighting
}

type SharedTargetUpdate struct {
	Sighting
}

// EnvironmentSender is the From value of messages published by the
// environment rather than a team member.
const EnvironmentSender = "environment"

// DeathNotification is produced by the environment, never by an agent.
type DeathNotification struct {
	Agent string `json:"agent"`
}

func (Candidacy) Kind() Kind             { return KindCandidacy }
func (CommanderAnnouncement) Kind() Kind { return KindCommanderAnnouncement }
func (PositionUpdate) Kind() Kind        { return KindPositionUpdate }
func (DistanceReport) Kind() Kind        { return KindDistanceReport }
func (HierarchyUpdate) Kind() Kind       { return KindHierarchyUpdate }
func (SightingReport) Kind() Kind        { return KindSightingReport }
func (SharedTargetUpdate) Kind() Kind    { return KindSharedTargetUpdate }
func (DeathNotification) Kind() Kind     { return KindDeathNotification }

func (Candidacy) sealed()             {}
func (CommanderAnnouncement) sealed() {}
func (PositionUpdate) sealed()        {}
func (DistanceReport) sealed()        {}
func (HierarchyUpdate) sealed()       {}
func (SightingReport) sealed()        {}
func (SharedTargetUpdate) sealed()    {}
func (DeathNotification) sealed()     {}
