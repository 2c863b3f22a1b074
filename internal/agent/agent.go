// Package agent runs the follow-the-leader protocol for one team member.
//
// An Agent is driven by its environment: OnMessage, OnSighting and
// OnPeerDeath queue inputs from any goroutine, and Tick drains them and
// advances the state machine on the caller's goroutine. All protocol state
// is owned by Tick; Status exposes a read-only snapshot.
package agent

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync/atomic"

	"github.com/mtzanidakis/convoy/internal/config"
	"github.com/mtzanidakis/convoy/internal/election"
	"github.com/mtzanidakis/convoy/internal/hierarchy"
	"github.com/mtzanidakis/convoy/internal/membership"
	"github.com/mtzanidakis/convoy/internal/protocol"
	"github.com/mtzanidakis/convoy/internal/targeting"
)

type Role string

const (
	RoleNone      Role = ""
	RoleCommander Role = "commander"
	RoleFollower  Role = "follower"
)

// Phase is the agent's position in the bootstrap sequence.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseElecting   Phase = "electing"
	PhaseCollecting Phase = "collecting"
	PhaseReporting  Phase = "reporting"
	PhaseAwaiting   Phase = "awaiting"
	PhaseSteady     Phase = "steady"
)

// Body is the agent's physical presence in the environment.
type Body interface {
	Position() protocol.Point
	MoveToward(p protocol.Point)
	TurnToward(p protocol.Point)
	Engage(target protocol.Sighting)
}

// Transport carries protocol messages to the rest of the team.
type Transport interface {
	Broadcast(tick int64, msg protocol.Message) error
	Send(to string, tick int64, msg protocol.Message) error
}

// Clock returns the current tick.
type Clock interface {
	Now() int64
}

// EventSink receives protocol state changes. It may be nil.
type EventSink interface {
	Emit(tick int64, typ string, data map[string]any)
}

// Bounds is the arena rectangle the commander patrols.
type Bounds struct {
	Width  float64
	Height float64
}

type Options struct {
	ID        string
	Team      []string
	Protocol  config.ProtocolConfig
	Arena     Bounds
	Body      Body
	Clock     Clock
	Transport Transport
	Events    EventSink
	Rand      *rand.Rand
}

type Agent struct {
	id     string
	team   map[string]bool
	cfg    config.ProtocolConfig
	arena  Bounds
	body   Body
	clock  Clock
	net    Transport
	events EventSink

	inbox        *Mailbox
	drawTieBreak func() int

	phase        Phase
	phaseStarted int64
	alive        bool

	tieBreak  int
	members   *membership.Registry
	commander string
	role      Role
	epoch     uint64
	chain     *hierarchy.Hierarchy

	// epoch and version of the last chain applied or authored
	chainEpoch   uint64
	chainVersion int64

	positions map[string]protocol.PositionSnapshot
	distances map[string]float64
	reported  bool

	sightings *targeting.Table
	target    targeting.SharedTarget

	lastRotation int64
	lastBeacon   int64
	clockwise    bool
	corner       int

	status atomic.Pointer[Status]
}

func New(opts Options) (*Agent, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if opts.Body == nil || opts.Clock == nil || opts.Transport == nil {
		return nil, fmt.Errorf("agent %s: body, clock and transport are required", opts.ID)
	}
	if !slices.Contains(opts.Team, opts.ID) {
		return nil, fmt.Errorf("agent %s is not a team member", opts.ID)
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	team := make(map[string]bool, len(opts.Team))
	for _, m := range opts.Team {
		team[m] = true
	}

	a := &Agent{
		id:        opts.ID,
		team:      team,
		cfg:       opts.Protocol,
		arena:     opts.Arena,
		body:      opts.Body,
		clock:     opts.Clock,
		net:       opts.Transport,
		events:    opts.Events,
		inbox:     NewMailbox(opts.Protocol.MailboxSize),
		phase:     PhaseIdle,
		alive:     true,
		members:   membership.New(),
		chain:     hierarchy.New(),
		positions: make(map[string]protocol.PositionSnapshot),
		sightings: targeting.NewTable(),
		corner:    -1,

		lastBeacon: math.MinInt64 / 2,
	}
	a.drawTieBreak = func() int {
		return election.NewTieBreak(rng, opts.Protocol.TieBreakRange)
	}
	a.publishStatus(0)
	return a, nil
}

func (a *Agent) ID() string { return a.id }

// OnMessage queues a bus delivery for the next tick.
func (a *Agent) OnMessage(d protocol.Delivery) {
	if !a.inbox.Enqueue(input{kind: inputDelivery, delivery: d}) {
		slog.Warn("mailbox full, dropping message", "agent", a.id, "kind", d.Message.Kind(), "from", d.From)
	}
}

// OnSighting queues an observation of a non-team entity.
func (a *Agent) OnSighting(s protocol.Sighting) {
	a.inbox.Enqueue(input{kind: inputSighting, sighting: s})
}

// OnPeerDeath queues the death of id, which may be a teammate, a hostile or
// the agent itself.
func (a *Agent) OnPeerDeath(id string) {
	a.inbox.Enqueue(input{kind: inputDeath, subject: id})
}

// Reconfigure swaps the protocol timings at the next tick. The tie-break
// range and mailbox size are fixed at construction.
func (a *Agent) Reconfigure(p config.ProtocolConfig) {
	a.inbox.Enqueue(input{kind: inputReconfigure, protocol: p})
}

// Tick drains the mailbox and runs one step of the protocol.
func (a *Agent) Tick() {
	now := a.clock.Now()
	if !a.alive {
		return
	}
	if a.phase == PhaseIdle {
		a.bootstrap(now)
	}

	for _, in := range a.inbox.Drain() {
		a.handle(now, in)
		if !a.alive {
			a.publishStatus(now)
			return
		}
	}

	switch a.phase {
	case PhaseElecting:
		if now-a.phaseStarted >= a.cfg.ElectionWindow {
			a.concludeElection(now)
		}
	case PhaseCollecting:
		a.collect(now)
	case PhaseReporting, PhaseAwaiting:
		a.report(now)
	case PhaseSteady:
		a.steady(now)
	}

	if a.phase != PhaseElecting {
		a.beacon(now)
	}
	a.publishStatus(now)
}

func (a *Agent) handle(now int64, in input) {
	switch in.kind {
	case inputDelivery:
		a.dispatch(now, in.delivery)
	case inputDeath:
		a.peerDied(now, in.subject)
	case inputSighting:
		a.sighted(now, in.sighting)
	case inputReconfigure:
		p := in.protocol
		p.TieBreakRange = a.cfg.TieBreakRange
		p.MailboxSize = a.cfg.MailboxSize
		a.cfg = p
		slog.Info("protocol reconfigured", "agent", a.id)
	}
}

func (a *Agent) steady(now int64) {
	if now-a.lastRotation >= a.cfg.RotationInterval {
		a.rotate(now)
	}

	switch a.role {
	case RoleCommander:
		a.patrol()
		a.coordinateTarget(now)
	case RoleFollower:
		a.follow()
	}

	a.engage(now)
}

func (a *Agent) isAlive(id string) bool {
	return a.members.IsAlive(id)
}

// setCommander installs commander and derives this agent's role.
func (a *Agent) setCommander(now int64, commander string) {
	prev := a.commander
	a.commander = commander
	a.chain.Remove(commander)
	if commander == a.id {
		if a.role != RoleCommander {
			a.corner = -1
		}
		a.role = RoleCommander
	} else {
		if a.role == RoleCommander {
			slog.Info("stepping down", "agent", a.id, "commander", commander)
		}
		a.role = RoleFollower
	}
	if prev != commander {
		slog.Info("commander changed", "agent", a.id, "commander", commander, "previous", prev, "epoch", a.epoch)
		a.emit(now, EventCommanderChanged, map[string]any{
			"commander": commander,
			"previous":  prev,
			"epoch":     a.epoch,
		})
	}
}

func (a *Agent) broadcast(now int64, msg protocol.Message) {
	if err := a.net.Broadcast(now, msg); err != nil {
		slog.Warn("broadcast failed", "agent", a.id, "kind", msg.Kind(), "error", err)
	}
}

func (a *Agent) send(now int64, to string, msg protocol.Message) {
	if err := a.net.Send(to, now, msg); err != nil {
		slog.Warn("send failed", "agent", a.id, "to", to, "kind", msg.Kind(), "error", err)
	}
}

// announce broadcasts the current commander claim and follow chain.
func (a *Agent) announce(now int64) {
	a.announceCommander(now)
	a.announceHierarchy(now)
}

func (a *Agent) announceCommander(now int64) {
	a.broadcast(now, protocol.CommanderAnnouncement{
		Agent:     a.id,
		Position:  a.body.Position(),
		Epoch:     a.epoch,
		TieBreak:  a.tieBreak,
		RotatedAt: a.lastRotation,
	})
}

func (a *Agent) announceHierarchy(now int64) {
	a.broadcast(now, protocol.HierarchyUpdate{
		Commander: a.id,
		Epoch:     a.epoch,
		Version:   a.chainVersion,
		RotatedAt: a.lastRotation,
		Links:     a.chain.Links(),
	})
}

// stampChain marks the current chain as authored or applied at version.
func (a *Agent) stampChain(version int64) {
	a.chainEpoch = a.epoch
	a.chainVersion = version
}

func (a *Agent) beacon(now int64) {
	if now-a.lastBeacon < a.cfg.PositionInterval {
		return
	}
	a.lastBeacon = now
	a.broadcast(now, protocol.PositionUpdate{PositionSnapshot: protocol.PositionSnapshot{
		Agent:    a.id,
		Position: a.body.Position(),
		Tick:     now,
	}})
}
