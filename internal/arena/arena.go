// Package arena simulates the environment a team operates in: a rectangular
// field, the members' bodies, hostile entities, sensors and casualties. It
// drives the agents one tick at a time.
package arena

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtzanidakis/convoy/internal/config"
	"github.com/mtzanidakis/convoy/internal/protocol"
)

// Member is the part of an agent the arena drives.
type Member interface {
	ID() string
	Tick()
	OnSighting(s protocol.Sighting)
	OnPeerDeath(id string)
}

// Publisher receives arena events. journal.Recorder satisfies it.
type Publisher interface {
	Publish(tick int64, typ string, data map[string]any) error
}

// Outcome tells why a run ended.
type Outcome string

const (
	OutcomeMaxTicks  Outcome = "max_ticks"
	OutcomeTeamLost  Outcome = "team_lost"
	OutcomeCleared   Outcome = "hostiles_destroyed"
	OutcomeCancelled Outcome = "cancelled"
)

const (
	EventCasualty         = "casualty"
	EventHostileDestroyed = "hostile_destroyed"
)

type BodyState struct {
	ID       string         `json:"id"`
	Position protocol.Point `json:"position"`
	Heading  float64        `json:"heading"`
	Aim      float64        `json:"aim"`
	Alive    bool           `json:"alive"`
}

type HostileState struct {
	ID       string         `json:"id"`
	Position protocol.Point `json:"position"`
	HP       int            `json:"hp"`
}

// Snapshot is the visible state of the field.
type Snapshot struct {
	Tick     int64          `json:"tick"`
	Width    float64        `json:"width"`
	Height   float64        `json:"height"`
	Bodies   []BodyState    `json:"bodies"`
	Hostiles []HostileState `json:"hostiles"`
}

type Arena struct {
	cfg  config.ArenaConfig
	tick atomic.Int64

	mu        sync.Mutex
	rng       *rand.Rand
	bodies    map[string]*Body
	order     []string
	members   []Member
	hostiles  []*Hostile
	pending   []string
	publisher Publisher
}

// New places the team's bodies on the left of the field and the hostiles
// on the right half. Placement is reproducible from cfg.Seed.
func New(cfg config.ArenaConfig, team []string) (*Arena, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("arena size must be positive")
	}
	if len(team) == 0 {
		return nil, fmt.Errorf("arena needs at least one team member")
	}

	seed := uint64(cfg.Seed)
	a := &Arena{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		bodies: make(map[string]*Body, len(team)),
		order:  slices.Clone(team),
	}

	origin := protocol.Point{X: cfg.Width * 0.25, Y: cfg.Height * 0.5}
	for _, id := range team {
		pos := clamp(protocol.Point{
			X: origin.X + a.spread(60),
			Y: origin.Y + a.spread(60),
		}, cfg.Width, cfg.Height)
		a.bodies[id] = newBody(id, pos)
	}

	for i := range cfg.Hostiles {
		pos := a.randomPoint(cfg.Width*0.5, cfg.Width)
		a.hostiles = append(a.hostiles, &Hostile{
			ID:       fmt.Sprintf("hostile-%d", i+1),
			Pos:      pos,
			Speed:    hostileSpeed,
			HP:       max(cfg.HostileHP, 1),
			Waypoint: a.randomPoint(cfg.Width*0.5, cfg.Width),
		})
	}

	return a, nil
}

func (a *Arena) spread(r float64) float64 {
	return (a.rng.Float64()*2 - 1) * r
}

func (a *Arena) randomPoint(minX, maxX float64) protocol.Point {
	return protocol.Point{
		X: minX + a.rng.Float64()*(maxX-minX),
		Y: a.rng.Float64() * a.cfg.Height,
	}
}

// Body returns the body of a team member, or nil for unknown ids.
func (a *Arena) Body(id string) *Body {
	return a.bodies[id]
}

// Seed returns a deterministic seed for the member at index i.
func (a *Arena) Seed(i int) uint64 {
	return uint64(a.cfg.Seed)*1000003 + uint64(i)
}

// Attach registers an agent to be driven by Step.
func (a *Arena) Attach(m Member) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.members = append(a.members, m)
}

// SetPublisher installs the receiver of arena events.
func (a *Arena) SetPublisher(p Publisher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.publisher = p
}

// Now returns the current tick.
func (a *Arena) Now() int64 {
	return a.tick.Load()
}

// Kill schedules the death of a team member at the next tick.
func (a *Arena) Kill(id string) error {
	b := a.bodies[id]
	if b == nil {
		return fmt.Errorf("unknown team member %q", id)
	}
	if !b.Alive() {
		return fmt.Errorf("team member %q is already dead", id)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, id)
	return nil
}

// Step advances the simulation by one tick.
func (a *Arena) Step() {
	now := a.tick.Add(1)

	a.mu.Lock()
	deaths := a.casualties(now)
	a.moveHostiles()
	members := slices.Clone(a.members)
	a.mu.Unlock()

	for _, id := range deaths {
		a.publish(now, EventCasualty, map[string]any{"agent": id})
		for _, m := range members {
			m.OnPeerDeath(id)
		}
	}

	for _, m := range members {
		b := a.bodies[m.ID()]
		if b == nil || !b.Alive() {
			continue
		}
		for _, s := range a.sense(b, now) {
			m.OnSighting(s)
		}
	}

	for _, m := range members {
		m.Tick()
	}

	for _, id := range a.resolve() {
		a.publish(now, EventHostileDestroyed, map[string]any{"hostile": id})
		for _, m := range members {
			m.OnPeerDeath(id)
		}
	}
}

// casualties collects scripted, injected and random deaths for tick now.
func (a *Arena) casualties(now int64) []string {
	var dead []string
	mark := func(id string) {
		if b := a.bodies[id]; b != nil && b.kill() {
			slog.Info("team member lost", "agent", id, "tick", now)
			dead = append(dead, id)
		}
	}

	for _, c := range a.cfg.Casualties {
		if c.Tick == now {
			mark(c.Agent)
		}
	}
	for _, id := range a.pending {
		mark(id)
	}
	a.pending = nil

	if a.cfg.Attrition > 0 {
		for _, id := range a.order {
			if a.bodies[id].Alive() && a.rng.Float64() < a.cfg.Attrition {
				mark(id)
			}
		}
	}
	return dead
}

func (a *Arena) moveHostiles() {
	for _, h := range a.hostiles {
		if !h.Alive() || h.Speed == 0 {
			continue
		}
		if h.Pos.Dist(h.Waypoint) <= waypointHit {
			h.Waypoint = a.randomPoint(0, a.cfg.Width)
		}
		h.Pos, h.Heading = step(h.Pos, h.Waypoint, h.Speed, h.Heading)
	}
}

// sense reports the hostiles within sensor range of b.
func (a *Arena) sense(b *Body, now int64) []protocol.Sighting {
	here := b.Position()

	a.mu.Lock()
	defer a.mu.Unlock()

	var out []protocol.Sighting
	for _, h := range a.hostiles {
		if !h.Alive() {
			continue
		}
		d := here.Dist(h.Pos)
		if d > a.cfg.SensorRange {
			continue
		}
		out = append(out, protocol.Sighting{
			Subject:  h.ID,
			Distance: d,
			Bearing:  headingTo(here, h.Pos),
			Heading:  h.Heading,
			Speed:    h.Speed,
			X:        h.Pos.X,
			Y:        h.Pos.Y,
			Tick:     now,
		})
	}
	return out
}

// resolve applies the bodies' movement and fire, and returns the hostiles
// destroyed this tick.
func (a *Arena) resolve() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	byID := make(map[string]*Hostile, len(a.hostiles))
	for _, h := range a.hostiles {
		byID[h.ID] = h
	}

	var destroyed []string
	for _, id := range a.order {
		b := a.bodies[id]
		if !b.Alive() {
			continue
		}
		fired := b.settle(a.cfg.Width, a.cfg.Height)
		h := byID[fired]
		if h == nil || !h.Alive() {
			continue
		}
		if b.Position().Dist(h.Pos) > a.cfg.EngageRange {
			continue
		}
		h.HP -= fireDamage
		if !h.Alive() {
			slog.Info("hostile destroyed", "hostile", h.ID, "by", id, "tick", a.tick.Load())
			destroyed = append(destroyed, h.ID)
		}
	}
	return destroyed
}

func (a *Arena) publish(tick int64, typ string, data map[string]any) {
	a.mu.Lock()
	p := a.publisher
	a.mu.Unlock()
	if p == nil {
		return
	}
	if err := p.Publish(tick, typ, data); err != nil {
		slog.Warn("publish arena event failed", "type", typ, "error", err)
	}
}

// Done reports whether the run is over and why.
func (a *Arena) Done() (Outcome, bool) {
	if a.cfg.MaxTicks > 0 && a.Now() >= a.cfg.MaxTicks {
		return OutcomeMaxTicks, true
	}

	alive := false
	for _, b := range a.bodies {
		if b.Alive() {
			alive = true
			break
		}
	}
	if !alive {
		return OutcomeTeamLost, true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.hostiles) == 0 {
		return "", false
	}
	for _, h := range a.hostiles {
		if h.Alive() {
			return "", false
		}
	}
	return OutcomeCleared, true
}

// Run steps the arena every tick interval until the run is over or ctx is
// cancelled. A non-positive interval runs as fast as possible.
func (a *Arena) Run(ctx context.Context) Outcome {
	var tick <-chan time.Time
	if a.cfg.TickInterval > 0 {
		ticker := time.NewTicker(a.cfg.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if outcome, done := a.Done(); done {
			slog.Info("arena run finished", "outcome", outcome, "tick", a.Now())
			return outcome
		}
		if tick == nil {
			if ctx.Err() != nil {
				return OutcomeCancelled
			}
			a.Step()
			continue
		}
		select {
		case <-ctx.Done():
			return OutcomeCancelled
		case <-tick:
			a.Step()
		}
	}
}

// Snapshot returns the current state of the field.
func (a *Arena) Snapshot() Snapshot {
	snap := Snapshot{
		Tick:   a.Now(),
		Width:  a.cfg.Width,
		Height: a.cfg.Height,
	}
	for _, id := range a.order {
		snap.Bodies = append(snap.Bodies, a.bodies[id].state())
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, h := range a.hostiles {
		if h.Alive() {
			snap.Hostiles = append(snap.Hostiles, HostileState{ID: h.ID, Position: h.Pos, HP: h.HP})
		}
	}
	return snap
}
