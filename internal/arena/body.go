package arena

import (
	"math"
	"sync"

	"github.com/mtzanidakis/convoy/internal/protocol"
)

const (
	bodySpeed    = 8.0
	hostileSpeed = 3.0
	fireDamage   = 1
	waypointHit  = 10.0
)

// Body is a team member's physical presence. Agents steer it through
// MoveToward, TurnToward and Engage; the arena applies the intents when it
// resolves the tick.
type Body struct {
	id string

	mu      sync.Mutex
	pos     protocol.Point
	heading float64
	aim     float64
	dest    *protocol.Point
	engaged string
	alive   bool
}

func newBody(id string, pos protocol.Point) *Body {
	return &Body{id: id, pos: pos, alive: true}
}

func (b *Body) ID() string { return b.id }

func (b *Body) Position() protocol.Point {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}

// MoveToward sets the point the body walks toward this tick.
func (b *Body) MoveToward(p protocol.Point) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	b.dest = &p
}

// TurnToward points the body's weapon at p.
func (b *Body) TurnToward(p protocol.Point) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	b.aim = headingTo(b.pos, p)
}

// Engage fires at the sighted subject this tick.
func (b *Body) Engage(target protocol.Sighting) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	b.engaged = target.Subject
}

func (b *Body) Alive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alive
}

func (b *Body) kill() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return false
	}
	b.alive = false
	b.dest = nil
	b.engaged = ""
	return true
}

// settle applies the movement intent, clamped to the field, and returns the
// subject fired at this tick.
func (b *Body) settle(width, height float64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dest != nil {
		b.pos, b.heading = step(b.pos, *b.dest, bodySpeed, b.heading)
		b.pos = clamp(b.pos, width, height)
		b.dest = nil
	}
	fired := b.engaged
	b.engaged = ""
	return fired
}

func (b *Body) state() BodyState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BodyState{
		ID:       b.id,
		Position: b.pos,
		Heading:  b.heading,
		Aim:      b.aim,
		Alive:    b.alive,
	}
}

// Hostile is a non-team entity wandering the field.
type Hostile struct {
	ID       string
	Pos      protocol.Point
	Heading  float64
	Speed    float64
	HP       int
	Waypoint protocol.Point
}

func (h *Hostile) Alive() bool { return h.HP > 0 }

// step moves from toward to by at most speed and returns the new position
// and heading.
func step(from, to protocol.Point, speed, heading float64) (protocol.Point, float64) {
	dist := from.Dist(to)
	if dist < 1e-6 {
		return from, heading
	}
	heading = headingTo(from, to)
	if dist <= speed {
		return to, heading
	}
	return protocol.Point{
		X: from.X + (to.X-from.X)/dist*speed,
		Y: from.Y + (to.Y-from.Y)/dist*speed,
	}, heading
}

func headingTo(from, to protocol.Point) float64 {
	return math.Atan2(to.Y-from.Y, to.X-from.X)
}

func clamp(p protocol.Point, width, height float64) protocol.Point {
	p.X = math.Max(0, math.Min(width, p.X))
	p.Y = math.Max(0, math.Min(height, p.Y))
	return p
}
