// Package protocol defines the values exchanged by team members and the JSON
// envelope that carries them over the bus.
package protocol

import "math"

// Point is a position in arena coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between two points.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// PositionSnapshot is the last known position of a peer.
type PositionSnapshot struct {
	Agent    string `json:"agent"`
	Position Point  `json:"position"`
	Tick     int64  `json:"tick"`
}

// Sighting describes an externally observed, non-team entity.
type Sighting struct {
	Subject  string  `json:"subject"`
	Distance float64 `json:"distance"`
	Bearing  float64 `json:"bearing"`
	Heading  float64 `json:"heading"`
	Speed    float64 `json:"speed"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Tick     int64   `json:"tick"`
}

// Position returns the sighted entity's arena position.
func (s Sighting) Position() Point {
	return Point{X: s.X, Y: s.Y}
}

// Link is one follow-chain entry: Member follows Predecessor.
type Link struct {
	Member      string `json:"member"`
	Predecessor string `json:"predecessor"`
}
