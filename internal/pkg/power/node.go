package power

import (
	"math"

	"github.com/google/uuid"
)

// Node is a participant of a power network. Producing, consuming and storing
// are optional capabilities expressed by the Producer, Consumer and Storage
// interfaces.
type Node interface {
	PID() uuid.UUID
	Name() string
	Position() Vec2

	// GraphID is a non-owning handle to the graph the node belongs to.
	GraphID() ID
	SetGraphID(ID)

	Connections() []Node
	FreeSlots() int
	MaxConnections() int
	ConnectionRange() float64
	Attach(n Node, ranged bool)
	Detach(n Node)
}

// Producer is a node that generates power every tick.
type Producer interface {
	Node
	GenerationRate() float64
}

// Consumer is a node that draws power every tick. SetPowerPercent reports the
// fraction of its demand the graph could satisfy.
type Consumer interface {
	Node
	ConsumptionRate() float64
	SetPowerPercent(float64)
}

// Storage is a node that buffers energy.
// ChargeByPercentage fills p of the remaining headroom (Capacity - Stored).
// DischargeByPercentage drains p of the currently stored energy.
type Storage interface {
	Node
	Capacity() float64
	Stored() float64
	ChargeByPercentage(p float64)
	DischargeByPercentage(p float64)
}

// Vec2 is a position on the map.
type Vec2 struct {
	X float64 `json:"X" yaml:"x"`
	Y float64 `json:"Y" yaml:"y"`
}

// Dist returns the euclidean distance between v and w.
func (v Vec2) Dist(w Vec2) float64 {
	return math.Hypot(v.X-w.X, v.Y-w.Y)
}

// Connect links a and b symmetrically.
func Connect(a, b Node, ranged bool) {
	a.Attach(b, ranged)
	b.Attach(a, ranged)
}

// Disconnect removes the link between a and b on both sides.
func Disconnect(a, b Node) {
	a.Detach(b)
	b.Detach(a)
}
