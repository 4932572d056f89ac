package power

import (
	"github.com/google/uuid"
)

// Base implements the identity, placement and link bookkeeping parts of Node.
// Concrete node kinds embed it and add capabilities.
type Base struct {
	pid     uuid.UUID
	name    string
	pos     Vec2
	graph   ID
	maxConn int
	rng     float64
	links   []link
}

type link struct {
	node   Node
	ranged bool
}

// NewBase returns a Base with a fresh PID.
func NewBase(name string, pos Vec2, maxConnections int, connectionRange float64) (Base, error) {
	pid, err := uuid.NewUUID()
	if err != nil {
		return Base{}, err
	}
	if maxConnections < 0 {
		maxConnections = 0
	}
	if connectionRange < 0 {
		connectionRange = 0
	}
	return Base{
		pid:     pid,
		name:    name,
		pos:     pos,
		maxConn: maxConnections,
		rng:     connectionRange,
	}, nil
}

// PID is an accessor for the node's process id.
func (b *Base) PID() uuid.UUID {
	return b.pid
}

// Name is an accessor for the configured name.
func (b *Base) Name() string {
	return b.name
}

// Position returns the node's map position.
func (b *Base) Position() Vec2 {
	return b.pos
}

// GraphID returns the handle of the owning graph, NoGraph if unassigned.
func (b *Base) GraphID() ID {
	return b.graph
}

// SetGraphID updates the back-reference. Only graphs and the registry call it.
func (b *Base) SetGraphID(id ID) {
	b.graph = id
}

// Connections returns the linked nodes in the order they were attached.
func (b *Base) Connections() []Node {
	nodes := make([]Node, 0, len(b.links))
	for _, l := range b.links {
		nodes = append(nodes, l.node)
	}
	return nodes
}

// Ranged reports whether n is linked through a ranged connection.
func (b *Base) Ranged(n Node) bool {
	for _, l := range b.links {
		if l.node.PID() == n.PID() {
			return l.ranged
		}
	}
	return false
}

// FreeSlots is the number of ranged connections still available.
func (b *Base) FreeSlots() int {
	used := 0
	for _, l := range b.links {
		if l.ranged {
			used++
		}
	}
	return b.maxConn - used
}

// MaxConnections is the ranged connection budget.
func (b *Base) MaxConnections() int {
	return b.maxConn
}

// ConnectionRange is the ranged connection reach. Zero means adjacency only.
func (b *Base) ConnectionRange() float64 {
	return b.rng
}

// Attach records a link to n. Linking an already linked node is ignored.
func (b *Base) Attach(n Node, ranged bool) {
	for _, l := range b.links {
		if l.node.PID() == n.PID() {
			return
		}
	}
	b.links = append(b.links, link{n, ranged})
}

// Detach removes the link to n, if any.
func (b *Base) Detach(n Node) {
	for i, l := range b.links {
		if l.node.PID() == n.PID() {
			b.links = append(b.links[:i], b.links[i+1:]...)
			return
		}
	}
}
