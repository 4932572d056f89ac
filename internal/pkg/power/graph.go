/*
graph.go A connected set of power nodes. The graph balances generation, demand
and storage once per simulation tick.
*/

package power

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
)

// ID identifies a graph for the lifetime of the process. IDs are never reused.
type ID uint64

// NoGraph is the handle held by nodes that belong to no graph.
const NoGraph ID = 0

var lastID uint64

func nextID() ID {
	return ID(atomic.AddUint64(&lastID, 1))
}

// Graph is a connected component of power nodes. The members map is the
// source of truth; producers, consumers and storages are derived from it
// when a node is added.
type Graph struct {
	id        ID
	members   map[uuid.UUID]Node
	producers map[uuid.UUID]Producer
	consumers map[uuid.UUID]Consumer
	storages  map[uuid.UUID]Storage
	coverage  float64
	retired   bool
}

// NewGraph returns an empty graph with a fresh ID.
func NewGraph() *Graph {
	return &Graph{
		id:        nextID(),
		members:   make(map[uuid.UUID]Node),
		producers: make(map[uuid.UUID]Producer),
		consumers: make(map[uuid.UUID]Consumer),
		storages:  make(map[uuid.UUID]Storage),
	}
}

// ID is an accessor for the graph id.
func (g *Graph) ID() ID {
	return g.id
}

// Len is the number of member nodes.
func (g *Graph) Len() int {
	return len(g.members)
}

// Has reports membership of n.
func (g *Graph) Has(n Node) bool {
	_, ok := g.members[n.PID()]
	return ok
}

// Retired reports whether the graph was absorbed by a merge.
func (g *Graph) Retired() bool {
	return g.retired
}

// Members returns the member nodes in no particular order.
func (g *Graph) Members() []Node {
	nodes := make([]Node, 0, len(g.members))
	for _, n := range g.members {
		nodes = append(nodes, n)
	}
	return nodes
}

// Add inserts n and classifies it by capability. n must not already be a
// member.
func (g *Graph) Add(n Node) {
	pid := n.PID()
	g.members[pid] = n
	if p, ok := n.(Producer); ok {
		g.producers[pid] = p
	}
	if c, ok := n.(Consumer); ok {
		g.consumers[pid] = c
	}
	if s, ok := n.(Storage); ok {
		g.storages[pid] = s
	}
	n.SetGraphID(g.id)
}

// Remove drops n from the graph. The node's back-reference is left for the
// caller to update.
func (g *Graph) Remove(n Node) {
	pid := n.PID()
	_, member := g.members[pid]
	_, producer := g.producers[pid]
	_, consumer := g.consumers[pid]
	_, storage := g.storages[pid]
	if !member && (producer || consumer || storage) {
		panic(fmt.Sprintf("graph %d: node %v classified but not a member", g.id, pid))
	}
	delete(g.members, pid)
	delete(g.producers, pid)
	delete(g.consumers, pid)
	delete(g.storages, pid)
}

// Merge joins two graphs. The graph with fewer members is absorbed into the
// other; on a tie the receiver survives. The absorbed graph is emptied and
// retired. Merge returns the survivor.
func (g *Graph) Merge(other *Graph) *Graph {
	into, from := g, other
	if other.Len() > g.Len() {
		into, from = other, g
	}
	for pid, n := range from.members {
		into.members[pid] = n
		n.SetGraphID(into.id)
	}
	for pid, p := range from.producers {
		into.producers[pid] = p
	}
	for pid, c := range from.consumers {
		into.consumers[pid] = c
	}
	for pid, s := range from.storages {
		into.storages[pid] = s
	}
	from.members = make(map[uuid.UUID]Node)
	from.producers = make(map[uuid.UUID]Producer)
	from.consumers = make(map[uuid.UUID]Consumer)
	from.storages = make(map[uuid.UUID]Storage)
	from.retired = true
	return into
}

// Tick runs one balancing pass and broadcasts the resulting coverage to
// every consumer. Surplus generation charges storages; with no generation at
// all, storages are discharged to cover demand.
func (g *Graph) Tick() float64 {
	generated := g.Generation()
	needed := g.Demand()

	if generated > 0 {
		generated -= g.ChargeStorages(generated - needed)
	} else {
		generated += g.DischargeStorages(needed - generated)
	}

	g.coverage = coverage(generated, needed)
	for _, c := range g.consumers {
		c.SetPowerPercent(g.coverage)
	}
	return g.coverage
}

func coverage(generated, needed float64) float64 {
	switch {
	case generated == 0 && needed == 0:
		return 0
	case needed == 0:
		return 1
	}
	return math.Min(1, generated/needed)
}

// Coverage is the fraction of demand satisfied on the last tick.
func (g *Graph) Coverage() float64 {
	return g.coverage
}

// ChargeStorages moves up to amount into the storages. Every storage is
// filled by the same fraction of its headroom. Returns the energy absorbed.
func (g *Graph) ChargeStorages(amount float64) float64 {
	if amount <= 0 || len(g.storages) == 0 {
		return 0
	}
	headroom := g.Capacity() - g.Stored()
	if headroom <= 0 {
		return 0
	}
	moved := math.Min(amount, headroom)
	p := moved / headroom
	for _, s := range g.storages {
		s.ChargeByPercentage(p)
	}
	return moved
}

// DischargeStorages draws up to amount from the storages. Every storage gives
// up the same fraction of its stored energy. Returns the energy delivered.
func (g *Graph) DischargeStorages(amount float64) float64 {
	if amount <= 0 || len(g.storages) == 0 {
		return 0
	}
	stored := g.Stored()
	if stored <= 0 {
		return 0
	}
	moved := math.Min(amount, stored)
	p := moved / stored
	for _, s := range g.storages {
		s.DischargeByPercentage(p)
	}
	return moved
}

// Generation is the summed generation rate of all producers.
func (g *Graph) Generation() float64 {
	var sum float64
	for _, p := range g.producers {
		sum += p.GenerationRate()
	}
	return sum
}

// Demand is the summed consumption rate of all consumers.
func (g *Graph) Demand() float64 {
	var sum float64
	for _, c := range g.consumers {
		sum += c.ConsumptionRate()
	}
	return sum
}

// Stored is the energy currently held by all storages.
func (g *Graph) Stored() float64 {
	var sum float64
	for _, s := range g.storages {
		sum += s.Stored()
	}
	return sum
}

// Capacity is the summed capacity of all storages.
func (g *Graph) Capacity() float64 {
	var sum float64
	for _, s := range g.storages {
		sum += s.Capacity()
	}
	return sum
}

// ClosestWithFreeSlot returns the nearest member with a free ranged slot that
// can reach pos. A member reaches pos when the distance is within the larger
// of its own connection range and r. Returns nil when nothing qualifies.
func (g *Graph) ClosestWithFreeSlot(pos Vec2, r float64) Node {
	var closest Node
	best := math.Inf(1)
	for _, n := range g.members {
		if n.FreeSlots() < 1 {
			continue
		}
		reach := math.Max(n.ConnectionRange(), r)
		p := n.Position()
		if math.Abs(p.X-pos.X) > reach || math.Abs(p.Y-pos.Y) > reach {
			continue
		}
		d := p.Dist(pos)
		if d > reach || d >= best {
			continue
		}
		closest, best = n, d
	}
	return closest
}
