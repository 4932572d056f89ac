/*
registry.go The set of live power graphs. The registry keeps the node
partition consistent as nodes connect and disconnect: connecting merges graphs,
disconnecting splits them.
*/

package registry

import (
	"sort"

	"github.com/google/uuid"
	"github.com/ohowland/powernet/internal/pkg/power"
)

// Adjacency reports the nodes directly touching n, e.g. grid neighbours.
type Adjacency interface {
	Adjacent(n power.Node) []power.Node
}

// Observer is notified of graph lifecycle changes. into is power.NoGraph when
// a graph was dropped because it emptied.
type Observer interface {
	GraphCreated(id power.ID)
	GraphRetired(id power.ID, into power.ID)
}

// Connection is a link a placed node should form.
type Connection struct {
	Node   power.Node
	Ranged bool
}

// Registry owns every live graph. It is not safe for concurrent use.
type Registry struct {
	graphs    map[power.ID]*power.Graph
	adjacency Adjacency
	observer  Observer
}

// New returns an empty registry. adjacency and observer may be nil.
func New(adjacency Adjacency, observer Observer) *Registry {
	return &Registry{
		graphs:    make(map[power.ID]*power.Graph),
		adjacency: adjacency,
		observer:  observer,
	}
}

// Len is the number of live graphs.
func (r *Registry) Len() int {
	return len(r.graphs)
}

// NodeCount is the number of nodes over all graphs.
func (r *Registry) NodeCount() int {
	n := 0
	for _, g := range r.graphs {
		n += g.Len()
	}
	return n
}

// Graphs returns the live graphs in ascending id order.
func (r *Registry) Graphs() []*power.Graph {
	graphs := make([]*power.Graph, 0, len(r.graphs))
	for _, g := range r.graphs {
		graphs = append(graphs, g)
	}
	sort.Slice(graphs, func(i, j int) bool { return graphs[i].ID() < graphs[j].ID() })
	return graphs
}

// Graph looks up a live graph by id.
func (r *Registry) Graph(id power.ID) (*power.Graph, bool) {
	g, ok := r.graphs[id]
	return g, ok
}

// GraphOf returns the graph n belongs to, nil if none.
func (r *Registry) GraphOf(n power.Node) *power.Graph {
	return r.graphs[n.GraphID()]
}

// Tick runs one balancing pass on every graph.
func (r *Registry) Tick() {
	for _, g := range r.Graphs() {
		g.Tick()
	}
}

// Reset drops every graph and clears the members' back-references.
func (r *Registry) Reset() {
	for id, g := range r.graphs {
		for _, n := range g.Members() {
			n.SetGraphID(power.NoGraph)
		}
		delete(r.graphs, id)
		r.retired(id, power.NoGraph)
	}
}

// Place links n to the nodes chosen by ResolveConnections and registers it.
func (r *Registry) Place(n power.Node) []Connection {
	conns := r.ResolveConnections(n)
	for _, c := range conns {
		power.Connect(n, c.Node, c.Ranged)
	}
	r.OnNodeConnected(n)
	return conns
}

// Remove unregisters n and severs all its links.
func (r *Registry) Remove(n power.Node) {
	r.OnNodeDisconnected(n)
	for _, c := range n.Connections() {
		power.Disconnect(n, c)
	}
}

// Link connects two placed nodes, merging their graphs.
func (r *Registry) Link(a, b power.Node, ranged bool) {
	power.Connect(a, b, ranged)
	r.OnNodeConnected(a)
	if b.GraphID() == power.NoGraph {
		r.OnNodeConnected(b)
	}
}

// Unlink severs the link between a and b and splits their graph if the link
// was a bridge.
func (r *Registry) Unlink(a, b power.Node) {
	power.Disconnect(a, b)
	if a.GraphID() != b.GraphID() {
		return
	}
	if g := r.GraphOf(a); g != nil {
		r.split(g, []power.Node{a, b}, nil)
	}
}

// OnNodeConnected assigns n to a graph after its connections are known. The
// graphs of n and of its neighbours are merged into one.
func (r *Registry) OnNodeConnected(n power.Node) {
	var found []*power.Graph
	seen := make(map[power.ID]bool)
	collect := func(id power.ID) {
		if g, ok := r.graphs[id]; ok && !seen[id] {
			seen[id] = true
			found = append(found, g)
		}
	}

	collect(n.GraphID())
	owned := len(found) == 1
	for _, c := range n.Connections() {
		collect(c.GraphID())
	}

	if len(found) == 0 {
		g := power.NewGraph()
		g.Add(n)
		r.register(g)
		return
	}

	if !owned {
		found[0].Add(n)
	}
	survivor := found[0]
	for _, other := range found[1:] {
		survivor = r.merge(survivor, other)
	}
}

// OnNodeDisconnected removes n from its graph. It must be called while n
// still lists its connections. Each remaining connected fragment ends up in
// exactly one graph.
func (r *Registry) OnNodeDisconnected(n power.Node) {
	old, ok := r.graphs[n.GraphID()]
	if !ok {
		return
	}
	old.Remove(n)
	n.SetGraphID(power.NoGraph)
	r.split(old, n.Connections(), n)
}

// ResolveConnections chooses the links for a node about to be placed: the
// closest reachable node with a free slot from each graph, plus every
// adjacent node. Adjacent nodes are never ranged and never count against the
// ranged budget.
func (r *Registry) ResolveConnections(n power.Node) []Connection {
	var adjacent []power.Node
	if r.adjacency != nil {
		adjacent = r.adjacency.Adjacent(n)
	}
	direct := make(map[uuid.UUID]bool, len(adjacent))
	for _, a := range adjacent {
		direct[a.PID()] = true
	}

	var conns []Connection
	for _, g := range r.Graphs() {
		c := g.ClosestWithFreeSlot(n.Position(), n.ConnectionRange())
		if c == nil || c.PID() == n.PID() || direct[c.PID()] {
			continue
		}
		conns = append(conns, Connection{c, true})
	}

	budget := n.MaxConnections()
	if budget < 0 {
		budget = 0
	}
	if len(conns) > budget {
		conns = conns[:budget]
	}

	for _, a := range adjacent {
		if a.PID() == n.PID() {
			continue
		}
		conns = append(conns, Connection{a, false})
	}
	return conns
}

// merge joins a and b, retiring whichever was absorbed.
func (r *Registry) merge(a, b *power.Graph) *power.Graph {
	survivor := a.Merge(b)
	absorbed := a
	if survivor == a {
		absorbed = b
	}
	delete(r.graphs, absorbed.ID())
	r.retired(absorbed.ID(), survivor.ID())
	return survivor
}

// split re-partitions old after a link or node was removed. Every seed still
// in old starts a walk; the largest fragment keeps old, the others move to
// fresh graphs. exclude is skipped by the walk.
func (r *Registry) split(old *power.Graph, seeds []power.Node, exclude power.Node) {
	claimed := make(map[uuid.UUID]bool)
	var fragments [][]power.Node
	for _, s := range seeds {
		if s.GraphID() != old.ID() || claimed[s.PID()] {
			continue
		}
		if exclude != nil && s.PID() == exclude.PID() {
			continue
		}
		fragments = append(fragments, walk(s, old.ID(), exclude, claimed))
	}

	if len(fragments) > 1 {
		largest := 0
		for i, f := range fragments {
			if len(f) > len(fragments[largest]) {
				largest = i
			}
		}
		for i, f := range fragments {
			if i == largest {
				continue
			}
			g := power.NewGraph()
			for _, n := range f {
				old.Remove(n)
				g.Add(n)
			}
			r.register(g)
		}
	}

	if old.Len() == 0 {
		delete(r.graphs, old.ID())
		r.retired(old.ID(), power.NoGraph)
	}
}

// walk collects every node of graph id reachable from seed without passing
// through exclude. Each node is claimed once.
func walk(seed power.Node, id power.ID, exclude power.Node, claimed map[uuid.UUID]bool) []power.Node {
	claimed[seed.PID()] = true
	fragment := []power.Node{seed}
	for i := 0; i < len(fragment); i++ {
		for _, c := range fragment[i].Connections() {
			if claimed[c.PID()] || c.GraphID() != id {
				continue
			}
			if exclude != nil && c.PID() == exclude.PID() {
				continue
			}
			claimed[c.PID()] = true
			fragment = append(fragment, c)
		}
	}
	return fragment
}

func (r *Registry) register(g *power.Graph) {
	r.graphs[g.ID()] = g
	if r.observer != nil {
		r.observer.GraphCreated(g.ID())
	}
}

func (r *Registry) retired(id, into power.ID) {
	if r.observer != nil {
		r.observer.GraphRetired(id, into)
	}
}
