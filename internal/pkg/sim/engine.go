/*
engine.go Runs the power registry on a single simulation goroutine. Other
goroutines submit placement and wiring requests, which are applied at the
next tick boundary.
*/

package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/powernet/internal/pkg/layout"
	"github.com/ohowland/powernet/internal/pkg/msg"
	"github.com/ohowland/powernet/internal/pkg/power"
	"github.com/ohowland/powernet/internal/pkg/registry"
)

// ErrUnknownNode is returned for requests naming a node that is not placed.
var ErrUnknownNode = errors.New("unknown node")

// Config is the static configuration of the engine.
type Config struct {
	Name       string        `json:"Name"`
	TickRate   time.Duration `json:"TickRate"`
	QueueDepth int           `json:"QueueDepth"`
}

// TopologyEvent is published on msg.Topology when a graph appears or retires.
type TopologyEvent struct {
	Event string   `json:"Event"`
	Graph power.ID `json:"Graph"`
	Into  power.ID `json:"Into"`
	Tick  uint64   `json:"Tick"`
}

// Topology event names
const (
	GraphCreated = "created"
	GraphRetired = "retired"
)

type request struct {
	name   string
	run    func() error
	result chan error
}

// Engine owns the registry and the tile layout.
type Engine struct {
	mux       *sync.Mutex
	pid       uuid.UUID
	config    Config
	grid      *layout.Grid
	registry  *registry.Registry
	publisher *msg.PubSub
	requests  chan request
	stop      chan bool
	nodes     map[uuid.UUID]power.Node
	snapshot  []power.Status
	tick      uint64
}

// New configures and returns an Engine.
func New(jsonConfig []byte, grid *layout.Grid) (*Engine, error) {
	config := Config{}
	if err := json.Unmarshal(jsonConfig, &config); err != nil {
		return nil, err
	}
	if config.TickRate <= 0 {
		config.TickRate = 100
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = 64
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	if grid == nil {
		grid = layout.NewGrid()
	}

	e := &Engine{
		mux:       &sync.Mutex{},
		pid:       pid,
		config:    config,
		grid:      grid,
		publisher: msg.NewPublisher(pid, config.QueueDepth),
		requests:  make(chan request, config.QueueDepth),
		stop:      make(chan bool, 1),
		nodes:     make(map[uuid.UUID]power.Node),
	}
	e.registry = registry.New(grid, e)
	return e, nil
}

// PID is an accessor for the engine's process id.
func (e *Engine) PID() uuid.UUID {
	return e.pid
}

// Name is an accessor for the configured name.
func (e *Engine) Name() string {
	return e.config.Name
}

// Process steps the simulation at the configured tick rate until Stop.
func (e *Engine) Process() {
	log.Printf("[Engine] %v: Process Started", e.config.Name)
	ticker := time.NewTicker(e.config.TickRate * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			e.Step()
		case <-e.stop:
			break loop
		}
	}
	log.Printf("[Engine] %v: Process Stopped", e.config.Name)
}

// Stop terminates Process.
func (e *Engine) Stop() {
	select {
	case e.stop <- true:
	default:
	}
}

// Step applies the queued requests, balances every graph and publishes the
// resulting status.
func (e *Engine) Step() []power.Status {
	for i, n := 0, len(e.requests); i < n; i++ {
		r := <-e.requests
		err := r.run()
		if err != nil {
			log.Printf("[Engine] %v: %v", r.name, err)
		}
		r.result <- err
	}

	e.registry.Tick()

	graphs := e.registry.Graphs()
	statuses := make([]power.Status, 0, len(graphs))
	for _, g := range graphs {
		statuses = append(statuses, g.Status())
	}

	e.mux.Lock()
	e.snapshot = statuses
	e.tick++
	e.mux.Unlock()

	for _, s := range statuses {
		e.publisher.Publish(msg.Status, s)
	}
	return statuses
}

// Place queues n for placement. Placement fails when n's tile is occupied.
func (e *Engine) Place(n power.Node) <-chan error {
	return e.submit(fmt.Sprintf("place %v", n.Name()), func() error {
		if err := e.grid.Put(n); err != nil {
			return err
		}
		conns := e.registry.Place(n)
		e.mux.Lock()
		e.nodes[n.PID()] = n
		e.mux.Unlock()
		log.Printf("[Engine] placed %v with %d connection(s) in graph %d", n.Name(), len(conns), n.GraphID())
		return nil
	})
}

// Remove queues the removal of the node identified by pid.
func (e *Engine) Remove(pid uuid.UUID) <-chan error {
	return e.submit(fmt.Sprintf("remove %v", pid), func() error {
		n, ok := e.Node(pid)
		if !ok {
			return ErrUnknownNode
		}
		e.registry.Remove(n)
		e.grid.Delete(n)
		e.mux.Lock()
		delete(e.nodes, pid)
		e.mux.Unlock()
		return nil
	})
}

// Link queues a manual link between two placed nodes.
func (e *Engine) Link(a, b uuid.UUID, ranged bool) <-chan error {
	return e.submit(fmt.Sprintf("link %v-%v", a, b), func() error {
		na, nb, err := e.pair(a, b)
		if err != nil {
			return err
		}
		e.registry.Link(na, nb, ranged)
		return nil
	})
}

// Unlink queues the removal of a link between two placed nodes.
func (e *Engine) Unlink(a, b uuid.UUID) <-chan error {
	return e.submit(fmt.Sprintf("unlink %v-%v", a, b), func() error {
		na, nb, err := e.pair(a, b)
		if err != nil {
			return err
		}
		e.registry.Unlink(na, nb)
		return nil
	})
}

// Reset queues a teardown of every graph and placed node.
func (e *Engine) Reset() <-chan error {
	return e.submit("reset", func() error {
		e.registry.Reset()
		e.mux.Lock()
		defer e.mux.Unlock()
		for pid, n := range e.nodes {
			for _, c := range n.Connections() {
				power.Disconnect(n, c)
			}
			e.grid.Delete(n)
			delete(e.nodes, pid)
		}
		return nil
	})
}

func (e *Engine) submit(name string, run func() error) <-chan error {
	result := make(chan error, 1)
	e.requests <- request{name, run, result}
	return result
}

func (e *Engine) pair(a, b uuid.UUID) (power.Node, power.Node, error) {
	na, ok := e.Node(a)
	if !ok {
		return nil, nil, fmt.Errorf("%v: %w", a, ErrUnknownNode)
	}
	nb, ok := e.Node(b)
	if !ok {
		return nil, nil, fmt.Errorf("%v: %w", b, ErrUnknownNode)
	}
	return na, nb, nil
}

// Node returns the placed node with pid.
func (e *Engine) Node(pid uuid.UUID) (power.Node, bool) {
	e.mux.Lock()
	defer e.mux.Unlock()
	n, ok := e.nodes[pid]
	return n, ok
}

// Snapshot returns the graph status published on the last tick.
func (e *Engine) Snapshot() []power.Status {
	e.mux.Lock()
	defer e.mux.Unlock()
	snapshot := make([]power.Status, len(e.snapshot))
	copy(snapshot, e.snapshot)
	return snapshot
}

// Ticks is the number of completed steps.
func (e *Engine) Ticks() uint64 {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.tick
}

// Subscribe returns a channel on which the specified topic is broadcast
func (e *Engine) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return e.publisher.Subscribe(pid, topic)
}

// Unsubscribe pid from all topic broadcasts
func (e *Engine) Unsubscribe(pid uuid.UUID) {
	e.publisher.Unsubscribe(pid)
}

// GraphCreated is part of registry.Observer.
func (e *Engine) GraphCreated(id power.ID) {
	e.publisher.Publish(msg.Topology, TopologyEvent{GraphCreated, id, power.NoGraph, e.Ticks()})
}

// GraphRetired is part of registry.Observer.
func (e *Engine) GraphRetired(id power.ID, into power.ID) {
	e.publisher.Publish(msg.Topology, TopologyEvent{GraphRetired, id, into, e.Ticks()})
}
