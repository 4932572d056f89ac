package hmi

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ohowland/powernet/internal/pkg/msg"
	"github.com/ohowland/powernet/internal/pkg/power"
	"github.com/ohowland/powernet/internal/pkg/sim"
)

const maxEvents = 50

// Columns of the graph table.
var Columns = []string{"Graph", "Nodes", "Generation", "Demand", "Stored", "Capacity", "Coverage"}

type frame struct {
	Topic   string          `json:"Topic"`
	Payload json.RawMessage `json:"Payload"`
}

// Board is the operator's view of the engine, built from stream frames.
type Board struct {
	mux      *sync.Mutex
	statuses map[power.ID]power.Status
	events   []string
}

// NewBoard returns an empty Board.
func NewBoard() *Board {
	return &Board{
		mux:      &sync.Mutex{},
		statuses: make(map[power.ID]power.Status),
	}
}

// Apply folds one stream frame into the board.
func (b *Board) Apply(data []byte) error {
	f := frame{}
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	b.mux.Lock()
	defer b.mux.Unlock()
	switch f.Topic {
	case msg.Status.String():
		s := power.Status{}
		if err := json.Unmarshal(f.Payload, &s); err != nil {
			return err
		}
		b.statuses[s.ID] = s
	case msg.Topology.String():
		e := sim.TopologyEvent{}
		if err := json.Unmarshal(f.Payload, &e); err != nil {
			return err
		}
		if e.Event == sim.GraphRetired {
			delete(b.statuses, e.Graph)
		}
		b.events = append(b.events, describe(e))
		if len(b.events) > maxEvents {
			b.events = b.events[len(b.events)-maxEvents:]
		}
	default:
		return fmt.Errorf("unknown topic %q", f.Topic)
	}
	return nil
}

func describe(e sim.TopologyEvent) string {
	if e.Event == sim.GraphRetired && e.Into != power.NoGraph {
		return fmt.Sprintf("tick %d: graph %d merged into %d", e.Tick, e.Graph, e.Into)
	}
	return fmt.Sprintf("tick %d: graph %d %v", e.Tick, e.Graph, e.Event)
}

// Rows returns one formatted row per live graph in ascending id order.
func (b *Board) Rows() [][]string {
	b.mux.Lock()
	defer b.mux.Unlock()

	ids := make([]power.ID, 0, len(b.statuses))
	for id := range b.statuses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		s := b.statuses[id]
		rows = append(rows, []string{
			fmt.Sprintf("%d", s.ID),
			fmt.Sprintf("%d", s.Nodes),
			fmt.Sprintf("%.1f", s.Generation),
			fmt.Sprintf("%.1f", s.Demand),
			fmt.Sprintf("%.1f", s.Stored),
			fmt.Sprintf("%.1f", s.Capacity),
			fmt.Sprintf("%.0f%%", s.Coverage*100),
		})
	}
	return rows
}

// Events returns the most recent topology events, oldest first.
func (b *Board) Events() []string {
	b.mux.Lock()
	defer b.mux.Unlock()
	events := make([]string, len(b.events))
	copy(events, b.events)
	return events
}
