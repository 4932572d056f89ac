/*
grid.go Tile occupancy for placed power nodes. Nodes on orthogonally
neighbouring tiles are directly connected.
*/

package layout

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/ohowland/powernet/internal/pkg/power"
)

// ErrOccupied is returned when a tile already holds a node.
var ErrOccupied = errors.New("tile occupied")

// Cell is an integer tile coordinate.
type Cell struct {
	X int
	Y int
}

// CellOf returns the tile containing pos.
func CellOf(pos power.Vec2) Cell {
	return Cell{int(math.Floor(pos.X)), int(math.Floor(pos.Y))}
}

// Grid maps tiles to the node occupying them.
type Grid struct {
	tiles map[Cell]power.Node
	cells map[uuid.UUID]Cell
}

// NewGrid returns an empty Grid.
func NewGrid() *Grid {
	return &Grid{
		tiles: make(map[Cell]power.Node),
		cells: make(map[uuid.UUID]Cell),
	}
}

// Put occupies the tile under n.
func (g *Grid) Put(n power.Node) error {
	cell := CellOf(n.Position())
	if occupant, ok := g.tiles[cell]; ok {
		return fmt.Errorf("%v at %v by %v: %w", n.Name(), cell, occupant.Name(), ErrOccupied)
	}
	g.tiles[cell] = n
	g.cells[n.PID()] = cell
	return nil
}

// Delete frees the tile held by n.
func (g *Grid) Delete(n power.Node) {
	cell, ok := g.cells[n.PID()]
	if !ok {
		return
	}
	delete(g.tiles, cell)
	delete(g.cells, n.PID())
}

// At returns the node on cell, if any.
func (g *Grid) At(cell Cell) (power.Node, bool) {
	n, ok := g.tiles[cell]
	return n, ok
}

// Len is the number of occupied tiles.
func (g *Grid) Len() int {
	return len(g.tiles)
}

var neighbours = [4]Cell{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}

// Adjacent returns the occupants of the four tiles around n in N, E, S, W
// order. n does not have to be placed on the grid.
func (g *Grid) Adjacent(n power.Node) []power.Node {
	cell := CellOf(n.Position())
	adjacent := make([]power.Node, 0, len(neighbours))
	for _, d := range neighbours {
		occupant, ok := g.tiles[Cell{cell.X + d.X, cell.Y + d.Y}]
		if !ok || occupant.PID() == n.PID() {
			continue
		}
		adjacent = append(adjacent, occupant)
	}
	return adjacent
}
