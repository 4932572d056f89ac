package layout

import (
	"errors"
	"testing"

	"github.com/ohowland/powernet/internal/pkg/power"
	"gotest.tools/v3/assert"
)

func newNode(t *testing.T, name string, x, y float64) power.Node {
	b, err := power.NewBase(name, power.Vec2{X: x, Y: y}, 0, 0)
	assert.NilError(t, err)
	return &b
}

func TestCellOf(t *testing.T) {
	assert.Equal(t, CellOf(power.Vec2{X: 1.9, Y: 0.1}), Cell{1, 0})
	assert.Equal(t, CellOf(power.Vec2{X: -0.5, Y: -1}), Cell{-1, -1})
}

func TestPutOccupied(t *testing.T) {
	g := NewGrid()
	assert.NilError(t, g.Put(newNode(t, "a", 2, 2)))

	err := g.Put(newNode(t, "b", 2.5, 2.5))
	assert.Assert(t, errors.Is(err, ErrOccupied))
	assert.Equal(t, g.Len(), 1)
}

func TestDelete(t *testing.T) {
	g := NewGrid()
	a := newNode(t, "a", 0, 0)
	assert.NilError(t, g.Put(a))

	g.Delete(a)
	_, ok := g.At(Cell{0, 0})
	assert.Assert(t, !ok)
	assert.NilError(t, g.Put(newNode(t, "b", 0, 0)))
}

func TestAdjacentOrder(t *testing.T) {
	g := NewGrid()
	center := newNode(t, "center", 5, 5)
	for _, n := range []power.Node{
		center,
		newNode(t, "west", 4, 5),
		newNode(t, "south", 5, 4),
		newNode(t, "east", 6, 5),
		newNode(t, "north", 5, 6),
		newNode(t, "diagonal", 6, 6),
	} {
		assert.NilError(t, g.Put(n))
	}

	var names []string
	for _, n := range g.Adjacent(center) {
		names = append(names, n.Name())
	}
	assert.DeepEqual(t, names, []string{"north", "east", "south", "west"})
}

func TestAdjacentUnplaced(t *testing.T) {
	g := NewGrid()
	assert.NilError(t, g.Put(newNode(t, "east", 1, 0)))

	probe := newNode(t, "probe", 0, 0)
	assert.Equal(t, len(g.Adjacent(probe)), 1)
}
