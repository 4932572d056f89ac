package power

import (
	"math"
	"testing"

	"gotest.tools/v3/assert"
)

type mockProducer struct {
	Base
	rate float64
}

func (m *mockProducer) GenerationRate() float64 { return m.rate }

type mockConsumer struct {
	Base
	rate    float64
	percent float64
}

func (m *mockConsumer) ConsumptionRate() float64  { return m.rate }
func (m *mockConsumer) SetPowerPercent(p float64) { m.percent = p }

type mockStorage struct {
	Base
	capacity float64
	stored   float64
}

func (m *mockStorage) Capacity() float64 { return m.capacity }
func (m *mockStorage) Stored() float64   { return m.stored }
func (m *mockStorage) ChargeByPercentage(p float64) {
	m.stored += p * (m.capacity - m.stored)
}
func (m *mockStorage) DischargeByPercentage(p float64) {
	m.stored -= p * m.stored
}

func newBase(t *testing.T, x, y float64, slots int, rng float64) Base {
	b, err := NewBase("mock", Vec2{x, y}, slots, rng)
	assert.NilError(t, err)
	return b
}

func newProducer(t *testing.T, rate float64) *mockProducer {
	return &mockProducer{newBase(t, 0, 0, 0, 0), rate}
}

func newConsumer(t *testing.T, rate float64) *mockConsumer {
	return &mockConsumer{Base: newBase(t, 0, 0, 0, 0), rate: rate}
}

func newStorage(t *testing.T, capacity, stored float64) *mockStorage {
	return &mockStorage{newBase(t, 0, 0, 0, 0), capacity, stored}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewGraph(t *testing.T) {
	g1 := NewGraph()
	g2 := NewGraph()
	assert.Assert(t, g1.ID() != NoGraph)
	assert.Assert(t, g2.ID() > g1.ID(), "graph ids must increase")
	assert.Equal(t, g1.Len(), 0)
}

func TestAddClassifiesByCapability(t *testing.T) {
	g := NewGraph()
	p := newProducer(t, 5)
	c := newConsumer(t, 3)
	s := newStorage(t, 100, 10)
	pole := &Base{}
	*pole = newBase(t, 1, 1, 2, 5)

	for _, n := range []Node{p, c, s, pole} {
		g.Add(n)
		assert.Equal(t, n.GraphID(), g.ID())
	}

	status := g.Status()
	assert.Equal(t, status.Nodes, 4)
	assert.Equal(t, status.Producers, 1)
	assert.Equal(t, status.Consumers, 1)
	assert.Equal(t, status.Storages, 1)
	assert.Equal(t, g.Generation(), 5.0)
	assert.Equal(t, g.Demand(), 3.0)
	assert.Equal(t, g.Stored(), 10.0)
	assert.Equal(t, g.Capacity(), 100.0)
}

func TestRemove(t *testing.T) {
	g := NewGraph()
	p := newProducer(t, 5)
	g.Add(p)
	g.Remove(p)
	assert.Assert(t, !g.Has(p))
	assert.Equal(t, g.Generation(), 0.0)
}

func TestRemoveBrokenPartitionPanics(t *testing.T) {
	g := NewGraph()
	p := newProducer(t, 5)
	g.Add(p)
	delete(g.members, p.PID())

	defer func() {
		assert.Assert(t, recover() != nil, "expected panic on broken partition")
	}()
	g.Remove(p)
}

func TestEmptyGraphAggregates(t *testing.T) {
	g := NewGraph()
	assert.Equal(t, g.Generation(), 0.0)
	assert.Equal(t, g.Demand(), 0.0)
	assert.Equal(t, g.Stored(), 0.0)
	assert.Equal(t, g.Capacity(), 0.0)
	assert.Equal(t, g.Tick(), 0.0)
	assert.Assert(t, g.ClosestWithFreeSlot(Vec2{}, 100) == nil)
}

func TestMergeTotals(t *testing.T) {
	a := NewGraph()
	a.Add(newProducer(t, 4))
	a.Add(newConsumer(t, 1))

	b := NewGraph()
	b.Add(newProducer(t, 6))
	b.Add(newConsumer(t, 2))
	b.Add(newStorage(t, 50, 5))

	members := append(a.Members(), b.Members()...)
	survivor := a.Merge(b)

	assert.Equal(t, survivor.Len(), 5)
	assert.Equal(t, survivor.Generation(), 10.0)
	assert.Equal(t, survivor.Demand(), 3.0)
	assert.Equal(t, survivor.Stored(), 5.0)
	for _, n := range members {
		assert.Assert(t, survivor.Has(n))
		assert.Equal(t, n.GraphID(), survivor.ID())
	}
}

func TestMergeSmallerIntoLarger(t *testing.T) {
	small := NewGraph()
	for i := 0; i < 2; i++ {
		small.Add(newProducer(t, 1))
	}
	large := NewGraph()
	for i := 0; i < 5; i++ {
		large.Add(newConsumer(t, 1))
	}
	largeID := large.ID()

	survivor := small.Merge(large)

	assert.Equal(t, survivor.ID(), largeID)
	assert.Equal(t, survivor.Len(), 7)
	assert.Assert(t, small.Retired())
	assert.Equal(t, small.Len(), 0)
	assert.Assert(t, !large.Retired())
}

func TestMergeTieKeepsReceiver(t *testing.T) {
	a := NewGraph()
	a.Add(newProducer(t, 1))
	b := NewGraph()
	b.Add(newProducer(t, 1))

	assert.Equal(t, a.Merge(b), a)
	assert.Assert(t, b.Retired())
}

func TestTickCoverage(t *testing.T) {
	cases := []struct {
		name       string
		generation float64
		demand     float64
		expected   float64
	}{
		{"nothing", 0, 0, 0},
		{"no demand", 5, 0, 1},
		{"surplus", 10, 4, 1},
		{"exact", 4, 4, 1},
		{"shortfall", 2, 8, 0.25},
		{"no generation", 0, 8, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGraph()
			c := newConsumer(t, tc.demand)
			g.Add(newProducer(t, tc.generation))
			g.Add(c)

			cov := g.Tick()
			assert.Assert(t, approx(cov, tc.expected), "coverage %v, expected %v", cov, tc.expected)
			assert.Assert(t, cov >= 0 && cov <= 1)
			assert.Equal(t, c.percent, cov)
			assert.Equal(t, g.Coverage(), cov)
		})
	}
}

func TestTickChargesSurplus(t *testing.T) {
	g := NewGraph()
	s := newStorage(t, 100, 0)
	g.Add(newProducer(t, 10))
	g.Add(newConsumer(t, 4))
	g.Add(s)

	cov := g.Tick()
	assert.Equal(t, cov, 1.0)
	assert.Assert(t, approx(s.stored, 6))
}

func TestTickChargeBoundedByHeadroom(t *testing.T) {
	g := NewGraph()
	s := newStorage(t, 10, 8)
	g.Add(newProducer(t, 10))
	g.Add(newConsumer(t, 4))
	g.Add(s)

	g.Tick()
	assert.Assert(t, approx(s.stored, 10))
}

func TestTickDischargesWithoutGeneration(t *testing.T) {
	g := NewGraph()
	c := newConsumer(t, 10)
	s := newStorage(t, 100, 4)
	g.Add(c)
	g.Add(s)

	cov := g.Tick()
	assert.Assert(t, approx(cov, 0.4))
	assert.Assert(t, approx(s.stored, 0))

	cov = g.Tick()
	assert.Equal(t, cov, 0.0)
}

func TestTickFullDischargeCoverage(t *testing.T) {
	g := NewGraph()
	g.Add(newConsumer(t, 10))
	s := newStorage(t, 100, 50)
	g.Add(s)

	assert.Equal(t, g.Tick(), 1.0)
	assert.Assert(t, approx(s.stored, 40))
}

func TestDischargeProportional(t *testing.T) {
	g := NewGraph()
	storages := []*mockStorage{
		newStorage(t, 100, 10),
		newStorage(t, 100, 20),
		newStorage(t, 100, 30),
	}
	for _, s := range storages {
		g.Add(s)
	}

	delivered := g.DischargeStorages(12)

	assert.Assert(t, approx(delivered, 12))
	assert.Assert(t, approx(storages[0].stored, 8))
	assert.Assert(t, approx(storages[1].stored, 16))
	assert.Assert(t, approx(storages[2].stored, 24))
	assert.Assert(t, approx(g.Stored(), 48))
}

func TestDischargeClampedToStored(t *testing.T) {
	g := NewGraph()
	s := newStorage(t, 100, 5)
	g.Add(s)

	assert.Assert(t, approx(g.DischargeStorages(50), 5))
	assert.Assert(t, approx(s.stored, 0))
}

func TestChargeProportional(t *testing.T) {
	g := NewGraph()
	a := newStorage(t, 10, 0)
	b := newStorage(t, 40, 10)
	g.Add(a)
	g.Add(b)

	absorbed := g.ChargeStorages(20)

	assert.Assert(t, approx(absorbed, 20))
	assert.Assert(t, approx(a.stored, 5))
	assert.Assert(t, approx(b.stored, 25))
}

func TestChargeDischargeNoop(t *testing.T) {
	g := NewGraph()
	assert.Equal(t, g.ChargeStorages(10), 0.0)
	assert.Equal(t, g.DischargeStorages(10), 0.0)

	s := newStorage(t, 10, 5)
	g.Add(s)
	assert.Equal(t, g.ChargeStorages(0), 0.0)
	assert.Equal(t, g.ChargeStorages(-3), 0.0)
	assert.Equal(t, g.DischargeStorages(0), 0.0)
	assert.Equal(t, s.stored, 5.0)
}

func TestClosestWithFreeSlot(t *testing.T) {
	g := NewGraph()
	full := &mockProducer{newBase(t, 5, 0, 0, 0), 1}
	mid := &mockProducer{newBase(t, 10, 0, 1, 0), 1}
	far := &mockProducer{newBase(t, 15, 0, 1, 0), 1}
	for _, n := range []Node{full, mid, far} {
		g.Add(n)
	}

	closest := g.ClosestWithFreeSlot(Vec2{0, 0}, 20)
	assert.Assert(t, closest != nil)
	assert.Equal(t, closest.PID(), mid.PID())
}

func TestClosestWithFreeSlotUsesCandidateRange(t *testing.T) {
	g := NewGraph()
	pole := &mockProducer{newBase(t, 8, 0, 2, 10), 1}
	g.Add(pole)

	assert.Assert(t, g.ClosestWithFreeSlot(Vec2{0, 0}, 0) == pole)
	assert.Assert(t, g.ClosestWithFreeSlot(Vec2{1, 7.5}, 0) == nil, "inside the bounding box but out of range")
}

func TestClosestWithFreeSlotSkipsUsedSlots(t *testing.T) {
	g := NewGraph()
	a := &mockProducer{newBase(t, 1, 0, 1, 0), 1}
	b := &mockProducer{newBase(t, 2, 0, 1, 0), 1}
	g.Add(a)
	g.Add(b)
	Connect(a, b, true)

	assert.Assert(t, g.ClosestWithFreeSlot(Vec2{0, 0}, 5) == nil)
}
