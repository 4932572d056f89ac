package modbusnode

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ohowland/powernet/internal/pkg/comm/modbuscomm"
	"github.com/ohowland/powernet/internal/pkg/power"
	"gotest.tools/v3/assert"
)

type fakeComm struct {
	mux     *sync.Mutex
	values  map[string]float64
	written map[string]float64
	readErr error
	reads   int
}

func newFakeComm(values map[string]float64) *fakeComm {
	return &fakeComm{
		mux:     &sync.Mutex{},
		values:  values,
		written: make(map[string]float64),
	}
}

func (c *fakeComm) Read(registers []modbuscomm.Register) (map[string]float64, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.reads++
	if c.readErr != nil {
		return nil, c.readErr
	}
	out := make(map[string]float64)
	for _, r := range registers {
		if v, ok := c.values[r.Name]; ok {
			out[r.Name] = v
		}
	}
	return out, nil
}

func (c *fakeComm) Write(registers []modbuscomm.Register, values map[string]float64) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	for k, v := range values {
		c.written[k] = v
	}
	return nil
}

func (c *fakeComm) readCount() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.reads
}

func sourceConfig() Config {
	return Config{
		Name:           "TEST_Source",
		Role:           SourceRole,
		MaxConnections: 2,
		Range:          4,
		Poller:         modbuscomm.PollerConfig{PollRate: 5},
		Registers: []modbuscomm.Register{
			{Name: GenerationRegister, Address: 0, DataType: modbuscomm.F32, AccessType: modbuscomm.ReadOnly, Endianness: modbuscomm.BigEndian},
		},
	}
}

func sinkConfig() Config {
	return Config{
		Name: "TEST_Sink",
		Role: SinkRole,
		Registers: []modbuscomm.Register{
			{Name: DemandRegister, Address: 0, DataType: modbuscomm.F32, AccessType: modbuscomm.ReadOnly, Endianness: modbuscomm.BigEndian},
			{Name: PowerPercentRegister, Address: 2, DataType: modbuscomm.U16, AccessType: modbuscomm.WriteOnly, Endianness: modbuscomm.BigEndian},
		},
	}
}

func TestNewSource(t *testing.T) {
	n, err := NewWithComm(sourceConfig(), newFakeComm(nil))
	assert.NilError(t, err)

	_, ok := n.(power.Producer)
	assert.Assert(t, ok)
	_, ok = n.(power.Consumer)
	assert.Assert(t, !ok)
	_, ok = n.(Meter)
	assert.Assert(t, ok)
	assert.Equal(t, n.Name(), "TEST_Source")
	assert.Equal(t, n.MaxConnections(), 2)
	assert.Equal(t, n.ConnectionRange(), 4.0)
}

func TestNewSink(t *testing.T) {
	n, err := NewWithComm(sinkConfig(), newFakeComm(nil))
	assert.NilError(t, err)

	_, ok := n.(power.Consumer)
	assert.Assert(t, ok)
	_, ok = n.(power.Producer)
	assert.Assert(t, !ok)
}

func TestNewErrors(t *testing.T) {
	cfg := sourceConfig()
	cfg.Role = "flux-capacitor"
	_, err := NewWithComm(cfg, newFakeComm(nil))
	assert.ErrorContains(t, err, "unknown role")

	cfg = sourceConfig()
	cfg.Registers = nil
	_, err = NewWithComm(cfg, newFakeComm(nil))
	assert.ErrorContains(t, err, GenerationRegister)

	cfg = sinkConfig()
	cfg.Registers = cfg.Registers[1:]
	_, err = NewWithComm(cfg, newFakeComm(nil))
	assert.ErrorContains(t, err, DemandRegister)
}

func TestSourcePoll(t *testing.T) {
	comm := newFakeComm(map[string]float64{GenerationRegister: 42})
	n, err := NewWithComm(sourceConfig(), comm)
	assert.NilError(t, err)
	src := n.(*Source)

	assert.Equal(t, src.GenerationRate(), 0.0)
	assert.NilError(t, src.Poll())
	assert.Equal(t, src.GenerationRate(), 42.0)
}

func TestPollKeepsLastReadingOnError(t *testing.T) {
	comm := newFakeComm(map[string]float64{GenerationRegister: 42})
	n, _ := NewWithComm(sourceConfig(), comm)
	src := n.(*Source)
	assert.NilError(t, src.Poll())

	comm.readErr = errors.New("timeout")
	err := src.Poll()
	assert.ErrorContains(t, err, "timeout")
	assert.Equal(t, src.GenerationRate(), 42.0)
}

func TestSinkWritesPowerPercent(t *testing.T) {
	comm := newFakeComm(map[string]float64{DemandRegister: 8})
	n, _ := NewWithComm(sinkConfig(), comm)
	sink := n.(*Sink)

	assert.NilError(t, sink.Poll())
	assert.Equal(t, sink.ConsumptionRate(), 8.0)
	assert.Equal(t, len(comm.written), 0, "nothing granted yet")

	sink.SetPowerPercent(0.5)
	assert.Equal(t, sink.PowerPercent(), 0.5)
	assert.NilError(t, sink.Poll())
	assert.Equal(t, comm.written[PowerPercentRegister], 50.0)
}

func TestSinkInGraph(t *testing.T) {
	comm := newFakeComm(map[string]float64{DemandRegister: 10})
	n, _ := NewWithComm(sinkConfig(), comm)
	sink := n.(*Sink)
	assert.NilError(t, sink.Poll())

	g := power.NewGraph()
	g.Add(sink)
	g.Tick()

	assert.Equal(t, g.Demand(), 10.0)
	assert.Equal(t, g.Coverage(), 0.0)
	assert.Equal(t, sink.PowerPercent(), 0.0)
}

func TestProcessStop(t *testing.T) {
	comm := newFakeComm(map[string]float64{GenerationRegister: 1})
	n, _ := NewWithComm(sourceConfig(), comm)
	src := n.(*Source)

	done := make(chan bool)
	go func() {
		src.Process()
		done <- true
	}()

	deadline := time.After(2 * time.Second)
	for comm.readCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("meter was never polled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	src.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("meter did not stop")
	}
}
