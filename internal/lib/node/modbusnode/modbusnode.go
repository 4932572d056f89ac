/*
modbusnode.go Nodes backed by a field meter over Modbus TCP. A Source reports
generation read from the meter. A Sink reports demand read from the meter and
writes the power percent it is granted back to it.
*/

package modbusnode

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ohowland/powernet/internal/pkg/comm/modbuscomm"
	"github.com/ohowland/powernet/internal/pkg/power"
)

// Role selects what a meter reports to its graph.
type Role string

// Roles
const (
	SourceRole Role = "source"
	SinkRole   Role = "sink"
)

// Register names read from or written to the meter.
const (
	GenerationRegister   = "Generation"
	DemandRegister       = "Demand"
	PowerPercentRegister = "PowerPercent"
)

// Config describes a meter-backed node.
type Config struct {
	Name           string                  `json:"Name" yaml:"name"`
	Role           Role                    `json:"Role" yaml:"role"`
	Position       power.Vec2              `json:"Position" yaml:"position"`
	MaxConnections int                     `json:"MaxConnections" yaml:"maxConnections"`
	Range          float64                 `json:"Range" yaml:"range"`
	Poller         modbuscomm.PollerConfig `json:"Poller" yaml:"poller"`
	Registers      []modbuscomm.Register   `json:"Registers" yaml:"registers"`
}

// Meter is implemented by Source and Sink.
type Meter interface {
	power.Node
	Poll() error
	Process()
	Stop()
}

// New builds a Source or Sink polling the configured Modbus target.
func New(cfg Config) (power.Node, error) {
	return NewWithComm(cfg, modbuscomm.NewPoller(cfg.Poller))
}

// NewWithComm builds a Source or Sink on an existing ModbusComm.
func NewWithComm(cfg Config, comm modbuscomm.ModbusComm) (power.Node, error) {
	m, err := newMeter(cfg, comm)
	if err != nil {
		return nil, err
	}

	switch cfg.Role {
	case SourceRole:
		if err := requireRegister(cfg, GenerationRegister, modbuscomm.ReadOnly); err != nil {
			return nil, err
		}
		return &Source{meter: m}, nil
	case SinkRole:
		if err := requireRegister(cfg, DemandRegister, modbuscomm.ReadOnly); err != nil {
			return nil, err
		}
		return &Sink{meter: m}, nil
	}
	return nil, fmt.Errorf("modbusnode %v: unknown role %q", cfg.Name, cfg.Role)
}

func requireRegister(cfg Config, name string, a modbuscomm.Access) error {
	for _, r := range modbuscomm.FilterRegisters(cfg.Registers, a) {
		if r.Name == name {
			return nil
		}
	}
	return fmt.Errorf("modbusnode %v: %v role needs a %v register named %v", cfg.Name, cfg.Role, a, name)
}

type meter struct {
	power.Base
	mux      *sync.Mutex
	comm     modbuscomm.ModbusComm
	read     []modbuscomm.Register
	write    []modbuscomm.Register
	pollRate time.Duration
	values   map[string]float64
	pending  map[string]float64
	stop     chan bool
}

func newMeter(cfg Config, comm modbuscomm.ModbusComm) (meter, error) {
	base, err := power.NewBase(cfg.Name, cfg.Position, cfg.MaxConnections, cfg.Range)
	if err != nil {
		return meter{}, err
	}
	rate := cfg.Poller.PollRate
	if rate <= 0 {
		rate = 1000
	}
	return meter{
		Base:     base,
		mux:      &sync.Mutex{},
		comm:     comm,
		read:     modbuscomm.FilterRegisters(cfg.Registers, modbuscomm.ReadOnly),
		write:    modbuscomm.FilterRegisters(cfg.Registers, modbuscomm.WriteOnly),
		pollRate: time.Duration(rate) * time.Millisecond,
		values:   make(map[string]float64),
		pending:  make(map[string]float64),
		stop:     make(chan bool, 1),
	}, nil
}

// Poll reads the meter and flushes pending writes. Values that fail to read
// keep their previous reading.
func (m *meter) Poll() error {
	values, readErr := m.comm.Read(m.read)

	m.mux.Lock()
	for k, v := range values {
		m.values[k] = v
	}
	pending := m.pending
	m.pending = make(map[string]float64)
	m.mux.Unlock()

	if len(pending) == 0 {
		return readErr
	}
	if err := m.comm.Write(m.write, pending); err != nil {
		return err
	}
	return readErr
}

// Process polls the meter until Stop.
func (m *meter) Process() {
	log.Printf("[Meter] %v: Process Started", m.Name())
	ticker := time.NewTicker(m.pollRate)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ticker.C:
			if err := m.Poll(); err != nil {
				log.Printf("[Meter] %v: %v", m.Name(), err)
			}
		case <-m.stop:
			break loop
		}
	}
	log.Printf("[Meter] %v: Process Stopped", m.Name())
}

// Stop terminates Process.
func (m *meter) Stop() {
	select {
	case m.stop <- true:
	default:
	}
}

func (m *meter) value(name string) float64 {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.values[name]
}

// Source is a Producer whose rate is read from the meter.
type Source struct {
	meter
}

// GenerationRate is the last generation reading.
func (s *Source) GenerationRate() float64 {
	return s.value(GenerationRegister)
}

// Sink is a Consumer whose demand is read from the meter.
type Sink struct {
	meter
	granted float64
}

// ConsumptionRate is the last demand reading.
func (s *Sink) ConsumptionRate() float64 {
	return s.value(DemandRegister)
}

// SetPowerPercent queues the granted percent, as 0-100, for the next poll.
func (s *Sink) SetPowerPercent(p float64) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.granted = p
	if len(s.write) > 0 {
		s.pending[PowerPercentRegister] = p * 100
	}
}

// PowerPercent is the last fraction granted by the graph.
func (s *Sink) PowerPercent() float64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.granted
}
