package virtualnode

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"math"

	"github.com/ohowland/powernet/internal/pkg/power"
)

// ErrUnknownKind is returned for a Config with an unsupported Kind.
var ErrUnknownKind = errors.New("unknown node kind")

// Kind selects the capabilities of a virtual node.
type Kind string

// Supported kinds
const (
	GeneratorKind   Kind = "generator"
	LoadKind        Kind = "load"
	BatteryKind     Kind = "battery"
	PoleKind        Kind = "pole"
	CogeneratorKind Kind = "cogenerator"
)

// Config describes a virtual node.
type Config struct {
	Name           string     `json:"Name" yaml:"name"`
	Kind           Kind       `json:"Kind" yaml:"kind"`
	Position       power.Vec2 `json:"Position" yaml:"position"`
	Generation     float64    `json:"Generation" yaml:"generation"`
	Demand         float64    `json:"Demand" yaml:"demand"`
	Capacity       float64    `json:"Capacity" yaml:"capacity"`
	Stored         float64    `json:"Stored" yaml:"stored"`
	MaxConnections int        `json:"MaxConnections" yaml:"maxConnections"`
	Range          float64    `json:"Range" yaml:"range"`
}

// New builds the node described by cfg.
func New(cfg Config) (power.Node, error) {
	base, err := power.NewBase(cfg.Name, cfg.Position, cfg.MaxConnections, cfg.Range)
	if err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case GeneratorKind:
		return &Generator{base, cfg.Generation}, nil
	case LoadKind:
		return &Load{Base: base, demand: cfg.Demand}, nil
	case BatteryKind:
		if cfg.Capacity < 0 || cfg.Stored < 0 || cfg.Stored > cfg.Capacity {
			return nil, fmt.Errorf("battery %v: stored %v outside capacity %v", cfg.Name, cfg.Stored, cfg.Capacity)
		}
		return &Battery{base, cfg.Capacity, cfg.Stored}, nil
	case PoleKind:
		return &Pole{base}, nil
	case CogeneratorKind:
		return &Cogenerator{Generator{base, cfg.Generation}, cfg.Demand, 0}, nil
	}
	return nil, fmt.Errorf("%v: %q: %w", cfg.Name, cfg.Kind, ErrUnknownKind)
}

// ReadConfig reads a JSON node description from configPath.
func ReadConfig(configPath string) (Config, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	err = json.Unmarshal(jsonConfig, &cfg)
	return cfg, err
}

// Generator produces a fixed rate.
type Generator struct {
	power.Base
	rate float64
}

// GenerationRate is part of power.Producer.
func (g *Generator) GenerationRate() float64 {
	return g.rate
}

// SetRate changes the generator output, e.g. on fuel starvation.
func (g *Generator) SetRate(rate float64) {
	g.rate = math.Max(0, rate)
}

// Load consumes a fixed rate and runs at the satisfied fraction of it.
type Load struct {
	power.Base
	demand  float64
	percent float64
}

// ConsumptionRate is part of power.Consumer.
func (l *Load) ConsumptionRate() float64 {
	return l.demand
}

// SetPowerPercent is part of power.Consumer.
func (l *Load) SetPowerPercent(p float64) {
	l.percent = p
}

// PowerPercent is the last satisfied fraction.
func (l *Load) PowerPercent() float64 {
	return l.percent
}

// Throughput is the share of demand actually served.
func (l *Load) Throughput() float64 {
	return l.demand * l.percent
}

// Battery stores energy.
type Battery struct {
	power.Base
	capacity float64
	stored   float64
}

// Capacity is part of power.Storage.
func (b *Battery) Capacity() float64 {
	return b.capacity
}

// Stored is part of power.Storage.
func (b *Battery) Stored() float64 {
	return b.stored
}

// ChargeByPercentage fills p of the remaining headroom.
func (b *Battery) ChargeByPercentage(p float64) {
	b.stored = math.Min(b.capacity, b.stored+clamp(p)*(b.capacity-b.stored))
}

// DischargeByPercentage drains p of the stored energy.
func (b *Battery) DischargeByPercentage(p float64) {
	b.stored = math.Max(0, b.stored-clamp(p)*b.stored)
}

// SOC is the state of charge in [0,1].
func (b *Battery) SOC() float64 {
	if b.capacity == 0 {
		return 0
	}
	return b.stored / b.capacity
}

// Pole relays power without producing, consuming or storing it.
type Pole struct {
	power.Base
}

// Cogenerator both burns and produces power.
type Cogenerator struct {
	Generator
	demand  float64
	percent float64
}

// ConsumptionRate is part of power.Consumer.
func (c *Cogenerator) ConsumptionRate() float64 {
	return c.demand
}

// SetPowerPercent is part of power.Consumer.
func (c *Cogenerator) SetPowerPercent(p float64) {
	c.percent = p
}

// PowerPercent is the last satisfied fraction.
func (c *Cogenerator) PowerPercent() float64 {
	return c.percent
}

func clamp(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}
