/*
scenario.go Loads a factory layout from YAML. A scenario lists the nodes to
place, in order, and any extra cables between them.
*/

package scenario

import (
	"fmt"
	"io/ioutil"

	"github.com/ohowland/powernet/internal/lib/node/modbusnode"
	"github.com/ohowland/powernet/internal/lib/node/virtualnode"
	"github.com/ohowland/powernet/internal/pkg/power"
	"gopkg.in/yaml.v3"
)

// Scenario is the top level of a scenario file.
type Scenario struct {
	Name  string  `yaml:"name"`
	Nodes []Entry `yaml:"nodes"`
	Links []Link  `yaml:"links"`
}

// Entry is a node to place. Modbus entries are backed by a field meter.
type Entry struct {
	virtualnode.Config `yaml:",inline"`
	Modbus             *modbusnode.Config `yaml:"modbus"`
}

// Link is an explicit cable between two named nodes.
type Link struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Ranged bool   `yaml:"ranged"`
}

// Load reads and parses the scenario at path.
func Load(path string) (Scenario, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	return Parse(data)
}

// Parse decodes a YAML scenario and checks names and links.
func Parse(data []byte) (Scenario, error) {
	s := Scenario{}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, err
	}

	names := make(map[string]bool, len(s.Nodes))
	for i, e := range s.Nodes {
		if e.Name == "" {
			return Scenario{}, fmt.Errorf("scenario %v: node %d has no name", s.Name, i)
		}
		if names[e.Name] {
			return Scenario{}, fmt.Errorf("scenario %v: duplicate node %v", s.Name, e.Name)
		}
		names[e.Name] = true
	}
	for _, l := range s.Links {
		if !names[l.From] || !names[l.To] {
			return Scenario{}, fmt.Errorf("scenario %v: link %v-%v names an unknown node", s.Name, l.From, l.To)
		}
	}
	return s, nil
}

// Build constructs every node in file order, keyed by name.
func (s Scenario) Build() ([]power.Node, map[string]power.Node, error) {
	nodes := make([]power.Node, 0, len(s.Nodes))
	byName := make(map[string]power.Node, len(s.Nodes))
	for _, e := range s.Nodes {
		n, err := e.build()
		if err != nil {
			return nil, nil, fmt.Errorf("scenario %v: %w", s.Name, err)
		}
		nodes = append(nodes, n)
		byName[e.Name] = n
	}
	return nodes, byName, nil
}

func (e Entry) build() (power.Node, error) {
	if e.Modbus == nil {
		return virtualnode.New(e.Config)
	}
	cfg := *e.Modbus
	cfg.Name = e.Name
	cfg.Position = e.Position
	cfg.MaxConnections = e.MaxConnections
	cfg.Range = e.Range
	return modbusnode.New(cfg)
}
