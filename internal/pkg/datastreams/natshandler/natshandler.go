package natshandler

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"

	"github.com/google/uuid"
	"github.com/ohowland/powernet/internal/pkg/msg"
	"github.com/ohowland/powernet/internal/pkg/power"
	"github.com/ohowland/powernet/internal/pkg/sim"

	nats "github.com/nats-io/nats.go"
)

// Handler republishes engine messages to a NATS server.
type Handler struct {
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config Config
	stop   chan bool
}

// Config is read from config/datastreams/nats.json.
type Config struct {
	Server string `json:"Server"`
	Prefix string `json:"Prefix"`
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// PID is an accessor for the handler's process id.
func (h Handler) PID() uuid.UUID {
	return h.pid
}

// New reads configPath and subscribes to status and topology on system.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Handler{}, err
	}
	if cfg.Server == "" {
		cfg.Server = nats.DefaultURL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "powernet"
	}

	pid, _ := uuid.NewUUID()

	inbox, err := msg.Inbox(system, pid, 50, msg.Status, msg.Topology)
	if err != nil {
		return Handler{}, err
	}

	return Handler{
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		stop:   make(chan bool, 1),
	}, nil
}

// Stop terminates Process.
func (h *Handler) Stop() {
	select {
	case h.stop <- true:
	default:
	}
}

// Process connects to the server and forwards messages until Stop.
func (h Handler) Process() {
	log.Println("[NATS client] Process Started")
	nc, err := nats.Connect(h.config.Server, nats.Name("powernet"))
	if err != nil {
		log.Printf("[NATS client] unable to connect to %v: %v", h.config.Server, err)
		return
	}
	defer nc.Close()

loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			if err := forward(nc, h.config.Prefix, m); err != nil {
				log.Printf("[NATS client] unable to publish to nats server: %v", err)
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[NATS client] Process Shutdown")
}

func forward(p publisher, prefix string, m msg.Msg) error {
	subject, err := subject(prefix, m)
	if err != nil {
		return err
	}
	data, err := json.Marshal(m.Payload())
	if err != nil {
		return err
	}
	return p.Publish(subject, data)
}

// subject maps a message onto its NATS subject. Graph status goes to
// <prefix>.graph.<id>, topology events to <prefix>.topology.
func subject(prefix string, m msg.Msg) (string, error) {
	switch m.Topic() {
	case msg.Status:
		s, ok := m.Payload().(power.Status)
		if !ok {
			return "", fmt.Errorf("status payload is %T", m.Payload())
		}
		return fmt.Sprintf("%v.graph.%d", prefix, s.ID), nil
	case msg.Topology:
		if _, ok := m.Payload().(sim.TopologyEvent); !ok {
			return "", fmt.Errorf("topology payload is %T", m.Payload())
		}
		return prefix + ".topology", nil
	}
	return "", fmt.Errorf("no subject for topic %v", m.Topic())
}
