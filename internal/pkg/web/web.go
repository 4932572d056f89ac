package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/powernet/internal/pkg/msg"
	"github.com/ohowland/powernet/internal/pkg/power"
)

// Handler posts every graph status to a remote collector.
type Handler struct {
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config Config
	client *http.Client
	stop   chan bool
}

// Config is read from config/web.json.
type Config struct {
	URL     string `json:"URL"`
	Timeout int    `json:"Timeout"`
}

// New reads configPath and subscribes to status on system.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Handler{}, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1000
	}

	pid, _ := uuid.NewUUID()
	inbox, err := msg.Inbox(system, pid, 50, msg.Status)
	if err != nil {
		return Handler{}, err
	}

	return Handler{
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Millisecond},
		stop:   make(chan bool, 1),
	}, nil
}

// PID is an accessor for the handler's process id.
func (h Handler) PID() uuid.UUID {
	return h.pid
}

// Stop terminates Process.
func (h *Handler) Stop() {
	select {
	case h.stop <- true:
	default:
	}
}

// Process posts status until Stop.
func (h Handler) Process() {
	log.Println("[Web Handler] Process Started")
loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			s, isStatus := m.Payload().(power.Status)
			if !isStatus {
				continue
			}
			if err := h.PostGraphStatus(s); err != nil {
				log.Println("[Web Handler]", err)
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[Web Handler] Process Shutdown")
}

// PostGraphStatus sends s to <URL>/graphs/<id>/status.
func (h Handler) PostGraphStatus(s power.Status) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	targetURL := fmt.Sprintf("%v/graphs/%d/status", h.config.URL, s.ID)
	resp, err := h.client.Post(targetURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %v: %v", targetURL, resp.Status)
	}
	return nil
}
