package webservice

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/ohowland/powernet/internal/lib/node/virtualnode"
	"github.com/ohowland/powernet/internal/pkg/layout"
	"github.com/ohowland/powernet/internal/pkg/msg"
	"github.com/ohowland/powernet/internal/pkg/power"
	"github.com/ohowland/powernet/internal/pkg/sim"
)

// Engine is the part of sim.Engine the web service drives.
type Engine interface {
	msg.Publisher
	PID() uuid.UUID
	Snapshot() []power.Status
	Place(power.Node) <-chan error
	Remove(uuid.UUID) <-chan error
	Link(a, b uuid.UUID, ranged bool) <-chan error
	Unlink(a, b uuid.UUID) <-chan error
}

// Config is read from config/webservice.json.
type Config struct {
	Port           string `json:"Port"`
	RequestTimeout int    `json:"RequestTimeout"`
}

// NodeCreated is the body returned by POST /nodes.
type NodeCreated struct {
	PID  uuid.UUID `json:"PID"`
	Name string    `json:"Name"`
}

// LinkRequest is the body of POST and DELETE /links.
type LinkRequest struct {
	From   uuid.UUID `json:"From"`
	To     uuid.UUID `json:"To"`
	Ranged bool      `json:"Ranged"`
}

type errorBody struct {
	Error string `json:"Error"`
}

// Server serves graph status and accepts edits for an Engine.
type Server struct {
	pid    uuid.UUID
	config Config
	engine Engine
	hub    *Hub
	router *mux.Router
	srv    *http.Server
}

// ReadConfig reads a JSON Config from configPath.
func ReadConfig(configPath string) (Config, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	err = json.Unmarshal(jsonConfig, &cfg)
	return cfg, err
}

// New builds the router and subscribes the stream hub to the engine.
func New(cfg Config, engine Engine) (*Server, error) {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2000
	}

	pid, _ := uuid.NewUUID()
	inbox, err := msg.Inbox(engine, pid, 64, msg.Status, msg.Topology)
	if err != nil {
		return nil, err
	}

	s := &Server{
		pid:    pid,
		config: cfg,
		engine: engine,
		hub:    NewHub(),
	}
	s.router = s.makeRouter()
	go s.hub.Run()
	go s.hub.Forward(inbox)
	return s, nil
}

func (s *Server) makeRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", BaseHandler)
	r.HandleFunc("/graphs", s.GraphsHandler).Methods("GET")
	r.HandleFunc("/graphs/{id:[0-9]+}", s.GraphHandler).Methods("GET")
	r.HandleFunc("/nodes", s.PlaceHandler).Methods("POST")
	r.HandleFunc("/nodes/{pid}", s.RemoveHandler).Methods("DELETE")
	r.HandleFunc("/links", s.LinkHandler).Methods("POST", "DELETE")
	r.HandleFunc("/stream", s.hub.ServeWs)
	return r
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe blocks serving on the configured port until Shutdown.
func (s *Server) ListenAndServe() error {
	s.srv = &http.Server{Addr: s.config.Port, Handler: s.router}
	log.Println("[Webservice] Starting Server on Port", s.config.Port)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the listener and the stream hub.
func (s *Server) Shutdown() {
	s.engine.Unsubscribe(s.pid)
	s.hub.Stop()
	if s.srv != nil {
		s.srv.Close()
	}
}

// BaseHandler answers liveness checks.
func BaseHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
}

// GraphsHandler returns the status of every live graph.
func (s *Server) GraphsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// GraphHandler returns the status of one graph.
func (s *Server) GraphHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, status := range s.engine.Snapshot() {
		if status.ID == power.ID(id) {
			writeJSON(w, http.StatusOK, status)
			return
		}
	}
	writeError(w, http.StatusNotFound, errors.New("no such graph"))
}

// PlaceHandler builds a virtual node from the body and places it.
func (s *Server) PlaceHandler(w http.ResponseWriter, r *http.Request) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg := virtualnode.Config{}
	if err = json.Unmarshal(body, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := virtualnode.New(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err = s.wait(s.engine.Place(n)); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, NodeCreated{n.PID(), n.Name()})
}

// RemoveHandler removes the node named by the path.
func (s *Server) RemoveHandler(w http.ResponseWriter, r *http.Request) {
	pid, err := uuid.Parse(mux.Vars(r)["pid"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err = s.wait(s.engine.Remove(pid)); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LinkHandler adds (POST) or removes (DELETE) a cable between two nodes.
func (s *Server) LinkHandler(w http.ResponseWriter, r *http.Request) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req := LinkRequest{}
	if err = json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var result <-chan error
	switch r.Method {
	case "POST":
		result = s.engine.Link(req.From, req.To, req.Ranged)
	case "DELETE":
		result = s.engine.Unlink(req.From, req.To)
	}
	if err = s.wait(result); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var errTimeout = errors.New("engine did not answer in time")

func (s *Server) wait(result <-chan error) error {
	select {
	case err := <-result:
		return err
	case <-time.After(time.Duration(s.config.RequestTimeout) * time.Millisecond):
		return errTimeout
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, layout.ErrOccupied):
		return http.StatusConflict
	case errors.Is(err, sim.ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, errTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Println("[Webservice] malformed JSON:", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	w.Write(body)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{err.Error()})
}
