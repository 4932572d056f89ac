package mongodb

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/powernet/internal/pkg/msg"
	"github.com/ohowland/powernet/internal/pkg/power"
	"github.com/ohowland/powernet/internal/pkg/sim"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	StatusCollection   = "graphStatus"
	TopologyCollection = "topology"
)

// Handler keeps the latest status of every live graph in MongoDB and logs
// topology events.
type Handler struct {
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config Config
	stop   chan bool
}

// Config is read from config/database/mongodb.json.
type Config struct {
	URI      string `json:"URI"`
	Database string `json:"Database"`
	Port     string `json:"Port"`
	Timeout  int    `json:"Timeout"`
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
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1000
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

func (h Handler) uri() string {
	if h.config.Port == "" {
		return h.config.URI
	}
	return h.config.URI + ":" + h.config.Port
}

// Process writes messages to the database until Stop.
func (h Handler) Process() {
	client, err := mongo.NewClient(options.Client().ApplyURI(h.uri()))
	if err != nil {
		log.Println("[Mongo]", err)
		return
	}

	ctx := context.Background()
	if err = client.Connect(ctx); err != nil {
		log.Println("[Mongo]", err)
		return
	}
	defer client.Disconnect(ctx)
	log.Println("[Mongo] Process Started")

	db := client.Database(h.config.Database)
	// graph ids restart with the process, stale documents are meaningless
	db.Collection(StatusCollection).Drop(ctx)

loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			if err := h.write(ctx, db, m); err != nil {
				log.Printf("[Mongo] %v: %v", m.Topic(), err)
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[Mongo] Process Shutdown")
}

func (h Handler) write(ctx context.Context, db *mongo.Database, m msg.Msg) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.config.Timeout)*time.Millisecond)
	defer cancel()

	switch p := m.Payload().(type) {
	case power.Status:
		opts := options.Update().SetUpsert(true)
		_, err := db.Collection(StatusCollection).UpdateOne(ctx, graphFilter(p.ID), statusUpdate(p), opts)
		return err
	case sim.TopologyEvent:
		if _, err := db.Collection(TopologyCollection).InsertOne(ctx, topologyDoc(p)); err != nil {
			return err
		}
		if p.Event == sim.GraphRetired {
			_, err := db.Collection(StatusCollection).DeleteOne(ctx, graphFilter(p.Graph))
			return err
		}
	}
	return nil
}

func graphFilter(id power.ID) bson.M {
	return bson.M{"id": int64(id)}
}

func statusUpdate(s power.Status) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.M{
			"id":         int64(s.ID),
			"nodes":      s.Nodes,
			"producers":  s.Producers,
			"consumers":  s.Consumers,
			"storages":   s.Storages,
			"generation": s.Generation,
			"demand":     s.Demand,
			"stored":     s.Stored,
			"capacity":   s.Capacity,
			"coverage":   s.Coverage,
		}},
	}
}

func topologyDoc(e sim.TopologyEvent) bson.M {
	doc := bson.M{
		"event": e.Event,
		"graph": int64(e.Graph),
		"tick":  int64(e.Tick),
	}
	if e.Into != power.NoGraph {
		doc["into"] = int64(e.Into)
	}
	return doc
}
