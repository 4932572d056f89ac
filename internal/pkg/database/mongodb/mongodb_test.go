package mongodb

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/ohowland/powernet/internal/pkg/msg"
	"github.com/ohowland/powernet/internal/pkg/power"
	"github.com/ohowland/powernet/internal/pkg/sim"
	"go.mongodb.org/mongo-driver/bson"
	"gotest.tools/v3/assert"
)

func newHandler(t *testing.T, body string) (Handler, error) {
	path := filepath.Join(t.TempDir(), "mongodb.json")
	assert.NilError(t, ioutil.WriteFile(path, []byte(body), 0644))
	return New(path, msg.NewPublisher(uuid.New(), 4))
}

func TestGetConfig(t *testing.T) {
	h, err := newHandler(t, `{"URI":"mongodb://localhost","Port":"27017","Database":"powernet"}`)
	assert.NilError(t, err)

	assert.Equal(t, h.config.Database, "powernet")
	assert.Equal(t, h.config.Timeout, 1000)
	assert.Equal(t, h.uri(), "mongodb://localhost:27017")

	h.config.Port = ""
	assert.Equal(t, h.uri(), "mongodb://localhost")
}

func TestBadConfig(t *testing.T) {
	_, err := newHandler(t, `{"URI":`)
	assert.Assert(t, err != nil)
}

func TestGraphFilter(t *testing.T) {
	assert.DeepEqual(t, graphFilter(7), bson.M{"id": int64(7)})
}

func TestStatusUpdate(t *testing.T) {
	s := power.Status{ID: 7, Nodes: 3, Producers: 1, Consumers: 1, Storages: 1, Generation: 5, Demand: 4, Stored: 2, Capacity: 10, Coverage: 1}

	raw, err := bson.Marshal(statusUpdate(s))
	assert.NilError(t, err)

	decoded := struct {
		Set power.Status `bson:"$set"`
	}{}
	assert.NilError(t, bson.Unmarshal(raw, &decoded))
	assert.Equal(t, decoded.Set, s)
}

func TestTopologyDoc(t *testing.T) {
	created := topologyDoc(sim.TopologyEvent{Event: sim.GraphCreated, Graph: 3, Tick: 1})
	assert.DeepEqual(t, created, bson.M{"event": sim.GraphCreated, "graph": int64(3), "tick": int64(1)})

	retired := topologyDoc(sim.TopologyEvent{Event: sim.GraphRetired, Graph: 3, Into: 1, Tick: 2})
	assert.Equal(t, retired["into"], int64(1))
}
