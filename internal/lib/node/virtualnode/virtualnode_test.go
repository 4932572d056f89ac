package virtualnode

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/ohowland/powernet/internal/pkg/power"
	"gotest.tools/v3/assert"
)

func TestNewKinds(t *testing.T) {
	cases := []struct {
		kind     Kind
		producer bool
		consumer bool
		storage  bool
	}{
		{GeneratorKind, true, false, false},
		{LoadKind, false, true, false},
		{BatteryKind, false, false, true},
		{PoleKind, false, false, false},
		{CogeneratorKind, true, true, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			n, err := New(Config{Name: "n", Kind: tc.kind, Capacity: 10})
			assert.NilError(t, err)

			_, producer := n.(power.Producer)
			_, consumer := n.(power.Consumer)
			_, storage := n.(power.Storage)
			assert.Equal(t, producer, tc.producer)
			assert.Equal(t, consumer, tc.consumer)
			assert.Equal(t, storage, tc.storage)
		})
	}
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(Config{Name: "n", Kind: "reactor"})
	assert.Assert(t, errors.Is(err, ErrUnknownKind))
}

func TestNewBatteryOverfilled(t *testing.T) {
	_, err := New(Config{Name: "b", Kind: BatteryKind, Capacity: 10, Stored: 20})
	assert.ErrorContains(t, err, "outside capacity")
}

func TestBatteryPercentages(t *testing.T) {
	n, err := New(Config{Name: "b", Kind: BatteryKind, Capacity: 100, Stored: 20})
	assert.NilError(t, err)
	b := n.(*Battery)

	b.ChargeByPercentage(0.5)
	assert.Equal(t, b.Stored(), 60.0)

	b.DischargeByPercentage(0.25)
	assert.Equal(t, b.Stored(), 45.0)

	b.ChargeByPercentage(2)
	assert.Equal(t, b.Stored(), 100.0)
	assert.Equal(t, b.SOC(), 1.0)
}

func TestLoadThroughput(t *testing.T) {
	n, err := New(Config{Name: "assembler", Kind: LoadKind, Demand: 8})
	assert.NilError(t, err)
	l := n.(*Load)

	l.SetPowerPercent(0.5)
	assert.Equal(t, l.Throughput(), 4.0)
}

func TestReadConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "virtualnode")
	assert.NilError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "pole.json")
	body := `{"Name":"Pole-1","Kind":"pole","Position":{"X":3,"Y":4},"MaxConnections":4,"Range":6.5}`
	assert.NilError(t, ioutil.WriteFile(path, []byte(body), 0644))

	cfg, err := ReadConfig(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.Kind, PoleKind)

	n, err := New(cfg)
	assert.NilError(t, err)
	assert.Equal(t, n.Name(), "Pole-1")
	assert.Equal(t, n.Position(), power.Vec2{X: 3, Y: 4})
	assert.Equal(t, n.FreeSlots(), 4)
	assert.Equal(t, n.ConnectionRange(), 6.5)
}
