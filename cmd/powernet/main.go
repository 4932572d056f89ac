package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ohowland/powernet/internal/lib/node/modbusnode"
	"github.com/ohowland/powernet/internal/pkg/database/mongodb"
	"github.com/ohowland/powernet/internal/pkg/database/sqldb"
	"github.com/ohowland/powernet/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/powernet/internal/pkg/layout"
	"github.com/ohowland/powernet/internal/pkg/scenario"
	"github.com/ohowland/powernet/internal/pkg/sim"
	"github.com/ohowland/powernet/internal/pkg/web"
	"github.com/ohowland/powernet/internal/pkg/webservice"
)

type process interface {
	Process()
	Stop()
}

func main() {
	configDir := flag.String("config", "./config", "configuration directory")
	scenarioPath := flag.String("scenario", "./config/scenario/demo.yaml", "scenario to load, empty for none")
	sinks := flag.String("sinks", "", "comma separated telemetry sinks: nats,mongodb,sqldb,web")
	flag.Parse()

	log.Println("[Main] Starting powernet v0.1.0")
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	log.Println("[Main] Building Engine")
	engine, err := buildEngine(filepath.Join(*configDir, "engine.json"))
	if err != nil {
		panic(err)
	}
	go engine.Process()

	processes := make([]process, 0)

	log.Println("[Main] Starting Telemetry")
	telemetry, err := buildSinks(*configDir, *sinks, engine)
	if err != nil {
		panic(err)
	}
	for _, p := range telemetry {
		go p.Process()
	}
	processes = append(processes, telemetry...)

	if *scenarioPath != "" {
		log.Println("[Main] Loading Scenario", *scenarioPath)
		meters, err := loadScenario(*scenarioPath, engine)
		if err != nil {
			panic(err)
		}
		for _, m := range meters {
			go m.Process()
			processes = append(processes, m)
		}
	}

	log.Println("[Main] Starting Webservice")
	cfg, err := webservice.ReadConfig(filepath.Join(*configDir, "webservice.json"))
	if err != nil {
		panic(err)
	}
	server, err := webservice.New(cfg, engine)
	if err != nil {
		panic(err)
	}
	go func() {
		if err := server.ListenAndServe(); err != nil {
			log.Println("[Main]", err)
			sigs <- syscall.SIGTERM
		}
	}()

	<-sigs
	log.Println("[Main] Stopping system")
	server.Shutdown()
	for _, p := range processes {
		p.Stop()
	}
	engine.Stop()
}

func buildEngine(configPath string) (*sim.Engine, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return sim.New(jsonConfig, layout.NewGrid())
}

func buildSinks(configDir string, names string, engine *sim.Engine) ([]process, error) {
	sinks := make([]process, 0)
	for _, name := range strings.Split(names, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case "nats":
			h, err := natshandler.New(filepath.Join(configDir, "datastreams", "nats.json"), engine)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, &h)
		case "mongodb":
			h, err := mongodb.New(filepath.Join(configDir, "database", "mongodb.json"), engine)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, &h)
		case "web":
			h, err := web.New(filepath.Join(configDir, "web.json"), engine)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, &h)
		case "sqldb":
			h, err := sqldb.New(filepath.Join(configDir, "database", "sqldb.json"), engine)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, &h)
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	return sinks, nil
}

// loadScenario places every scenario node, then the extra links, waiting on
// each request so the queue never fills.
func loadScenario(path string, engine *sim.Engine) ([]modbusnode.Meter, error) {
	s, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	nodes, byName, err := s.Build()
	if err != nil {
		return nil, err
	}

	meters := make([]modbusnode.Meter, 0)
	for _, n := range nodes {
		if err := <-engine.Place(n); err != nil {
			return nil, fmt.Errorf("place %v: %w", n.Name(), err)
		}
		if m, ok := n.(modbusnode.Meter); ok {
			meters = append(meters, m)
		}
	}

	for _, l := range s.Links {
		from, to := byName[l.From], byName[l.To]
		if err := <-engine.Link(from.PID(), to.PID(), l.Ranged); err != nil {
			return nil, fmt.Errorf("link %v-%v: %w", l.From, l.To, err)
		}
	}

	log.Printf("[Main] Scenario %v: placed %d node(s), %d meter(s)", s.Name, len(nodes), len(meters))
	return meters, nil
}
