package main

import (
	"encoding/json"
	"flag"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/ohowland/powernet/internal/pkg/hmi"
)

type config struct {
	Stream  string `json:"Stream"`
	Refresh int    `json:"Refresh"`
}

func readConfig(configPath string) (config, error) {
	jsonConfig, err := ioutil.ReadFile(configPath)
	if err != nil {
		return config{}, err
	}
	cfg := config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return config{}, err
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = 500
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "./config/hmi.json", "console configuration")
	flag.Parse()

	cfg, err := readConfig(*configPath)
	if err != nil {
		panic(err)
	}

	// the console owns the terminal
	logFile, err := os.OpenFile("hmi.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		panic(err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)

	board := hmi.NewBoard()
	console := hmi.NewConsole(board)
	stop := make(chan struct{})

	go func() {
		if err := hmi.Follow(cfg.Stream, board, stop); err != nil {
			log.Println("[HMI] stream:", err)
		}
	}()
	go console.Refresh(time.Duration(cfg.Refresh)*time.Millisecond, stop)

	if err := console.Run(); err != nil {
		panic(err)
	}
	close(stop)
}
