package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/ohowland/powernet/internal/pkg/msg"
	"github.com/ohowland/powernet/internal/pkg/power"
)

// Supported drivers
const (
	MySQL    = "mysql"
	Postgres = "postgres"
)

// Handler appends every published graph status to a history table.
type Handler struct {
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config Config
	stop   chan bool
}

// Config is read from config/database/sqldb.json.
type Config struct {
	Driver   string `json:"Driver"`
	Server   string `json:"Server"`
	Port     int    `json:"Port"`
	Username string `json:"Username"`
	Password string `json:"Password"`
	Database string `json:"Database"`
	Table    string `json:"Table"`
	SSLMode  string `json:"SSLMode"`
}

// PID is an accessor for the handler's process id.
func (h Handler) PID() uuid.UUID {
	return h.pid
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
	if cfg.Table == "" {
		cfg.Table = "graph_status"
	}
	if _, err := cfg.DSN(); err != nil {
		return Handler{}, err
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

// DSN formats the data source name for the configured driver.
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case MySQL:
		cfg := mysql.NewConfig()
		cfg.User = c.Username
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = c.Server + ":" + strconv.Itoa(c.Port)
		cfg.DBName = c.Database
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	case Postgres:
		sslmode := c.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%v port=%v user=%v password=%v dbname=%v sslmode=%v",
			c.Server, c.Port, c.Username, c.Password, c.Database, sslmode), nil
	}
	return "", fmt.Errorf("sqldb: unsupported driver %q", c.Driver)
}

// DB opens a handle on the configured database.
func (h Handler) DB() (*sql.DB, error) {
	dsn, err := h.config.DSN()
	if err != nil {
		return nil, err
	}
	return sql.Open(h.config.Driver, dsn)
}

// Process writes status history until Stop.
func (h Handler) Process() {
	db, err := h.DB()
	if err != nil {
		log.Println("[SQL]", err)
		return
	}
	defer db.Close()

	if err = initDBTables(db, h.config); err != nil {
		log.Println("[SQL]", err)
		return
	}
	log.Println("[SQL] Process Started")

	insert := insertStatement(h.config)
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
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			_, err := db.ExecContext(ctx, insert, statusArgs(time.Now(), s)...)
			cancel()
			if err != nil {
				log.Printf("[SQL] error %s update db", err)
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[SQL] Process Shutdown")
}

func initDBTables(db *sql.DB, c Config) error {
	_, err := db.Exec(createStatement(c))
	return err
}

func quoteTable(c Config) string {
	if c.Driver == Postgres {
		return pq.QuoteIdentifier(c.Table)
	}
	return "`" + c.Table + "`"
}

func createStatement(c Config) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %v (
	graph BIGINT NOT NULL,
	recorded TIMESTAMP NOT NULL,
	nodes INT NOT NULL,
	generation DOUBLE PRECISION NOT NULL,
	demand DOUBLE PRECISION NOT NULL,
	stored DOUBLE PRECISION NOT NULL,
	capacity DOUBLE PRECISION NOT NULL,
	coverage DOUBLE PRECISION NOT NULL
)`, quoteTable(c))
}

func insertStatement(c Config) string {
	placeholders := "?, ?, ?, ?, ?, ?, ?, ?"
	if c.Driver == Postgres {
		placeholders = "$1, $2, $3, $4, $5, $6, $7, $8"
	}
	return fmt.Sprintf("INSERT INTO %v (graph, recorded, nodes, generation, demand, stored, capacity, coverage) VALUES (%v)",
		quoteTable(c), placeholders)
}

func statusArgs(at time.Time, s power.Status) []interface{} {
	return []interface{}{int64(s.ID), at.UTC(), s.Nodes, s.Generation, s.Demand, s.Stored, s.Capacity, s.Coverage}
}
