package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Storage selects where an embedded store keeps its collections.
type Storage struct {
	DataDir    string `env:"DRINKLOG_DATA_DIR" envDefault:"./data"`
	Backend    string `env:"DRINKLOG_BACKEND" envDefault:"json"` // json | sqlite
	SQLitePath string `env:"DRINKLOG_SQLITE_PATH"`               // defaults to <DataDir>/drinklog.db
}

// Server holds the store daemon configuration.
type Server struct {
	Storage
	Port       string  `env:"DRINKLOG_PORT" envDefault:"7001"`
	HTTPPort   string  `env:"DRINKLOG_HTTP_PORT" envDefault:"7002"`
	DisableTLS bool    `env:"DRINKLOG_DISABLE_TLS" envDefault:"false"`
	LogLevel   string  `env:"DRINKLOG_LOG_LEVEL" envDefault:"info"`
	WriteRate  float64 `env:"DRINKLOG_WRITE_RATE" envDefault:"20"` // HTTP writes per second
	WriteBurst int     `env:"DRINKLOG_WRITE_BURST" envDefault:"40"`
}

// Client holds the CLI configuration.
type Client struct {
	Storage
	StoreAddr  string `env:"DRINKLOG_STORE_ADDR"` // empty means embedded mode
	DisableTLS bool   `env:"DRINKLOG_DISABLE_TLS" envDefault:"false"`
	PrefsPath  string `env:"DRINKLOG_PREFS_PATH"` // defaults to <user config dir>/drinklog/prefs.json
	LogLevel   string `env:"DRINKLOG_LOG_LEVEL" envDefault:"warn"`
}

// LoadServer reads the daemon configuration from the environment.
func LoadServer() (*Server, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Server{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Storage.normalize(); err != nil {
		return nil, err
	}
	if cfg.WriteRate <= 0 || cfg.WriteBurst <= 0 {
		return nil, fmt.Errorf("DRINKLOG_WRITE_RATE and DRINKLOG_WRITE_BURST must be positive")
	}
	return cfg, nil
}

// LoadClient reads the CLI configuration from the environment.
func LoadClient() (*Client, error) {
	_ = godotenv.Load()

	cfg := &Client{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Storage.normalize(); err != nil {
		return nil, err
	}
	if cfg.PrefsPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		cfg.PrefsPath = filepath.Join(dir, "drinklog", "prefs.json")
	}
	return cfg, nil
}

func (s *Storage) normalize() error {
	switch s.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("invalid DRINKLOG_BACKEND %q: must be %s or %s", s.Backend, BackendJSON, BackendSQLite)
	}
	if s.SQLitePath == "" {
		s.SQLitePath = filepath.Join(s.DataDir, "drinklog.db")
	}
	return nil
}
