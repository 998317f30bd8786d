package factory

import (
	"fmt"
	"strings"

	"github.com/minekeeper/minekeeper/internal/history"
	"github.com/minekeeper/minekeeper/internal/history/clickhouse"
	"github.com/minekeeper/minekeeper/internal/history/postgres"
	"github.com/minekeeper/minekeeper/internal/history/sqlite"
)

// Config selects and configures a history sink backend.
type Config struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Type    string `json:"type" mapstructure:"type"` // sqlite | postgres | clickhouse
	DSN     string `json:"dsn" mapstructure:"dsn"`
	// ClickHouse-specific settings.
	Database string `json:"database" mapstructure:"database"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Table    string `json:"table" mapstructure:"table"`
}

// New builds the configured sink. Returns (nil, nil) when history is disabled.
func New(cfg Config) (history.Sink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "sqlite":
		return sqlite.New(cfg.DSN)
	case "postgres", "postgresql":
		return postgres.New(cfg.DSN)
	case "clickhouse":
		db := cfg.Database
		if db == "" {
			db = "default"
		}
		user := cfg.Username
		if user == "" {
			user = "default"
		}
		return clickhouse.New(cfg.DSN, db, user, cfg.Password, cfg.Table)
	default:
		return nil, fmt.Errorf("unknown history sink type %q", cfg.Type)
	}
}
