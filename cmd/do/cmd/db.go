package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/templui/fintrack/internal/config"
	"github.com/templui/fintrack/internal/db"
	"github.com/templui/fintrack/internal/logger"
)

// openDB loads the configuration and connects to the configured database
func openDB() (*config.Config, *sqlx.DB, error) {
	cfg := config.Load()
	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)

	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}

	return cfg, database, nil
}
