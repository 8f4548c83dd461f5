// Package cli implements the newsletterd subcommands: serve (HTTP API plus
// embedded delivery workers), worker (queue drain only), and migrate (schema
// setup). Shared process bootstrap (env loading, logging, config, database)
// lives here so every command starts the same way.
package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/config"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
	"github.com/tbourn/go-newsletter-backend/internal/sysutil"
)

// bootstrap loads .env (best effort), the validated configuration, and
// configures global zerolog output. Every subcommand calls it first.
func bootstrap() (config.Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return cfg, nil
}

// openDB opens the configured SQLite database and applies pending migrations.
func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
