// Package app holds the process bootstrap shared by the commands.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/config"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/db"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/db/sqlitestore"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

func NewLogger(cfg config.Config, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return log.Level(level).With().Str("service", service).Logger()
}

// OpenStore connects to Postgres when DATABASE_URL is set and falls back to
// the embedded SQLite file otherwise. Both apply their schema.
func OpenStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		logger.Info().Msg("using postgres store")
		return pg, nil
	}
	s, err := sqlitestore.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("path", cfg.SQLitePath).Msg("using sqlite store")
	return s, nil
}
