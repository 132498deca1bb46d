package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/app"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/config"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/feedback"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/maintenance"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/preference"
)

func main() {
	once := flag.Bool("once", false, "run every job once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.NewLogger(cfg, "autofill-maintenance")

	ctx := context.Background()
	st, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	jobs := maintenance.New(
		preference.New(st, cfg.PreferenceTTL, logger),
		feedback.New(st, logger, nil),
		logger,
	)

	if *once {
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		if err := jobs.RunOnce(runCtx); err != nil {
			logger.Error().Err(err).Msg("maintenance failed")
			os.Exit(1)
		}
		return
	}

	c, err := jobs.Schedule(cfg.RetentionSchedule, cfg.RollupSchedule, time.UTC)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid schedule")
	}
	c.Start()
	logger.Info().
		Str("retention", cfg.RetentionSchedule).
		Str("rollup", cfg.RollupSchedule).
		Msg("maintenance scheduled")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	<-c.Stop().Done()
	logger.Info().Msg("maintenance stopped")
}
