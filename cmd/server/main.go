package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/actions"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/ai"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/app"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/apply"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/config"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/dedup"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/feedback"
	httpapi "github.com/MichelAlforis/crm-alforis-sub002/internal/http"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/metrics"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/preference"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/service"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/suggestion"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.NewLogger(cfg, "autofill-engine")

	ctx := context.Background()
	st, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	m := metrics.New()
	exec := actions.FromConfig(cfg, logger)
	router := routing.New(st, exec, routing.BusinessHours{
		Start:    cfg.BusinessHoursStart,
		End:      cfg.BusinessHoursEnd,
		Location: cfg.BusinessLocation(),
	}, logger, m)

	if cfg.RulesFile != "" {
		inputs, err := routing.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.RulesFile).Msg("failed to load rules")
		}
		n, err := routing.Seed(ctx, st, inputs)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to seed rules")
		}
		logger.Info().Int("created", n).Str("file", cfg.RulesFile).Msg("rules seeded")
	}

	fb := feedback.New(st, logger, m)
	prefs := preference.New(st, cfg.PreferenceTTL, logger)
	sugg := suggestion.New(st, fb, prefs, cfg.AutoApplyThreshold, cfg.AutoApplyFieldList(), logger, m)

	var adapter ai.Adapter
	if cfg.AIURL == "" {
		adapter = ai.MockAdapter{ModelVersion: "mock-v1"}
		logger.Info().Msg("using mock AI adapter")
	} else {
		adapter = ai.HTTPAdapter{BaseURL: cfg.AIURL, Client: &http.Client{Timeout: cfg.RequestTimeout}}
	}

	handler := httpapi.Router(cfg, httpapi.Deps{
		Store:       st,
		Apply:       apply.New(st, dedup.New(cfg.DedupSimilarity, cfg.DedupWindow), logger, m),
		Router:      router,
		Feedback:    fb,
		Preferences: prefs,
		Suggestions: sugg,
		Processor:   service.NewProcessingService(adapter, sugg, router, logger),
		Metrics:     m,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
