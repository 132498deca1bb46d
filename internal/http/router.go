package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/apply"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/config"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/feedback"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/http/handlers"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/http/middleware"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/metrics"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/preference"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/service"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/suggestion"

	_ "github.com/MichelAlforis/crm-alforis-sub002/docs"
)

// Deps are the engines the HTTP layer exposes.
type Deps struct {
	Store       store.Store
	Apply       *apply.Engine
	Router      *routing.Engine
	Feedback    *feedback.Tracker
	Preferences *preference.Learner
	Suggestions *suggestion.Service
	Processor   *service.ProcessingService
	Metrics     *metrics.Metrics
}

func Router(cfg config.Config, deps Deps, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" || cfg.CORSAllowed == "" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:       deps.Store,
		Apply:       deps.Apply,
		Router:      deps.Router,
		Feedback:    deps.Feedback,
		Preferences: deps.Preferences,
		Suggestions: deps.Suggestions,
		Processor:   deps.Processor,
		Validator:   apperr.NewValidator(),
		Logger:      logger,
	}

	r.GET("/healthz", h.Healthz)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		api.GET("/decisions/:input_id", h.DecisionDetails)
		api.GET("/rules", h.RulesList)
		api.GET("/suggestions", h.SuggestionsList)
		api.GET("/suggestions/:id", h.SuggestionDetails)
		api.GET("/feedback/accuracy", h.ModelAccuracy)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/apply", h.ApplyDecision)
		admin.POST("/route", h.Route)
		admin.POST("/rules", h.CreateRule)
		admin.PUT("/rules/:id", h.UpdateRule)
		admin.POST("/suggestions", h.CreateSuggestion)
		admin.POST("/suggestions/:id/approve", h.ApproveSuggestion)
		admin.POST("/suggestions/:id/reject", h.RejectSuggestion)
		admin.POST("/feedback", h.LogFeedback)
		admin.POST("/preferences", h.RecordChoice)
		admin.POST("/preferences/rank", h.RankCandidates)
		admin.POST("/messages/process", h.ProcessMessages)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
