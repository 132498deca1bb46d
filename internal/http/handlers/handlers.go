package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/apply"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/feedback"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/preference"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/service"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/suggestion"
)

type Handler struct {
	Store       store.Store
	Apply       *apply.Engine
	Router      *routing.Engine
	Feedback    *feedback.Tracker
	Preferences *preference.Learner
	Suggestions *suggestion.Service
	Processor   *service.ProcessingService
	Validator   *validator.Validate
	Logger      zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeAppError maps the engine error taxonomy onto the error envelope.
// message is used for failures the caller cannot act on.
func (h *Handler) writeAppError(c *gin.Context, err error, message string) {
	var (
		ve *apperr.ValidationError
		ce *apperr.ConflictError
		se *apperr.StorageError
	)
	switch {
	case errors.As(err, &ve):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", ve.Error(), gin.H{"field": ve.Field})
	case errors.As(err, &se):
		// A failed transaction is a server fault even when a lookup inside it came back empty.
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg(message)
		writeError(c, http.StatusInternalServerError, "DB_ERROR", message, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.As(err, &ce):
		writeError(c, http.StatusConflict, "CONFLICT", ce.Error(), nil)
	case errors.Is(err, apperr.ErrDuplicate):
		writeError(c, http.StatusConflict, "CONFLICT", "Resource already exists", nil)
	case errors.Is(err, service.ErrExtraction):
		h.Logger.Error().Err(err).Msg(message)
		writeError(c, http.StatusBadGateway, "AI_ERROR", message, err.Error())
	default:
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg(message)
		writeError(c, http.StatusInternalServerError, "DB_ERROR", message, err.Error())
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "id must be a positive integer", gin.H{"field": "id"})
		return 0, false
	}
	return id, true
}

func queryInt64(c *gin.Context, name string, required bool) (int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		if required {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", name+" is required", gin.H{"field": name})
			return 0, false
		}
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", name+" must be a non-negative integer", gin.H{"field": name})
		return 0, false
	}
	return v, true
}

func isTrue(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}
