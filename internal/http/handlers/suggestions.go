package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/suggestion"
)

// @Summary Create a suggestion
// @Description Stores a proposed field change. Confident proposals on allow-listed fields of a known record are applied at once.
// @Tags suggestions
// @Accept json
// @Produce json
// @Param body body suggestion.CreateInput true "suggestion"
// @Success 201 {object} models.Suggestion
// @Failure 400 {object} map[string]any
// @Router /api/suggestions [post]
func (h *Handler) CreateSuggestion(c *gin.Context) {
	var in suggestion.CreateInput
	if !bindJSON(c, &in) {
		return
	}
	sg, err := h.Suggestions.Create(c.Request.Context(), in)
	if err != nil {
		h.writeAppError(c, err, "Failed to create suggestion")
		return
	}
	c.JSON(http.StatusCreated, sg)
}

// @Summary List suggestions
// @Tags suggestions
// @Produce json
// @Param team_id query int true "team"
// @Param status query string false "pending (default), approved, rejected, auto_applied or all"
// @Param limit query int false "max rows, 50 by default"
// @Success 200 {array} models.Suggestion
// @Router /api/suggestions [get]
func (h *Handler) SuggestionsList(c *gin.Context) {
	teamID, ok := queryInt64(c, "team_id", true)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	status := c.DefaultQuery("status", "pending")
	if status == "all" {
		status = ""
	}
	out, err := h.Suggestions.List(c.Request.Context(), teamID, status, limit)
	if err != nil {
		h.writeAppError(c, err, "Failed to list suggestions")
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary Suggestion details
// @Tags suggestions
// @Produce json
// @Param id path int true "suggestion id"
// @Success 200 {object} models.Suggestion
// @Failure 404 {object} map[string]any
// @Router /api/suggestions/{id} [get]
func (h *Handler) SuggestionDetails(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sg, err := h.Suggestions.Get(c.Request.Context(), id)
	if err != nil {
		h.writeAppError(c, err, "Failed to get suggestion")
		return
	}
	c.JSON(http.StatusOK, sg)
}

// @Summary Approve a suggestion
// @Description An edited final_value is written instead of the suggested one and logged as a correction.
// @Tags suggestions
// @Accept json
// @Produce json
// @Param id path int true "suggestion id"
// @Param body body suggestion.ReviewInput true "review"
// @Success 200 {object} models.Suggestion
// @Failure 409 {object} map[string]any
// @Router /api/suggestions/{id}/approve [post]
func (h *Handler) ApproveSuggestion(c *gin.Context) {
	h.review(c, h.Suggestions.Approve, "Failed to approve suggestion")
}

// @Summary Reject a suggestion
// @Tags suggestions
// @Accept json
// @Produce json
// @Param id path int true "suggestion id"
// @Param body body suggestion.ReviewInput true "review"
// @Success 200 {object} models.Suggestion
// @Failure 409 {object} map[string]any
// @Router /api/suggestions/{id}/reject [post]
func (h *Handler) RejectSuggestion(c *gin.Context) {
	h.review(c, h.Suggestions.Reject, "Failed to reject suggestion")
}

type reviewFunc func(ctx context.Context, id int64, in suggestion.ReviewInput) (models.Suggestion, error)

func (h *Handler) review(c *gin.Context, fn reviewFunc, message string) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in suggestion.ReviewInput
	if !bindJSON(c, &in) {
		return
	}
	sg, err := fn(c.Request.Context(), id, in)
	if err != nil {
		h.writeAppError(c, err, message)
		return
	}
	c.JSON(http.StatusOK, sg)
}
