package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/feedback"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/preference"
)

// @Summary Log feedback on a prediction
// @Tags feedback
// @Accept json
// @Produce json
// @Param body body feedback.Input true "feedback"
// @Success 201 {object} feedback.Result
// @Failure 400 {object} map[string]any
// @Router /api/feedback [post]
func (h *Handler) LogFeedback(c *gin.Context) {
	var in feedback.Input
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.Feedback.LogFeedback(c.Request.Context(), in)
	if err != nil {
		h.writeAppError(c, err, "Failed to log feedback")
		return
	}
	c.JSON(http.StatusCreated, res)
}

// @Summary Model accuracy
// @Tags feedback
// @Produce json
// @Param team_id query int true "team"
// @Param prediction_type query string true "prediction type"
// @Param model query string false "model name"
// @Param days_back query int false "window in days, 30 by default"
// @Success 200 {object} feedback.Metrics
// @Router /api/feedback/accuracy [get]
func (h *Handler) ModelAccuracy(c *gin.Context) {
	teamID, ok := queryInt64(c, "team_id", true)
	if !ok {
		return
	}
	daysBack, _ := strconv.Atoi(c.Query("days_back"))
	m, err := h.Feedback.GetModelAccuracy(c.Request.Context(), teamID, c.Query("prediction_type"), c.Query("model"), daysBack)
	if err != nil {
		h.writeAppError(c, err, "Failed to compute accuracy")
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary Record a suggestion choice
// @Tags preferences
// @Accept json
// @Produce json
// @Param body body preference.ChoiceInput true "choice"
// @Success 201 {object} models.UserPreferenceRecord
// @Router /api/preferences [post]
func (h *Handler) RecordChoice(c *gin.Context) {
	var in preference.ChoiceInput
	if !bindJSON(c, &in) {
		return
	}
	rec, err := h.Preferences.RecordChoice(c.Request.Context(), in)
	if err != nil {
		h.writeAppError(c, err, "Failed to record choice")
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// @Summary Rank candidate values
// @Description Orders candidates by the decayed choice history of the user (or team) for the field.
// @Tags preferences
// @Accept json
// @Produce json
// @Param body body preference.RankInput true "candidates"
// @Success 200 {object} map[string]any
// @Router /api/preferences/rank [post]
func (h *Handler) RankCandidates(c *gin.Context) {
	var in preference.RankInput
	if !bindJSON(c, &in) {
		return
	}
	ranked, err := h.Preferences.Rank(c.Request.Context(), in)
	if err != nil {
		h.writeAppError(c, err, "Failed to rank candidates")
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": ranked})
}
