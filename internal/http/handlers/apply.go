package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apply"
)

// @Summary Apply an autofill decision
// @Description Creates or reuses the person, organisation and interaction of a decision. Replaying an input_id returns already_applied.
// @Tags apply
// @Accept json
// @Produce json
// @Param body body apply.Request true "decision"
// @Success 200 {object} apply.Result
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/apply [post]
func (h *Handler) ApplyDecision(c *gin.Context) {
	var req apply.Request
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Apply.Apply(c.Request.Context(), req)
	if err != nil {
		h.writeAppError(c, err, "Failed to apply decision")
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Decision log entry
// @Tags apply
// @Produce json
// @Param input_id path string true "input id"
// @Success 200 {object} models.DecisionLogEntry
// @Failure 404 {object} map[string]any
// @Router /api/decisions/{input_id} [get]
func (h *Handler) DecisionDetails(c *gin.Context) {
	entry, err := h.Store.GetDecisionLog(c.Request.Context(), c.Param("input_id"))
	if err != nil {
		h.writeAppError(c, err, "Failed to get decision")
		return
	}
	c.JSON(http.StatusOK, entry)
}
