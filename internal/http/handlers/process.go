package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
)

type ProcessRequest struct {
	Message  *models.InboundMessage  `json:"message"`
	Messages []models.InboundMessage `json:"messages"`
}

// @Summary Process inbound messages
// @Description Extracts suggestions from one message or a batch and routes the detected intents.
// @Tags process
// @Accept json
// @Produce json
// @Param debug query bool false "include failing samples"
// @Param body body ProcessRequest true "message or messages"
// @Success 200 {object} service.RunSummary
// @Failure 502 {object} map[string]any
// @Router /api/messages/process [post]
func (h *Handler) ProcessMessages(c *gin.Context) {
	var req ProcessRequest
	if !bindJSON(c, &req) {
		return
	}
	debug := isTrue(c.Query("debug"))

	switch {
	case req.Message != nil:
		summary, err := h.Processor.ProcessMessage(c.Request.Context(), *req.Message, debug)
		if err != nil {
			h.writeAppError(c, err, "Processing failed")
			return
		}
		c.JSON(http.StatusOK, summary)
	case len(req.Messages) > 0:
		c.JSON(http.StatusOK, h.Processor.ProcessMessages(c.Request.Context(), req.Messages, debug))
	default:
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "message or messages is required", gin.H{"field": "message"})
	}
}
