package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
)

type RouteRequest struct {
	TeamID     int64                `json:"team_id"`
	Intent     string               `json:"intent"`
	Confidence int                  `json:"confidence"`
	Email      routing.EmailContext `json:"email"`
}

// @Summary Route a detected intent
// @Description Runs the actions of every active rule matching the intent, highest priority first.
// @Tags routing
// @Accept json
// @Produce json
// @Param body body RouteRequest true "intent"
// @Success 200 {object} map[string]any
// @Router /api/route [post]
func (h *Handler) Route(c *gin.Context) {
	var req RouteRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.TeamID <= 0 {
		h.writeAppError(c, apperr.Validation("team_id", "is required"), "")
		return
	}
	outcomes, err := h.Router.Route(c.Request.Context(), req.TeamID, req.Intent, req.Confidence, req.Email)
	if err != nil {
		h.writeAppError(c, err, "Failed to route intent")
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

// @Summary List routing rules
// @Tags routing
// @Produce json
// @Param team_id query int true "team"
// @Success 200 {array} models.RoutingRule
// @Router /api/rules [get]
func (h *Handler) RulesList(c *gin.Context) {
	teamID, ok := queryInt64(c, "team_id", true)
	if !ok {
		return
	}
	rules, err := h.Store.ListRules(c.Request.Context(), teamID)
	if err != nil {
		h.writeAppError(c, err, "Failed to list rules")
		return
	}
	if rules == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// @Summary Create a routing rule
// @Tags routing
// @Accept json
// @Produce json
// @Param body body routing.RuleInput true "rule"
// @Success 201 {object} models.RoutingRule
// @Failure 400 {object} map[string]any
// @Router /api/rules [post]
func (h *Handler) CreateRule(c *gin.Context) {
	var in routing.RuleInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.checkRule(in); err != nil {
		h.writeAppError(c, err, "")
		return
	}
	rule := in.Rule()
	if err := h.Store.CreateRule(c.Request.Context(), &rule); err != nil {
		h.writeAppError(c, err, "Failed to create rule")
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// @Summary Update a routing rule
// @Description Replaces the editable fields. Send is_active=false to disable a rule.
// @Tags routing
// @Accept json
// @Produce json
// @Param id path int true "rule id"
// @Param body body routing.RuleInput true "rule"
// @Success 200 {object} models.RoutingRule
// @Failure 404 {object} map[string]any
// @Router /api/rules/{id} [put]
func (h *Handler) UpdateRule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in routing.RuleInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.checkRule(in); err != nil {
		h.writeAppError(c, err, "")
		return
	}

	current, err := h.Store.GetRule(c.Request.Context(), id)
	if err != nil {
		h.writeAppError(c, err, "Failed to get rule")
		return
	}
	if current.TeamID != in.TeamID {
		h.writeAppError(c, apperr.Validation("team_id", "rule %d belongs to another team", id), "")
		return
	}
	rule := in.Rule()
	rule.ID = current.ID
	rule.ExecutionCount = current.ExecutionCount
	rule.LastExecutedAt = current.LastExecutedAt
	rule.CreatedAt = current.CreatedAt
	if err := h.Store.UpdateRule(c.Request.Context(), &rule); err != nil {
		h.writeAppError(c, err, "Failed to update rule")
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *Handler) checkRule(in routing.RuleInput) error {
	if err := h.Validator.Struct(in); err != nil {
		return apperr.FromValidator(err)
	}
	return routing.CheckActions(in.Actions)
}
