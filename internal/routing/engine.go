// Package routing fires the actions of the rules matching a detected intent.
package routing

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/metrics"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

type Engine struct {
	Rules    store.Rules
	Executor ActionExecutor
	Hours    BusinessHours
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func New(rules store.Rules, exec ActionExecutor, hours BusinessHours, logger zerolog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		Rules:    rules,
		Executor: exec,
		Hours:    hours,
		Logger:   logger,
		Metrics:  m,
		Now:      time.Now,
	}
}

// Route runs every matching rule, highest priority first. Failures of single
// actions are reported in the outcomes and never stop the batch.
func (e *Engine) Route(ctx context.Context, teamID int64, intent string, confidence int, email EmailContext) ([]ActionOutcome, error) {
	if strings.TrimSpace(intent) == "" {
		return nil, apperr.Validation("intent", "is required")
	}
	if confidence < 0 || confidence > 100 {
		return nil, apperr.Validation("confidence", "must be between 0 and 100, got %d", confidence)
	}

	rules, err := e.Rules.ListActiveRules(ctx, teamID, intent)
	if err != nil {
		return nil, apperr.Storage("list routing rules", err)
	}
	matched := e.Select(rules, intent, confidence, email)

	outcomes := []ActionOutcome{}
	for _, r := range matched {
		outcomes = append(outcomes, e.runRule(ctx, r, teamID, intent, confidence, email)...)
		if err := e.Rules.MarkRuleExecuted(ctx, r.ID, e.Now().UTC()); err != nil {
			e.Logger.Warn().Err(err).Int64("rule_id", r.ID).Msg("could not record rule execution")
		}
	}
	return outcomes, nil
}

// Select filters rules down to those that fire for the given input, ordered by
// priority descending and creation order within a priority.
func (e *Engine) Select(rules []models.RoutingRule, intent string, confidence int, email EmailContext) []models.RoutingRule {
	out := make([]models.RoutingRule, 0, len(rules))
	for _, r := range rules {
		if !r.IsActive || r.IntentTrigger != intent || r.MinConfidence > confidence {
			continue
		}
		if !e.conditionsMet(r.Conditions, email) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (e *Engine) conditionsMet(c models.RuleConditions, email EmailContext) bool {
	if len(c.SenderDomains) > 0 && !domainAllowed(SenderDomain(email.SenderEmail), c.SenderDomains) {
		return false
	}
	if len(c.Keywords) > 0 && !containsKeyword(email.Subject+"\n"+email.Body, c.Keywords) {
		return false
	}
	if c.BusinessHoursOnly {
		at := email.ReceivedAt
		if at.IsZero() {
			at = e.Now()
		}
		if !e.Hours.Contains(at) {
			return false
		}
	}
	return true
}

// SenderDomain returns the lower-cased part after the last @.
func SenderDomain(addr string) string {
	i := strings.LastIndex(addr, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(addr[i+1:]))
}

func domainAllowed(domain string, allowed []string) bool {
	if domain == "" {
		return false
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a), "@"))
		if domain == a || strings.HasSuffix(domain, "."+a) {
			return true
		}
	}
	return false
}

func containsKeyword(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func (e *Engine) runRule(ctx context.Context, r models.RoutingRule, teamID int64, intent string, confidence int, email EmailContext) []ActionOutcome {
	vars := placeholders(intent, confidence, email)
	outcomes := make([]ActionOutcome, 0, len(r.Actions))
	for i, ra := range r.Actions {
		a := Action{
			RuleID:     r.ID,
			RuleName:   r.Name,
			Index:      i,
			TeamID:     teamID,
			Intent:     intent,
			Confidence: confidence,
			Type:       ra.Type,
			Params:     substituteParams(ra.Params, vars),
			Email:      email,
		}
		o := e.runAction(ctx, a)
		outcomes = append(outcomes, o)
		e.Metrics.RoutingAction(a.Type, o.Status)
	}
	e.Logger.Info().
		Int64("rule_id", r.ID).
		Str("rule", r.Name).
		Str("intent", intent).
		Int("confidence", confidence).
		Int("actions", len(r.Actions)).
		Msg("routing rule executed")
	return outcomes
}

func (e *Engine) runAction(ctx context.Context, a Action) (o ActionOutcome) {
	o = ActionOutcome{RuleID: a.RuleID, RuleName: a.RuleName, ActionIndex: a.Index, Type: a.Type}
	if !KnownAction(a.Type) {
		o.Status = OutcomeFailed
		o.Error = fmt.Sprintf("unknown action type %q", a.Type)
		e.Logger.Warn().Int64("rule_id", a.RuleID).Str("type", a.Type).Msg("skipping unknown action type")
		return o
	}
	if e.Executor == nil {
		o.Status = OutcomeFailed
		o.Error = "no action executor configured"
		return o
	}

	defer func() {
		if rec := recover(); rec != nil {
			o.Status = OutcomeFailed
			o.Output = nil
			o.Error = fmt.Sprintf("action panicked: %v", rec)
			e.Logger.Error().Int64("rule_id", a.RuleID).Str("type", a.Type).Interface("panic", rec).Msg("routing action panicked")
		}
	}()

	out, err := e.Executor.Execute(ctx, a)
	if err != nil {
		o.Status = OutcomeFailed
		o.Error = err.Error()
		e.Logger.Warn().Err(err).Int64("rule_id", a.RuleID).Str("type", a.Type).Msg("routing action failed")
		return o
	}
	o.Status = OutcomeSucceeded
	o.Output = out
	return o
}

func placeholders(intent string, confidence int, email EmailContext) *strings.Replacer {
	return strings.NewReplacer(
		"{sender_name}", email.SenderName,
		"{sender_email}", email.SenderEmail,
		"{sender_domain}", SenderDomain(email.SenderEmail),
		"{company_name}", email.CompanyName,
		"{subject}", email.Subject,
		"{intent}", intent,
		"{confidence}", strconv.Itoa(confidence),
	)
}

// substituteParams copies params, replacing placeholders in every string it
// reaches through nested maps and lists.
func substituteParams(params map[string]any, r *strings.Replacer) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = substituteValue(v, r)
	}
	return out
}

func substituteValue(v any, r *strings.Replacer) any {
	switch t := v.(type) {
	case string:
		return r.Replace(t)
	case map[string]any:
		return substituteParams(t, r)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = substituteValue(item, r)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = r.Replace(item)
		}
		return out
	default:
		return v
	}
}
