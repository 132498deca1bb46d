// Package service ties the engines together for inbound messages:
// extraction, then suggestions, then routing.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/ai"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/suggestion"
)

// ErrExtraction wraps every failure of the extraction gateway.
var ErrExtraction = errors.New("extraction failed")

type ProcessingService struct {
	AI          ai.Adapter
	Suggestions *suggestion.Service
	Router      *routing.Engine
	Validator   *validator.Validate
	Logger      zerolog.Logger
}

func NewProcessingService(adapter ai.Adapter, sugg *suggestion.Service, router *routing.Engine, logger zerolog.Logger) *ProcessingService {
	return &ProcessingService{
		AI:          adapter,
		Suggestions: sugg,
		Router:      router,
		Validator:   apperr.NewValidator(),
		Logger:      logger,
	}
}

type RunSummary struct {
	Events   []map[string]any        `json:"events"`
	Counts   map[string]any          `json:"counts"`
	Outcomes []routing.ActionOutcome `json:"outcomes"`
	Samples  []map[string]any        `json:"samples,omitempty"`
}

type runCounts struct {
	extracted    int
	aiErrors     int
	latencyTotal int64
	created      int
	autoApplied  int
	pending      int
	skipped      int
	failed       int
	routed       int
	actionsOK    int
	actionsFail  int
	skipReasons  map[string]int
}

// ProcessMessage runs one message through the pipeline. A gateway failure is
// returned as is; suggestion and routing failures are counted in the summary.
func (s *ProcessingService) ProcessMessage(ctx context.Context, msg models.InboundMessage, debug bool) (RunSummary, error) {
	start := time.Now()
	if err := s.Validator.Struct(msg); err != nil {
		return RunSummary{}, apperr.FromValidator(err)
	}
	summary, c := s.newRun()
	if err := s.process(ctx, msg, debug, &summary, c); err != nil {
		return RunSummary{}, err
	}
	s.finish(&summary, c, 1, start)
	return summary, nil
}

// ProcessMessages runs a batch. Messages that fail validation or extraction
// are counted and skipped.
func (s *ProcessingService) ProcessMessages(ctx context.Context, msgs []models.InboundMessage, debug bool) RunSummary {
	start := time.Now()
	summary, c := s.newRun()
	summary.Events = append(summary.Events, map[string]any{
		"type":    "import_summary",
		"message": "Messages ready for processing",
		"count":   len(msgs),
		"time":    time.Now().UTC(),
	})
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := s.Validator.Struct(msg); err != nil {
			c.aiErrors++
			s.Logger.Warn().Err(apperr.FromValidator(err)).Str("message_id", msg.ID).Msg("invalid message skipped")
			continue
		}
		if err := s.process(ctx, msg, debug, &summary, c); err != nil {
			s.Logger.Warn().Err(err).Str("message_id", msg.ID).Msg("message skipped")
		}
	}
	s.finish(&summary, c, len(msgs), start)
	return summary
}

func (s *ProcessingService) newRun() (RunSummary, *runCounts) {
	return RunSummary{Counts: map[string]any{}, Outcomes: []routing.ActionOutcome{}},
		&runCounts{skipReasons: map[string]int{}}
}

func (s *ProcessingService) process(ctx context.Context, msg models.InboundMessage, debug bool, summary *RunSummary, c *runCounts) error {
	extraction, latencyMs, err := s.AI.Extract(ctx, msg)
	if err != nil {
		c.aiErrors++
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	extraction = normalizeExtraction(extraction)
	c.extracted++
	c.latencyTotal += latencyMs

	s.createSuggestions(ctx, msg, extraction, c, summary, debug)

	if s.Router == nil || extraction.Intent == "" {
		return nil
	}
	outcomes, err := s.Router.Route(ctx, msg.TeamID, extraction.Intent, extraction.IntentConfidence, routing.EmailContext{
		MessageID:   msg.ID,
		SenderName:  msg.SenderName,
		SenderEmail: msg.SenderEmail,
		CompanyName: extraction.CompanyName,
		Subject:     msg.Subject,
		Body:        msg.Body,
		ReceivedAt:  msg.ReceivedAt,
	})
	if err != nil {
		s.Logger.Error().Err(err).Str("message_id", msg.ID).Msg("routing failed")
		return nil
	}
	c.routed++
	for _, o := range outcomes {
		if o.Status == routing.OutcomeSucceeded {
			c.actionsOK++
		} else {
			c.actionsFail++
		}
	}
	summary.Outcomes = append(summary.Outcomes, outcomes...)
	return nil
}

func (s *ProcessingService) createSuggestions(ctx context.Context, msg models.InboundMessage, e ai.Extraction, c *runCounts, summary *RunSummary, debug bool) {
	groups := []struct {
		target     string
		candidates []ai.Candidate
	}{
		{models.TargetPerson, e.Persons},
		{models.TargetOrganisation, e.Organisations},
	}
	msgID := msg.ID
	for _, g := range groups {
		for _, cand := range g.candidates {
			for _, f := range cand.Fields {
				if reason := skipReason(g.target, f); reason != "" {
					c.skipped++
					c.skipReasons[reason]++
					continue
				}
				in := suggestion.CreateInput{
					TeamID:         msg.TeamID,
					TargetType:     g.target,
					TargetID:       cand.TargetID,
					FieldName:      f.Field,
					SuggestedValue: f.Value,
					Confidence:     f.Confidence,
					SourceModel:    e.ModelVersion,
					SourceEmailID:  &msgID,
				}
				if f.Reasoning != "" {
					r := f.Reasoning
					in.Reasoning = &r
				}
				sg, err := s.Suggestions.Create(ctx, in)
				if err != nil {
					c.failed++
					s.Logger.Error().Err(err).Str("message_id", msg.ID).Str("field", f.Field).Msg("create suggestion")
					var ve *apperr.ValidationError
					if debug && errors.As(err, &ve) && len(summary.Samples) < 5 {
						summary.Samples = append(summary.Samples, map[string]any{
							"message_id": msg.ID,
							"field":      f.Field,
							"error":      ve.Error(),
						})
					}
					continue
				}
				c.created++
				if sg.AutoApplied {
					c.autoApplied++
				} else {
					c.pending++
				}
			}
		}
	}
}

func skipReason(target string, f ai.FieldProposal) string {
	if strings.TrimSpace(f.Value) == "" {
		return "EMPTY_VALUE"
	}
	if _, ok := store.Column(target, f.Field); !ok {
		return "FIELD_NOT_WRITABLE"
	}
	return ""
}

func (s *ProcessingService) finish(summary *RunSummary, c *runCounts, total int, start time.Time) {
	summary.Events = append(summary.Events,
		map[string]any{
			"type":           "ai_extraction",
			"message":        "AI extraction complete",
			"count":          c.extracted,
			"avg_latency_ms": avgLatency(c.latencyTotal, c.extracted),
			"errors":         c.aiErrors,
			"time":           time.Now().UTC(),
		},
		map[string]any{
			"type":         "suggestions",
			"created":      c.created,
			"auto_applied": c.autoApplied,
			"pending":      c.pending,
			"skipped":      c.skipped,
			"failed":       c.failed,
			"time":         time.Now().UTC(),
		},
		map[string]any{
			"type":           "routing",
			"routed":         c.routed,
			"actions_ok":     c.actionsOK,
			"actions_failed": c.actionsFail,
			"elapsed_ms":     time.Since(start).Milliseconds(),
			"time":           time.Now().UTC(),
		},
	)

	summary.Counts["messages_processed"] = total
	summary.Counts["extracted"] = c.extracted
	summary.Counts["ai_errors"] = c.aiErrors
	summary.Counts["suggestions_created"] = c.created
	summary.Counts["auto_applied"] = c.autoApplied
	summary.Counts["pending"] = c.pending
	summary.Counts["skipped"] = c.skipped
	summary.Counts["suggestion_errors"] = c.failed
	summary.Counts["skip_reasons"] = c.skipReasons
	summary.Counts["routed"] = c.routed
	summary.Counts["actions_succeeded"] = c.actionsOK
	summary.Counts["actions_failed"] = c.actionsFail
}

func avgLatency(total int64, count int) int64 {
	if count == 0 {
		return 0
	}
	return total / int64(count)
}

var fieldAliases = map[string]string{
	"title":        "job_title",
	"position":     "job_title",
	"role":         "job_title",
	"fonction":     "job_title",
	"poste":        "job_title",
	"telephone":    "phone",
	"téléphone":    "phone",
	"tel":          "phone",
	"mobile":       "phone",
	"mail":         "email",
	"e-mail":       "email",
	"firstname":    "first_name",
	"prenom":       "first_name",
	"prénom":       "first_name",
	"lastname":     "last_name",
	"nom":          "last_name",
	"company":      "name",
	"organisation": "name",
	"site":         "website",
	"site_web":     "website",
	"url":          "website",
	"ville":        "city",
	"pays":         "country",
}

func normalizeExtraction(e ai.Extraction) ai.Extraction {
	e.Intent = strings.ToLower(strings.TrimSpace(e.Intent))
	if e.IntentConfidence < 0 {
		e.IntentConfidence = 0
	}
	if e.IntentConfidence > 100 {
		e.IntentConfidence = 100
	}
	e.Persons = normalizeCandidates(e.Persons)
	e.Organisations = normalizeCandidates(e.Organisations)
	return e
}

func normalizeCandidates(cands []ai.Candidate) []ai.Candidate {
	out := make([]ai.Candidate, 0, len(cands))
	for _, c := range cands {
		fields := make([]ai.FieldProposal, 0, len(c.Fields))
		for _, f := range c.Fields {
			f.Field = normalizeField(f.Field)
			f.Value = strings.TrimSpace(f.Value)
			fields = append(fields, f)
		}
		c.Fields = fields
		out = append(out, c)
	}
	return out
}

func normalizeField(name string) string {
	v := strings.ToLower(strings.TrimSpace(name))
	v = strings.ReplaceAll(v, " ", "_")
	if alias, ok := fieldAliases[v]; ok {
		return alias
	}
	return v
}

// NormalizeExtraction exposes extraction normalization for the debug endpoint.
func NormalizeExtraction(e ai.Extraction) ai.Extraction {
	return normalizeExtraction(e)
}
