// Package suggestion runs the review lifecycle of proposed field changes:
// pending until a human approves or rejects them, or auto-applied when the
// model is confident enough on a safe field.
package suggestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/feedback"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/metrics"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/preference"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

// PredictionType is the feedback bucket review decisions are recorded under.
const PredictionType = "field_suggestion"

type CreateInput struct {
	TeamID              int64   `json:"team_id" validate:"required,gt=0"`
	TargetType          string  `json:"target_type" validate:"required,oneof=person organisation"`
	TargetID            *int64  `json:"target_id" validate:"omitempty,gt=0"`
	FieldName           string  `json:"field_name" validate:"required,max=100"`
	CurrentValue        *string `json:"current_value"`
	SuggestedValue      string  `json:"suggested_value" validate:"required"`
	Confidence          float64 `json:"confidence" validate:"min=0,max=1"`
	SourceModel         string  `json:"source_model" validate:"required,max=100"`
	Reasoning           *string `json:"reasoning"`
	SourceEmailID       *string `json:"source_email_id"`
	SourceInteractionID *int64  `json:"source_interaction_id"`
}

type ReviewInput struct {
	ReviewerID int64   `json:"reviewer_id" validate:"required,gt=0"`
	FinalValue *string `json:"final_value"`
	Notes      *string `json:"notes"`
}

type Service struct {
	Store              store.Suggestions
	Feedback           *feedback.Tracker
	Preferences        *preference.Learner
	AutoApplyThreshold float64
	AutoApplyFields    map[string]bool
	Validator          *validator.Validate
	Logger             zerolog.Logger
	Metrics            *metrics.Metrics
	Now                func() time.Time
}

func New(st store.Suggestions, fb *feedback.Tracker, prefs *preference.Learner, threshold float64, fields []string, logger zerolog.Logger, m *metrics.Metrics) *Service {
	allow := make(map[string]bool, len(fields))
	for _, f := range fields {
		allow[strings.ToLower(strings.TrimSpace(f))] = true
	}
	return &Service{
		Store:              st,
		Feedback:           fb,
		Preferences:        prefs,
		AutoApplyThreshold: threshold,
		AutoApplyFields:    allow,
		Validator:          apperr.NewValidator(),
		Logger:             logger,
		Metrics:            m,
		Now:                time.Now,
	}
}

// Create stores a suggestion. When the policy allows it the field write and
// the insert of the auto_applied suggestion share one transaction; if the
// target cannot be written the suggestion is stored pending for review.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.Suggestion, error) {
	if err := s.Validator.Struct(in); err != nil {
		return models.Suggestion{}, apperr.FromValidator(err)
	}
	if _, ok := store.Column(in.TargetType, in.FieldName); !ok {
		return models.Suggestion{}, apperr.Validation("field_name", "%q is not a writable %s field", in.FieldName, in.TargetType)
	}

	now := s.Now().UTC()
	sg := models.Suggestion{
		TeamID:              in.TeamID,
		TargetType:          in.TargetType,
		TargetID:            in.TargetID,
		FieldName:           in.FieldName,
		CurrentValue:        in.CurrentValue,
		SuggestedValue:      in.SuggestedValue,
		Confidence:          in.Confidence,
		SourceModel:         in.SourceModel,
		Reasoning:           in.Reasoning,
		SourceEmailID:       in.SourceEmailID,
		SourceInteractionID: in.SourceInteractionID,
		Status:              models.SuggestionPending,
		CreatedAt:           now,
	}

	if s.autoApplicable(sg) {
		applied := sg
		reason := fmt.Sprintf("confidence %.2f >= %.2f on allow-listed field %s", sg.Confidence, s.AutoApplyThreshold, sg.FieldName)
		final := sg.SuggestedValue
		applied.Status = models.SuggestionAutoApplied
		applied.AutoApplied = true
		applied.AutoApplyReason = &reason
		applied.FinalValue = &final
		applied.ReviewedAt = &now

		err := s.Store.CreateAppliedSuggestion(ctx, &applied)
		switch {
		case err == nil:
			sg = applied
		case isTargetError(err):
			s.Logger.Warn().Err(err).
				Str("target_type", sg.TargetType).
				Int64("target_id", *sg.TargetID).
				Str("field", sg.FieldName).
				Msg("auto-apply failed, suggestion left pending")
		default:
			return models.Suggestion{}, apperr.Storage("create suggestion", err)
		}
	}

	if !sg.AutoApplied {
		if err := s.Store.CreateSuggestion(ctx, &sg); err != nil {
			return models.Suggestion{}, apperr.Storage("create suggestion", err)
		}
	}
	s.Metrics.Suggestion(sg.Status)
	if sg.AutoApplied {
		s.Logger.Info().
			Int64("suggestion_id", sg.ID).
			Str("target_type", sg.TargetType).
			Int64("target_id", *sg.TargetID).
			Str("field", sg.FieldName).
			Float64("confidence", sg.Confidence).
			Msg("suggestion auto-applied")
	}
	return sg, nil
}

func (s *Service) autoApplicable(sg models.Suggestion) bool {
	return sg.TargetID != nil &&
		sg.Confidence >= s.AutoApplyThreshold &&
		s.AutoApplyFields[strings.ToLower(sg.FieldName)]
}

func (s *Service) Get(ctx context.Context, id int64) (models.Suggestion, error) {
	sg, err := s.Store.GetSuggestion(ctx, id)
	if err != nil {
		return sg, storageErr("get suggestion", err)
	}
	return sg, nil
}

func (s *Service) List(ctx context.Context, teamID int64, status string, limit int) ([]models.Suggestion, error) {
	if teamID <= 0 {
		return nil, apperr.Validation("team_id", "is required")
	}
	switch status {
	case "", models.SuggestionPending, models.SuggestionApproved, models.SuggestionRejected, models.SuggestionAutoApplied:
	default:
		return nil, apperr.Validation("status", "unknown status %q", status)
	}
	out, err := s.Store.ListSuggestions(ctx, teamID, status, limit)
	if err != nil {
		return nil, apperr.Storage("list suggestions", err)
	}
	if out == nil {
		out = []models.Suggestion{}
	}
	return out, nil
}

func (s *Service) ListPending(ctx context.Context, teamID int64, limit int) ([]models.Suggestion, error) {
	return s.List(ctx, teamID, models.SuggestionPending, limit)
}

// Approve resolves the suggestion and, when the target is known, writes the
// final value to it in the same transaction. An edited final value is
// recorded as a correction.
func (s *Service) Approve(ctx context.Context, id int64, in ReviewInput) (models.Suggestion, error) {
	if err := s.Validator.Struct(in); err != nil {
		return models.Suggestion{}, apperr.FromValidator(err)
	}
	sg, err := s.pending(ctx, id)
	if err != nil {
		return sg, err
	}

	final := sg.SuggestedValue
	judgment := models.JudgmentAccepted
	if in.FinalValue != nil && strings.TrimSpace(*in.FinalValue) != sg.SuggestedValue {
		final = strings.TrimSpace(*in.FinalValue)
		judgment = models.JudgmentCorrected
	}
	if final == "" {
		return sg, apperr.Validation("final_value", "must not be empty")
	}

	resolved, err := s.Store.ResolveSuggestion(ctx, id, store.Resolution{
		Status:     models.SuggestionApproved,
		ReviewerID: &in.ReviewerID,
		FinalValue: &final,
		At:         s.Now().UTC(),
		Apply:      true,
	})
	if err != nil {
		return sg, storageErr("resolve suggestion", err)
	}

	s.Metrics.Suggestion(models.SuggestionApproved)
	s.Logger.Info().Int64("suggestion_id", id).Int64("reviewer", in.ReviewerID).Str("judgment", judgment).Msg("suggestion approved")
	s.mirror(ctx, resolved, in, judgment)
	return resolved, nil
}

func (s *Service) Reject(ctx context.Context, id int64, in ReviewInput) (models.Suggestion, error) {
	if err := s.Validator.Struct(in); err != nil {
		return models.Suggestion{}, apperr.FromValidator(err)
	}
	resolved, err := s.Store.ResolveSuggestion(ctx, id, store.Resolution{
		Status:     models.SuggestionRejected,
		ReviewerID: &in.ReviewerID,
		At:         s.Now().UTC(),
	})
	if err != nil {
		return resolved, storageErr("resolve suggestion", err)
	}

	s.Metrics.Suggestion(models.SuggestionRejected)
	s.Logger.Info().Int64("suggestion_id", id).Int64("reviewer", in.ReviewerID).Msg("suggestion rejected")
	s.mirror(ctx, resolved, in, models.JudgmentRejected)
	return resolved, nil
}

func (s *Service) pending(ctx context.Context, id int64) (models.Suggestion, error) {
	sg, err := s.Store.GetSuggestion(ctx, id)
	if err != nil {
		return sg, storageErr("get suggestion", err)
	}
	if sg.Resolved() {
		return sg, apperr.Conflict("suggestion %d is already %s", id, sg.Status)
	}
	return sg, nil
}

// mirror records the human decision as feedback and as a preference. The
// decision is already committed, so failures here are only logged.
func (s *Service) mirror(ctx context.Context, sg models.Suggestion, in ReviewInput, judgment string) {
	if s.Feedback != nil {
		fb := feedback.Input{
			TeamID:             sg.TeamID,
			UserID:             in.ReviewerID,
			PredictionType:     PredictionType,
			ModelUsed:          sg.SourceModel,
			OriginalPrediction: map[string]any{sg.FieldName: sg.SuggestedValue},
			Judgment:           judgment,
			OriginalConfidence: &sg.Confidence,
			ReferenceID:        &sg.ID,
			Notes:              in.Notes,
			Context:            map[string]any{"target_type": sg.TargetType, "field_name": sg.FieldName},
		}
		if judgment == models.JudgmentCorrected && sg.FinalValue != nil {
			fb.CorrectedData = map[string]any{sg.FieldName: *sg.FinalValue}
		}
		if _, err := s.Feedback.LogFeedback(ctx, fb); err != nil {
			s.Logger.Error().Err(err).Int64("suggestion_id", sg.ID).Msg("mirror feedback")
		}
	}

	if s.Preferences != nil {
		action := models.ChoiceAccept
		switch judgment {
		case models.JudgmentCorrected:
			action = models.ChoiceManual
		case models.JudgmentRejected:
			action = models.ChoiceReject
		}
		suggested, source, confidence := sg.SuggestedValue, sg.SourceModel, sg.Confidence
		_, err := s.Preferences.RecordChoice(ctx, preference.ChoiceInput{
			UserID:         in.ReviewerID,
			TeamID:         sg.TeamID,
			FieldName:      sg.FieldName,
			ContextType:    sg.TargetType,
			EntityID:       sg.TargetID,
			SuggestedValue: &suggested,
			Source:         &source,
			Confidence:     &confidence,
			Action:         action,
			FinalValue:     sg.FinalValue,
		})
		if err != nil {
			s.Logger.Error().Err(err).Int64("suggestion_id", sg.ID).Msg("mirror preference")
		}
	}
}

// isTargetError reports a failed write to the target record itself: the
// record is gone or the field cannot be written.
func isTargetError(err error) bool {
	var (
		nf *apperr.NotFoundError
		ve *apperr.ValidationError
	)
	return errors.As(err, &nf) || errors.As(err, &ve)
}

// storageErr keeps domain errors as they are and wraps everything else.
func storageErr(op string, err error) error {
	var (
		nf *apperr.NotFoundError
		ce *apperr.ConflictError
		ve *apperr.ValidationError
	)
	if errors.As(err, &nf) || errors.As(err, &ce) || errors.As(err, &ve) {
		return err
	}
	return apperr.Storage(op, err)
}
