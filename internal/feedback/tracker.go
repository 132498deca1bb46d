// Package feedback records human judgments on AI predictions and derives
// accuracy metrics from them.
package feedback

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/metrics"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

const (
	CategoryTotalRejection  = "total_rejection"
	CategoryFieldMissing    = "field_missing"
	CategoryMinorCorrection = "minor_correction"
	wrongValuePrefix        = "wrong_value_"

	DefaultDaysBack = 30
	topErrorsLimit  = 5
)

type Input struct {
	TeamID             int64          `json:"team_id" validate:"required,gt=0"`
	UserID             int64          `json:"user_id" validate:"required,gt=0"`
	PredictionType     string         `json:"prediction_type" validate:"required,max=100"`
	ModelUsed          string         `json:"model_used" validate:"required,max=100"`
	OriginalPrediction map[string]any `json:"original_prediction" validate:"required"`
	CorrectedData      map[string]any `json:"corrected_data"`
	Judgment           string         `json:"judgment" validate:"required,oneof=accepted corrected rejected"`
	OriginalConfidence *float64       `json:"original_confidence" validate:"omitempty,min=0,max=100"`
	ReferenceID        *int64         `json:"reference_id"`
	Notes              *string        `json:"notes"`
	Context            map[string]any `json:"context"`
}

type Result struct {
	Success         bool     `json:"success"`
	FeedbackID      int64    `json:"feedback_id"`
	ErrorCategories []string `json:"error_categories"`
}

type ErrorCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type Metrics struct {
	TeamID                     int64        `json:"team_id"`
	PredictionType             string       `json:"prediction_type"`
	ModelName                  string       `json:"model_name,omitempty"`
	DaysBack                   int          `json:"days_back"`
	TotalFeedbacks             int          `json:"total_feedbacks"`
	Accepted                   int          `json:"accepted"`
	Corrected                  int          `json:"corrected"`
	Rejected                   int          `json:"rejected"`
	AccuracyRate               float64      `json:"accuracy_rate"`
	CorrectionRate             float64      `json:"correction_rate"`
	RejectionRate              float64      `json:"rejection_rate"`
	AvgConfidenceWhenAccepted  float64      `json:"avg_confidence_when_accepted"`
	AvgConfidenceWhenCorrected float64      `json:"avg_confidence_when_corrected"`
	CommonErrors               []ErrorCount `json:"common_errors"`
	Recommendations            []string     `json:"recommendations"`
	Message                    string       `json:"message,omitempty"`
}

type Tracker struct {
	Store     store.Feedback
	Validator *validator.Validate
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

func New(st store.Feedback, logger zerolog.Logger, m *metrics.Metrics) *Tracker {
	return &Tracker{
		Store:     st,
		Validator: apperr.NewValidator(),
		Logger:    logger,
		Metrics:   m,
		Now:       time.Now,
	}
}

func (t *Tracker) LogFeedback(ctx context.Context, in Input) (Result, error) {
	if err := t.Validator.Struct(in); err != nil {
		return Result{}, apperr.FromValidator(err)
	}
	if in.Judgment == models.JudgmentCorrected && in.CorrectedData == nil {
		return Result{}, apperr.Validation("corrected_data", "is required when judgment is corrected")
	}

	categories := ErrorCategories(in.Judgment, in.OriginalPrediction, in.CorrectedData)
	rec := &models.FeedbackRecord{
		TeamID:             in.TeamID,
		UserID:             in.UserID,
		PredictionType:     in.PredictionType,
		ReferenceID:        in.ReferenceID,
		ModelUsed:          in.ModelUsed,
		OriginalPrediction: in.OriginalPrediction,
		OriginalConfidence: in.OriginalConfidence,
		CorrectedData:      in.CorrectedData,
		Judgment:           in.Judgment,
		ErrorCategories:    categories,
		Notes:              in.Notes,
		Context:            in.Context,
		CreatedAt:          t.Now().UTC(),
	}
	if err := t.Store.InsertFeedback(ctx, rec); err != nil {
		return Result{}, apperr.Storage("insert feedback", err)
	}

	t.Metrics.Feedback(in.PredictionType, in.Judgment)
	t.Logger.Info().
		Int64("feedback_id", rec.ID).
		Str("prediction_type", in.PredictionType).
		Str("model", in.ModelUsed).
		Str("judgment", in.Judgment).
		Strs("error_categories", categories).
		Msg("feedback logged")
	return Result{Success: true, FeedbackID: rec.ID, ErrorCategories: categories}, nil
}

// ErrorCategories derives what went wrong from a judgment and the two
// payloads. Keys are visited in sorted order so the result is stable.
func ErrorCategories(judgment string, original, corrected map[string]any) []string {
	switch judgment {
	case models.JudgmentAccepted:
		return []string{}
	case models.JudgmentRejected:
		return []string{CategoryTotalRejection}
	}

	keys := make([]string, 0, len(corrected))
	for k := range corrected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		missing bool
		wrong   []string
	)
	for _, k := range keys {
		ov, ok := original[k]
		if !ok {
			missing = true
			continue
		}
		if !sameValue(ov, corrected[k]) {
			wrong = append(wrong, wrongValuePrefix+k)
		}
	}

	out := []string{}
	if missing {
		out = append(out, CategoryFieldMissing)
	}
	out = append(out, wrong...)
	if len(out) == 0 {
		out = append(out, CategoryMinorCorrection)
	}
	return out
}

// sameValue compares through JSON so 3 and 3.0 are equal.
func sameValue(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}

func (t *Tracker) GetModelAccuracy(ctx context.Context, teamID int64, predictionType, modelName string, daysBack int) (Metrics, error) {
	if predictionType == "" {
		return Metrics{}, apperr.Validation("prediction_type", "is required")
	}
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}
	now := t.Now().UTC()
	records, err := t.Store.ListFeedback(ctx, store.FeedbackFilter{
		TeamID:         teamID,
		PredictionType: predictionType,
		ModelUsed:      modelName,
		Since:          now.AddDate(0, 0, -daysBack),
	})
	if err != nil {
		return Metrics{}, apperr.Storage("list feedback", err)
	}

	m := Summarize(records)
	m.TeamID = teamID
	m.PredictionType = predictionType
	m.ModelName = modelName
	m.DaysBack = daysBack
	return m, nil
}

// Summarize computes the metrics of a set of records. An empty set yields
// zero rates and a "no data" message.
func Summarize(records []models.FeedbackRecord) Metrics {
	m := Metrics{CommonErrors: []ErrorCount{}, Recommendations: []string{}}
	if len(records) == 0 {
		m.Message = "no data: no feedback recorded in this window"
		return m
	}

	var (
		accConf, corConf float64
		accN, corN       int
		counts           = map[string]int{}
	)
	for _, r := range records {
		switch r.Judgment {
		case models.JudgmentAccepted:
			m.Accepted++
			if r.OriginalConfidence != nil {
				accConf += *r.OriginalConfidence
				accN++
			}
		case models.JudgmentCorrected:
			m.Corrected++
			if r.OriginalConfidence != nil {
				corConf += *r.OriginalConfidence
				corN++
			}
		case models.JudgmentRejected:
			m.Rejected++
		}
		for _, c := range r.ErrorCategories {
			counts[c]++
		}
	}

	m.TotalFeedbacks = len(records)
	total := float64(m.TotalFeedbacks)
	m.AccuracyRate = round1(float64(m.Accepted) / total * 100)
	m.CorrectionRate = round1(float64(m.Corrected) / total * 100)
	m.RejectionRate = round1(float64(m.Rejected) / total * 100)
	if accN > 0 {
		m.AvgConfidenceWhenAccepted = round3(accConf / float64(accN))
	}
	if corN > 0 {
		m.AvgConfidenceWhenCorrected = round3(corConf / float64(corN))
	}

	for c, n := range counts {
		m.CommonErrors = append(m.CommonErrors, ErrorCount{Category: c, Count: n})
	}
	sort.Slice(m.CommonErrors, func(i, j int) bool {
		if m.CommonErrors[i].Count != m.CommonErrors[j].Count {
			return m.CommonErrors[i].Count > m.CommonErrors[j].Count
		}
		return m.CommonErrors[i].Category < m.CommonErrors[j].Category
	})
	if len(m.CommonErrors) > topErrorsLimit {
		m.CommonErrors = m.CommonErrors[:topErrorsLimit]
	}

	m.Recommendations = recommendations(m)
	return m
}

func recommendations(m Metrics) []string {
	out := []string{}
	if m.AccuracyRate < 70 {
		out = append(out, "Accuracy is below 70%: review the extraction prompt.")
	}
	if m.RejectionRate > 20 {
		out = append(out, "Rejection rate is above 20%: the model may not suit this prediction type.")
	}
	if m.CorrectionRate > 30 {
		out = append(out, "Correction rate is above 30%: tune the confidence threshold for auto-apply.")
	}
	for _, e := range m.CommonErrors {
		if e.Category == CategoryFieldMissing {
			out = append(out, "Fields are often missing: make the prompt ask for every expected field.")
			break
		}
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
