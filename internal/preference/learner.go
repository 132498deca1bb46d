// Package preference logs which suggestions users pick and turns that log
// into a ranking signal.
package preference

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

const (
	DefaultTTL = 90 * 24 * time.Hour
	HalfLife   = 30 * 24 * time.Hour
)

var choiceWeights = map[string]float64{
	models.ChoiceAccept: 1,
	models.ChoiceManual: 0.5,
	models.ChoiceReject: -1,
	models.ChoiceIgnore: -0.25,
}

type ChoiceInput struct {
	UserID         int64    `json:"user_id" validate:"required,gt=0"`
	TeamID         int64    `json:"team_id" validate:"required,gt=0"`
	FieldName      string   `json:"field_name" validate:"required,max=100"`
	ContextType    string   `json:"context_type" validate:"required,max=50"`
	EntityID       *int64   `json:"entity_id"`
	SuggestedValue *string  `json:"suggested_value"`
	Source         *string  `json:"suggestion_source"`
	Confidence     *float64 `json:"suggestion_confidence" validate:"omitempty,min=0,max=1"`
	Rank           *int     `json:"suggestion_rank" validate:"omitempty,min=0"`
	Action         string   `json:"action" validate:"required,oneof=accept reject manual ignore"`
	FinalValue     *string  `json:"final_value"`
}

type Candidate struct {
	Value      string  `json:"value" validate:"required"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence" validate:"min=0,max=1"`
}

type RankInput struct {
	TeamID     int64       `json:"team_id" validate:"required,gt=0"`
	UserID     *int64      `json:"user_id"`
	FieldName  string      `json:"field_name" validate:"required"`
	Candidates []Candidate `json:"candidates" validate:"dive"`
}

type RankedCandidate struct {
	Candidate
	Score float64 `json:"score"`
}

type Learner struct {
	Store     store.Preferences
	TTL       time.Duration
	Validator *validator.Validate
	Logger    zerolog.Logger
	Now       func() time.Time
}

func New(st store.Preferences, ttl time.Duration, logger zerolog.Logger) *Learner {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Learner{
		Store:     st,
		TTL:       ttl,
		Validator: apperr.NewValidator(),
		Logger:    logger,
		Now:       time.Now,
	}
}

// RecordChoice appends one choice. Its expiry is fixed now and never moves.
func (l *Learner) RecordChoice(ctx context.Context, in ChoiceInput) (models.UserPreferenceRecord, error) {
	if err := l.Validator.Struct(in); err != nil {
		return models.UserPreferenceRecord{}, apperr.FromValidator(err)
	}
	created := l.Now().UTC()
	rec := models.UserPreferenceRecord{
		UserID:               in.UserID,
		TeamID:               in.TeamID,
		FieldName:            in.FieldName,
		ContextType:          in.ContextType,
		EntityID:             in.EntityID,
		SuggestedValue:       in.SuggestedValue,
		SuggestionSource:     in.Source,
		SuggestionConfidence: in.Confidence,
		SuggestionRank:       in.Rank,
		Action:               in.Action,
		FinalValue:           in.FinalValue,
		CreatedAt:            created,
		ExpiresAt:            created.Add(l.TTL),
	}
	if err := l.Store.InsertPreference(ctx, &rec); err != nil {
		return models.UserPreferenceRecord{}, apperr.Storage("insert preference", err)
	}
	l.Logger.Debug().
		Int64("user_id", in.UserID).
		Str("field", in.FieldName).
		Str("action", in.Action).
		Msg("preference recorded")
	return rec, nil
}

func IsExpired(rec models.UserPreferenceRecord, now time.Time) bool {
	return !now.Before(rec.ExpiresAt)
}

// Purge deletes expired rows and returns how many went.
func (l *Learner) Purge(ctx context.Context) (int64, error) {
	n, err := l.Store.PurgeExpiredPreferences(ctx, l.Now().UTC())
	if err != nil {
		return 0, apperr.Storage("purge preferences", err)
	}
	l.Logger.Info().Int64("deleted", n).Msg("expired preferences purged")
	return n, nil
}

// Rank orders candidates by the decayed choice history for the field, then by
// their own confidence. Candidates with equal scores keep their input order.
func (l *Learner) Rank(ctx context.Context, in RankInput) ([]RankedCandidate, error) {
	if err := l.Validator.Struct(in); err != nil {
		return nil, apperr.FromValidator(err)
	}
	now := l.Now().UTC()
	history, err := l.Store.ListActivePreferences(ctx, store.PreferenceFilter{
		TeamID:    in.TeamID,
		UserID:    in.UserID,
		FieldName: in.FieldName,
		Now:       now,
	})
	if err != nil {
		return nil, apperr.Storage("list preferences", err)
	}

	out := make([]RankedCandidate, len(in.Candidates))
	for i, c := range in.Candidates {
		out[i] = RankedCandidate{Candidate: c, Score: Score(history, c.Value, now)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out, nil
}

// Score sums the weights of the choices that concern value, each halved for
// every HalfLife of age. Expired records do not count.
func Score(history []models.UserPreferenceRecord, value string, now time.Time) float64 {
	value = normalize(value)
	var score float64
	for _, r := range history {
		if IsExpired(r, now) || !concerns(r, value) {
			continue
		}
		age := now.Sub(r.CreatedAt)
		if age < 0 {
			age = 0
		}
		decay := math.Pow(0.5, float64(age)/float64(HalfLife))
		score += choiceWeights[r.Action] * decay
	}
	return math.Round(score*1e4) / 1e4
}

func concerns(r models.UserPreferenceRecord, value string) bool {
	if r.Action == models.ChoiceManual {
		return r.FinalValue != nil && normalize(*r.FinalValue) == value
	}
	return r.SuggestedValue != nil && normalize(*r.SuggestedValue) == value
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
