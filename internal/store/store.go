// Package store declares the persistence contracts the engines depend on.
// internal/db implements them on Postgres, internal/db/sqlitestore on SQLite.
package store

import (
	"context"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
)

// DecisionTx is the view of storage available inside one apply transaction.
type DecisionTx interface {
	GetDecisionLog(ctx context.Context, inputID string) (models.DecisionLogEntry, error)
	// InsertDecisionLog fails with apperr.ErrDuplicate when input_id exists.
	InsertDecisionLog(ctx context.Context, e *models.DecisionLogEntry) error

	PersonExists(ctx context.Context, id int64) (bool, error)
	CreatePerson(ctx context.Context, p *models.Person) error
	OrganisationExists(ctx context.Context, id int64) (bool, error)
	CreateOrganisation(ctx context.Context, o *models.Organisation) error

	ListInteractionsBetween(ctx context.Context, organisationID int64, from, to time.Time) ([]models.Interaction, error)
	CreateInteraction(ctx context.Context, it *models.Interaction) error
	// BackfillInteractionSummary writes summary only when the stored one is empty.
	BackfillInteractionSummary(ctx context.Context, interactionID int64, summary string) (bool, error)
	// AddParticipant is a no-op when (interaction_id, person_id) already exists.
	AddParticipant(ctx context.Context, p models.Participant) (bool, error)
}

type Decisions interface {
	GetDecisionLog(ctx context.Context, inputID string) (models.DecisionLogEntry, error)
	InDecisionTx(ctx context.Context, fn func(tx DecisionTx) error) error
}

type Rules interface {
	// ListActiveRules returns active rules for the team and intent ordered by
	// priority descending, then creation order.
	ListActiveRules(ctx context.Context, teamID int64, intent string) ([]models.RoutingRule, error)
	MarkRuleExecuted(ctx context.Context, ruleID int64, at time.Time) error
	ListRules(ctx context.Context, teamID int64) ([]models.RoutingRule, error)
	GetRule(ctx context.Context, id int64) (models.RoutingRule, error)
	CreateRule(ctx context.Context, r *models.RoutingRule) error
	UpdateRule(ctx context.Context, r *models.RoutingRule) error
}

// FeedbackFilter narrows ListFeedback. Zero values match everything; the
// time range is [Since, Until).
type FeedbackFilter struct {
	TeamID         int64
	PredictionType string
	ModelUsed      string
	Since          time.Time
	Until          time.Time
}

type Feedback interface {
	InsertFeedback(ctx context.Context, f *models.FeedbackRecord) error
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]models.FeedbackRecord, error)
	UpsertAccuracyAggregate(ctx context.Context, agg models.AccuracyAggregate) error
	AccuracyAggregates(ctx context.Context, teamID int64) ([]models.AccuracyAggregate, error)
}

type PreferenceFilter struct {
	TeamID    int64
	UserID    *int64
	FieldName string
	Now       time.Time
}

type Preferences interface {
	InsertPreference(ctx context.Context, p *models.UserPreferenceRecord) error
	// ListActivePreferences skips rows whose expires_at is not after filter.Now.
	ListActivePreferences(ctx context.Context, filter PreferenceFilter) ([]models.UserPreferenceRecord, error)
	PurgeExpiredPreferences(ctx context.Context, now time.Time) (int64, error)
}

// Resolution is a review decision on a pending suggestion. With Apply set,
// FinalValue is written to the suggestion's target field in the same
// transaction as the status change.
type Resolution struct {
	Status     string
	ReviewerID *int64
	FinalValue *string
	At         time.Time
	Apply      bool
}

type Suggestions interface {
	CreateSuggestion(ctx context.Context, s *models.Suggestion) error
	// CreateAppliedSuggestion writes s.FinalValue to the target field and
	// inserts s in one transaction. Neither happens if the other fails.
	CreateAppliedSuggestion(ctx context.Context, s *models.Suggestion) error
	GetSuggestion(ctx context.Context, id int64) (models.Suggestion, error)
	ListSuggestions(ctx context.Context, teamID int64, status string, limit int) ([]models.Suggestion, error)
	// ResolveSuggestion moves a pending suggestion to r.Status. A suggestion
	// that is already resolved yields an *apperr.ConflictError and nothing is
	// written.
	ResolveSuggestion(ctx context.Context, id int64, r Resolution) (models.Suggestion, error)
}

// Store is everything the HTTP layer needs from a backend.
type Store interface {
	Decisions
	Rules
	Feedback
	Preferences
	Suggestions
	Ping(ctx context.Context) error
	Close()
}

var personColumns = map[string]string{
	"first_name": "first_name",
	"last_name":  "last_name",
	"email":      "email",
	"phone":      "phone",
	"job_title":  "job_title",
}

var organisationColumns = map[string]string{
	"name":    "name",
	"website": "website",
	"domain":  "domain",
	"phone":   "phone",
	"city":    "city",
	"country": "country",
}

// Column maps a suggestion field onto the column it may write. Only these
// columns are ever interpolated into SQL.
func Column(targetType, field string) (string, bool) {
	switch targetType {
	case models.TargetPerson:
		c, ok := personColumns[field]
		return c, ok
	case models.TargetOrganisation:
		c, ok := organisationColumns[field]
		return c, ok
	}
	return "", false
}
