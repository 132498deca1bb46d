package models

import "time"

const (
	SuggestionPending     = "pending"
	SuggestionApproved    = "approved"
	SuggestionRejected    = "rejected"
	SuggestionAutoApplied = "auto_applied"
)

const (
	TargetPerson       = "person"
	TargetOrganisation = "organisation"
)

const (
	JudgmentAccepted  = "accepted"
	JudgmentCorrected = "corrected"
	JudgmentRejected  = "rejected"
)

const (
	ChoiceAccept = "accept"
	ChoiceReject = "reject"
	ChoiceManual = "manual"
	ChoiceIgnore = "ignore"
)

// Suggestion is a proposed field change for a person or organisation.
type Suggestion struct {
	ID                  int64      `json:"id"`
	TeamID              int64      `json:"team_id"`
	TargetType          string     `json:"target_type"`
	TargetID            *int64     `json:"target_id"`
	FieldName           string     `json:"field_name"`
	CurrentValue        *string    `json:"current_value"`
	SuggestedValue      string     `json:"suggested_value"`
	Confidence          float64    `json:"confidence"`
	SourceModel         string     `json:"source_model"`
	Reasoning           *string    `json:"reasoning,omitempty"`
	SourceEmailID       *string    `json:"source_email_id,omitempty"`
	SourceInteractionID *int64     `json:"source_interaction_id,omitempty"`
	Status              string     `json:"status"`
	ReviewedBy          *int64     `json:"reviewed_by"`
	ReviewedAt          *time.Time `json:"reviewed_at"`
	FinalValue          *string    `json:"final_value,omitempty"`
	AutoApplied         bool       `json:"auto_applied"`
	AutoApplyReason     *string    `json:"auto_apply_reason,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Resolved reports whether the suggestion left the pending state.
func (s Suggestion) Resolved() bool {
	return s.Status != SuggestionPending
}

type DecisionLogEntry struct {
	ID             int64     `json:"id"`
	InputID        string    `json:"input_id"`
	ContentHash    string    `json:"content_hash"`
	PersonID       *int64    `json:"person_id"`
	OrganisationID *int64    `json:"organisation_id"`
	InteractionID  *int64    `json:"interaction_id"`
	Deduped        bool      `json:"deduped"`
	AppliedBy      int64     `json:"applied_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type RuleConditions struct {
	SenderDomains     []string `json:"sender_domains,omitempty" yaml:"sender_domains"`
	Keywords          []string `json:"keywords,omitempty" yaml:"keywords"`
	BusinessHoursOnly bool     `json:"business_hours_only,omitempty" yaml:"business_hours_only"`
}

// Empty reports whether no extra condition is configured.
func (c RuleConditions) Empty() bool {
	return len(c.SenderDomains) == 0 && len(c.Keywords) == 0 && !c.BusinessHoursOnly
}

type RuleAction struct {
	Type   string         `json:"type" yaml:"type" validate:"required"`
	Params map[string]any `json:"params,omitempty" yaml:"params"`
}

type RoutingRule struct {
	ID             int64          `json:"id"`
	TeamID         int64          `json:"team_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	IsActive       bool           `json:"is_active"`
	Priority       int            `json:"priority"`
	IntentTrigger  string         `json:"intent_trigger"`
	MinConfidence  int            `json:"min_confidence"`
	Conditions     RuleConditions `json:"conditions"`
	Actions        []RuleAction   `json:"actions"`
	ExecutionCount int            `json:"execution_count"`
	LastExecutedAt *time.Time     `json:"last_executed_at"`
	CreatedAt      time.Time      `json:"created_at"`
}

type FeedbackRecord struct {
	ID                 int64          `json:"id"`
	TeamID             int64          `json:"team_id"`
	UserID             int64          `json:"user_id"`
	PredictionType     string         `json:"prediction_type"`
	ReferenceID        *int64         `json:"reference_id,omitempty"`
	ModelUsed          string         `json:"model_used"`
	OriginalPrediction map[string]any `json:"original_prediction"`
	OriginalConfidence *float64       `json:"original_confidence,omitempty"`
	CorrectedData      map[string]any `json:"corrected_data,omitempty"`
	Judgment           string         `json:"judgment"`
	ErrorCategories    []string       `json:"error_categories"`
	Notes              *string        `json:"notes,omitempty"`
	Context            map[string]any `json:"context,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// AccuracyAggregate is a daily rollup derived from FeedbackRecord rows.
type AccuracyAggregate struct {
	TeamID                     int64     `json:"team_id"`
	Day                        time.Time `json:"day"`
	PredictionType             string    `json:"prediction_type"`
	ModelUsed                  string    `json:"model_used"`
	Total                      int       `json:"total"`
	Accepted                   int       `json:"accepted"`
	Corrected                  int       `json:"corrected"`
	Rejected                   int       `json:"rejected"`
	AccuracyRate               float64   `json:"accuracy_rate"`
	CorrectionRate             float64   `json:"correction_rate"`
	RejectionRate              float64   `json:"rejection_rate"`
	AvgConfidenceWhenAccepted  float64   `json:"avg_confidence_when_accepted"`
	AvgConfidenceWhenCorrected float64   `json:"avg_confidence_when_corrected"`
}

type UserPreferenceRecord struct {
	ID                   int64     `json:"id"`
	UserID               int64     `json:"user_id"`
	TeamID               int64     `json:"team_id"`
	FieldName            string    `json:"field_name"`
	ContextType          string    `json:"context_type"`
	EntityID             *int64    `json:"entity_id,omitempty"`
	SuggestedValue       *string   `json:"suggested_value,omitempty"`
	SuggestionSource     *string   `json:"suggestion_source,omitempty"`
	SuggestionConfidence *float64  `json:"suggestion_confidence,omitempty"`
	SuggestionRank       *int      `json:"suggestion_rank,omitempty"`
	Action               string    `json:"action"`
	FinalValue           *string   `json:"final_value,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	ExpiresAt            time.Time `json:"expires_at"`
}

type Person struct {
	ID        int64     `json:"id"`
	TeamID    int64     `json:"team_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	JobTitle  string    `json:"job_title"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Organisation struct {
	ID        int64     `json:"id"`
	TeamID    int64     `json:"team_id"`
	Name      string    `json:"name"`
	Website   string    `json:"website"`
	Domain    string    `json:"domain"`
	Phone     string    `json:"phone"`
	City      string    `json:"city"`
	Country   string    `json:"country"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Interaction struct {
	ID             int64     `json:"id"`
	TeamID         int64     `json:"team_id"`
	OrganisationID *int64    `json:"organisation_id"`
	PersonID       *int64    `json:"person_id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Channel        string    `json:"channel"`
	Summary        string    `json:"summary"`
	OccurredAt     time.Time `json:"occurred_at"`
	CreatedBy      int64     `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

type Participant struct {
	InteractionID int64  `json:"interaction_id"`
	PersonID      int64  `json:"person_id"`
	Role          string `json:"role"`
}

// InboundMessage is the slice of a synced e-mail the engine reads.
type InboundMessage struct {
	ID          string    `json:"id" validate:"required"`
	TeamID      int64     `json:"team_id" validate:"required"`
	SenderName  string    `json:"sender_name"`
	SenderEmail string    `json:"sender_email" validate:"omitempty,email"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ReceivedAt  time.Time `json:"received_at"`
}
