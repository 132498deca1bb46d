package apply

import "time"

const (
	StatusApplied        = "applied"
	StatusAlreadyApplied = "already_applied"

	// RoleContact is given to the resolved person when the caller did not list
	// it among the participants.
	RoleContact = "contact"
)

type PersonData struct {
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"max=50"`
	JobTitle  string `json:"job_title" validate:"max=200"`
}

type OrganisationData struct {
	Name    string `json:"name" validate:"required,max=255"`
	Website string `json:"website" validate:"max=255"`
	Domain  string `json:"domain" validate:"omitempty,fqdn"`
	Phone   string `json:"phone" validate:"max=50"`
	City    string `json:"city" validate:"max=100"`
	Country string `json:"country" validate:"max=100"`
}

// PersonDecision says whether and how a person is resolved. With Apply set,
// ID reuses an existing record and Data creates a new one; ID wins when both
// are present.
type PersonDecision struct {
	Apply bool        `json:"apply"`
	ID    *int64      `json:"id,omitempty" validate:"omitempty,gt=0"`
	Data  *PersonData `json:"data,omitempty" validate:"omitempty"`
}

type OrganisationDecision struct {
	Apply bool              `json:"apply"`
	ID    *int64            `json:"id,omitempty" validate:"omitempty,gt=0"`
	Data  *OrganisationData `json:"data,omitempty" validate:"omitempty"`
}

type ParticipantInput struct {
	PersonID int64  `json:"person_id" validate:"required,gt=0"`
	Role     string `json:"role" validate:"max=50"`
}

type InteractionData struct {
	Type         string             `json:"type" validate:"required,max=50"`
	Title        string             `json:"title" validate:"required,max=500"`
	OccurredAt   time.Time          `json:"occurred_at" validate:"required"`
	Channel      string             `json:"channel" validate:"max=50"`
	Summary      string             `json:"summary"`
	Participants []ParticipantInput `json:"participants,omitempty" validate:"dive"`
}

type Request struct {
	InputID              string               `json:"input_id" validate:"required,max=255"`
	PersonDecision       PersonDecision       `json:"person_decision"`
	OrganisationDecision OrganisationDecision `json:"organisation_decision"`
	InteractionData      *InteractionData     `json:"interaction_data,omitempty" validate:"omitempty"`
	Dedupe               bool                 `json:"dedupe"`
	ActingUserID         int64                `json:"acting_user_id" validate:"required,gt=0"`
	TeamID               int64                `json:"team_id"`
	Context              map[string]any       `json:"context,omitempty"`
}

type Result struct {
	Status         string `json:"status"`
	PersonID       *int64 `json:"person_id"`
	OrganisationID *int64 `json:"organisation_id"`
	InteractionID  *int64 `json:"interaction_id"`
	Deduped        bool   `json:"deduped"`
	DecisionLogID  int64  `json:"decision_log_id"`
	Message        string `json:"message"`
}

// hashedPayload is the part of a request covered by the decision log's
// content hash.
type hashedPayload struct {
	InputID              string               `json:"input_id"`
	PersonDecision       PersonDecision       `json:"person_decision"`
	OrganisationDecision OrganisationDecision `json:"organisation_decision"`
}
