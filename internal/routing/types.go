package routing

import (
	"context"
	"time"
)

const (
	ActionCreateTask          = "create_task"
	ActionAssignToUser        = "assign_to_user"
	ActionSendNotification    = "send_notification"
	ActionCreateCalendarEvent = "create_calendar_event"
	ActionAddToPipeline       = "add_to_pipeline"
	ActionSetPriority         = "set_priority"
	ActionTagInteraction      = "tag_interaction"
	ActionEscalate            = "escalate"
	ActionAutoReply           = "auto_reply"
)

var knownActions = map[string]bool{
	ActionCreateTask:          true,
	ActionAssignToUser:        true,
	ActionSendNotification:    true,
	ActionCreateCalendarEvent: true,
	ActionAddToPipeline:       true,
	ActionSetPriority:         true,
	ActionTagInteraction:      true,
	ActionEscalate:            true,
	ActionAutoReply:           true,
}

// KnownAction reports whether t is an action type rules may declare.
func KnownAction(t string) bool {
	return knownActions[t]
}

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// EmailContext is what rule conditions and placeholders read from the
// message that carried the intent.
type EmailContext struct {
	MessageID     string    `json:"message_id,omitempty"`
	SenderName    string    `json:"sender_name"`
	SenderEmail   string    `json:"sender_email"`
	CompanyName   string    `json:"company_name"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	ReceivedAt    time.Time `json:"received_at"`
	InteractionID *int64    `json:"interaction_id,omitempty"`
}

// Action is one rule action with placeholders already substituted. Index is
// its position in the rule's action list.
type Action struct {
	RuleID     int64          `json:"rule_id"`
	RuleName   string         `json:"rule_name"`
	Index      int            `json:"action_index"`
	TeamID     int64          `json:"team_id"`
	Intent     string         `json:"intent"`
	Confidence int            `json:"confidence"`
	Type       string         `json:"type"`
	Params     map[string]any `json:"params"`
	Email      EmailContext   `json:"email"`

	// IdempotencyKey is shared by every delivery attempt of this action.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ActionExecutor performs the side effect behind an action.
type ActionExecutor interface {
	Execute(ctx context.Context, a Action) (map[string]any, error)
}

type ActionOutcome struct {
	RuleID      int64          `json:"rule_id"`
	RuleName    string         `json:"rule_name"`
	ActionIndex int            `json:"action_index"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
}

// BusinessHours is the [Start, End) hour range on weekdays in Location.
type BusinessHours struct {
	Start    int
	End      int
	Location *time.Location
}

func (b BusinessHours) Contains(t time.Time) bool {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	h := local.Hour()
	return h >= b.Start && h < b.End
}
