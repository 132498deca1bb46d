// Package ai is the boundary to the extraction model. Prompting and model
// invocation live behind Adapter; this package only shapes and checks what
// comes back.
package ai

import (
	"context"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
)

// Adapter extracts structured data from one message. The int64 is the call
// latency in milliseconds.
type Adapter interface {
	Extract(ctx context.Context, m models.InboundMessage) (Extraction, int64, error)
}

type FieldProposal struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Candidate is a person or organisation the message talks about. TargetID is
// set when the model matched an existing record.
type Candidate struct {
	TargetID *int64          `json:"target_id,omitempty"`
	Fields   []FieldProposal `json:"fields"`
}

type InteractionSuggestion struct {
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Extraction struct {
	MessageID        string                 `json:"message_id"`
	Intent           string                 `json:"intent"`
	IntentConfidence int                    `json:"intent_confidence"`
	Persons          []Candidate            `json:"persons"`
	Organisations    []Candidate            `json:"organisations"`
	Interaction      *InteractionSuggestion `json:"interaction,omitempty"`
	CompanyName      string                 `json:"company_name,omitempty"`
	Recommendation   string                 `json:"recommendation"`
	NeedsEnrichment  bool                   `json:"needs_enrichment"`
	EvidenceHash     string                 `json:"evidence_hash"`
	ModelVersion     string                 `json:"model_version"`
}
