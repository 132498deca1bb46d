package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/utils"
)

// MockAdapter derives a stable extraction from the message itself. It is
// used when no gateway is configured.
type MockAdapter struct {
	ModelVersion string
}

var (
	mockIntents     = []string{"meeting_request", "info_request", "purchase_intent", "complaint", "follow_up"}
	mockJobTitles   = []string{"CEO", "CFO", "Head of Sales", "Portfolio Manager", "Account Manager"}
	mockConfidences = []int{55, 72, 85, 91}
)

func (m MockAdapter) Extract(ctx context.Context, msg models.InboundMessage) (Extraction, int64, error) {
	start := time.Now()
	h := utils.HashStringToUint64(msg.ID)

	intent := mockIntents[int(h%uint64(len(mockIntents)))]
	confidence := mockConfidences[int((h/7)%uint64(len(mockConfidences)))]
	title := mockJobTitles[int((h/13)%uint64(len(mockJobTitles)))]

	var person Candidate
	if first, last, ok := strings.Cut(strings.TrimSpace(msg.SenderName), " "); ok {
		person.Fields = append(person.Fields,
			FieldProposal{Field: "first_name", Value: first, Confidence: 0.95, Reasoning: "sender display name"},
			FieldProposal{Field: "last_name", Value: strings.TrimSpace(last), Confidence: 0.95, Reasoning: "sender display name"},
		)
	}
	if msg.SenderEmail != "" {
		person.Fields = append(person.Fields, FieldProposal{Field: "email", Value: strings.ToLower(msg.SenderEmail), Confidence: 0.99, Reasoning: "sender address"})
	}
	person.Fields = append(person.Fields, FieldProposal{Field: "job_title", Value: title, Confidence: 0.6, Reasoning: "signature"})

	evidence, err := utils.ContentHash([]string{msg.ID, msg.Subject, msg.Body})
	if err != nil {
		return Extraction{}, 0, err
	}

	e := Extraction{
		MessageID:        msg.ID,
		Intent:           intent,
		IntentConfidence: confidence,
		Persons:          []Candidate{person},
		Organisations:    []Candidate{},
		Recommendation:   "review",
		NeedsEnrichment:  h%3 == 0,
		EvidenceHash:     evidence,
		ModelVersion:     m.ModelVersion,
	}
	if domain := domainOf(msg.SenderEmail); domain != "" && !strings.HasPrefix(domain, ".") {
		label, _, _ := strings.Cut(domain, ".")
		company := strings.ToUpper(label[:1]) + label[1:]
		e.CompanyName = company
		e.Organisations = append(e.Organisations, Candidate{Fields: []FieldProposal{
			{Field: "name", Value: company, Confidence: 0.7, Reasoning: "sender domain"},
			{Field: "domain", Value: domain, Confidence: 0.99, Reasoning: "sender domain"},
		}})
	}
	if strings.TrimSpace(msg.Subject) != "" {
		e.Interaction = &InteractionSuggestion{
			Type:       "email",
			Title:      msg.Subject,
			Summary:    fmt.Sprintf("%s from %s", intent, msg.SenderName),
			OccurredAt: msg.ReceivedAt,
		}
	}
	return e, time.Since(start).Milliseconds(), nil
}

func domainOf(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(domain))
}
