package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/actions"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/ai"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/db/sqlitestore"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/routing"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/suggestion"
)

type stubAdapter struct {
	extraction ai.Extraction
	err        error
	calls      int
}

func (s *stubAdapter) Extract(ctx context.Context, m models.InboundMessage) (ai.Extraction, int64, error) {
	s.calls++
	if s.err != nil {
		return ai.Extraction{}, 3, s.err
	}
	e := s.extraction
	e.MessageID = m.ID
	return e, 12, nil
}

func newTestService(t *testing.T, adapter ai.Adapter) (*ProcessingService, *sqlitestore.Store, int64) {
	t.Helper()
	ctx := context.Background()
	s, err := sqlitestore.Open(ctx, filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	p := models.Person{TeamID: 1, FirstName: "Claire", LastName: "Martin"}
	require.NoError(t, s.InDecisionTx(ctx, func(tx store.DecisionTx) error {
		return tx.CreatePerson(ctx, &p)
	}))
	require.NoError(t, s.CreateRule(ctx, &models.RoutingRule{
		TeamID: 1, Name: "Meetings", IsActive: true, Priority: 10,
		IntentTrigger: "meeting_request", MinConfidence: 70,
		Actions: []models.RuleAction{
			{Type: routing.ActionCreateTask, Params: map[string]any{"title": "Call {sender_name}"}},
			{Type: routing.ActionAssignToUser, Params: map[string]any{"user_ids": []any{float64(4), float64(5)}}},
		},
	}))

	sugg := suggestion.New(s, nil, nil, 0.9, []string{"phone"}, zerolog.Nop(), nil)
	exec := actions.NewDispatcher(time.Second, 0, zerolog.Nop())
	exec.Register(routing.ActionAssignToUser, actions.NewAssigner())
	router := routing.New(s, exec, routing.BusinessHours{Start: 0, End: 24}, zerolog.Nop(), nil)
	return NewProcessingService(adapter, sugg, router, zerolog.Nop()), s, p.ID
}

func message(id string) models.InboundMessage {
	return models.InboundMessage{
		ID: id, TeamID: 1, SenderName: "Claire Martin", SenderEmail: "claire@martin-am.fr",
		Subject: "Rendez-vous jeudi", Body: "Pouvons-nous nous voir ?",
		ReceivedAt: time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC),
	}
}

func TestProcessMessage(t *testing.T) {
	adapter := &stubAdapter{}
	svc, s, personID := newTestService(t, adapter)
	adapter.extraction = ai.Extraction{
		Intent:           " Meeting_Request ",
		IntentConfidence: 85,
		Persons: []ai.Candidate{{TargetID: &personID, Fields: []ai.FieldProposal{
			{Field: "Téléphone", Value: " 06 12 34 56 78 ", Confidence: 0.95},
			{Field: "Fonction", Value: "CFO", Confidence: 0.7, Reasoning: "signature"},
			{Field: "linkedin", Value: "claire-m", Confidence: 0.9},
			{Field: "email", Value: "  ", Confidence: 0.9},
		}}},
		Organisations: []ai.Candidate{{Fields: []ai.FieldProposal{
			{Field: "company", Value: "Martin AM", Confidence: 0.8},
		}}},
		ModelVersion: "mistral-small",
	}

	summary, err := svc.ProcessMessage(context.Background(), message("msg-1"), false)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Counts["suggestions_created"])
	assert.Equal(t, 1, summary.Counts["auto_applied"])
	assert.Equal(t, 2, summary.Counts["pending"])
	assert.Equal(t, 2, summary.Counts["skipped"])
	assert.Equal(t, map[string]int{"FIELD_NOT_WRITABLE": 1, "EMPTY_VALUE": 1}, summary.Counts["skip_reasons"])
	assert.Equal(t, 1, summary.Counts["routed"])
	assert.Equal(t, 2, summary.Counts["actions_succeeded"])
	require.Len(t, summary.Outcomes, 2)
	assert.Equal(t, routing.ActionCreateTask, summary.Outcomes[0].Type)
	assert.Contains(t, []any{int64(4), int64(5)}, summary.Outcomes[1].Output["assigned_user_id"])
	assert.Len(t, summary.Events, 3)

	var phone string
	require.NoError(t, s.DB.QueryRow(`SELECT phone FROM persons WHERE id = ?`, personID).Scan(&phone))
	assert.Equal(t, "06 12 34 56 78", phone)

	pending, err := s.ListSuggestions(context.Background(), 1, models.SuggestionPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, sg := range pending {
		require.NotNil(t, sg.SourceEmailID)
		assert.Equal(t, "msg-1", *sg.SourceEmailID)
		assert.Equal(t, "mistral-small", sg.SourceModel)
	}
}

func TestProcessMessageBelowConfidenceDoesNotRoute(t *testing.T) {
	adapter := &stubAdapter{extraction: ai.Extraction{Intent: "meeting_request", IntentConfidence: 40, ModelVersion: "m"}}
	svc, _, _ := newTestService(t, adapter)

	summary, err := svc.ProcessMessage(context.Background(), message("msg-2"), false)
	require.NoError(t, err)
	assert.Empty(t, summary.Outcomes)
	assert.Equal(t, 1, summary.Counts["routed"])
	assert.Equal(t, 0, summary.Counts["suggestions_created"])
}

func TestProcessMessageErrors(t *testing.T) {
	adapter := &stubAdapter{err: errors.New("gateway down")}
	svc, _, _ := newTestService(t, adapter)

	_, err := svc.ProcessMessage(context.Background(), message("msg-3"), false)
	assert.ErrorIs(t, err, ErrExtraction)

	var ve *apperr.ValidationError
	_, err = svc.ProcessMessage(context.Background(), models.InboundMessage{TeamID: 1}, false)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "id", ve.Field)
	assert.Equal(t, 1, adapter.calls)
}

func TestProcessMessagesBatch(t *testing.T) {
	adapter := &stubAdapter{extraction: ai.Extraction{Intent: "meeting_request", IntentConfidence: 90, ModelVersion: "m"}}
	svc, _, _ := newTestService(t, adapter)

	summary := svc.ProcessMessages(context.Background(), []models.InboundMessage{
		message("a"), {TeamID: 1}, message("b"),
	}, true)
	assert.Equal(t, 3, summary.Counts["messages_processed"])
	assert.Equal(t, 2, summary.Counts["extracted"])
	assert.Equal(t, 1, summary.Counts["ai_errors"])
	assert.Equal(t, 2, summary.Counts["routed"])
	assert.Len(t, summary.Outcomes, 4)
	assert.Len(t, summary.Events, 4)
	assert.Equal(t, "import_summary", summary.Events[0]["type"])
}

func TestNormalizeExtraction(t *testing.T) {
	e := NormalizeExtraction(ai.Extraction{
		Intent:           "  Complaint",
		IntentConfidence: 140,
		Persons:          []ai.Candidate{{Fields: []ai.FieldProposal{{Field: "Job Title", Value: " CTO "}, {Field: "Mobile", Value: "06"}}}},
	})
	assert.Equal(t, "complaint", e.Intent)
	assert.Equal(t, 100, e.IntentConfidence)
	assert.Equal(t, "job_title", e.Persons[0].Fields[0].Field)
	assert.Equal(t, "CTO", e.Persons[0].Fields[0].Value)
	assert.Equal(t, "phone", e.Persons[0].Fields[1].Field)
	assert.Empty(t, e.Organisations)
}
