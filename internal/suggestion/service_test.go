package suggestion

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/db/sqlitestore"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/feedback"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/preference"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

var now = time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *sqlitestore.Store
	personID int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s, err := sqlitestore.Open(ctx, filepath.Join(t.TempDir(), "suggestions.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	p := models.Person{TeamID: 1, FirstName: "Jean", LastName: "Dupont", Phone: "0102"}
	require.NoError(t, s.InDecisionTx(ctx, func(tx store.DecisionTx) error {
		return tx.CreatePerson(ctx, &p)
	}))

	clock := func() time.Time { return now }
	fb := feedback.New(s, zerolog.Nop(), nil)
	fb.Now = clock
	prefs := preference.New(s, 0, zerolog.Nop())
	prefs.Now = clock
	svc := New(s, fb, prefs, 0.9, []string{"phone", " Job_Title "}, zerolog.Nop(), nil)
	svc.Now = clock
	return fixture{svc: svc, store: s, personID: p.ID}
}

func (f fixture) column(t *testing.T, col string) string {
	t.Helper()
	var v string
	require.NoError(t, f.store.DB.QueryRow(`SELECT `+col+` FROM persons WHERE id = ?`, f.personID).Scan(&v))
	return v
}

func (f fixture) input(field, value string, confidence float64) CreateInput {
	id := f.personID
	return CreateInput{
		TeamID: 1, TargetType: models.TargetPerson, TargetID: &id,
		FieldName: field, SuggestedValue: value, Confidence: confidence, SourceModel: "mistral-small",
	}
}

func TestCreateAutoApplyPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sg, err := f.svc.Create(ctx, f.input("phone", "0199", 0.95))
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionAutoApplied, sg.Status)
	assert.True(t, sg.AutoApplied)
	require.NotNil(t, sg.AutoApplyReason)
	assert.Contains(t, *sg.AutoApplyReason, "phone")
	assert.Equal(t, "0199", f.column(t, "phone"))

	stored, err := f.svc.Get(ctx, sg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionAutoApplied, stored.Status)
	assert.True(t, stored.AutoApplied)

	job, err := f.svc.Create(ctx, f.input("job_title", "CTO", 0.90))
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionAutoApplied, job.Status)

	low, err := f.svc.Create(ctx, f.input("phone", "0200", 0.89))
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionPending, low.Status)
	assert.Equal(t, "0199", f.column(t, "phone"))

	notAllowed, err := f.svc.Create(ctx, f.input("email", "j@x.fr", 0.99))
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionPending, notAllowed.Status)

	noTarget := f.input("phone", "0300", 0.99)
	noTarget.TargetID = nil
	unresolved, err := f.svc.Create(ctx, noTarget)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionPending, unresolved.Status)

	missing := f.input("phone", "0300", 0.99)
	ghost := int64(999)
	missing.TargetID = &ghost
	fallback, err := f.svc.Create(ctx, missing)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionPending, fallback.Status)

	pending, err := f.svc.ListPending(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 4)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	var ve *apperr.ValidationError

	in := f.input("phone", "0199", 1.5)
	_, err := f.svc.Create(context.Background(), in)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "confidence", ve.Field)

	_, err = f.svc.Create(context.Background(), f.input("password", "x", 0.5))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "field_name", ve.Field)

	_, err = f.svc.List(context.Background(), 1, "archived", 10)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)
}

func TestApproveAcceptedMirrorsFeedbackAndPreference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sg, err := f.svc.Create(ctx, f.input("job_title", "CTO", 0.5))
	require.NoError(t, err)

	approved, err := f.svc.Approve(ctx, sg.ID, ReviewInput{ReviewerID: 7})
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, int64(7), *approved.ReviewedBy)
	assert.Equal(t, "CTO", *approved.FinalValue)
	assert.Equal(t, "CTO", f.column(t, "job_title"))

	fbs, err := f.store.ListFeedback(ctx, store.FeedbackFilter{TeamID: 1, PredictionType: PredictionType})
	require.NoError(t, err)
	require.Len(t, fbs, 1)
	assert.Equal(t, models.JudgmentAccepted, fbs[0].Judgment)
	assert.Equal(t, sg.ID, *fbs[0].ReferenceID)
	assert.Equal(t, "mistral-small", fbs[0].ModelUsed)

	reviewer := int64(7)
	prefs, err := f.store.ListActivePreferences(ctx, store.PreferenceFilter{TeamID: 1, UserID: &reviewer, FieldName: "job_title", Now: now})
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, models.ChoiceAccept, prefs[0].Action)
	assert.True(t, prefs[0].ExpiresAt.Equal(now.Add(preference.DefaultTTL)))
}

func TestApproveWithEditIsACorrection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sg, err := f.svc.Create(ctx, f.input("phone", "0199", 0.4))
	require.NoError(t, err)

	edited := " 0188 "
	approved, err := f.svc.Approve(ctx, sg.ID, ReviewInput{ReviewerID: 7, FinalValue: &edited})
	require.NoError(t, err)
	assert.Equal(t, "0188", *approved.FinalValue)
	assert.Equal(t, "0188", f.column(t, "phone"))

	fbs, err := f.store.ListFeedback(ctx, store.FeedbackFilter{TeamID: 1})
	require.NoError(t, err)
	require.Len(t, fbs, 1)
	assert.Equal(t, models.JudgmentCorrected, fbs[0].Judgment)
	assert.Equal(t, []string{"wrong_value_phone"}, fbs[0].ErrorCategories)

	prefs, err := f.store.ListActivePreferences(ctx, store.PreferenceFilter{TeamID: 1, FieldName: "phone", Now: now})
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, models.ChoiceManual, prefs[0].Action)
	assert.Equal(t, "0188", *prefs[0].FinalValue)
}

func TestResolvedSuggestionIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sg, err := f.svc.Create(ctx, f.input("phone", "0199", 0.4))
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, sg.ID, ReviewInput{ReviewerID: 3})
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionRejected, rejected.Status)
	assert.Equal(t, "0102", f.column(t, "phone"))

	var ce *apperr.ConflictError
	_, err = f.svc.Approve(ctx, sg.ID, ReviewInput{ReviewerID: 3})
	require.ErrorAs(t, err, &ce)
	_, err = f.svc.Reject(ctx, sg.ID, ReviewInput{ReviewerID: 3})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "0102", f.column(t, "phone"))

	auto, err := f.svc.Create(ctx, f.input("phone", "0177", 0.99))
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, auto.ID, ReviewInput{ReviewerID: 3})
	require.ErrorAs(t, err, &ce)

	fbs, err := f.store.ListFeedback(ctx, store.FeedbackFilter{TeamID: 1})
	require.NoError(t, err)
	require.Len(t, fbs, 1)
	assert.Equal(t, models.JudgmentRejected, fbs[0].Judgment)
}

func TestReviewUnknownSuggestion(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Approve(context.Background(), 404, ReviewInput{ReviewerID: 1})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = f.svc.Reject(context.Background(), 404, ReviewInput{ReviewerID: 1})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	var ve *apperr.ValidationError
	_, err = f.svc.Approve(context.Background(), 1, ReviewInput{})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "reviewer_id", ve.Field)
}

// racingStore lets another reviewer act between the service's read of a
// suggestion and its resolve.
type racingStore struct {
	store.Suggestions
	afterGet func()
}

func (r *racingStore) GetSuggestion(ctx context.Context, id int64) (models.Suggestion, error) {
	sg, err := r.Suggestions.GetSuggestion(ctx, id)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return sg, err
}

func TestApproveLosingToConcurrentRejectLeavesFieldUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sg, err := f.svc.Create(ctx, f.input("phone", "0199", 0.4))
	require.NoError(t, err)

	racing := &racingStore{Suggestions: f.store}
	racing.afterGet = func() {
		_, err := f.svc.Reject(ctx, sg.ID, ReviewInput{ReviewerID: 3})
		require.NoError(t, err)
	}
	svc := *f.svc
	svc.Store = racing

	var ce *apperr.ConflictError
	_, err = svc.Approve(ctx, sg.ID, ReviewInput{ReviewerID: 7})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "0102", f.column(t, "phone"))

	stored, err := f.svc.Get(ctx, sg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionRejected, stored.Status)
}

type failingInsertStore struct {
	store.Suggestions
}

func (failingInsertStore) CreateAppliedSuggestion(context.Context, *models.Suggestion) error {
	return errors.New("disk I/O error")
}

func TestCreateAutoApplyStorageFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	svc := *f.svc
	svc.Store = failingInsertStore{Suggestions: f.store}

	var se *apperr.StorageError
	_, err := svc.Create(ctx, f.input("phone", "0199", 0.95))
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "0102", f.column(t, "phone"))

	all, err := f.svc.List(ctx, 1, "", 10)
	require.NoError(t, err)
	assert.Empty(t, all)
}
