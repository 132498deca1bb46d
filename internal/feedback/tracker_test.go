package feedback

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/db/sqlitestore"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T) (*Tracker, *sqlitestore.Store) {
	t.Helper()
	s, err := sqlitestore.Open(context.Background(), filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	tr := New(s, zerolog.Nop(), nil)
	tr.Now = func() time.Time { return now }
	return tr, s
}

func conf(v float64) *float64 { return &v }

func TestErrorCategories(t *testing.T) {
	original := map[string]any{"first_name": "Jean", "phone": "0102", "score": 3}

	cases := []struct {
		name      string
		judgment  string
		corrected map[string]any
		want      []string
	}{
		{"accepted", models.JudgmentAccepted, nil, []string{}},
		{"rejected", models.JudgmentRejected, nil, []string{CategoryTotalRejection}},
		{"missing field", models.JudgmentCorrected, map[string]any{"job_title": "CTO"}, []string{CategoryFieldMissing}},
		{"wrong values", models.JudgmentCorrected, map[string]any{"phone": "0103", "first_name": "Jeanne"},
			[]string{"wrong_value_first_name", "wrong_value_phone"}},
		{"mixed", models.JudgmentCorrected, map[string]any{"phone": "0103", "email": "j@x.fr"},
			[]string{CategoryFieldMissing, "wrong_value_phone"}},
		{"no difference", models.JudgmentCorrected, map[string]any{"first_name": "Jean", "score": 3.0},
			[]string{CategoryMinorCorrection}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorCategories(tc.judgment, original, tc.corrected))
		})
	}
}

func TestLogFeedback(t *testing.T) {
	tr, s := newTestTracker(t)
	ctx := context.Background()

	res, err := tr.LogFeedback(ctx, Input{
		TeamID: 1, UserID: 2, PredictionType: "signature", ModelUsed: "mistral-small",
		OriginalPrediction: map[string]any{"phone": "0102"},
		CorrectedData:      map[string]any{"phone": "0103"},
		Judgment:           models.JudgmentCorrected,
		OriginalConfidence: conf(0.8),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotZero(t, res.FeedbackID)
	assert.Equal(t, []string{"wrong_value_phone"}, res.ErrorCategories)

	rows, err := s.ListFeedback(ctx, store.FeedbackFilter{TeamID: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"wrong_value_phone"}, rows[0].ErrorCategories)
	assert.Equal(t, "0103", rows[0].CorrectedData["phone"])
}

func TestLogFeedbackValidation(t *testing.T) {
	tr, _ := newTestTracker(t)
	var ve *apperr.ValidationError

	_, err := tr.LogFeedback(context.Background(), Input{TeamID: 1, UserID: 2, PredictionType: "signature",
		ModelUsed: "m", OriginalPrediction: map[string]any{}, Judgment: "maybe"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "judgment", ve.Field)

	_, err = tr.LogFeedback(context.Background(), Input{TeamID: 1, UserID: 2, PredictionType: "signature",
		ModelUsed: "m", OriginalPrediction: map[string]any{}, Judgment: models.JudgmentCorrected})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "corrected_data", ve.Field)
}

func seed(t *testing.T, tr *Tracker, judgments map[string]int, model string) {
	t.Helper()
	for judgment, n := range judgments {
		for i := 0; i < n; i++ {
			in := Input{TeamID: 1, UserID: 2, PredictionType: "signature", ModelUsed: model,
				OriginalPrediction: map[string]any{"phone": "1"}, Judgment: judgment, OriginalConfidence: conf(0.9)}
			if judgment == models.JudgmentCorrected {
				in.CorrectedData = map[string]any{"job_title": "CTO"}
				in.OriginalConfidence = conf(0.6)
			}
			_, err := tr.LogFeedback(context.Background(), in)
			require.NoError(t, err)
		}
	}
}

func TestGetModelAccuracyArithmetic(t *testing.T) {
	tr, _ := newTestTracker(t)
	seed(t, tr, map[string]int{
		models.JudgmentAccepted:  6,
		models.JudgmentCorrected: 3,
		models.JudgmentRejected:  1,
	}, "mistral-small")

	m, err := tr.GetModelAccuracy(context.Background(), 1, "signature", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 10, m.TotalFeedbacks)
	assert.Equal(t, 60.0, m.AccuracyRate)
	assert.Equal(t, 30.0, m.CorrectionRate)
	assert.Equal(t, 10.0, m.RejectionRate)
	assert.Equal(t, 0.9, m.AvgConfidenceWhenAccepted)
	assert.Equal(t, 0.6, m.AvgConfidenceWhenCorrected)
	assert.Equal(t, DefaultDaysBack, m.DaysBack)
	assert.Equal(t, []ErrorCount{
		{Category: CategoryFieldMissing, Count: 3},
		{Category: CategoryTotalRejection, Count: 1},
	}, m.CommonErrors)

	assert.Len(t, m.Recommendations, 2)
	assert.Contains(t, m.Recommendations[0], "below 70%")
	assert.Contains(t, m.Recommendations[1], "missing")
}

func TestGetModelAccuracyFiltersModelAndWindow(t *testing.T) {
	tr, _ := newTestTracker(t)
	seed(t, tr, map[string]int{models.JudgmentAccepted: 2}, "a")
	seed(t, tr, map[string]int{models.JudgmentRejected: 3}, "b")

	tr.Now = func() time.Time { return now.AddDate(0, 0, -40) }
	seed(t, tr, map[string]int{models.JudgmentRejected: 5}, "a")
	tr.Now = func() time.Time { return now }

	m, err := tr.GetModelAccuracy(context.Background(), 1, "signature", "a", 30)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalFeedbacks)
	assert.Equal(t, 100.0, m.AccuracyRate)
	assert.Empty(t, m.Recommendations)

	m, err = tr.GetModelAccuracy(context.Background(), 1, "signature", "b", 30)
	require.NoError(t, err)
	assert.Equal(t, 100.0, m.RejectionRate)
	assert.Len(t, m.Recommendations, 2)
}

func TestGetModelAccuracyNoData(t *testing.T) {
	tr, _ := newTestTracker(t)
	m, err := tr.GetModelAccuracy(context.Background(), 1, "signature", "", 7)
	require.NoError(t, err)
	assert.Zero(t, m.TotalFeedbacks)
	assert.Zero(t, m.AccuracyRate)
	assert.Contains(t, m.Message, "no data")
	assert.Empty(t, m.CommonErrors)
}

func TestRollupDay(t *testing.T) {
	tr, s := newTestTracker(t)
	seed(t, tr, map[string]int{models.JudgmentAccepted: 3, models.JudgmentRejected: 1}, "a")
	seed(t, tr, map[string]int{models.JudgmentCorrected: 2}, "b")

	tr.Now = func() time.Time { return now.AddDate(0, 0, -1) }
	seed(t, tr, map[string]int{models.JudgmentAccepted: 9}, "a")

	aggs, err := tr.RollupDay(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, "a", aggs[0].ModelUsed)
	assert.Equal(t, 4, aggs[0].Total)
	assert.Equal(t, 75.0, aggs[0].AccuracyRate)
	assert.Equal(t, 25.0, aggs[0].RejectionRate)
	assert.Equal(t, "b", aggs[1].ModelUsed)
	assert.Equal(t, 100.0, aggs[1].CorrectionRate)

	_, err = tr.RollupDay(context.Background(), now)
	require.NoError(t, err)
	stored, err := s.AccuracyAggregates(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.True(t, stored[0].Day.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
}
