package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/db/sqlitestore"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/feedback"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/preference"
)

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	s, err := sqlitestore.Open(ctx, filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	today := time.Date(2025, 3, 10, 4, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	fb := feedback.New(s, zerolog.Nop(), nil)
	fb.Now = func() time.Time { return yesterday }
	for _, judgment := range []string{models.JudgmentAccepted, models.JudgmentRejected} {
		_, err := fb.LogFeedback(ctx, feedback.Input{
			TeamID: 1, UserID: 2, PredictionType: "intent", ModelUsed: "m",
			OriginalPrediction: map[string]any{"intent": "meeting_request"}, Judgment: judgment,
		})
		require.NoError(t, err)
	}

	prefs := preference.New(s, 24*time.Hour, zerolog.Nop())
	prefs.Now = func() time.Time { return today.AddDate(0, 0, -3) }
	_, err = prefs.RecordChoice(ctx, preference.ChoiceInput{
		UserID: 2, TeamID: 1, FieldName: "phone", ContextType: models.TargetPerson, Action: models.ChoiceAccept,
	})
	require.NoError(t, err)
	prefs.Now = func() time.Time { return today }

	jobs := New(prefs, fb, zerolog.Nop())
	jobs.Now = func() time.Time { return today }
	require.NoError(t, jobs.RunOnce(ctx))

	aggs, err := s.AccuracyAggregates(ctx, 1)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, 2, aggs[0].Total)
	assert.True(t, aggs[0].Day.Equal(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)))

	var left int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM user_preferences`).Scan(&left))
	assert.Zero(t, left)

	n, err := jobs.PurgePreferences(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSchedule(t *testing.T) {
	jobs := New(nil, nil, zerolog.Nop())

	c, err := jobs.Schedule("0 3 * * *", "15 0 * * *", nil)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 2)

	_, err = jobs.Schedule("every night", "15 0 * * *", nil)
	assert.ErrorContains(t, err, "retention schedule")

	_, err = jobs.Schedule("0 3 * * *", "0 0 0 * * *", time.UTC)
	assert.ErrorContains(t, err, "rollup schedule")
}
