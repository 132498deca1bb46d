package feedback

import (
	"context"
	"sort"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

type rollupKey struct {
	teamID         int64
	predictionType string
	model          string
}

// RollupDay recomputes model_accuracy_daily for the UTC day containing day.
// Rerunning it overwrites the same rows.
func (t *Tracker) RollupDay(ctx context.Context, day time.Time) ([]models.AccuracyAggregate, error) {
	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	records, err := t.Store.ListFeedback(ctx, store.FeedbackFilter{Since: start, Until: start.AddDate(0, 0, 1)})
	if err != nil {
		return nil, apperr.Storage("list feedback", err)
	}

	groups := map[rollupKey][]models.FeedbackRecord{}
	for _, r := range records {
		k := rollupKey{teamID: r.TeamID, predictionType: r.PredictionType, model: r.ModelUsed}
		groups[k] = append(groups[k], r)
	}
	keys := make([]rollupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].teamID != keys[j].teamID {
			return keys[i].teamID < keys[j].teamID
		}
		if keys[i].predictionType != keys[j].predictionType {
			return keys[i].predictionType < keys[j].predictionType
		}
		return keys[i].model < keys[j].model
	})

	out := make([]models.AccuracyAggregate, 0, len(keys))
	for _, k := range keys {
		m := Summarize(groups[k])
		agg := models.AccuracyAggregate{
			TeamID:                     k.teamID,
			Day:                        start,
			PredictionType:             k.predictionType,
			ModelUsed:                  k.model,
			Total:                      m.TotalFeedbacks,
			Accepted:                   m.Accepted,
			Corrected:                  m.Corrected,
			Rejected:                   m.Rejected,
			AccuracyRate:               m.AccuracyRate,
			CorrectionRate:             m.CorrectionRate,
			RejectionRate:              m.RejectionRate,
			AvgConfidenceWhenAccepted:  m.AvgConfidenceWhenAccepted,
			AvgConfidenceWhenCorrected: m.AvgConfidenceWhenCorrected,
		}
		if err := t.Store.UpsertAccuracyAggregate(ctx, agg); err != nil {
			return out, apperr.Storage("upsert accuracy aggregate", err)
		}
		out = append(out, agg)
	}
	t.Logger.Info().Time("day", start).Int("aggregates", len(out)).Int("records", len(records)).Msg("accuracy rollup done")
	return out, nil
}
