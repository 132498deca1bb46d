package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

func nullJSON(v map[string]any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (s *Store) InsertFeedback(ctx context.Context, f *models.FeedbackRecord) error {
	original, err := json.Marshal(f.OriginalPrediction)
	if err != nil {
		return err
	}
	corrected, err := nullJSON(f.CorrectedData)
	if err != nil {
		return err
	}
	fbContext, err := nullJSON(f.Context)
	if err != nil {
		return err
	}
	categories := f.ErrorCategories
	if categories == nil {
		categories = []string{}
	}
	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return err
	}

	return s.DB.QueryRowContext(ctx, `
		INSERT INTO ai_feedback (team_id, user_id, prediction_type, reference_id, model_used, original_prediction,
			original_confidence, corrected_data, judgment, error_categories, notes, context, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id
	`, f.TeamID, f.UserID, f.PredictionType, f.ReferenceID, f.ModelUsed, string(original),
		f.OriginalConfidence, corrected, f.Judgment, string(categoriesJSON), f.Notes, fbContext, toMicros(f.CreatedAt)).Scan(&f.ID)
}

func (s *Store) ListFeedback(ctx context.Context, filter store.FeedbackFilter) ([]models.FeedbackRecord, error) {
	query := `SELECT id, team_id, user_id, prediction_type, reference_id, model_used, original_prediction,
		original_confidence, corrected_data, judgment, error_categories, notes, context, created_at
		FROM ai_feedback`
	var (
		args   []any
		wheres = []string{"1 = 1"}
	)
	if filter.TeamID != 0 {
		args = append(args, filter.TeamID)
		wheres = append(wheres, "team_id = ?")
	}
	if filter.PredictionType != "" {
		args = append(args, filter.PredictionType)
		wheres = append(wheres, "prediction_type = ?")
	}
	if filter.ModelUsed != "" {
		args = append(args, filter.ModelUsed)
		wheres = append(wheres, "model_used = ?")
	}
	if !filter.Since.IsZero() {
		args = append(args, toMicros(filter.Since))
		wheres = append(wheres, "created_at >= ?")
	}
	if !filter.Until.IsZero() {
		args = append(args, toMicros(filter.Until))
		wheres = append(wheres, "created_at < ?")
	}
	query += " WHERE " + strings.Join(wheres, " AND ") + " ORDER BY created_at ASC, id ASC"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FeedbackRecord
	for rows.Next() {
		var (
			f                    models.FeedbackRecord
			original, categories string
			corrected, fbContext sql.NullString
			created              int64
		)
		if err := rows.Scan(&f.ID, &f.TeamID, &f.UserID, &f.PredictionType, &f.ReferenceID, &f.ModelUsed, &original,
			&f.OriginalConfidence, &corrected, &f.Judgment, &categories, &f.Notes, &fbContext, &created); err != nil {
			return nil, err
		}
		f.CreatedAt = fromMicros(created)
		if err := json.Unmarshal([]byte(original), &f.OriginalPrediction); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(categories), &f.ErrorCategories); err != nil {
			return nil, err
		}
		if corrected.Valid {
			if err := json.Unmarshal([]byte(corrected.String), &f.CorrectedData); err != nil {
				return nil, err
			}
		}
		if fbContext.Valid {
			if err := json.Unmarshal([]byte(fbContext.String), &f.Context); err != nil {
				return nil, err
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) UpsertAccuracyAggregate(ctx context.Context, a models.AccuracyAggregate) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO model_accuracy_daily (team_id, day, prediction_type, model_used, total, accepted, corrected, rejected,
			accuracy_rate, correction_rate, rejection_rate, avg_confidence_when_accepted, avg_confidence_when_corrected)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (team_id, day, prediction_type, model_used) DO UPDATE SET
			total = excluded.total,
			accepted = excluded.accepted,
			corrected = excluded.corrected,
			rejected = excluded.rejected,
			accuracy_rate = excluded.accuracy_rate,
			correction_rate = excluded.correction_rate,
			rejection_rate = excluded.rejection_rate,
			avg_confidence_when_accepted = excluded.avg_confidence_when_accepted,
			avg_confidence_when_corrected = excluded.avg_confidence_when_corrected
	`, a.TeamID, a.Day.UTC().Format("2006-01-02"), a.PredictionType, a.ModelUsed, a.Total, a.Accepted, a.Corrected, a.Rejected,
		a.AccuracyRate, a.CorrectionRate, a.RejectionRate, a.AvgConfidenceWhenAccepted, a.AvgConfidenceWhenCorrected)
	return err
}

// AccuracyAggregates lists stored rollups for a team, oldest day first.
func (s *Store) AccuracyAggregates(ctx context.Context, teamID int64) ([]models.AccuracyAggregate, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT team_id, day, prediction_type, model_used, total, accepted, corrected, rejected,
			accuracy_rate, correction_rate, rejection_rate, avg_confidence_when_accepted, avg_confidence_when_corrected
		FROM model_accuracy_daily WHERE team_id = ?
		ORDER BY day ASC, prediction_type ASC, model_used ASC
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AccuracyAggregate
	for rows.Next() {
		var (
			a   models.AccuracyAggregate
			day string
		)
		if err := rows.Scan(&a.TeamID, &day, &a.PredictionType, &a.ModelUsed, &a.Total, &a.Accepted, &a.Corrected, &a.Rejected,
			&a.AccuracyRate, &a.CorrectionRate, &a.RejectionRate, &a.AvgConfidenceWhenAccepted, &a.AvgConfidenceWhenCorrected); err != nil {
			return nil, err
		}
		a.Day, err = time.Parse("2006-01-02", day)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
