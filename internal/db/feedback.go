package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

func (s *Store) InsertFeedback(ctx context.Context, f *models.FeedbackRecord) error {
	original, err := json.Marshal(f.OriginalPrediction)
	if err != nil {
		return err
	}
	var corrected, fbContext *string
	if f.CorrectedData != nil {
		b, err := json.Marshal(f.CorrectedData)
		if err != nil {
			return err
		}
		v := string(b)
		corrected = &v
	}
	if f.Context != nil {
		b, err := json.Marshal(f.Context)
		if err != nil {
			return err
		}
		v := string(b)
		fbContext = &v
	}
	categories := f.ErrorCategories
	if categories == nil {
		categories = []string{}
	}
	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return err
	}

	return s.Pool.QueryRow(ctx, `
		INSERT INTO ai_feedback (team_id, user_id, prediction_type, reference_id, model_used, original_prediction,
			original_confidence, corrected_data, judgment, error_categories, notes, context, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, f.TeamID, f.UserID, f.PredictionType, f.ReferenceID, f.ModelUsed, string(original),
		f.OriginalConfidence, corrected, f.Judgment, string(categoriesJSON), f.Notes, fbContext, f.CreatedAt).Scan(&f.ID)
}

func (s *Store) ListFeedback(ctx context.Context, filter store.FeedbackFilter) ([]models.FeedbackRecord, error) {
	query := `SELECT id, team_id, user_id, prediction_type, reference_id, model_used, original_prediction,
		original_confidence, corrected_data, judgment, error_categories, notes, context, created_at
		FROM ai_feedback`
	var (
		args   []any
		wheres = []string{"TRUE"}
	)
	if filter.TeamID != 0 {
		args = append(args, filter.TeamID)
		wheres = append(wheres, fmt.Sprintf("team_id = $%d", len(args)))
	}
	if filter.PredictionType != "" {
		args = append(args, filter.PredictionType)
		wheres = append(wheres, fmt.Sprintf("prediction_type = $%d", len(args)))
	}
	if filter.ModelUsed != "" {
		args = append(args, filter.ModelUsed)
		wheres = append(wheres, fmt.Sprintf("model_used = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		wheres = append(wheres, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		wheres = append(wheres, fmt.Sprintf("created_at < $%d", len(args)))
	}
	query += " WHERE " + strings.Join(wheres, " AND ") + " ORDER BY created_at ASC, id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FeedbackRecord
	for rows.Next() {
		var (
			f                              models.FeedbackRecord
			original, corrected, fbContext []byte
			categories                     []byte
		)
		if err := rows.Scan(&f.ID, &f.TeamID, &f.UserID, &f.PredictionType, &f.ReferenceID, &f.ModelUsed, &original,
			&f.OriginalConfidence, &corrected, &f.Judgment, &categories, &f.Notes, &fbContext, &f.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeFeedbackJSON(&f, original, corrected, categories, fbContext); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func decodeFeedbackJSON(f *models.FeedbackRecord, original, corrected, categories, fbContext []byte) error {
	if len(original) > 0 {
		if err := json.Unmarshal(original, &f.OriginalPrediction); err != nil {
			return err
		}
	}
	if len(corrected) > 0 {
		if err := json.Unmarshal(corrected, &f.CorrectedData); err != nil {
			return err
		}
	}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &f.ErrorCategories); err != nil {
			return err
		}
	}
	if len(fbContext) > 0 {
		if err := json.Unmarshal(fbContext, &f.Context); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpsertAccuracyAggregate(ctx context.Context, a models.AccuracyAggregate) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO model_accuracy_daily (team_id, day, prediction_type, model_used, total, accepted, corrected, rejected,
			accuracy_rate, correction_rate, rejection_rate, avg_confidence_when_accepted, avg_confidence_when_corrected)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (team_id, day, prediction_type, model_used) DO UPDATE SET
			total = EXCLUDED.total,
			accepted = EXCLUDED.accepted,
			corrected = EXCLUDED.corrected,
			rejected = EXCLUDED.rejected,
			accuracy_rate = EXCLUDED.accuracy_rate,
			correction_rate = EXCLUDED.correction_rate,
			rejection_rate = EXCLUDED.rejection_rate,
			avg_confidence_when_accepted = EXCLUDED.avg_confidence_when_accepted,
			avg_confidence_when_corrected = EXCLUDED.avg_confidence_when_corrected
	`, a.TeamID, a.Day, a.PredictionType, a.ModelUsed, a.Total, a.Accepted, a.Corrected, a.Rejected,
		a.AccuracyRate, a.CorrectionRate, a.RejectionRate, a.AvgConfidenceWhenAccepted, a.AvgConfidenceWhenCorrected)
	return err
}

func (s *Store) AccuracyAggregates(ctx context.Context, teamID int64) ([]models.AccuracyAggregate, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT team_id, day, prediction_type, model_used, total, accepted, corrected, rejected,
			accuracy_rate, correction_rate, rejection_rate, avg_confidence_when_accepted, avg_confidence_when_corrected
		FROM model_accuracy_daily WHERE team_id = $1
		ORDER BY day ASC, prediction_type ASC, model_used ASC
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AccuracyAggregate
	for rows.Next() {
		var a models.AccuracyAggregate
		if err := rows.Scan(&a.TeamID, &a.Day, &a.PredictionType, &a.ModelUsed, &a.Total, &a.Accepted, &a.Corrected, &a.Rejected,
			&a.AccuracyRate, &a.CorrectionRate, &a.RejectionRate, &a.AvgConfidenceWhenAccepted, &a.AvgConfidenceWhenCorrected); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
