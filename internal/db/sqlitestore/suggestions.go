package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

const suggestionColumns = `id, team_id, target_type, target_id, field_name, current_value, suggested_value, confidence,
	source_model, reasoning, source_email_id, source_interaction_id, status, reviewed_by, reviewed_at, final_value,
	auto_applied, auto_apply_reason, created_at`

func scanSuggestion(row scanner) (models.Suggestion, error) {
	var (
		sg       models.Suggestion
		reviewed sql.NullInt64
		created  int64
	)
	err := row.Scan(&sg.ID, &sg.TeamID, &sg.TargetType, &sg.TargetID, &sg.FieldName, &sg.CurrentValue, &sg.SuggestedValue, &sg.Confidence,
		&sg.SourceModel, &sg.Reasoning, &sg.SourceEmailID, &sg.SourceInteractionID, &sg.Status, &sg.ReviewedBy, &reviewed, &sg.FinalValue,
		&sg.AutoApplied, &sg.AutoApplyReason, &created)
	sg.ReviewedAt = timePtr(reviewed)
	sg.CreatedAt = fromMicros(created)
	return sg, err
}

func (s *Store) CreateSuggestion(ctx context.Context, sg *models.Suggestion) error {
	return insertSuggestion(ctx, s.DB, sg)
}

func (s *Store) CreateAppliedSuggestion(ctx context.Context, sg *models.Suggestion) error {
	if sg.TargetID == nil || sg.FinalValue == nil {
		return apperr.Validation("target_id", "an applied suggestion needs a target and a final value")
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := applyField(ctx, tx, sg.TargetType, *sg.TargetID, sg.FieldName, *sg.FinalValue); err != nil {
			return err
		}
		return insertSuggestion(ctx, tx, sg)
	})
}

func insertSuggestion(ctx context.Context, q querier, sg *models.Suggestion) error {
	if sg.CreatedAt.IsZero() {
		sg.CreatedAt = time.Now().UTC()
	}
	return q.QueryRowContext(ctx, `
		INSERT INTO suggestions (team_id, target_type, target_id, field_name, current_value, suggested_value, confidence,
			source_model, reasoning, source_email_id, source_interaction_id, status, reviewed_at, final_value, auto_applied, auto_apply_reason, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id
	`, sg.TeamID, sg.TargetType, sg.TargetID, sg.FieldName, sg.CurrentValue, sg.SuggestedValue, sg.Confidence,
		sg.SourceModel, sg.Reasoning, sg.SourceEmailID, sg.SourceInteractionID, sg.Status, nullMicros(sg.ReviewedAt), sg.FinalValue,
		sg.AutoApplied, sg.AutoApplyReason, toMicros(sg.CreatedAt)).Scan(&sg.ID)
}

func (s *Store) GetSuggestion(ctx context.Context, id int64) (models.Suggestion, error) {
	sg, err := scanSuggestion(s.DB.QueryRowContext(ctx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return sg, apperr.NotFound("suggestion", id)
	}
	return sg, err
}

func (s *Store) ListSuggestions(ctx context.Context, teamID int64, status string, limit int) ([]models.Suggestion, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE team_id = ?`
	args := []any{teamID}
	if status != "" {
		args = append(args, status)
		query += " AND status = ?"
	}
	args = append(args, limit)
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

func (s *Store) ResolveSuggestion(ctx context.Context, id int64, r store.Resolution) (models.Suggestion, error) {
	var out models.Suggestion
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE suggestions SET status = ?, reviewed_by = ?, reviewed_at = ?, final_value = ?
			WHERE id = ? AND status = ?
		`, r.Status, r.ReviewerID, toMicros(r.At), r.FinalValue, id, models.SuggestionPending)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		cur, err := scanSuggestion(tx.QueryRowContext(ctx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("suggestion", id)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.Conflict("suggestion %d is already %s", id, cur.Status)
		}
		if r.Apply && cur.TargetID != nil && cur.FinalValue != nil {
			if err := applyField(ctx, tx, cur.TargetType, *cur.TargetID, cur.FieldName, *cur.FinalValue); err != nil {
				return err
			}
		}
		out = cur
		return nil
	})
	return out, err
}

// applyField writes one whitelisted column of a person or organisation.
func applyField(ctx context.Context, q querier, targetType string, targetID int64, field, value string) error {
	column, ok := store.Column(targetType, field)
	if !ok {
		return apperr.Validation("field_name", "%q is not writable on %s", field, targetType)
	}
	table := "persons"
	if targetType == models.TargetOrganisation {
		table = "organisations"
	}
	res, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s = ? WHERE id = ?`, table, column), value, targetID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(targetType, targetID)
	}
	return nil
}
