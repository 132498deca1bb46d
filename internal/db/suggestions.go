package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

const suggestionColumns = `id, team_id, target_type, target_id, field_name, current_value, suggested_value, confidence,
	source_model, reasoning, source_email_id, source_interaction_id, status, reviewed_by, reviewed_at, final_value,
	auto_applied, auto_apply_reason, created_at`

func scanSuggestion(row pgx.Row) (models.Suggestion, error) {
	var s models.Suggestion
	err := row.Scan(&s.ID, &s.TeamID, &s.TargetType, &s.TargetID, &s.FieldName, &s.CurrentValue, &s.SuggestedValue, &s.Confidence,
		&s.SourceModel, &s.Reasoning, &s.SourceEmailID, &s.SourceInteractionID, &s.Status, &s.ReviewedBy, &s.ReviewedAt, &s.FinalValue,
		&s.AutoApplied, &s.AutoApplyReason, &s.CreatedAt)
	return s, err
}

func (s *Store) CreateSuggestion(ctx context.Context, sg *models.Suggestion) error {
	return insertSuggestion(ctx, s.Pool, sg)
}

func (s *Store) CreateAppliedSuggestion(ctx context.Context, sg *models.Suggestion) error {
	if sg.TargetID == nil || sg.FinalValue == nil {
		return apperr.Validation("target_id", "an applied suggestion needs a target and a final value")
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := applyField(ctx, tx, sg.TargetType, *sg.TargetID, sg.FieldName, *sg.FinalValue); err != nil {
			return err
		}
		return insertSuggestion(ctx, tx, sg)
	})
}

func insertSuggestion(ctx context.Context, q querier, sg *models.Suggestion) error {
	return q.QueryRow(ctx, `
		INSERT INTO suggestions (team_id, target_type, target_id, field_name, current_value, suggested_value, confidence,
			source_model, reasoning, source_email_id, source_interaction_id, status, reviewed_at, final_value, auto_applied, auto_apply_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id
	`, sg.TeamID, sg.TargetType, sg.TargetID, sg.FieldName, sg.CurrentValue, sg.SuggestedValue, sg.Confidence,
		sg.SourceModel, sg.Reasoning, sg.SourceEmailID, sg.SourceInteractionID, sg.Status, sg.ReviewedAt, sg.FinalValue,
		sg.AutoApplied, sg.AutoApplyReason, sg.CreatedAt).Scan(&sg.ID)
}

func (s *Store) GetSuggestion(ctx context.Context, id int64) (models.Suggestion, error) {
	sg, err := scanSuggestion(s.Pool.QueryRow(ctx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return sg, apperr.NotFound("suggestion", id)
	}
	return sg, err
}

func (s *Store) ListSuggestions(ctx context.Context, teamID int64, status string, limit int) ([]models.Suggestion, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE team_id = $1`
	args := []any{teamID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
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
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		cur, err := scanSuggestion(tx.QueryRow(ctx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("suggestion", id)
		}
		if err != nil {
			return err
		}
		if cur.Resolved() {
			return apperr.Conflict("suggestion %d is already %s", id, cur.Status)
		}
		out, err = scanSuggestion(tx.QueryRow(ctx, `
			UPDATE suggestions SET status = $1, reviewed_by = $2, reviewed_at = $3, final_value = $4
			WHERE id = $5
			RETURNING `+suggestionColumns, r.Status, r.ReviewerID, r.At, r.FinalValue, id))
		if err != nil {
			return err
		}
		if r.Apply && out.TargetID != nil && out.FinalValue != nil {
			return applyField(ctx, tx, out.TargetType, *out.TargetID, out.FieldName, *out.FinalValue)
		}
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
	tag, err := q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE id = $2`, table, column), value, targetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(targetType, targetID)
	}
	return nil
}
