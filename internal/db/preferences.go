package db

import (
	"context"
	"fmt"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

func (s *Store) InsertPreference(ctx context.Context, p *models.UserPreferenceRecord) error {
	return s.Pool.QueryRow(ctx, `
		INSERT INTO user_preferences (user_id, team_id, field_name, context_type, entity_id, suggested_value, suggestion_source,
			suggestion_confidence, suggestion_rank, action, final_value, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, p.UserID, p.TeamID, p.FieldName, p.ContextType, p.EntityID, p.SuggestedValue, p.SuggestionSource,
		p.SuggestionConfidence, p.SuggestionRank, p.Action, p.FinalValue, p.CreatedAt, p.ExpiresAt).Scan(&p.ID)
}

func (s *Store) ListActivePreferences(ctx context.Context, filter store.PreferenceFilter) ([]models.UserPreferenceRecord, error) {
	query := `SELECT id, user_id, team_id, field_name, context_type, entity_id, suggested_value, suggestion_source,
		suggestion_confidence, suggestion_rank, action, final_value, created_at, expires_at
		FROM user_preferences
		WHERE team_id = $1 AND field_name = $2 AND expires_at > $3`
	args := []any{filter.TeamID, filter.FieldName, filter.Now}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UserPreferenceRecord
	for rows.Next() {
		var p models.UserPreferenceRecord
		if err := rows.Scan(&p.ID, &p.UserID, &p.TeamID, &p.FieldName, &p.ContextType, &p.EntityID, &p.SuggestedValue, &p.SuggestionSource,
			&p.SuggestionConfidence, &p.SuggestionRank, &p.Action, &p.FinalValue, &p.CreatedAt, &p.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) PurgeExpiredPreferences(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM user_preferences WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
