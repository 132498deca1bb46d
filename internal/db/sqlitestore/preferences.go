package sqlitestore

import (
	"context"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

func (s *Store) InsertPreference(ctx context.Context, p *models.UserPreferenceRecord) error {
	return s.DB.QueryRowContext(ctx, `
		INSERT INTO user_preferences (user_id, team_id, field_name, context_type, entity_id, suggested_value, suggestion_source,
			suggestion_confidence, suggestion_rank, action, final_value, created_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id
	`, p.UserID, p.TeamID, p.FieldName, p.ContextType, p.EntityID, p.SuggestedValue, p.SuggestionSource,
		p.SuggestionConfidence, p.SuggestionRank, p.Action, p.FinalValue, toMicros(p.CreatedAt), toMicros(p.ExpiresAt)).Scan(&p.ID)
}

func (s *Store) ListActivePreferences(ctx context.Context, filter store.PreferenceFilter) ([]models.UserPreferenceRecord, error) {
	query := `SELECT id, user_id, team_id, field_name, context_type, entity_id, suggested_value, suggestion_source,
		suggestion_confidence, suggestion_rank, action, final_value, created_at, expires_at
		FROM user_preferences
		WHERE team_id = ? AND field_name = ? AND expires_at > ?`
	args := []any{filter.TeamID, filter.FieldName, toMicros(filter.Now)}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		query += " AND user_id = ?"
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UserPreferenceRecord
	for rows.Next() {
		var (
			p                models.UserPreferenceRecord
			created, expires int64
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.TeamID, &p.FieldName, &p.ContextType, &p.EntityID, &p.SuggestedValue, &p.SuggestionSource,
			&p.SuggestionConfidence, &p.SuggestionRank, &p.Action, &p.FinalValue, &created, &expires); err != nil {
			return nil, err
		}
		p.CreatedAt = fromMicros(created)
		p.ExpiresAt = fromMicros(expires)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) PurgeExpiredPreferences(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM user_preferences WHERE expires_at <= ?`, toMicros(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
