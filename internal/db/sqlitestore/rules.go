package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
)

const ruleColumns = `id, team_id, name, description, is_active, priority, intent_trigger, min_confidence,
	conditions, actions, execution_count, last_executed_at, created_at`

func scanRule(row scanner) (models.RoutingRule, error) {
	var (
		r                   models.RoutingRule
		conditions, actions string
		lastExecuted        sql.NullInt64
		created             int64
	)
	if err := row.Scan(&r.ID, &r.TeamID, &r.Name, &r.Description, &r.IsActive, &r.Priority, &r.IntentTrigger, &r.MinConfidence,
		&conditions, &actions, &r.ExecutionCount, &lastExecuted, &created); err != nil {
		return r, err
	}
	r.LastExecutedAt = timePtr(lastExecuted)
	r.CreatedAt = fromMicros(created)
	if conditions != "" {
		if err := json.Unmarshal([]byte(conditions), &r.Conditions); err != nil {
			return r, err
		}
	}
	if actions != "" {
		if err := json.Unmarshal([]byte(actions), &r.Actions); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (s *Store) listRules(ctx context.Context, query string, args ...any) ([]models.RoutingRule, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RoutingRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListActiveRules(ctx context.Context, teamID int64, intent string) ([]models.RoutingRule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM routing_rules
		WHERE team_id = ? AND intent_trigger = ? AND is_active = 1
		ORDER BY priority DESC, created_at ASC, id ASC`, teamID, intent)
}

func (s *Store) ListRules(ctx context.Context, teamID int64) ([]models.RoutingRule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM routing_rules
		WHERE team_id = ? ORDER BY priority DESC, created_at ASC, id ASC`, teamID)
}

func (s *Store) GetRule(ctx context.Context, id int64) (models.RoutingRule, error) {
	r, err := scanRule(s.DB.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM routing_rules WHERE id = ?`, id))
	return r, mapErr(err)
}

func (s *Store) MarkRuleExecuted(ctx context.Context, ruleID int64, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE routing_rules SET execution_count = execution_count + 1, last_executed_at = ? WHERE id = ?`, toMicros(at), ruleID)
	return err
}

func (s *Store) CreateRule(ctx context.Context, r *models.RoutingRule) error {
	conditions, actions, err := encodeRule(r)
	if err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return s.DB.QueryRowContext(ctx, `
		INSERT INTO routing_rules (team_id, name, description, is_active, priority, intent_trigger, min_confidence, conditions, actions, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		RETURNING id
	`, r.TeamID, r.Name, r.Description, r.IsActive, r.Priority, r.IntentTrigger, r.MinConfidence, conditions, actions, toMicros(r.CreatedAt)).Scan(&r.ID)
}

func (s *Store) UpdateRule(ctx context.Context, r *models.RoutingRule) error {
	conditions, actions, err := encodeRule(r)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE routing_rules
		SET name = ?, description = ?, is_active = ?, priority = ?, intent_trigger = ?, min_confidence = ?, conditions = ?, actions = ?
		WHERE id = ?
	`, r.Name, r.Description, r.IsActive, r.Priority, r.IntentTrigger, r.MinConfidence, conditions, actions, r.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("routing rule", r.ID)
	}
	return nil
}

func encodeRule(r *models.RoutingRule) (string, string, error) {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return "", "", err
	}
	actions := r.Actions
	if actions == nil {
		actions = []models.RuleAction{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return "", "", err
	}
	return string(conditions), string(actionsJSON), nil
}
