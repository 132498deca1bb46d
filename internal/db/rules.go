package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
)

const ruleColumns = `id, team_id, name, description, is_active, priority, intent_trigger, min_confidence,
	conditions, actions, execution_count, last_executed_at, created_at`

func scanRule(row pgx.Row) (models.RoutingRule, error) {
	var (
		r          models.RoutingRule
		conditions []byte
		actions    []byte
	)
	if err := row.Scan(&r.ID, &r.TeamID, &r.Name, &r.Description, &r.IsActive, &r.Priority, &r.IntentTrigger, &r.MinConfidence,
		&conditions, &actions, &r.ExecutionCount, &r.LastExecutedAt, &r.CreatedAt); err != nil {
		return r, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
			return r, err
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &r.Actions); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (s *Store) listRules(ctx context.Context, query string, args ...any) ([]models.RoutingRule, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
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
		WHERE team_id = $1 AND intent_trigger = $2 AND is_active
		ORDER BY priority DESC, created_at ASC, id ASC`, teamID, intent)
}

func (s *Store) ListRules(ctx context.Context, teamID int64) ([]models.RoutingRule, error) {
	return s.listRules(ctx, `SELECT `+ruleColumns+` FROM routing_rules
		WHERE team_id = $1 ORDER BY priority DESC, created_at ASC, id ASC`, teamID)
}

func (s *Store) GetRule(ctx context.Context, id int64) (models.RoutingRule, error) {
	r, err := scanRule(s.Pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM routing_rules WHERE id = $1`, id))
	return r, mapErr(err)
}

func (s *Store) MarkRuleExecuted(ctx context.Context, ruleID int64, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `UPDATE routing_rules SET execution_count = execution_count + 1, last_executed_at = $1 WHERE id = $2`, at, ruleID)
	return err
}

func (s *Store) CreateRule(ctx context.Context, r *models.RoutingRule) error {
	conditions, actions, err := encodeRule(r)
	if err != nil {
		return err
	}
	return s.Pool.QueryRow(ctx, `
		INSERT INTO routing_rules (team_id, name, description, is_active, priority, intent_trigger, min_confidence, conditions, actions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at
	`, r.TeamID, r.Name, r.Description, r.IsActive, r.Priority, r.IntentTrigger, r.MinConfidence, conditions, actions).Scan(&r.ID, &r.CreatedAt)
}

func (s *Store) UpdateRule(ctx context.Context, r *models.RoutingRule) error {
	conditions, actions, err := encodeRule(r)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE routing_rules
		SET name = $1, description = $2, is_active = $3, priority = $4, intent_trigger = $5, min_confidence = $6, conditions = $7, actions = $8
		WHERE id = $9
	`, r.Name, r.Description, r.IsActive, r.Priority, r.IntentTrigger, r.MinConfidence, conditions, actions, r.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
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
