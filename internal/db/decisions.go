package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

type decisionTx struct {
	q querier
}

func (s *Store) GetDecisionLog(ctx context.Context, inputID string) (models.DecisionLogEntry, error) {
	return getDecisionLog(ctx, s.Pool, inputID)
}

func (s *Store) InDecisionTx(ctx context.Context, fn func(tx store.DecisionTx) error) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(decisionTx{q: tx})
	})
}

func getDecisionLog(ctx context.Context, q querier, inputID string) (models.DecisionLogEntry, error) {
	var e models.DecisionLogEntry
	err := q.QueryRow(ctx, `
		SELECT id, input_id, content_hash, person_id, organisation_id, interaction_id, deduped, applied_by, created_at
		FROM decision_logs WHERE input_id = $1
	`, inputID).Scan(&e.ID, &e.InputID, &e.ContentHash, &e.PersonID, &e.OrganisationID, &e.InteractionID, &e.Deduped, &e.AppliedBy, &e.CreatedAt)
	return e, mapErr(err)
}

func (t decisionTx) GetDecisionLog(ctx context.Context, inputID string) (models.DecisionLogEntry, error) {
	return getDecisionLog(ctx, t.q, inputID)
}

func (t decisionTx) InsertDecisionLog(ctx context.Context, e *models.DecisionLogEntry) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO decision_logs (input_id, content_hash, person_id, organisation_id, interaction_id, deduped, applied_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at
	`, e.InputID, e.ContentHash, e.PersonID, e.OrganisationID, e.InteractionID, e.Deduped, e.AppliedBy).Scan(&e.ID, &e.CreatedAt)
	return mapErr(err)
}

func (t decisionTx) PersonExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM persons WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (t decisionTx) CreatePerson(ctx context.Context, p *models.Person) error {
	return t.q.QueryRow(ctx, `
		INSERT INTO persons (team_id, first_name, last_name, email, phone, job_title, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at
	`, p.TeamID, p.FirstName, p.LastName, p.Email, p.Phone, p.JobTitle, p.CreatedBy).Scan(&p.ID, &p.CreatedAt)
}

func (t decisionTx) OrganisationExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM organisations WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (t decisionTx) CreateOrganisation(ctx context.Context, o *models.Organisation) error {
	return t.q.QueryRow(ctx, `
		INSERT INTO organisations (team_id, name, website, domain, phone, city, country, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at
	`, o.TeamID, o.Name, o.Website, o.Domain, o.Phone, o.City, o.Country, o.CreatedBy).Scan(&o.ID, &o.CreatedAt)
}

func (t decisionTx) ListInteractionsBetween(ctx context.Context, organisationID int64, from, to time.Time) ([]models.Interaction, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id, team_id, organisation_id, person_id, type, title, channel, summary, occurred_at, created_by, created_at
		FROM interactions
		WHERE organisation_id = $1 AND occurred_at BETWEEN $2 AND $3
		ORDER BY occurred_at ASC, id ASC
	`, organisationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Interaction
	for rows.Next() {
		var it models.Interaction
		if err := rows.Scan(&it.ID, &it.TeamID, &it.OrganisationID, &it.PersonID, &it.Type, &it.Title, &it.Channel, &it.Summary, &it.OccurredAt, &it.CreatedBy, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t decisionTx) CreateInteraction(ctx context.Context, it *models.Interaction) error {
	return t.q.QueryRow(ctx, `
		INSERT INTO interactions (team_id, organisation_id, person_id, type, title, channel, summary, occurred_at, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id, created_at
	`, it.TeamID, it.OrganisationID, it.PersonID, it.Type, it.Title, it.Channel, it.Summary, it.OccurredAt, it.CreatedBy).Scan(&it.ID, &it.CreatedAt)
}

func (t decisionTx) BackfillInteractionSummary(ctx context.Context, interactionID int64, summary string) (bool, error) {
	tag, err := t.q.Exec(ctx, `UPDATE interactions SET summary = $1 WHERE id = $2 AND summary = ''`, summary, interactionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t decisionTx) AddParticipant(ctx context.Context, p models.Participant) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		INSERT INTO interaction_participants (interaction_id, person_id, role)
		VALUES ($1,$2,$3)
		ON CONFLICT (interaction_id, person_id) DO NOTHING
	`, p.InteractionID, p.PersonID, p.Role)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
