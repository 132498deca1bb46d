package sqlitestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

type decisionTx struct {
	q querier
}

func (s *Store) GetDecisionLog(ctx context.Context, inputID string) (models.DecisionLogEntry, error) {
	return getDecisionLog(ctx, s.DB, inputID)
}

func (s *Store) InDecisionTx(ctx context.Context, fn func(tx store.DecisionTx) error) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(decisionTx{q: tx})
	})
}

func getDecisionLog(ctx context.Context, q querier, inputID string) (models.DecisionLogEntry, error) {
	var (
		e       models.DecisionLogEntry
		created int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, input_id, content_hash, person_id, organisation_id, interaction_id, deduped, applied_by, created_at
		FROM decision_logs WHERE input_id = ?
	`, inputID).Scan(&e.ID, &e.InputID, &e.ContentHash, &e.PersonID, &e.OrganisationID, &e.InteractionID, &e.Deduped, &e.AppliedBy, &created)
	e.CreatedAt = fromMicros(created)
	return e, mapErr(err)
}

func (t decisionTx) GetDecisionLog(ctx context.Context, inputID string) (models.DecisionLogEntry, error) {
	return getDecisionLog(ctx, t.q, inputID)
}

func (t decisionTx) InsertDecisionLog(ctx context.Context, e *models.DecisionLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO decision_logs (input_id, content_hash, person_id, organisation_id, interaction_id, deduped, applied_by, created_at)
		VALUES (?,?,?,?,?,?,?,?)
		RETURNING id
	`, e.InputID, e.ContentHash, e.PersonID, e.OrganisationID, e.InteractionID, e.Deduped, e.AppliedBy, toMicros(e.CreatedAt)).Scan(&e.ID)
	return mapErr(err)
}

func (t decisionTx) exists(ctx context.Context, query string, id int64) (bool, error) {
	var n int
	if err := t.q.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t decisionTx) PersonExists(ctx context.Context, id int64) (bool, error) {
	return t.exists(ctx, `SELECT COUNT(*) FROM persons WHERE id = ?`, id)
}

func (t decisionTx) CreatePerson(ctx context.Context, p *models.Person) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return t.q.QueryRowContext(ctx, `
		INSERT INTO persons (team_id, first_name, last_name, email, phone, job_title, created_by, created_at)
		VALUES (?,?,?,?,?,?,?,?)
		RETURNING id
	`, p.TeamID, p.FirstName, p.LastName, p.Email, p.Phone, p.JobTitle, p.CreatedBy, toMicros(p.CreatedAt)).Scan(&p.ID)
}

func (t decisionTx) OrganisationExists(ctx context.Context, id int64) (bool, error) {
	return t.exists(ctx, `SELECT COUNT(*) FROM organisations WHERE id = ?`, id)
}

func (t decisionTx) CreateOrganisation(ctx context.Context, o *models.Organisation) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	return t.q.QueryRowContext(ctx, `
		INSERT INTO organisations (team_id, name, website, domain, phone, city, country, created_by, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		RETURNING id
	`, o.TeamID, o.Name, o.Website, o.Domain, o.Phone, o.City, o.Country, o.CreatedBy, toMicros(o.CreatedAt)).Scan(&o.ID)
}

func (t decisionTx) ListInteractionsBetween(ctx context.Context, organisationID int64, from, to time.Time) ([]models.Interaction, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, team_id, organisation_id, person_id, type, title, channel, summary, occurred_at, created_by, created_at
		FROM interactions
		WHERE organisation_id = ? AND occurred_at BETWEEN ? AND ?
		ORDER BY occurred_at ASC, id ASC
	`, organisationID, toMicros(from), toMicros(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Interaction
	for rows.Next() {
		var (
			it                models.Interaction
			occurred, created int64
		)
		if err := rows.Scan(&it.ID, &it.TeamID, &it.OrganisationID, &it.PersonID, &it.Type, &it.Title, &it.Channel, &it.Summary, &occurred, &it.CreatedBy, &created); err != nil {
			return nil, err
		}
		it.OccurredAt = fromMicros(occurred)
		it.CreatedAt = fromMicros(created)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t decisionTx) CreateInteraction(ctx context.Context, it *models.Interaction) error {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	return t.q.QueryRowContext(ctx, `
		INSERT INTO interactions (team_id, organisation_id, person_id, type, title, channel, summary, occurred_at, created_by, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		RETURNING id
	`, it.TeamID, it.OrganisationID, it.PersonID, it.Type, it.Title, it.Channel, it.Summary, toMicros(it.OccurredAt), it.CreatedBy, toMicros(it.CreatedAt)).Scan(&it.ID)
}

func (t decisionTx) BackfillInteractionSummary(ctx context.Context, interactionID int64, summary string) (bool, error) {
	res, err := t.q.ExecContext(ctx, `UPDATE interactions SET summary = ? WHERE id = ? AND summary = ''`, summary, interactionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (t decisionTx) AddParticipant(ctx context.Context, p models.Participant) (bool, error) {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO interaction_participants (interaction_id, person_id, role)
		VALUES (?,?,?)
		ON CONFLICT (interaction_id, person_id) DO NOTHING
	`, p.InteractionID, p.PersonID, p.Role)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
