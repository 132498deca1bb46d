// Package apply turns a reviewed decision into person, organisation and
// interaction records exactly once per input id.
package apply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/dedup"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/metrics"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/utils"
)

type Engine struct {
	Store     store.Decisions
	Matcher   dedup.Matcher
	Validator *validator.Validate
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

func New(st store.Decisions, matcher dedup.Matcher, logger zerolog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		Store:     st,
		Matcher:   matcher,
		Validator: apperr.NewValidator(),
		Logger:    logger,
		Metrics:   m,
	}
}

// Apply runs req at most once. A repeated input id returns the ids recorded
// by the first call with status already_applied.
func (e *Engine) Apply(ctx context.Context, req Request) (Result, error) {
	if err := e.Validator.Struct(req); err != nil {
		return Result{}, apperr.FromValidator(err)
	}

	entry, err := e.Store.GetDecisionLog(ctx, req.InputID)
	switch {
	case err == nil:
		e.Metrics.Apply(StatusAlreadyApplied)
		return alreadyApplied(entry), nil
	case !errors.Is(err, apperr.ErrNotFound):
		e.Metrics.Apply("error")
		return Result{}, apperr.Storage("lookup decision log", err)
	}

	hash, err := utils.ContentHash(hashedPayload{
		InputID:              req.InputID,
		PersonDecision:       req.PersonDecision,
		OrganisationDecision: req.OrganisationDecision,
	})
	if err != nil {
		return Result{}, fmt.Errorf("content hash: %w", err)
	}

	var res Result
	err = e.Store.InDecisionTx(ctx, func(tx store.DecisionTx) error {
		r, txErr := e.applyTx(ctx, tx, req, hash)
		res = r
		return txErr
	})
	if err != nil {
		return e.handleTxError(ctx, req.InputID, err)
	}

	e.Metrics.Apply(StatusApplied)
	if res.Deduped {
		e.Metrics.DedupHit()
	}
	e.Logger.Info().
		Str("input_id", req.InputID).
		Int64("decision_log_id", res.DecisionLogID).
		Bool("deduped", res.Deduped).
		Int64("acting_user_id", req.ActingUserID).
		Msg("decision applied")
	return res, nil
}

// handleTxError sorts out a failed transaction. Losing the insert race on
// input_id resolves to the winner's outcome.
func (e *Engine) handleTxError(ctx context.Context, inputID string, err error) (Result, error) {
	if errors.Is(err, apperr.ErrDuplicate) {
		entry, gerr := e.Store.GetDecisionLog(ctx, inputID)
		if gerr != nil {
			e.Metrics.Apply("error")
			return Result{}, apperr.Storage("reread decision log", gerr)
		}
		e.Logger.Info().Str("input_id", inputID).Msg("concurrent apply lost the race, returning stored outcome")
		e.Metrics.Apply(StatusAlreadyApplied)
		return alreadyApplied(entry), nil
	}

	e.Metrics.Apply("error")
	var (
		nf *apperr.NotFoundError
		ve *apperr.ValidationError
	)
	if errors.As(err, &nf) || errors.As(err, &ve) {
		return Result{}, err
	}
	e.Logger.Error().Err(err).Str("input_id", inputID).Msg("apply rolled back")
	return Result{}, apperr.Storage("apply decision", err)
}

func (e *Engine) applyTx(ctx context.Context, tx store.DecisionTx, req Request, hash string) (Result, error) {
	personID, err := resolvePerson(ctx, tx, req)
	if err != nil {
		return Result{}, err
	}
	orgID, err := resolveOrganisation(ctx, tx, req)
	if err != nil {
		return Result{}, err
	}

	res := Result{Status: StatusApplied, PersonID: personID, OrganisationID: orgID}
	if req.InteractionData != nil {
		interactionID, deduped, err := e.resolveInteraction(ctx, tx, req, personID, orgID)
		if err != nil {
			return Result{}, err
		}
		res.InteractionID = &interactionID
		res.Deduped = deduped
	}

	log := &models.DecisionLogEntry{
		InputID:        req.InputID,
		ContentHash:    hash,
		PersonID:       res.PersonID,
		OrganisationID: res.OrganisationID,
		InteractionID:  res.InteractionID,
		Deduped:        res.Deduped,
		AppliedBy:      req.ActingUserID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := tx.InsertDecisionLog(ctx, log); err != nil {
		return Result{}, err
	}
	res.DecisionLogID = log.ID
	res.Message = appliedMessage(res)
	return res, nil
}

func resolvePerson(ctx context.Context, tx store.DecisionTx, req Request) (*int64, error) {
	d := req.PersonDecision
	if !d.Apply {
		return nil, nil
	}
	if d.ID != nil {
		ok, err := tx.PersonExists(ctx, *d.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.NotFound("person", *d.ID)
		}
		id := *d.ID
		return &id, nil
	}
	if d.Data == nil {
		return nil, nil
	}
	p := &models.Person{
		TeamID:    req.TeamID,
		FirstName: d.Data.FirstName,
		LastName:  d.Data.LastName,
		Email:     d.Data.Email,
		Phone:     d.Data.Phone,
		JobTitle:  d.Data.JobTitle,
		CreatedBy: req.ActingUserID,
	}
	if err := tx.CreatePerson(ctx, p); err != nil {
		return nil, err
	}
	return &p.ID, nil
}

func resolveOrganisation(ctx context.Context, tx store.DecisionTx, req Request) (*int64, error) {
	d := req.OrganisationDecision
	if !d.Apply {
		return nil, nil
	}
	if d.ID != nil {
		ok, err := tx.OrganisationExists(ctx, *d.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.NotFound("organisation", *d.ID)
		}
		id := *d.ID
		return &id, nil
	}
	if d.Data == nil {
		return nil, nil
	}
	o := &models.Organisation{
		TeamID:    req.TeamID,
		Name:      d.Data.Name,
		Website:   d.Data.Website,
		Domain:    d.Data.Domain,
		Phone:     d.Data.Phone,
		City:      d.Data.City,
		Country:   d.Data.Country,
		CreatedBy: req.ActingUserID,
	}
	if err := tx.CreateOrganisation(ctx, o); err != nil {
		return nil, err
	}
	return &o.ID, nil
}

func (e *Engine) resolveInteraction(ctx context.Context, tx store.DecisionTx, req Request, personID, orgID *int64) (int64, bool, error) {
	d := req.InteractionData
	occurredAt := d.OccurredAt.UTC()

	var (
		interactionID int64
		deduped       bool
	)
	if req.Dedupe && orgID != nil {
		from, to := e.Matcher.Bounds(occurredAt)
		existing, err := tx.ListInteractionsBetween(ctx, *orgID, from, to)
		if err != nil {
			return 0, false, err
		}
		if m, ok := e.Matcher.Best(d.Title, occurredAt, existing); ok {
			interactionID = m.Interaction.ID
			deduped = true
			if d.Summary != "" && m.Interaction.Summary == "" {
				if _, err := tx.BackfillInteractionSummary(ctx, interactionID, d.Summary); err != nil {
					return 0, false, err
				}
			}
			e.Logger.Debug().
				Str("input_id", req.InputID).
				Int64("interaction_id", interactionID).
				Float64("score", m.Score).
				Msg("interaction deduplicated")
		}
	}

	if !deduped {
		channel := d.Channel
		if channel == "" {
			channel = d.Type
		}
		it := &models.Interaction{
			TeamID:         req.TeamID,
			OrganisationID: orgID,
			PersonID:       personID,
			Type:           d.Type,
			Title:          d.Title,
			Channel:        channel,
			Summary:        d.Summary,
			OccurredAt:     occurredAt,
			CreatedBy:      req.ActingUserID,
		}
		if err := tx.CreateInteraction(ctx, it); err != nil {
			return 0, false, err
		}
		interactionID = it.ID
	}

	if err := addParticipants(ctx, tx, interactionID, d.Participants, personID); err != nil {
		return 0, false, err
	}
	return interactionID, deduped, nil
}

func addParticipants(ctx context.Context, tx store.DecisionTx, interactionID int64, listed []ParticipantInput, personID *int64) error {
	participants := make([]models.Participant, 0, len(listed)+1)
	seen := map[int64]bool{}
	for _, p := range listed {
		if seen[p.PersonID] {
			continue
		}
		seen[p.PersonID] = true
		ok, err := tx.PersonExists(ctx, p.PersonID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("person", p.PersonID)
		}
		participants = append(participants, models.Participant{InteractionID: interactionID, PersonID: p.PersonID, Role: p.Role})
	}
	if personID != nil && !seen[*personID] {
		participants = append(participants, models.Participant{InteractionID: interactionID, PersonID: *personID, Role: RoleContact})
	}

	for _, p := range participants {
		if _, err := tx.AddParticipant(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func alreadyApplied(e models.DecisionLogEntry) Result {
	return Result{
		Status:         StatusAlreadyApplied,
		PersonID:       e.PersonID,
		OrganisationID: e.OrganisationID,
		InteractionID:  e.InteractionID,
		Deduped:        e.Deduped,
		DecisionLogID:  e.ID,
		Message:        "decision already applied",
	}
}

func appliedMessage(r Result) string {
	switch {
	case r.Deduped:
		return "decision applied, interaction merged into an existing one"
	case r.PersonID == nil && r.OrganisationID == nil && r.InteractionID == nil:
		return "decision applied, nothing to create"
	default:
		return "decision applied"
	}
}
