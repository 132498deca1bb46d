package routing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MichelAlforis/crm-alforis-sub002/internal/apperr"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/models"
	"github.com/MichelAlforis/crm-alforis-sub002/internal/store"
)

// RuleInput is the editable part of a routing rule, as accepted by the API
// and the seed file.
type RuleInput struct {
	TeamID        int64                 `json:"team_id" yaml:"team_id" validate:"required,gt=0"`
	Name          string                `json:"name" yaml:"name" validate:"required,max=255"`
	Description   string                `json:"description" yaml:"description"`
	IsActive      *bool                 `json:"is_active" yaml:"is_active"`
	Priority      int                   `json:"priority" yaml:"priority"`
	IntentTrigger string                `json:"intent_trigger" yaml:"intent_trigger" validate:"required,max=100"`
	MinConfidence int                   `json:"min_confidence" yaml:"min_confidence" validate:"min=0,max=100"`
	Conditions    models.RuleConditions `json:"conditions" yaml:"conditions"`
	Actions       []models.RuleAction   `json:"actions" yaml:"actions" validate:"required,min=1,dive"`
}

// Rule builds the stored form. Rules are active unless is_active is false.
func (in RuleInput) Rule() models.RoutingRule {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return models.RoutingRule{
		TeamID:        in.TeamID,
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		IsActive:      active,
		Priority:      in.Priority,
		IntentTrigger: in.IntentTrigger,
		MinConfidence: in.MinConfidence,
		Conditions:    in.Conditions,
		Actions:       in.Actions,
	}
}

// CheckActions rejects action types the engine would never run.
func CheckActions(actions []models.RuleAction) error {
	for i, a := range actions {
		if !KnownAction(a.Type) {
			return apperr.Validation(fmt.Sprintf("actions[%d].type", i), "unknown action type %q", a.Type)
		}
	}
	return nil
}

type rulesFile struct {
	Rules []RuleInput `yaml:"rules"`
}

func LoadRulesFile(path string) ([]RuleInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	return f.Rules, nil
}

// Seed creates the given rules, skipping any whose (team, name) already
// exists. It returns how many were created.
func Seed(ctx context.Context, rules store.Rules, inputs []RuleInput) (int, error) {
	v := apperr.NewValidator()
	existing := map[int64]map[string]bool{}
	created := 0
	for _, in := range inputs {
		if err := v.Struct(in); err != nil {
			return created, fmt.Errorf("rule %q: %w", in.Name, apperr.FromValidator(err))
		}
		if err := CheckActions(in.Actions); err != nil {
			return created, fmt.Errorf("rule %q: %w", in.Name, err)
		}
		names, ok := existing[in.TeamID]
		if !ok {
			current, err := rules.ListRules(ctx, in.TeamID)
			if err != nil {
				return created, err
			}
			names = map[string]bool{}
			for _, r := range current {
				names[r.Name] = true
			}
			existing[in.TeamID] = names
		}
		r := in.Rule()
		if names[r.Name] {
			continue
		}
		if err := rules.CreateRule(ctx, &r); err != nil {
			return created, err
		}
		names[r.Name] = true
		created++
	}
	return created, nil
}
