package automation

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rules"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RuleSimulation is one rule's what-if result.
type RuleSimulation struct {
	Action        *ActionResult           `json:"action,omitempty"`
	RuleName      string                  `json:"rule_name"`
	Trigger       models.TriggerType      `json:"trigger"`
	Stage         models.RolloutStage     `json:"stage"`
	Error         string                  `json:"error,omitempty"`
	Conditions    []rules.ConditionResult `json:"conditions"`
	Enabled       bool                    `json:"enabled"`
	ConditionsMet bool                    `json:"conditions_met"`
	RuleID        uuid.UUID               `json:"rule_id"`
}

type SimulationReport struct {
	EntityType models.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Rules      []RuleSimulation  `json:"rules"`
	Matched    int               `json:"matched"`
}

// TestRules dry-runs every rule whose trigger fires for entityType, ignoring
// enabled and rollout flags. It writes nothing, not even trigger counts.
func (e *Engine) TestRules(ctx context.Context, entityType models.EntityType, entityID string) (*SimulationReport, error) {
	ctx, span := tracing.StartSpan(ctx, "AutomationEngine.TestRules")
	defer span.End()

	entity, err := e.loader.Load(ctx, entityType, entityID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	all, err := e.rules.List(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	report := &SimulationReport{EntityType: entity.Type, EntityID: entity.ID, Rules: []RuleSimulation{}}
	for i := range all {
		rule := &all[i]
		if rule.Trigger.EntityType() != entity.Type {
			continue
		}

		sim := RuleSimulation{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Trigger:  rule.Trigger,
			Stage:    rule.RolloutStage,
			Enabled:  rule.Enabled,
		}
		sim.ConditionsMet, sim.Conditions = rules.EvaluateConditions(rule.Conditions.Data, entity.Snapshot)
		if sim.ConditionsMet {
			report.Matched++
			result, err := e.executor.Execute(ctx, rule.Action, entity, &rule.ID, true)
			if err != nil {
				sim.Error = err.Error()
			} else {
				sim.Action = result
			}
		}
		report.Rules = append(report.Rules, sim)
	}
	return report, nil
}
