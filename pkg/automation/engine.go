// Package automation runs operator-defined rules on entity lifecycle triggers.
//
// Each rule has a rollout stage. Shadow rules only simulate their action and
// append to the shadow log, partial rules execute for a percentage of
// triggers, full rules always execute. Actions run through ActionExecutor,
// whose dry-run mode never writes or calls out.
package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/clock"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/rules"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	DefaultShadowLogLimit = 100

	reasonRollExceeded = "roll exceeded percentage"
)

type RuleStatus string

const (
	StatusSkipped         RuleStatus = "skipped"
	StatusConditionsUnmet RuleStatus = "conditions_not_met"
	StatusShadowed        RuleStatus = "shadowed"
	StatusExecuted        RuleStatus = "executed"
	StatusSimulated       RuleStatus = "simulated"
	StatusFailed          RuleStatus = "failed"
)

// RuleOutcome reports how one rule handled a trigger.
type RuleOutcome struct {
	Action        *ActionResult           `json:"action,omitempty"`
	Roll          *int                    `json:"roll,omitempty"`
	RuleName      string                  `json:"rule_name"`
	Stage         models.RolloutStage     `json:"stage"`
	Status        RuleStatus              `json:"status"`
	Reason        string                  `json:"reason,omitempty"`
	Error         string                  `json:"error,omitempty"`
	Conditions    []rules.ConditionResult `json:"conditions,omitempty"`
	ConditionsMet bool                    `json:"conditions_met"`
	RuleID        uuid.UUID               `json:"rule_id"`
}

type Options struct {
	ShadowLogLimit int
}

type Deps struct {
	Rules    repositories.AutomationRuleRepo
	Loader   *EntityLoader
	Executor *ActionExecutor
	Roller   Roller
	Clock    clock.Clock
	Logger   ectologger.Logger
}

type Engine struct {
	rules    repositories.AutomationRuleRepo
	loader   *EntityLoader
	executor *ActionExecutor
	roller   Roller
	clock    clock.Clock
	logger   ectologger.Logger
	opts     Options
}

func NewEngine(deps Deps, opts Options) *Engine {
	if opts.ShadowLogLimit <= 0 {
		opts.ShadowLogLimit = DefaultShadowLogLimit
	}
	if deps.Roller == nil {
		deps.Roller = RandomRoller{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	return &Engine{
		rules:    deps.Rules,
		loader:   deps.Loader,
		executor: deps.Executor,
		roller:   deps.Roller,
		clock:    deps.Clock,
		logger:   deps.Logger,
		opts:     opts,
	}
}

// ProcessEvent loads the event's entity and runs its trigger.
func (e *Engine) ProcessEvent(ctx context.Context, event models.LifecycleEvent) ([]RuleOutcome, error) {
	entity, err := e.loader.Load(ctx, event.EntityType, event.EntityID)
	if err != nil {
		return nil, err
	}
	return e.ProcessTrigger(ctx, event.Trigger, entity)
}

// ProcessTrigger evaluates the enabled rules of trigger, highest priority
// first, against entity. A failing action is reported in its outcome and does
// not stop later rules.
func (e *Engine) ProcessTrigger(ctx context.Context, trigger models.TriggerType, entity *Entity) ([]RuleOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "AutomationEngine.ProcessTrigger")
	defer span.End()

	if !trigger.IsValid() {
		return nil, repositories.BadRequest("unknown trigger %q", trigger)
	}
	if trigger.EntityType() != entity.Type {
		return nil, repositories.BadRequest("trigger %s fires for %s, got %s", trigger, trigger.EntityType(), entity.Type)
	}

	enabled, err := e.rules.ListEnabledByTrigger(ctx, trigger)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	outcomes := make([]RuleOutcome, 0, len(enabled))
	for i := range enabled {
		outcome := e.apply(ctx, trigger, &enabled[i], entity)
		metrics.RecordRuleEvaluation(string(trigger), string(outcome.Stage), string(outcome.Status))
		outcomes = append(outcomes, outcome)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"trigger":     trigger,
		"entity_type": entity.Type,
		"entity_id":   entity.ID,
		"rules":       len(outcomes),
	}).Debug("Processed trigger")
	return outcomes, nil
}

func (e *Engine) apply(ctx context.Context, trigger models.TriggerType, rule *models.AutomationRule, entity *Entity) RuleOutcome {
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"rule_id":   rule.ID,
		"rule_name": rule.Name,
		"trigger":   trigger,
		"entity_id": entity.ID,
	})
	outcome := RuleOutcome{RuleID: rule.ID, RuleName: rule.Name, Stage: rule.RolloutStage}

	if rule.RolloutStage == models.RolloutDisabled {
		outcome.Status = StatusSkipped
		outcome.Reason = "rule rollout is disabled"
		return outcome
	}

	outcome.ConditionsMet, outcome.Conditions = rules.EvaluateConditions(rule.Conditions.Data, entity.Snapshot)
	if !outcome.ConditionsMet {
		outcome.Status = StatusConditionsUnmet
		outcome.Reason = mismatchReason(outcome.Conditions)
		return outcome
	}

	now := e.clock.Now()
	var shadowEntry *models.ShadowLogEntry
	dryRun := true
	switch rule.RolloutStage {
	case models.RolloutShadow:
		outcome.Status = StatusShadowed
	case models.RolloutPartial:
		roll := e.roller.Roll()
		outcome.Roll = &roll
		if roll <= rule.RolloutPercentage {
			dryRun = false
			outcome.Status = StatusExecuted
		} else {
			outcome.Status = StatusSimulated
			outcome.Reason = reasonRollExceeded
		}
	case models.RolloutFull:
		dryRun = false
		outcome.Status = StatusExecuted
	default:
		outcome.Status = StatusSkipped
		outcome.Reason = fmt.Sprintf("unknown rollout stage %q", rule.RolloutStage)
		return outcome
	}

	result, err := e.executor.Execute(ctx, rule.Action, entity, &rule.ID, dryRun)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = err.Error()
		log.WithError(err).Error("automation action failed")
	} else {
		outcome.Action = result
	}

	if rule.RolloutStage == models.RolloutShadow {
		shadowEntry = &models.ShadowLogEntry{
			At:         now,
			Trigger:    trigger,
			EntityType: entity.Type,
			EntityID:   entity.ID,
			Action:     rule.Action.Kind,
		}
		if result != nil {
			shadowEntry.Description = result.Description
		}
		if err != nil {
			shadowEntry.Error = err.Error()
		}
	}
	if err := e.rules.RecordTrigger(ctx, rule.ID, now, shadowEntry, e.opts.ShadowLogLimit); err != nil {
		log.WithError(err).Error("failed to record rule trigger")
	}

	log.WithField("status", outcome.Status).Info("Automation rule fired")
	return outcome
}

// mismatchReason joins the reasons of unmatched conditions.
func mismatchReason(results []rules.ConditionResult) string {
	var reasons []string
	for _, result := range results {
		if !result.Matched {
			reasons = append(reasons, fmt.Sprintf("%s: %s", result.Field, result.Reason))
		}
	}
	return strings.Join(reasons, "; ")
}
