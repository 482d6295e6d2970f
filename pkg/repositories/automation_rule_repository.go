package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const automationRulesTable = "automation_rules"

var automationRuleStruct = database.NewStruct(new(models.AutomationRule))

type AutomationRuleRepository struct {
	*Repository
}

var _ AutomationRuleRepo = (*AutomationRuleRepository)(nil)

func NewAutomationRuleRepository(db database.DB, logger ectologger.Logger) *AutomationRuleRepository {
	return &AutomationRuleRepository{
		Repository: NewRepository(db, logger),
	}
}

// Save upserts the rule definition. Counters and the shadow log stay as stored
// and are read back into rule.
func (r *AutomationRuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.Save")
	defer span.End()

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	columns := []string{
		"name", "description", "trigger_type", "conditions", "action",
		"rollout_stage", "rollout_percentage", "priority", "enabled", "updated_at",
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(automationRulesTable).
		Cols(append([]string{"id"}, append(columns, "created_at")...)...).
		Values(rule.ID, rule.Name, rule.Description, rule.Trigger, rule.Conditions, rule.Action,
			rule.RolloutStage, rule.RolloutPercentage, rule.Priority, rule.Enabled,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"))
	database.OnConflictUpdate(ib, "id", columns...)
	ib.Returning("trigger_count", "last_triggered_at", "shadow_log", "created_at", "updated_at")

	query, args := ib.Build()
	err := r.conn(ctx).QueryRowxContext(ctx, query, args...).
		Scan(&rule.TriggerCount, &rule.LastTriggeredAt, &rule.ShadowLog, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rule_id": rule.ID,
		}).Error("failed to save automation rule")
		return Internal("failed to save automation rule")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"rule_id":       rule.ID,
		"trigger":       rule.Trigger,
		"rollout_stage": rule.RolloutStage,
	}).Infof("Saved %s", automationRulesTable)
	return nil
}

func (r *AutomationRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AutomationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.GetByID")
	defer span.End()

	sb := automationRuleStruct.SelectFrom(automationRulesTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rule models.AutomationRule
	err := r.conn(ctx).GetContext(ctx, &rule, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("automation rule %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rule_id": id,
		}).Error("failed to get automation rule")
		return nil, Internal("failed to get automation rule")
	}
	return &rule, nil
}

func (r *AutomationRuleRepository) List(ctx context.Context) ([]models.AutomationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.List")
	defer span.End()

	sb := automationRuleStruct.SelectFrom(automationRulesTable)
	sb.OrderBy("priority DESC", "created_at ASC", "id ASC")

	return r.selectRules(ctx, sb, "list automation rules")
}

func (r *AutomationRuleRepository) ListEnabledByTrigger(ctx context.Context, trigger models.TriggerType) ([]models.AutomationRule, error) {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.ListEnabledByTrigger")
	defer span.End()

	sb := automationRuleStruct.SelectFrom(automationRulesTable)
	sb.Where(sb.Equal("trigger_type", trigger), sb.Equal("enabled", true))
	sb.OrderBy("priority DESC", "created_at ASC", "id ASC")

	return r.selectRules(ctx, sb, "list automation rules by trigger")
}

func (r *AutomationRuleRepository) selectRules(ctx context.Context, sb *sqlbuilder.SelectBuilder, action string) ([]models.AutomationRule, error) {
	query, args := sb.Build()
	var rules []models.AutomationRule
	if err := r.conn(ctx).SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("failed to %s", action)
		return nil, Internal("failed to " + action)
	}
	return rules, nil
}

// RecordTrigger bumps the trigger counters. With an entry it locks the row,
// appends to the shadow log and trims it to the newest shadowLimit entries.
func (r *AutomationRuleRepository) RecordTrigger(ctx context.Context, id uuid.UUID, at time.Time, entry *models.ShadowLogEntry, shadowLimit int) (err error) {
	ctx, span := tracing.StartSpan(ctx, "AutomationRuleRepository.RecordTrigger")
	defer span.End()

	fields := map[string]any{"rule_id": id}
	if entry == nil {
		query := `
		UPDATE automation_rules
		SET trigger_count = trigger_count + 1, last_triggered_at = $1, updated_at = NOW()
		WHERE id = $2`

		rows, err := r.exec(ctx, "record rule trigger", fields, query, at, id)
		if err != nil {
			return err
		}
		if rows == 0 {
			return NotFound("automation rule %s does not exist", id)
		}
		return nil
	}

	ctx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return Internal("failed to record rule trigger")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	sb := database.NewSelectBuilder()
	sb.Select("shadow_log").From(automationRulesTable).Where(sb.Equal("id", id)).ForUpdate()
	query, args := sb.Build()

	var log database.JSONB[[]models.ShadowLogEntry]
	err = tx.QueryRowxContext(ctx, query, args...).Scan(&log)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound("automation rule %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("failed to lock automation rule")
		return Internal("failed to record rule trigger")
	}

	entries := append(log.Data, *entry)
	if shadowLimit > 0 && len(entries) > shadowLimit {
		entries = entries[len(entries)-shadowLimit:]
	}

	ub := database.NewUpdateBuilder()
	ub.Update(automationRulesTable).
		Set(
			"trigger_count = trigger_count + 1",
			ub.Assign("last_triggered_at", at),
			ub.Assign("shadow_log", database.NewJSONB(entries)),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id))

	query, args = ub.Build()
	if _, err = r.exec(ctx, "record rule trigger", fields, query, args...); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return Internal("failed to record rule trigger")
	}

	r.logger.WithContext(ctx).WithFields(fields).Debugf("Recorded shadow trigger on %s", automationRulesTable)
	return nil
}
