package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const assignmentRulesTable = "assignment_rules"

var assignmentRuleStruct = database.NewStruct(new(models.AssignmentRule))

type AssignmentRuleRepository struct {
	*Repository
}

var _ AssignmentRuleRepo = (*AssignmentRuleRepository)(nil)

func NewAssignmentRuleRepository(db database.DB, logger ectologger.Logger) *AssignmentRuleRepository {
	return &AssignmentRuleRepository{
		Repository: NewRepository(db, logger),
	}
}

// Save inserts the rule or overwrites the existing one with the same id.
func (r *AssignmentRuleRepository) Save(ctx context.Context, rule *models.AssignmentRule) error {
	ctx, span := tracing.StartSpan(ctx, "AssignmentRuleRepository.Save")
	defer span.End()

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(assignmentRulesTable).
		Cols("id", "name", "priority", "conditions", "actions", "is_active", "created_at", "updated_at").
		Values(rule.ID, rule.Name, rule.Priority, rule.Conditions, rule.Actions, rule.IsActive,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"))
	database.OnConflictUpdate(ib, "id", "name", "priority", "conditions", "actions", "is_active", "updated_at")
	ib.Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.conn(ctx).QueryRowxContext(ctx, query, args...).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rule_id": rule.ID,
		}).Error("failed to save assignment rule")
		return Internal("failed to save assignment rule")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"rule_id": rule.ID,
	}).Debugf("Saved %s", assignmentRulesTable)
	return nil
}

func (r *AssignmentRuleRepository) ListActive(ctx context.Context) ([]models.AssignmentRule, error) {
	ctx, span := tracing.StartSpan(ctx, "AssignmentRuleRepository.ListActive")
	defer span.End()

	sb := assignmentRuleStruct.SelectFrom(assignmentRulesTable)
	sb.Where(sb.Equal("is_active", true))
	sb.OrderBy("priority DESC", "name ASC")

	query, args := sb.Build()
	var rules []models.AssignmentRule
	if err := r.conn(ctx).SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list assignment rules")
		return nil, Internal("failed to list assignment rules")
	}
	return rules, nil
}
