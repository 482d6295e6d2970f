package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

type AssignmentRuleRepository struct {
	store *Store
}

var _ repositories.AssignmentRuleRepo = (*AssignmentRuleRepository)(nil)

func (r *AssignmentRuleRepository) Save(ctx context.Context, rule *models.AssignmentRule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if existing, ok := r.store.assignmentRules[rule.ID]; ok {
		rule.CreatedAt = existing.CreatedAt
	} else {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	r.store.assignmentRules[rule.ID] = cloneAssignmentRule(*rule)
	return nil
}

func (r *AssignmentRuleRepository) ListActive(ctx context.Context) ([]models.AssignmentRule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]models.AssignmentRule, 0)
	for _, rule := range r.store.assignmentRules {
		if rule.IsActive {
			out = append(out, cloneAssignmentRule(rule))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type AutoAssignConfigRepository struct {
	store *Store
}

var _ repositories.AutoAssignConfigRepo = (*AutoAssignConfigRepository)(nil)

func (r *AutoAssignConfigRepository) Get(ctx context.Context) (*models.AutoAssignConfig, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if r.store.config == nil {
		return models.DefaultAutoAssignConfig(), nil
	}
	return cloneConfig(*r.store.config), nil
}

func (r *AutoAssignConfigRepository) Save(ctx context.Context, config *models.AutoAssignConfig) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	config.ID = models.AutoAssignConfigID
	config.UpdatedAt = time.Now().UTC()
	r.store.config = cloneConfig(*config)
	return nil
}

type AutomationRuleRepository struct {
	store *Store
}

var _ repositories.AutomationRuleRepo = (*AutomationRuleRepository)(nil)

func (r *AutomationRuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if existing, ok := r.store.automationRules[rule.ID]; ok {
		rule.CreatedAt = existing.CreatedAt
		rule.TriggerCount = existing.TriggerCount
		rule.LastTriggeredAt = clonePtr(existing.LastTriggeredAt)
		rule.ShadowLog = database.NewJSONB(cloneSlice(existing.ShadowLog.Data))
	} else {
		rule.CreatedAt = now
		rule.TriggerCount = 0
		rule.LastTriggeredAt = nil
		rule.ShadowLog = database.NewJSONB([]models.ShadowLogEntry{})
	}
	rule.UpdatedAt = now
	r.store.automationRules[rule.ID] = cloneAutomationRule(*rule)
	return nil
}

func (r *AutomationRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AutomationRule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rule, ok := r.store.automationRules[id]
	if !ok {
		return nil, repositories.NotFound("automation rule %s does not exist", id)
	}
	out := cloneAutomationRule(rule)
	return &out, nil
}

func (r *AutomationRuleRepository) List(ctx context.Context) ([]models.AutomationRule, error) {
	return r.list(func(models.AutomationRule) bool { return true }), nil
}

func (r *AutomationRuleRepository) ListEnabledByTrigger(ctx context.Context, trigger models.TriggerType) ([]models.AutomationRule, error) {
	return r.list(func(rule models.AutomationRule) bool {
		return rule.Enabled && rule.Trigger == trigger
	}), nil
}

func (r *AutomationRuleRepository) RecordTrigger(ctx context.Context, id uuid.UUID, at time.Time, entry *models.ShadowLogEntry, shadowLimit int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rule, ok := r.store.automationRules[id]
	if !ok {
		return repositories.NotFound("automation rule %s does not exist", id)
	}
	rule.TriggerCount++
	rule.LastTriggeredAt = &at
	if entry != nil {
		log := append(cloneSlice(rule.ShadowLog.Data), *entry)
		if shadowLimit > 0 && len(log) > shadowLimit {
			log = log[len(log)-shadowLimit:]
		}
		rule.ShadowLog = database.NewJSONB(log)
	}
	r.store.automationRules[id] = rule
	return nil
}

func (r *AutomationRuleRepository) list(keep func(models.AutomationRule) bool) []models.AutomationRule {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]models.AutomationRule, 0)
	for _, rule := range r.store.automationRules {
		if keep(rule) {
			out = append(out, cloneAutomationRule(rule))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
