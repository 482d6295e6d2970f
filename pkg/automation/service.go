package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/expressions"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/rules"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service manages automation rules. Rules are validated when saved so a typo
// in a field path or action config is rejected before any trigger fires.
type Service struct {
	rules    repositories.AutomationRuleRepo
	template *expressions.Template
	logger   ectologger.Logger
}

func NewService(rules repositories.AutomationRuleRepo, template *expressions.Template, logger ectologger.Logger) *Service {
	if template == nil {
		template = expressions.NewTemplate(nil)
	}
	return &Service{rules: rules, template: template, logger: logger}
}

func (s *Service) SaveRule(ctx context.Context, rule *models.AutomationRule) error {
	ctx, span := tracing.StartSpan(ctx, "AutomationService.SaveRule")
	defer span.End()

	if err := s.ValidateRule(rule); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if err := s.rules.Save(ctx, rule); err != nil {
		tracing.RecordError(span, err)
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"rule_id": rule.ID,
		"trigger": rule.Trigger,
		"stage":   rule.RolloutStage,
	}).Infof("Saved automation rule %q", rule.Name)
	return nil
}

// ValidateRule checks the rule, its conditions against the trigger's entity
// schema, its action config and every template in it.
func (s *Service) ValidateRule(rule *models.AutomationRule) error {
	var errs []error
	if err := validate.Struct(rule); err != nil {
		errs = append(errs, validationError(err))
	}

	if !rule.Trigger.IsValid() {
		errs = append(errs, fmt.Errorf("unknown trigger %q", rule.Trigger))
	} else if schema, ok := Schemas[rule.Trigger.EntityType()]; ok {
		if err := schema.Validate(rule.Conditions.Data); err != nil {
			errs = append(errs, err)
		}
	}

	switch {
	case rule.Action.Config == nil:
		errs = append(errs, fmt.Errorf("action %q has no config", rule.Action.Kind))
	case rule.Action.Config.Kind() != rule.Action.Kind:
		errs = append(errs, fmt.Errorf("action kind %q does not match %q config", rule.Action.Kind, rule.Action.Config.Kind()))
	default:
		if err := validate.Struct(rule.Action.Config); err != nil {
			errs = append(errs, validationError(err))
		}
		for _, field := range templateFields(rule.Action.Config) {
			if err := s.template.Validate(field); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return repositories.BadRequest("invalid rule %q: %v", rule.Name, err)
	}
	return nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*models.AutomationRule, error) {
	return s.rules.GetByID(ctx, id)
}

func (s *Service) ListRules(ctx context.Context) ([]models.AutomationRule, error) {
	return s.rules.List(ctx)
}

// ImportRules parses a YAML rule file and saves every rule. Nothing is saved
// when any rule is invalid.
func (s *Service) ImportRules(ctx context.Context, data []byte) ([]models.AutomationRule, error) {
	parsed, err := ParseRules(data)
	if err != nil {
		return nil, repositories.BadRequest("invalid rule file: %v", err)
	}

	var errs []error
	for i := range parsed {
		if err := s.ValidateRule(&parsed[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	for i := range parsed {
		if err := s.SaveRule(ctx, &parsed[i]); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

type ruleDocument struct {
	ID                *uuid.UUID          `json:"id"`
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	Trigger           models.TriggerType  `json:"trigger"`
	Conditions        []rules.Condition   `json:"conditions"`
	Action            models.ActionSpec   `json:"action"`
	RolloutStage      models.RolloutStage `json:"rollout_stage"`
	RolloutPercentage int                 `json:"rollout_percentage"`
	Priority          int                 `json:"priority"`
	Enabled           *bool               `json:"enabled"`
}

type ruleFile struct {
	Rules []ruleDocument `json:"rules"`
}

// ParseRules reads rules from YAML shaped as {rules: [...]}. Rules are enabled
// unless they say otherwise.
func ParseRules(data []byte) ([]models.AutomationRule, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var file ruleFile
	if err := json.Unmarshal(b, &file); err != nil {
		return nil, err
	}

	out := make([]models.AutomationRule, 0, len(file.Rules))
	for _, doc := range file.Rules {
		rule := models.AutomationRule{
			Name:              doc.Name,
			Description:       doc.Description,
			Trigger:           doc.Trigger,
			Conditions:        database.NewJSONB(append([]rules.Condition{}, doc.Conditions...)),
			Action:            doc.Action,
			RolloutStage:      doc.RolloutStage,
			RolloutPercentage: doc.RolloutPercentage,
			Priority:          doc.Priority,
			Enabled:           doc.Enabled == nil || *doc.Enabled,
		}
		if doc.ID != nil {
			rule.ID = *doc.ID
		}
		out = append(out, rule)
	}
	return out, nil
}

// templateFields returns the templated text fields of an action config.
func templateFields(config models.ActionConfig) []string {
	switch c := config.(type) {
	case *models.CreateWorkItemConfig:
		return []string{c.Title, c.Description}
	case *models.SendNotificationConfig:
		return []string{c.Message}
	case *models.AutoApproveConfig:
		return []string{c.Reason}
	case *models.EscalateConfig:
		return []string{c.Message}
	case *models.SendEmailConfig:
		return []string{c.Subject, c.Body}
	default:
		return nil
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s'", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
