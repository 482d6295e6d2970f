package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type ActionKind string

const (
	ActionCreateWorkItem   ActionKind = "create_work_item"
	ActionSendNotification ActionKind = "send_notification"
	ActionUpdateStatus     ActionKind = "update_status"
	ActionAssignCarrier    ActionKind = "assign_carrier"
	ActionCreateTender     ActionKind = "create_tender"
	ActionAutoApprove      ActionKind = "auto_approve"
	ActionEscalate         ActionKind = "escalate"
	ActionSendEmail        ActionKind = "send_email"
)

// ActionConfig is the per-kind configuration of an automation action.
type ActionConfig interface {
	Kind() ActionKind
}

type CreateWorkItemConfig struct {
	Title        string           `json:"title" validate:"required"`
	Description  string           `json:"description"`
	Priority     WorkItemPriority `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	WorkItemType WorkItemType     `json:"work_item_type"`
}

type SendNotificationConfig struct {
	Channel    string   `json:"channel" validate:"required"`
	Message    string   `json:"message" validate:"required"`
	Recipients []string `json:"recipients"`
}

type UpdateStatusConfig struct {
	Status string `json:"status" validate:"required"`
}

// AssignCarrierConfig assigns CarrierID directly, or runs auto-assignment when it is empty.
type AssignCarrierConfig struct {
	CarrierID *uuid.UUID `json:"carrier_id,omitempty"`
	RateCents *int64     `json:"rate_cents,omitempty" validate:"omitempty,gt=0"`
}

// CreateTenderConfig tenders the listed carriers. No carriers runs auto-assignment,
// one sends a plain tender and several start a waterfall.
type CreateTenderConfig struct {
	CarrierIDs          []uuid.UUID `json:"carrier_ids" validate:"omitempty,unique,dive,required"`
	RateCents           *int64      `json:"rate_cents,omitempty" validate:"omitempty,gt=0"`
	TimeoutMinutes      int         `json:"timeout_minutes" validate:"gte=0"`
	RateIncreasePercent float64     `json:"rate_increase_percent" validate:"gte=0"`
	AutoEscalate        *bool       `json:"auto_escalate,omitempty"`
}

type AutoApproveConfig struct {
	Reason string `json:"reason"`
}

type EscalateConfig struct {
	Message  string `json:"message" validate:"required"`
	Severity string `json:"severity" validate:"omitempty,oneof=info warning critical"`
	Channel  string `json:"channel"`
}

type SendEmailConfig struct {
	To      []string `json:"to" validate:"required,min=1,dive,email"`
	Subject string   `json:"subject" validate:"required"`
	Body    string   `json:"body" validate:"required"`
}

func (*CreateWorkItemConfig) Kind() ActionKind   { return ActionCreateWorkItem }
func (*SendNotificationConfig) Kind() ActionKind { return ActionSendNotification }
func (*UpdateStatusConfig) Kind() ActionKind     { return ActionUpdateStatus }
func (*AssignCarrierConfig) Kind() ActionKind    { return ActionAssignCarrier }
func (*CreateTenderConfig) Kind() ActionKind     { return ActionCreateTender }
func (*AutoApproveConfig) Kind() ActionKind      { return ActionAutoApprove }
func (*EscalateConfig) Kind() ActionKind         { return ActionEscalate }
func (*SendEmailConfig) Kind() ActionKind        { return ActionSendEmail }

// NewActionConfig returns an empty config for kind.
func NewActionConfig(kind ActionKind) (ActionConfig, error) {
	switch kind {
	case ActionCreateWorkItem:
		return &CreateWorkItemConfig{}, nil
	case ActionSendNotification:
		return &SendNotificationConfig{}, nil
	case ActionUpdateStatus:
		return &UpdateStatusConfig{}, nil
	case ActionAssignCarrier:
		return &AssignCarrierConfig{}, nil
	case ActionCreateTender:
		return &CreateTenderConfig{}, nil
	case ActionAutoApprove:
		return &AutoApproveConfig{}, nil
	case ActionEscalate:
		return &EscalateConfig{}, nil
	case ActionSendEmail:
		return &SendEmailConfig{}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", kind)
	}
}

// ActionSpec is the tagged action variant stored on a rule.
type ActionSpec struct {
	Kind   ActionKind
	Config ActionConfig
}

func NewActionSpec(config ActionConfig) ActionSpec {
	return ActionSpec{Kind: config.Kind(), Config: config}
}

type actionEnvelope struct {
	Kind   ActionKind      `json:"kind"`
	Config json.RawMessage `json:"config,omitempty"`
}

func (s ActionSpec) MarshalJSON() ([]byte, error) {
	env := actionEnvelope{Kind: s.Kind}
	if s.Config != nil {
		raw, err := json.Marshal(s.Config)
		if err != nil {
			return nil, err
		}
		env.Config = raw
	}
	return json.Marshal(env)
}

func (s *ActionSpec) UnmarshalJSON(b []byte) error {
	var env actionEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	config, err := NewActionConfig(env.Kind)
	if err != nil {
		return err
	}
	if len(env.Config) > 0 && string(env.Config) != "null" {
		if err := json.Unmarshal(env.Config, config); err != nil {
			return fmt.Errorf("invalid %s config: %w", env.Kind, err)
		}
	}
	s.Kind = env.Kind
	s.Config = config
	return nil
}

func (s *ActionSpec) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("ActionSpec.Scan: expected []byte, got %T", src)
	}
}

func (s ActionSpec) Value() (driver.Value, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
