package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an in-app message raised by an automation rule.
type Notification struct {
	RuleID     *uuid.UUID `json:"rule_id,omitempty"`
	Channel    string     `json:"channel"`
	Message    string     `json:"message"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Recipients []string   `json:"recipients,omitempty"`
	SentAt     time.Time  `json:"sent_at"`
}

// Broadcast is an escalation pushed to every operator on a channel.
type Broadcast struct {
	RuleID     *uuid.UUID `json:"rule_id,omitempty"`
	Message    string     `json:"message"`
	Severity   string     `json:"severity"`
	Channel    string     `json:"channel,omitempty"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	SentAt     time.Time  `json:"sent_at"`
}

type Email struct {
	RuleID     *uuid.UUID `json:"rule_id,omitempty"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	To         []string   `json:"to"`
	SentAt     time.Time  `json:"sent_at"`
}
