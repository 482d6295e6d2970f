package models

import (
	"time"
)

// LifecycleEvent announces an entity transition that automation rules may react to.
type LifecycleEvent struct {
	Trigger    TriggerType `json:"trigger"`
	EntityType EntityType  `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func NewLifecycleEvent(trigger TriggerType, entityID string, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		Trigger:    trigger,
		EntityType: trigger.EntityType(),
		EntityID:   entityID,
		OccurredAt: at,
	}
}
