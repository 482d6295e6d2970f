package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/rules"
)

type TriggerType string

const (
	TriggerShipmentCreated       TriggerType = "shipment_created"
	TriggerShipmentUpdated       TriggerType = "shipment_updated"
	TriggerShipmentStatusChanged TriggerType = "shipment_status_changed"
	TriggerShipmentDelivered     TriggerType = "shipment_delivered"
	TriggerTenderAccepted        TriggerType = "tender_accepted"
	TriggerTenderDeclined        TriggerType = "tender_declined"
	TriggerTenderExpired         TriggerType = "tender_expired"
	TriggerWaterfallExhausted    TriggerType = "waterfall_exhausted"
	TriggerCarrierUpdated        TriggerType = "carrier_updated"
)

var triggerEntities = map[TriggerType]EntityType{
	TriggerShipmentCreated:       EntityTypeShipment,
	TriggerShipmentUpdated:       EntityTypeShipment,
	TriggerShipmentStatusChanged: EntityTypeShipment,
	TriggerShipmentDelivered:     EntityTypeShipment,
	TriggerTenderAccepted:        EntityTypeTender,
	TriggerTenderDeclined:        EntityTypeTender,
	TriggerTenderExpired:         EntityTypeTender,
	TriggerWaterfallExhausted:    EntityTypeWaterfall,
	TriggerCarrierUpdated:        EntityTypeCarrier,
}

func (t TriggerType) IsValid() bool {
	_, ok := triggerEntities[t]
	return ok
}

// EntityType is the kind of entity a trigger fires for.
func (t TriggerType) EntityType() EntityType {
	return triggerEntities[t]
}

type RolloutStage string

const (
	RolloutDisabled RolloutStage = "disabled"
	RolloutShadow   RolloutStage = "shadow"
	RolloutPartial  RolloutStage = "partial"
	RolloutFull     RolloutStage = "full"
)

// ShadowLogEntry records what a shadow-stage rule would have done.
type ShadowLogEntry struct {
	At          time.Time   `json:"at"`
	Trigger     TriggerType `json:"trigger"`
	EntityType  EntityType  `json:"entity_type"`
	EntityID    string      `json:"entity_id"`
	Action      ActionKind  `json:"action"`
	Description string      `json:"description"`
	// Error is set when the dry-run itself failed.
	Error string `json:"error,omitempty"`
}

type AutomationRule struct {
	ID                uuid.UUID                         `db:"id" json:"id"`
	Name              string                            `db:"name" json:"name" validate:"required,max=200"`
	Description       string                            `db:"description" json:"description"`
	Trigger           TriggerType                       `db:"trigger_type" json:"trigger" validate:"required"`
	Conditions        database.JSONB[[]rules.Condition] `db:"conditions" json:"conditions"`
	Action            ActionSpec                        `db:"action" json:"action" validate:"-"`
	RolloutStage      RolloutStage                      `db:"rollout_stage" json:"rollout_stage" validate:"required,oneof=disabled shadow partial full"`
	RolloutPercentage int                               `db:"rollout_percentage" json:"rollout_percentage" validate:"gte=0,lte=100"`
	Priority          int                               `db:"priority" json:"priority"`
	Enabled           bool                              `db:"enabled" json:"enabled"`
	TriggerCount      int64                             `db:"trigger_count" json:"trigger_count"`
	LastTriggeredAt   *time.Time                        `db:"last_triggered_at" json:"last_triggered_at,omitempty"`
	ShadowLog         database.JSONB[[]ShadowLogEntry]  `db:"shadow_log" json:"shadow_log"`
	CreatedAt         time.Time                         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time                         `db:"updated_at" json:"updated_at"`
}

func (AutomationRule) TableName() string {
	return "automation_rules"
}
