package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

// AssignmentConditions are exact-match shipment fields. An empty field matches anything.
type AssignmentConditions struct {
	OriginState      string `json:"origin_state,omitempty" yaml:"origin_state"`
	DestinationState string `json:"destination_state,omitempty" yaml:"destination_state"`
	EquipmentType    string `json:"equipment_type,omitempty" yaml:"equipment_type"`
	CustomerID       string `json:"customer_id,omitempty" yaml:"customer_id" validate:"omitempty,uuid"`
}

type AssignmentActions struct {
	CarrierIDs []uuid.UUID `json:"carrier_ids" yaml:"carrier_ids" validate:"required,min=1,dive,required"`
	ScoreBoost float64     `json:"score_boost" yaml:"score_boost"`
}

type AssignmentRule struct {
	ID         uuid.UUID                            `db:"id" json:"id"`
	Name       string                               `db:"name" json:"name" validate:"required"`
	Priority   int                                  `db:"priority" json:"priority"`
	Conditions database.JSONB[AssignmentConditions] `db:"conditions" json:"conditions"`
	Actions    database.JSONB[AssignmentActions]    `db:"actions" json:"actions"`
	IsActive   bool                                 `db:"is_active" json:"is_active"`
	CreatedAt  time.Time                            `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time                            `db:"updated_at" json:"updated_at"`
}

func (AssignmentRule) TableName() string {
	return "assignment_rules"
}
