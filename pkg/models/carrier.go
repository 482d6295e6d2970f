package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

type CarrierStatus string

const (
	CarrierStatusActive    CarrierStatus = "active"
	CarrierStatusInactive  CarrierStatus = "inactive"
	CarrierStatusSuspended CarrierStatus = "suspended"
)

type InsuranceStatus string

const (
	InsuranceStatusActive  InsuranceStatus = "active"
	InsuranceStatusExpired InsuranceStatus = "expired"
	InsuranceStatusPending InsuranceStatus = "pending"
	InsuranceStatusNone    InsuranceStatus = "none"
)

// Lane is an origin/destination state pair a carrier has hauled.
type Lane struct {
	OriginState      string `json:"origin_state"`
	DestinationState string `json:"destination_state"`
	LoadsHauled      int    `json:"loads_hauled"`
}

// Carrier is owned by the surrounding TMS and only read here.
type Carrier struct {
	ID               uuid.UUID                `db:"id" json:"id"`
	Name             string                   `db:"name" json:"name"`
	MCNumber         string                   `db:"mc_number" json:"mc_number"`
	Status           CarrierStatus            `db:"status" json:"status"`
	OnTimePercentage *float64                 `db:"on_time_percentage" json:"on_time_percentage,omitempty"`
	InsuranceStatus  InsuranceStatus          `db:"insurance_status" json:"insurance_status"`
	EquipmentTypes   database.JSONB[[]string] `db:"equipment_types" json:"equipment_types"`
	Lanes            database.JSONB[[]Lane]   `db:"lanes" json:"lanes"`
	NextAvailableAt  *time.Time               `db:"next_available_at" json:"next_available_at,omitempty"`
	ContactEmail     string                   `db:"contact_email" json:"contact_email"`
	CreatedAt        time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time                `db:"updated_at" json:"updated_at"`
}

func (Carrier) TableName() string {
	return "carriers"
}

func (c *Carrier) IsActive() bool {
	return c.Status == CarrierStatusActive
}

// OnTime returns the on-time percentage, zero when unknown.
func (c *Carrier) OnTime() float64 {
	if c.OnTimePercentage == nil {
		return 0
	}
	return *c.OnTimePercentage
}
