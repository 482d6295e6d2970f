package models

import (
	"time"

	"github.com/google/uuid"
)

type ShipmentStatus string

const (
	ShipmentStatusPending    ShipmentStatus = "pending"
	ShipmentStatusBooked     ShipmentStatus = "booked"
	ShipmentStatusTendered   ShipmentStatus = "tendered"
	ShipmentStatusDispatched ShipmentStatus = "dispatched"
	ShipmentStatusInTransit  ShipmentStatus = "in_transit"
	ShipmentStatusDelivered  ShipmentStatus = "delivered"
	ShipmentStatusApproved   ShipmentStatus = "approved"
	ShipmentStatusCancelled  ShipmentStatus = "cancelled"
)

// Shipment is owned by the surrounding TMS. This service reads it and writes
// only the carrier assignment, status and the auto-assignment claim.
type Shipment struct {
	ID                        uuid.UUID      `db:"id" json:"id"`
	ShipmentNumber            string         `db:"shipment_number" json:"shipment_number"`
	CustomerID                uuid.UUID      `db:"customer_id" json:"customer_id"`
	CarrierID                 *uuid.UUID     `db:"carrier_id" json:"carrier_id,omitempty"`
	CarrierCostCents          *int64         `db:"carrier_cost_cents" json:"carrier_cost_cents,omitempty"`
	CustomerPriceCents        int64          `db:"customer_price_cents" json:"customer_price_cents"`
	OriginCity                string         `db:"origin_city" json:"origin_city"`
	OriginState               string         `db:"origin_state" json:"origin_state"`
	DestinationCity           string         `db:"destination_city" json:"destination_city"`
	DestinationState          string         `db:"destination_state" json:"destination_state"`
	EquipmentType             string         `db:"equipment_type" json:"equipment_type"`
	WeightLbs                 *int           `db:"weight_lbs" json:"weight_lbs,omitempty"`
	PickupDate                time.Time      `db:"pickup_date" json:"pickup_date"`
	DeliveryDate              *time.Time     `db:"delivery_date" json:"delivery_date,omitempty"`
	Status                    ShipmentStatus `db:"status" json:"status"`
	AutoAssignmentAttempted   bool           `db:"auto_assignment_attempted" json:"auto_assignment_attempted"`
	AutoAssignmentAttemptedAt *time.Time     `db:"auto_assignment_attempted_at" json:"auto_assignment_attempted_at,omitempty"`
	CreatedAt                 time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time      `db:"updated_at" json:"updated_at"`
}

func (Shipment) TableName() string {
	return "shipments"
}

// HasCarrier reports whether a carrier is already assigned.
func (s *Shipment) HasCarrier() bool {
	return s.CarrierID != nil && *s.CarrierID != uuid.Nil
}
