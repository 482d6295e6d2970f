package models

import (
	"time"

	"github.com/google/uuid"
)

type TenderStatus string

const (
	TenderStatusSent      TenderStatus = "sent"
	TenderStatusAccepted  TenderStatus = "accepted"
	TenderStatusDeclined  TenderStatus = "declined"
	TenderStatusExpired   TenderStatus = "expired"
	TenderStatusCancelled TenderStatus = "cancelled"
)

// Tender is a time-bounded rate offer to one carrier for one shipment.
type Tender struct {
	ID               uuid.UUID    `db:"id" json:"id"`
	ShipmentID       uuid.UUID    `db:"shipment_id" json:"shipment_id"`
	CarrierID        uuid.UUID    `db:"carrier_id" json:"carrier_id"`
	Status           TenderStatus `db:"status" json:"status"`
	OfferedRateCents int64        `db:"offered_rate_cents" json:"offered_rate_cents"`
	CounterRateCents *int64       `db:"counter_rate_cents" json:"counter_rate_cents,omitempty"`
	SentAt           time.Time    `db:"sent_at" json:"sent_at"`
	ExpiresAt        time.Time    `db:"expires_at" json:"expires_at"`
	RespondedAt      *time.Time   `db:"responded_at" json:"responded_at,omitempty"`
	WaterfallID      *uuid.UUID   `db:"waterfall_id" json:"waterfall_id,omitempty"`
	WaterfallStep    *int         `db:"waterfall_step" json:"waterfall_step,omitempty"`
	AutoAssigned     bool         `db:"auto_assigned" json:"auto_assigned"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

func (Tender) TableName() string {
	return "tenders"
}

func (t *Tender) IsOutstanding() bool {
	return t.Status == TenderStatusSent
}

// IsExpired reports whether the offer window closed before now.
func (t *Tender) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
