package waterfall

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Notifier delivers tender offers to carriers and lifecycle events to the rest
// of the system. Failures are logged and never undo a transition.
type Notifier interface {
	TenderOffered(ctx context.Context, tender *models.Tender) error
	TenderCancelled(ctx context.Context, tender *models.Tender, reason string) error
	PublishEvent(ctx context.Context, event models.LifecycleEvent) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) TenderOffered(context.Context, *models.Tender) error { return nil }

func (NopNotifier) TenderCancelled(context.Context, *models.Tender, string) error { return nil }

func (NopNotifier) PublishEvent(context.Context, models.LifecycleEvent) error { return nil }

type CreateRequest struct {
	ShipmentID          uuid.UUID   `json:"shipment_id"`
	CarrierIDs          []uuid.UUID `json:"carrier_ids"`
	BaseRateCents       int64       `json:"base_rate_cents"`
	RateIncreasePercent float64     `json:"rate_increase_percent"`
	TimeoutMinutes      int         `json:"timeout_minutes"`
	AutoEscalate        bool        `json:"auto_escalate"`
}

type CreateResult struct {
	WaterfallID     uuid.UUID              `json:"waterfall_id"`
	Status          models.WaterfallStatus `json:"status"`
	TotalCarriers   int                    `json:"total_carriers"`
	CurrentTenderID *uuid.UUID             `json:"current_tender_id,omitempty"`
}

// TenderRequest describes a single tender sent outside any waterfall.
type TenderRequest struct {
	ShipmentID     uuid.UUID `json:"shipment_id"`
	CarrierID      uuid.UUID `json:"carrier_id"`
	RateCents      int64     `json:"rate_cents"`
	TimeoutMinutes int       `json:"timeout_minutes"`
	AutoAssigned   bool      `json:"auto_assigned"`
}

type ResponseResult struct {
	TenderID        uuid.UUID              `json:"tender_id"`
	Status          models.TenderStatus    `json:"status"`
	WaterfallStatus models.WaterfallStatus `json:"waterfall_status,omitempty"`
	Escalated       bool                   `json:"escalated"`
	NextTenderID    *uuid.UUID             `json:"next_tender_id,omitempty"`
	Message         string                 `json:"message,omitempty"`
}

type Escalation struct {
	WaterfallID     uuid.UUID  `json:"waterfall_id"`
	ShipmentID      uuid.UUID  `json:"shipment_id"`
	ExpiredTenderID uuid.UUID  `json:"expired_tender_id"`
	NextTenderID    *uuid.UUID `json:"next_tender_id,omitempty"`
	Exhausted       bool       `json:"exhausted"`
}

type SweepResult struct {
	EscalatedCount    int          `json:"escalated_count"`
	Escalations       []Escalation `json:"escalations"`
	ExpiredStandalone int          `json:"expired_standalone"`
}

type CancelResult struct {
	WaterfallID uuid.UUID              `json:"waterfall_id"`
	Cancelled   bool                   `json:"cancelled"`
	Status      models.WaterfallStatus `json:"status"`
	Message     string                 `json:"message,omitempty"`
}

// StatusView is a read-only projection of a waterfall and its tenders.
type StatusView struct {
	Waterfall         *models.Waterfall `json:"waterfall"`
	CurrentTender     *models.Tender    `json:"current_tender,omitempty"`
	Tenders           []models.Tender   `json:"tenders"`
	TotalCarriers     int               `json:"total_carriers"`
	RemainingCarriers int               `json:"remaining_carriers"`
}
