package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

type WaterfallStatus string

const (
	WaterfallStatusActive    WaterfallStatus = "active"
	WaterfallStatusCompleted WaterfallStatus = "completed"
	WaterfallStatusCancelled WaterfallStatus = "cancelled"
	WaterfallStatusExhausted WaterfallStatus = "exhausted"
)

func (s WaterfallStatus) IsTerminal() bool {
	return s != WaterfallStatusActive
}

// WaterfallHistoryEntry records one tender sent by a waterfall.
type WaterfallHistoryEntry struct {
	Step             int          `json:"step"`
	CarrierID        uuid.UUID    `json:"carrier_id"`
	TenderID         uuid.UUID    `json:"tender_id"`
	RateCents        int64        `json:"rate_cents"`
	SentAt           time.Time    `json:"sent_at"`
	Status           TenderStatus `json:"status"`
	RespondedAt      *time.Time   `json:"responded_at,omitempty"`
	CounterRateCents *int64       `json:"counter_rate_cents,omitempty"`
}

// Waterfall tenders a ranked carrier list one carrier at a time.
type Waterfall struct {
	ID                   uuid.UUID                               `db:"id" json:"id"`
	ShipmentID           uuid.UUID                               `db:"shipment_id" json:"shipment_id"`
	CarrierIDs           database.JSONB[[]uuid.UUID]             `db:"carrier_ids" json:"carrier_ids"`
	CurrentStep          int                                     `db:"current_step" json:"current_step"`
	BaseRateCents        int64                                   `db:"base_rate_cents" json:"base_rate_cents"`
	CurrentRateCents     int64                                   `db:"current_rate_cents" json:"current_rate_cents"`
	RateIncreasePercent  float64                                 `db:"rate_increase_percent" json:"rate_increase_percent"`
	TimeoutMinutes       int                                     `db:"timeout_minutes" json:"timeout_minutes"`
	AutoEscalate         bool                                    `db:"auto_escalate" json:"auto_escalate"`
	Status               WaterfallStatus                         `db:"status" json:"status"`
	CurrentTenderID      *uuid.UUID                              `db:"current_tender_id" json:"current_tender_id,omitempty"`
	CurrentStepStartedAt *time.Time                              `db:"current_step_started_at" json:"current_step_started_at,omitempty"`
	History              database.JSONB[[]WaterfallHistoryEntry] `db:"history" json:"history"`
	WinningCarrierID     *uuid.UUID                              `db:"winning_carrier_id" json:"winning_carrier_id,omitempty"`
	WinningTenderID      *uuid.UUID                              `db:"winning_tender_id" json:"winning_tender_id,omitempty"`
	CancelReason         *string                                 `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CompletedAt          *time.Time                              `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt            time.Time                               `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time                               `db:"updated_at" json:"updated_at"`
}

func (Waterfall) TableName() string {
	return "waterfalls"
}

func (w *Waterfall) IsActive() bool {
	return w.Status == WaterfallStatusActive
}

func (w *Waterfall) TotalCarriers() int {
	return len(w.CarrierIDs.Data)
}

// HistoryFor returns the history entry of a tender, or nil.
func (w *Waterfall) HistoryFor(tenderID uuid.UUID) *WaterfallHistoryEntry {
	for i := range w.History.Data {
		if w.History.Data[i].TenderID == tenderID {
			return &w.History.Data[i]
		}
	}
	return nil
}
