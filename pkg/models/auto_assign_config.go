package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

// AutoAssignConfigID is the primary key of the singleton config row.
const AutoAssignConfigID = 1

// AutoAssignConfig holds the operator's auto-assignment policy.
type AutoAssignConfig struct {
	ID                           int                         `db:"id" json:"-"`
	Enabled                      bool                        `db:"enabled" json:"enabled"`
	RateThresholdPercent         float64                     `db:"rate_threshold_percent" json:"rate_threshold_percent" validate:"gte=0,lt=100"`
	MinConfidenceScore           float64                     `db:"min_confidence_score" json:"min_confidence_score" validate:"gte=0"`
	AutoTenderEnabled            bool                        `db:"auto_tender_enabled" json:"auto_tender_enabled"`
	MaxRateCents                 *int64                      `db:"max_rate_cents" json:"max_rate_cents,omitempty" validate:"omitempty,gt=0"`
	MinOnTimePercent             *float64                    `db:"min_on_time_percent" json:"min_on_time_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	RequireActiveInsurance       bool                        `db:"require_active_insurance" json:"require_active_insurance"`
	PreferredCarrierIDs          database.JSONB[[]uuid.UUID] `db:"preferred_carrier_ids" json:"preferred_carrier_ids"`
	ExcludedCarrierIDs           database.JSONB[[]uuid.UUID] `db:"excluded_carrier_ids" json:"excluded_carrier_ids"`
	MaxCarriersToConsider        int                         `db:"max_carriers_to_consider" json:"max_carriers_to_consider" validate:"gte=1"`
	WaterfallTimeoutMinutes      int                         `db:"waterfall_timeout_minutes" json:"waterfall_timeout_minutes" validate:"gte=1"`
	WaterfallRateIncreasePercent float64                     `db:"waterfall_rate_increase_percent" json:"waterfall_rate_increase_percent" validate:"gte=0"`
	UpdatedAt                    time.Time                   `db:"updated_at" json:"updated_at"`
}

func (AutoAssignConfig) TableName() string {
	return "auto_assign_config"
}

// DefaultAutoAssignConfig is used until an operator saves a config.
func DefaultAutoAssignConfig() *AutoAssignConfig {
	return &AutoAssignConfig{
		ID:                      AutoAssignConfigID,
		Enabled:                 false,
		RateThresholdPercent:    15,
		MinConfidenceScore:      80,
		RequireActiveInsurance:  true,
		MaxCarriersToConsider:   5,
		WaterfallTimeoutMinutes: 30,
	}
}

func (c *AutoAssignConfig) IsPreferred(carrierID uuid.UUID) bool {
	return containsID(c.PreferredCarrierIDs.Data, carrierID)
}

func (c *AutoAssignConfig) IsExcluded(carrierID uuid.UUID) bool {
	return containsID(c.ExcludedCarrierIDs.Data, carrierID)
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
