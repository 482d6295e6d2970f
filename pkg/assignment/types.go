package assignment

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/waterfall"
)

type CandidateSource string

const (
	SourceRule    CandidateSource = "rule"
	SourceMatcher CandidateSource = "matcher"
)

// Candidate is a carrier considered for a shipment.
type Candidate struct {
	Carrier      *models.Carrier `json:"-"`
	CarrierName  string          `json:"carrier_name"`
	Source       CandidateSource `json:"source"`
	MatchedRules []string        `json:"matched_rules,omitempty"`
	Reasons      []string        `json:"reasons,omitempty"`
	Score        float64         `json:"score"`
	CarrierID    uuid.UUID       `json:"carrier_id"`
}

type OutcomeStatus string

const (
	OutcomeAlreadyAssigned  OutcomeStatus = "already_assigned"
	OutcomeDisabled         OutcomeStatus = "disabled"
	OutcomeNoCarriersFound  OutcomeStatus = "no_carriers_found"
	OutcomeAutoTendered     OutcomeStatus = "auto_tendered"
	OutcomeWaterfallStarted OutcomeStatus = "waterfall_started"
	OutcomeTenderSent       OutcomeStatus = "tender_sent"
	OutcomeShipmentNotFound OutcomeStatus = "shipment_not_found"
	OutcomeInvalidConfig    OutcomeStatus = "invalid_config"
)

// Outcome reports what auto-assignment decided for one shipment. Expected
// business states are outcomes, not errors.
type Outcome struct {
	TenderID     *uuid.UUID    `json:"tender_id,omitempty"`
	WaterfallID  *uuid.UUID    `json:"waterfall_id,omitempty"`
	Status       OutcomeStatus `json:"status"`
	Message      string        `json:"message,omitempty"`
	Candidates   []Candidate   `json:"candidates,omitempty"`
	MaxRateCents int64         `json:"max_rate_cents,omitempty"`
	ShipmentID   uuid.UUID     `json:"shipment_id"`
}

// SweepResult summarizes one ProcessNewShipments run.
type SweepResult struct {
	Outcomes []Outcome `json:"outcomes"`
	Scanned  int       `json:"scanned"`
	Claimed  int       `json:"claimed"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Disabled bool      `json:"disabled"`
}

// CarrierMatcher ranks carriers for a shipment when no assignment rule applies.
type CarrierMatcher interface {
	Match(ctx context.Context, shipment *models.Shipment, limit int) ([]Candidate, error)
}

// Tenderer is the part of the waterfall engine the decision maker drives.
type Tenderer interface {
	CreateWaterfall(ctx context.Context, req waterfall.CreateRequest) (*waterfall.CreateResult, error)
	IssueTender(ctx context.Context, req waterfall.TenderRequest) (*models.Tender, error)
}
