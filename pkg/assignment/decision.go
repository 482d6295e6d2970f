// Package assignment decides how a new shipment is offered to carriers.
//
// Candidates come from operator assignment rules, or from the heuristic
// matcher when no rule applies. The operator's AutoAssignConfig filters and
// ranks them, then the decision maker sends one auto tender, starts a
// waterfall, or sends one plain tender.
package assignment

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/clock"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/rules"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/waterfall"
)

const (
	PreferredCarrierBoost = 20

	defaultBatchSize  = 100
	defaultMatchLimit = 10
)

type Options struct {
	// BatchSize caps the shipments one ProcessNewShipments run scans.
	BatchSize  int
	MatchLimit int
}

type Deps struct {
	Shipments repositories.ShipmentRepo
	Carriers  repositories.CarrierRepo
	Rules     repositories.AssignmentRuleRepo
	Config    repositories.AutoAssignConfigRepo
	Matcher   CarrierMatcher
	Tenderer  Tenderer
	Clock     clock.Clock
	Logger    ectologger.Logger
}

type DecisionMaker struct {
	shipments repositories.ShipmentRepo
	carriers  repositories.CarrierRepo
	rules     repositories.AssignmentRuleRepo
	config    repositories.AutoAssignConfigRepo
	matcher   CarrierMatcher
	tenderer  Tenderer
	clock     clock.Clock
	logger    ectologger.Logger
	opts      Options
}

func NewDecisionMaker(deps Deps, opts Options) *DecisionMaker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MatchLimit <= 0 {
		opts.MatchLimit = defaultMatchLimit
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	return &DecisionMaker{
		shipments: deps.Shipments,
		carriers:  deps.Carriers,
		rules:     deps.Rules,
		config:    deps.Config,
		matcher:   deps.Matcher,
		tenderer:  deps.Tenderer,
		clock:     deps.Clock,
		logger:    deps.Logger,
		opts:      opts,
	}
}

// EvaluateAssignmentRules ranks the carriers named by every active rule that
// matches the shipment. Each matching rule adds priority + score_boost to its
// carriers. With no rule candidates the heuristic matcher is asked instead.
func (d *DecisionMaker) EvaluateAssignmentRules(ctx context.Context, shipment *models.Shipment) ([]Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "DecisionMaker.EvaluateAssignmentRules")
	defer span.End()

	active, err := d.rules.ListActive(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	snapshot, err := models.Snapshot(shipment)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	byCarrier := map[uuid.UUID]*Candidate{}
	var order []uuid.UUID
	for i := range active {
		rule := &active[i]
		if matched, _ := rules.EvaluateConditions(assignmentConditions(rule.Conditions.Data), snapshot); !matched {
			continue
		}
		for _, carrierID := range rule.Actions.Data.CarrierIDs {
			candidate, ok := byCarrier[carrierID]
			if !ok {
				candidate = &Candidate{CarrierID: carrierID, Source: SourceRule}
				byCarrier[carrierID] = candidate
				order = append(order, carrierID)
			}
			candidate.Score += float64(rule.Priority) + rule.Actions.Data.ScoreBoost
			candidate.MatchedRules = append(candidate.MatchedRules, rule.Name)
		}
	}

	candidates := make([]Candidate, 0, len(order))
	if len(order) > 0 {
		carriers, err := d.carriers.ListByIDs(ctx, order)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		for i := range carriers {
			carrier := &carriers[i]
			if !carrier.IsActive() {
				continue
			}
			candidate := byCarrier[carrier.ID]
			candidate.Carrier = carrier
			candidate.CarrierName = carrier.Name
			candidate.Reasons = []string{"matched rules: " + strings.Join(candidate.MatchedRules, ", ")}
			candidates = append(candidates, *candidate)
		}
	}
	if len(candidates) > 0 || d.matcher == nil {
		sortCandidates(candidates)
		return candidates, nil
	}

	matched, err := d.matcher.Match(ctx, shipment, d.opts.MatchLimit)
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).WithField("shipment_id", shipment.ID).Warn("Carrier matcher failed, continuing without candidates")
		return candidates, nil
	}
	return matched, nil
}

// AutoAssignWithConfig runs the configured auto-assignment for one shipment.
func (d *DecisionMaker) AutoAssignWithConfig(ctx context.Context, shipmentID uuid.UUID) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "DecisionMaker.AutoAssignWithConfig")
	defer span.End()

	config, err := d.config.Get(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	shipment, err := d.shipments.GetByID(ctx, shipmentID)
	if repositories.IsNotFound(err) {
		return d.finish(ctx, &Outcome{
			ShipmentID: shipmentID,
			Status:     OutcomeShipmentNotFound,
			Message:    fmt.Sprintf("shipment %s not found", shipmentID),
		}), nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	outcome, err := d.decide(ctx, shipment, config)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return outcome, nil
}

// ProcessNewShipments auto-assigns carrierless shipments not yet attempted.
// Each shipment is claimed first, so it gets at most one automatic attempt
// even when sweeps overlap. Nothing is claimed while auto-assignment is disabled.
func (d *DecisionMaker) ProcessNewShipments(ctx context.Context) (*SweepResult, error) {
	ctx, span := tracing.StartSpan(ctx, "DecisionMaker.ProcessNewShipments")
	defer span.End()

	result := &SweepResult{Outcomes: []Outcome{}}
	config, err := d.config.Get(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if !config.Enabled {
		result.Disabled = true
		d.logger.WithContext(ctx).Debug("Auto-assignment disabled, skipping new shipments")
		return result, nil
	}

	shipments, err := d.shipments.ListAwaitingAutoAssignment(ctx, d.opts.BatchSize)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	result.Scanned = len(shipments)

	for i := range shipments {
		shipment := &shipments[i]
		log := d.logger.WithContext(ctx).WithField("shipment_id", shipment.ID)

		claimed, err := d.shipments.ClaimAutoAssignment(ctx, shipment.ID, d.clock.Now())
		if err != nil {
			log.WithError(err).Error("failed to claim shipment for auto-assignment")
			result.Failed++
			continue
		}
		if !claimed {
			result.Skipped++
			continue
		}
		result.Claimed++

		outcome, err := d.decide(ctx, shipment, config)
		if err != nil {
			log.WithError(err).Error("auto-assignment failed")
			result.Failed++
			continue
		}
		result.Outcomes = append(result.Outcomes, *outcome)
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"scanned": result.Scanned,
		"claimed": result.Claimed,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}).Info("Processed new shipments")
	return result, nil
}

func (d *DecisionMaker) decide(ctx context.Context, shipment *models.Shipment, config *models.AutoAssignConfig) (*Outcome, error) {
	outcome := &Outcome{ShipmentID: shipment.ID}

	if !config.Enabled {
		outcome.Status = OutcomeDisabled
		outcome.Message = "auto-assignment is disabled"
		return d.finish(ctx, outcome), nil
	}
	if shipment.HasCarrier() {
		outcome.Status = OutcomeAlreadyAssigned
		outcome.Message = fmt.Sprintf("carrier %s already assigned", *shipment.CarrierID)
		return d.finish(ctx, outcome), nil
	}

	maxRate := MaxAcceptableRate(config, shipment)
	outcome.MaxRateCents = maxRate
	if maxRate <= 0 {
		outcome.Status = OutcomeInvalidConfig
		outcome.Message = fmt.Sprintf("max acceptable rate %d is not positive", maxRate)
		return d.finish(ctx, outcome), nil
	}

	candidates, err := d.EvaluateAssignmentRules(ctx, shipment)
	if err != nil {
		return nil, err
	}
	candidates = FilterCandidates(config, candidates)
	outcome.Candidates = candidates
	if len(candidates) == 0 {
		outcome.Status = OutcomeNoCarriersFound
		outcome.Message = "no eligible carriers after filtering"
		return d.finish(ctx, outcome), nil
	}

	top := candidates[0]
	switch {
	case config.AutoTenderEnabled && top.Score >= config.MinConfidenceScore:
		tender, err := d.tenderer.IssueTender(ctx, waterfall.TenderRequest{
			ShipmentID:     shipment.ID,
			CarrierID:      top.CarrierID,
			RateCents:      maxRate,
			TimeoutMinutes: config.WaterfallTimeoutMinutes,
			AutoAssigned:   true,
		})
		if err != nil {
			return d.fromTenderError(ctx, outcome, err)
		}
		outcome.Status = OutcomeAutoTendered
		outcome.TenderID = &tender.ID
		outcome.Message = fmt.Sprintf("auto-tendered %s with score %.2f", top.CarrierName, top.Score)

	case len(candidates) >= 2:
		ids := make([]uuid.UUID, len(candidates))
		for i, candidate := range candidates {
			ids[i] = candidate.CarrierID
		}
		created, err := d.tenderer.CreateWaterfall(ctx, waterfall.CreateRequest{
			ShipmentID:          shipment.ID,
			CarrierIDs:          ids,
			BaseRateCents:       maxRate,
			RateIncreasePercent: config.WaterfallRateIncreasePercent,
			TimeoutMinutes:      config.WaterfallTimeoutMinutes,
			AutoEscalate:        true,
		})
		if err != nil {
			return d.fromTenderError(ctx, outcome, err)
		}
		outcome.Status = OutcomeWaterfallStarted
		outcome.WaterfallID = &created.WaterfallID
		outcome.TenderID = created.CurrentTenderID
		outcome.Message = fmt.Sprintf("waterfall across %d carriers", len(ids))

	default:
		tender, err := d.tenderer.IssueTender(ctx, waterfall.TenderRequest{
			ShipmentID:     shipment.ID,
			CarrierID:      top.CarrierID,
			RateCents:      maxRate,
			TimeoutMinutes: config.WaterfallTimeoutMinutes,
		})
		if err != nil {
			return d.fromTenderError(ctx, outcome, err)
		}
		outcome.Status = OutcomeTenderSent
		outcome.TenderID = &tender.ID
		outcome.Message = fmt.Sprintf("tendered %s", top.CarrierName)
	}
	return d.finish(ctx, outcome), nil
}

// fromTenderError turns expected refusals of the waterfall engine into outcomes.
func (d *DecisionMaker) fromTenderError(ctx context.Context, outcome *Outcome, err error) (*Outcome, error) {
	switch {
	case repositories.IsConflict(err):
		outcome.Status = OutcomeAlreadyAssigned
	case repositories.IsBadRequest(err):
		outcome.Status = OutcomeInvalidConfig
	case repositories.IsNotFound(err):
		outcome.Status = OutcomeShipmentNotFound
	default:
		return nil, err
	}
	outcome.Message = err.Error()
	return d.finish(ctx, outcome), nil
}

func (d *DecisionMaker) finish(ctx context.Context, outcome *Outcome) *Outcome {
	metrics.RecordAutoAssignOutcome(string(outcome.Status))
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"shipment_id": outcome.ShipmentID,
		"outcome":     outcome.Status,
		"candidates":  len(outcome.Candidates),
	}).Info(outcome.Message)
	return outcome
}

// MaxAcceptableRate is max_rate_cents when set, otherwise the customer price
// less rate_threshold_percent.
func MaxAcceptableRate(config *models.AutoAssignConfig, shipment *models.Shipment) int64 {
	if config.MaxRateCents != nil {
		return *config.MaxRateCents
	}
	return int64(math.Round(float64(shipment.CustomerPriceCents) * (1 - config.RateThresholdPercent/100)))
}

// FilterCandidates drops excluded, late and uninsured carriers, boosts
// preferred ones, and keeps the best max_carriers_to_consider.
func FilterCandidates(config *models.AutoAssignConfig, candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		carrier := candidate.Carrier
		if carrier == nil || config.IsExcluded(candidate.CarrierID) {
			continue
		}
		if config.MinOnTimePercent != nil && carrier.OnTime() < *config.MinOnTimePercent {
			continue
		}
		if config.RequireActiveInsurance && carrier.InsuranceStatus != models.InsuranceStatusActive {
			continue
		}
		if config.IsPreferred(candidate.CarrierID) {
			candidate.Score += PreferredCarrierBoost
			candidate.Reasons = append(append([]string(nil), candidate.Reasons...), "preferred carrier")
		}
		out = append(out, candidate)
	}

	sortCandidates(out)
	if config.MaxCarriersToConsider > 0 && len(out) > config.MaxCarriersToConsider {
		out = out[:config.MaxCarriersToConsider]
	}
	return out
}

// assignmentConditions turns populated exact-match fields into equals conditions.
func assignmentConditions(c models.AssignmentConditions) []rules.Condition {
	fields := []struct {
		name  string
		value string
	}{
		{"origin_state", c.OriginState},
		{"destination_state", c.DestinationState},
		{"equipment_type", c.EquipmentType},
		{"customer_id", c.CustomerID},
	}

	conditions := make([]rules.Condition, 0, len(fields))
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		conditions = append(conditions, rules.Condition{Field: field.name, Operator: rules.OperatorEquals, Value: field.value})
	}
	return conditions
}
