package assignment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/clock"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/lock"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories/memory"
	"github.com/Ramsey-B/clover/pkg/waterfall"
)

var testNow = time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC)

type stubMatcher struct {
	candidates []Candidate
	err        error
	calls      int
}

func (m *stubMatcher) Match(context.Context, *models.Shipment, int) ([]Candidate, error) {
	m.calls++
	return m.candidates, m.err
}

type harness struct {
	store    *memory.Store
	matcher  *stubMatcher
	decider  *DecisionMaker
	shipment models.Shipment
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	fake := clock.NewFake(testNow)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	engine := waterfall.NewEngine(waterfall.Deps{
		Shipments:  store.Shipments(),
		Tenders:    store.Tenders(),
		Waterfalls: store.Waterfalls(),
		WorkItems:  store.WorkItems(),
		Locker:     lock.NewLocal(),
		Clock:      fake,
		Logger:     logger,
	}, waterfall.Options{})

	matcher := &stubMatcher{}
	decider := NewDecisionMaker(Deps{
		Shipments: store.Shipments(),
		Carriers:  store.Carriers(),
		Rules:     store.AssignmentRules(),
		Config:    store.AutoAssignConfig(),
		Matcher:   matcher,
		Tenderer:  engine,
		Clock:     fake,
		Logger:    logger,
	}, Options{})

	shipment := models.Shipment{
		ID:                 uuid.New(),
		ShipmentNumber:     "SHP-2001",
		CustomerID:         uuid.New(),
		CustomerPriceCents: 300000,
		OriginState:        "IL",
		DestinationState:   "TX",
		EquipmentType:      "reefer",
		PickupDate:         testNow.Add(48 * time.Hour),
		Status:             models.ShipmentStatusPending,
		CreatedAt:          testNow,
	}
	store.PutShipment(shipment)

	return &harness{store: store, matcher: matcher, decider: decider, shipment: shipment}
}

func (h *harness) carrier(name string, onTime float64) uuid.UUID {
	id := uuid.New()
	h.store.PutCarrier(models.Carrier{
		ID:               id,
		Name:             name,
		Status:           models.CarrierStatusActive,
		OnTimePercentage: &onTime,
		InsuranceStatus:  models.InsuranceStatusActive,
	})
	return id
}

func (h *harness) rule(t *testing.T, name string, priority int, boost float64, conditions models.AssignmentConditions, carriers ...uuid.UUID) {
	t.Helper()
	require.NoError(t, h.store.AssignmentRules().Save(context.Background(), &models.AssignmentRule{
		ID:         uuid.New(),
		Name:       name,
		Priority:   priority,
		Conditions: database.NewJSONB(conditions),
		Actions:    database.NewJSONB(models.AssignmentActions{CarrierIDs: carriers, ScoreBoost: boost}),
		IsActive:   true,
	}))
}

func (h *harness) configure(t *testing.T, mutate func(*models.AutoAssignConfig)) {
	t.Helper()
	config := models.DefaultAutoAssignConfig()
	config.Enabled = true
	if mutate != nil {
		mutate(config)
	}
	require.NoError(t, h.store.AutoAssignConfig().Save(context.Background(), config))
}

func TestDecisionMaker_EvaluateAssignmentRules(t *testing.T) {
	ctx := context.Background()

	t.Run("should accumulate priority and boost across matching rules", func(t *testing.T) {
		h := newHarness(t)
		fast := h.carrier("Fast Freight", 95)
		slow := h.carrier("Slow Haul", 80)
		h.rule(t, "IL lanes", 50, 5, models.AssignmentConditions{OriginState: "IL"}, fast, slow)
		h.rule(t, "reefer", 10, 0, models.AssignmentConditions{EquipmentType: "reefer"}, fast)
		h.rule(t, "CA lanes", 100, 0, models.AssignmentConditions{OriginState: "CA"}, slow)

		candidates, err := h.decider.EvaluateAssignmentRules(ctx, &h.shipment)
		require.NoError(t, err)
		require.Len(t, candidates, 2)

		assert.Equal(t, fast, candidates[0].CarrierID)
		assert.Equal(t, 65.0, candidates[0].Score)
		assert.ElementsMatch(t, []string{"IL lanes", "reefer"}, candidates[0].MatchedRules)
		assert.Equal(t, slow, candidates[1].CarrierID)
		assert.Equal(t, 55.0, candidates[1].Score)
		assert.Equal(t, SourceRule, candidates[1].Source)
		assert.Zero(t, h.matcher.calls)
	})

	t.Run("should treat empty condition fields as wildcards", func(t *testing.T) {
		h := newHarness(t)
		carrier := h.carrier("Anywhere", 90)
		h.rule(t, "catch all", 1, 0, models.AssignmentConditions{}, carrier)
		h.rule(t, "customer", 5, 0, models.AssignmentConditions{CustomerID: h.shipment.CustomerID.String()}, carrier)

		candidates, err := h.decider.EvaluateAssignmentRules(ctx, &h.shipment)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, 6.0, candidates[0].Score)
	})

	t.Run("should skip inactive carriers", func(t *testing.T) {
		h := newHarness(t)
		active := h.carrier("Active", 90)
		inactive := uuid.New()
		h.store.PutCarrier(models.Carrier{ID: inactive, Name: "Gone", Status: models.CarrierStatusSuspended})
		h.rule(t, "IL", 10, 0, models.AssignmentConditions{OriginState: "IL"}, active, inactive)

		candidates, err := h.decider.EvaluateAssignmentRules(ctx, &h.shipment)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, active, candidates[0].CarrierID)
	})

	t.Run("should fall back to the matcher when no rule applies", func(t *testing.T) {
		h := newHarness(t)
		matched := Candidate{CarrierID: uuid.New(), Source: SourceMatcher, Score: 70}
		h.matcher.candidates = []Candidate{matched}

		candidates, err := h.decider.EvaluateAssignmentRules(ctx, &h.shipment)
		require.NoError(t, err)
		assert.Equal(t, []Candidate{matched}, candidates)
		assert.Equal(t, 1, h.matcher.calls)
	})

	t.Run("should swallow matcher failures", func(t *testing.T) {
		h := newHarness(t)
		h.matcher.err = errors.New("matcher unavailable")

		candidates, err := h.decider.EvaluateAssignmentRules(ctx, &h.shipment)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})
}

func TestDecisionMaker_AutoAssignWithConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("should auto-tender a single confident candidate without a waterfall", func(t *testing.T) {
		h := newHarness(t)
		carrier := h.carrier("Confident", 97)
		h.rule(t, "IL", 90, 5, models.AssignmentConditions{OriginState: "IL"}, carrier)
		h.configure(t, func(c *models.AutoAssignConfig) {
			c.AutoTenderEnabled = true
			c.MinConfidenceScore = 80
		})

		outcome, err := h.decider.AutoAssignWithConfig(ctx, h.shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAutoTendered, outcome.Status)
		assert.Equal(t, int64(255000), outcome.MaxRateCents)
		require.NotNil(t, outcome.TenderID)
		assert.Nil(t, outcome.WaterfallID)

		tender, err := h.store.Tenders().GetByID(ctx, *outcome.TenderID)
		require.NoError(t, err)
		assert.True(t, tender.AutoAssigned)
		assert.Nil(t, tender.WaterfallID)
		assert.Equal(t, carrier, tender.CarrierID)
		assert.Equal(t, int64(255000), tender.OfferedRateCents)

		waterfalls, err := h.store.Waterfalls().ListByShipment(ctx, h.shipment.ID)
		require.NoError(t, err)
		assert.Empty(t, waterfalls)
	})

	t.Run("should start a waterfall across ranked candidates", func(t *testing.T) {
		h := newHarness(t)
		first := h.carrier("First", 95)
		second := h.carrier("Second", 90)
		h.rule(t, "IL", 30, 0, models.AssignmentConditions{OriginState: "IL"}, second, first)
		h.rule(t, "TX", 20, 0, models.AssignmentConditions{DestinationState: "TX"}, first)
		maxRate := int64(210000)
		h.configure(t, func(c *models.AutoAssignConfig) {
			c.MaxRateCents = &maxRate
			c.WaterfallRateIncreasePercent = 5
		})

		outcome, err := h.decider.AutoAssignWithConfig(ctx, h.shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeWaterfallStarted, outcome.Status)
		require.NotNil(t, outcome.WaterfallID)

		wf, err := h.store.Waterfalls().GetByID(ctx, *outcome.WaterfallID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{first, second}, wf.CarrierIDs.Data)
		assert.Equal(t, int64(210000), wf.BaseRateCents)
		assert.Equal(t, 5.0, wf.RateIncreasePercent)
		assert.Equal(t, 30, wf.TimeoutMinutes)
		assert.True(t, wf.AutoEscalate)
	})

	t.Run("should send a plain tender to a lone unconfident candidate", func(t *testing.T) {
		h := newHarness(t)
		carrier := h.carrier("Lone", 90)
		h.rule(t, "IL", 40, 0, models.AssignmentConditions{OriginState: "IL"}, carrier)
		h.configure(t, func(c *models.AutoAssignConfig) {
			c.AutoTenderEnabled = true
			c.MinConfidenceScore = 80
		})

		outcome, err := h.decider.AutoAssignWithConfig(ctx, h.shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeTenderSent, outcome.Status)

		tender, err := h.store.Tenders().GetByID(ctx, *outcome.TenderID)
		require.NoError(t, err)
		assert.False(t, tender.AutoAssigned)
	})

	t.Run("should filter excluded late and uninsured carriers", func(t *testing.T) {
		h := newHarness(t)
		excluded := h.carrier("Excluded", 99)
		late := h.carrier("Late", 60)
		uninsured := uuid.New()
		onTime := 99.0
		h.store.PutCarrier(models.Carrier{
			ID: uninsured, Name: "Uninsured", Status: models.CarrierStatusActive,
			OnTimePercentage: &onTime, InsuranceStatus: models.InsuranceStatusExpired,
		})
		h.rule(t, "IL", 10, 0, models.AssignmentConditions{OriginState: "IL"}, excluded, late, uninsured)
		minOnTime := 85.0
		h.configure(t, func(c *models.AutoAssignConfig) {
			c.ExcludedCarrierIDs = database.NewJSONB([]uuid.UUID{excluded})
			c.MinOnTimePercent = &minOnTime
		})

		outcome, err := h.decider.AutoAssignWithConfig(ctx, h.shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoCarriersFound, outcome.Status)
		assert.Empty(t, outcome.Candidates)
	})

	t.Run("should report disabled and already assigned shipments", func(t *testing.T) {
		h := newHarness(t)
		outcome, err := h.decider.AutoAssignWithConfig(ctx, h.shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDisabled, outcome.Status)

		h.configure(t, nil)
		assigned := h.shipment
		carrierID := uuid.New()
		assigned.CarrierID = &carrierID
		h.store.PutShipment(assigned)

		outcome, err = h.decider.AutoAssignWithConfig(ctx, h.shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyAssigned, outcome.Status)
	})

	t.Run("should report an unknown shipment", func(t *testing.T) {
		h := newHarness(t)
		h.configure(t, nil)

		outcome, err := h.decider.AutoAssignWithConfig(ctx, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, OutcomeShipmentNotFound, outcome.Status)
	})

	t.Run("should report a conflicting active waterfall as already assigned", func(t *testing.T) {
		h := newHarness(t)
		first := h.carrier("First", 95)
		second := h.carrier("Second", 90)
		h.rule(t, "IL", 10, 0, models.AssignmentConditions{OriginState: "IL"}, first, second)
		h.configure(t, nil)

		_, err := h.decider.AutoAssignWithConfig(ctx, h.shipment.ID)
		require.NoError(t, err)
		outcome, err := h.decider.AutoAssignWithConfig(ctx, h.shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyAssigned, outcome.Status)
	})
}

func TestDecisionMaker_ProcessNewShipments(t *testing.T) {
	ctx := context.Background()

	t.Run("should attempt each shipment once", func(t *testing.T) {
		h := newHarness(t)
		carrier := h.carrier("Lone", 90)
		h.rule(t, "IL", 10, 0, models.AssignmentConditions{OriginState: "IL"}, carrier)
		h.configure(t, nil)

		first, err := h.decider.ProcessNewShipments(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Scanned)
		assert.Equal(t, 1, first.Claimed)
		require.Len(t, first.Outcomes, 1)
		assert.Equal(t, OutcomeTenderSent, first.Outcomes[0].Status)

		second, err := h.decider.ProcessNewShipments(ctx)
		require.NoError(t, err)
		assert.Zero(t, second.Scanned)

		shipment, err := h.store.Shipments().GetByID(ctx, h.shipment.ID)
		require.NoError(t, err)
		assert.True(t, shipment.AutoAssignmentAttempted)
		assert.Equal(t, testNow, *shipment.AutoAssignmentAttemptedAt)
	})

	t.Run("should claim nothing while disabled", func(t *testing.T) {
		h := newHarness(t)

		result, err := h.decider.ProcessNewShipments(ctx)
		require.NoError(t, err)
		assert.True(t, result.Disabled)

		shipment, err := h.store.Shipments().GetByID(ctx, h.shipment.ID)
		require.NoError(t, err)
		assert.False(t, shipment.AutoAssignmentAttempted)
	})

	t.Run("should mark a shipment attempted even when no carrier is found", func(t *testing.T) {
		h := newHarness(t)
		h.configure(t, nil)

		result, err := h.decider.ProcessNewShipments(ctx)
		require.NoError(t, err)
		require.Len(t, result.Outcomes, 1)
		assert.Equal(t, OutcomeNoCarriersFound, result.Outcomes[0].Status)

		again, err := h.decider.ProcessNewShipments(ctx)
		require.NoError(t, err)
		assert.Zero(t, again.Scanned)
	})
}

func TestFilterCandidates(t *testing.T) {
	onTime := 90.0
	carrier := func(name string) *models.Carrier {
		return &models.Carrier{ID: uuid.New(), Name: name, Status: models.CarrierStatusActive, OnTimePercentage: &onTime, InsuranceStatus: models.InsuranceStatusActive}
	}
	a, b, c := carrier("A"), carrier("B"), carrier("C")
	candidates := []Candidate{
		{Carrier: a, CarrierID: a.ID, CarrierName: a.Name, Score: 50},
		{Carrier: b, CarrierID: b.ID, CarrierName: b.Name, Score: 40},
		{Carrier: c, CarrierID: c.ID, CarrierName: c.Name, Score: 10},
	}

	t.Run("should boost preferred carriers and truncate", func(t *testing.T) {
		config := models.DefaultAutoAssignConfig()
		config.PreferredCarrierIDs = database.NewJSONB([]uuid.UUID{b.ID})
		config.MaxCarriersToConsider = 2

		out := FilterCandidates(config, candidates)
		require.Len(t, out, 2)
		assert.Equal(t, b.ID, out[0].CarrierID)
		assert.Equal(t, 60.0, out[0].Score)
		assert.Equal(t, a.ID, out[1].CarrierID)
		assert.Equal(t, 40.0, candidates[1].Score)
	})

	t.Run("should compute the max acceptable rate", func(t *testing.T) {
		config := models.DefaultAutoAssignConfig()
		shipment := &models.Shipment{CustomerPriceCents: 100000}
		assert.Equal(t, int64(85000), MaxAcceptableRate(config, shipment))

		maxRate := int64(70000)
		config.MaxRateCents = &maxRate
		assert.Equal(t, int64(70000), MaxAcceptableRate(config, shipment))
	})
}
