package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/assignment"
	"github.com/Ramsey-B/clover/pkg/clock"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/lock"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories/memory"
	"github.com/Ramsey-B/clover/pkg/rules"
	"github.com/Ramsey-B/clover/pkg/waterfall"
)

var testNow = time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)

type recordingDispatcher struct {
	mu            sync.Mutex
	notifications []models.Notification
	broadcasts    []models.Broadcast
	emails        []models.Email
	err           error
}

func (d *recordingDispatcher) SendNotification(_ context.Context, n models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.notifications = append(d.notifications, n)
	return nil
}

func (d *recordingDispatcher) Broadcast(_ context.Context, b models.Broadcast) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.broadcasts = append(d.broadcasts, b)
	return nil
}

func (d *recordingDispatcher) SendEmail(_ context.Context, e models.Email) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.emails = append(d.emails, e)
	return nil
}

func (d *recordingDispatcher) sent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.notifications) + len(d.broadcasts) + len(d.emails)
}

// sequenceRoller cycles through fixed rolls.
type sequenceRoller struct {
	rolls []int
	next  int
}

func (r *sequenceRoller) Roll() int {
	roll := r.rolls[r.next%len(r.rolls)]
	r.next++
	return roll
}

type fixture struct {
	store      *memory.Store
	dispatcher *recordingDispatcher
	roller     *sequenceRoller
	executor   *ActionExecutor
	engine     *Engine
	service    *Service
	shipment   models.Shipment
	carriers   []uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	fake := clock.NewFake(testNow)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	tenders := waterfall.NewEngine(waterfall.Deps{
		Shipments:  store.Shipments(),
		Tenders:    store.Tenders(),
		Waterfalls: store.Waterfalls(),
		WorkItems:  store.WorkItems(),
		Locker:     lock.NewLocal(),
		Clock:      fake,
		Logger:     logger,
	}, waterfall.Options{})
	decider := assignment.NewDecisionMaker(assignment.Deps{
		Shipments: store.Shipments(),
		Carriers:  store.Carriers(),
		Rules:     store.AssignmentRules(),
		Config:    store.AutoAssignConfig(),
		Tenderer:  tenders,
		Clock:     fake,
		Logger:    logger,
	}, assignment.Options{})

	dispatcher := &recordingDispatcher{}
	roller := &sequenceRoller{rolls: []int{50}}
	executor := NewActionExecutor(ExecutorDeps{
		Shipments:  store.Shipments(),
		Carriers:   store.Carriers(),
		WorkItems:  store.WorkItems(),
		Assigner:   decider,
		Tenderer:   tenders,
		Dispatcher: dispatcher,
		Clock:      fake,
		Logger:     logger,
	})
	engine := NewEngine(Deps{
		Rules:    store.AutomationRules(),
		Loader:   NewEntityLoader(store.Shipments(), store.Carriers(), store.Tenders(), store.Waterfalls()),
		Executor: executor,
		Roller:   roller,
		Clock:    fake,
		Logger:   logger,
	}, Options{})

	carriers := []uuid.UUID{uuid.New(), uuid.New()}
	for i, id := range carriers {
		store.PutCarrier(models.Carrier{ID: id, Name: []string{"Fast Freight", "Slow Haul"}[i], Status: models.CarrierStatusActive, InsuranceStatus: models.InsuranceStatusActive})
	}
	shipment := models.Shipment{
		ID:                 uuid.New(),
		ShipmentNumber:     "SHP-3001",
		CustomerPriceCents: 180000,
		OriginState:        "IL",
		DestinationState:   "OH",
		EquipmentType:      "dry_van",
		Status:             models.ShipmentStatusPending,
		CreatedAt:          testNow,
	}
	store.PutShipment(shipment)

	return &fixture{
		store:      store,
		dispatcher: dispatcher,
		roller:     roller,
		executor:   executor,
		engine:     engine,
		service:    NewService(store.AutomationRules(), nil, logger),
		shipment:   shipment,
		carriers:   carriers,
	}
}

func (f *fixture) rule(t *testing.T, name string, stage models.RolloutStage, pct, priority int, action models.ActionConfig, conditions ...rules.Condition) *models.AutomationRule {
	t.Helper()
	rule := &models.AutomationRule{
		Name:              name,
		Trigger:           models.TriggerShipmentCreated,
		Conditions:        database.NewJSONB(append([]rules.Condition{}, conditions...)),
		Action:            models.NewActionSpec(action),
		RolloutStage:      stage,
		RolloutPercentage: pct,
		Priority:          priority,
		Enabled:           true,
	}
	require.NoError(t, f.service.SaveRule(context.Background(), rule))
	return rule
}

func (f *fixture) entity(t *testing.T) *Entity {
	t.Helper()
	entity, err := f.engine.loader.Load(context.Background(), models.EntityTypeShipment, f.shipment.ID.String())
	require.NoError(t, err)
	return entity
}

func (f *fixture) stored(t *testing.T, id uuid.UUID) *models.AutomationRule {
	t.Helper()
	rule, err := f.store.AutomationRules().GetByID(context.Background(), id)
	require.NoError(t, err)
	return rule
}

func (f *fixture) shipmentStatus(t *testing.T) models.ShipmentStatus {
	t.Helper()
	shipment, err := f.store.Shipments().GetByID(context.Background(), f.shipment.ID)
	require.NoError(t, err)
	return shipment.Status
}

func TestEngine_ProcessTrigger(t *testing.T) {
	ctx := context.Background()
	fromIL := rules.Condition{Field: "origin_state", Operator: rules.OperatorEquals, Value: "IL"}

	t.Run("should only log shadow rules", func(t *testing.T) {
		f := newFixture(t)
		rule := f.rule(t, "approve IL", models.RolloutShadow, 0, 10, &models.AutoApproveConfig{Reason: "lane {{ origin_state }}"}, fromIL)

		for i := 0; i < 2; i++ {
			outcomes, err := f.engine.ProcessTrigger(ctx, models.TriggerShipmentCreated, f.entity(t))
			require.NoError(t, err)
			require.Len(t, outcomes, 1)
			assert.Equal(t, StatusShadowed, outcomes[0].Status)
			assert.False(t, outcomes[0].Action.Executed)
			assert.True(t, outcomes[0].Action.DryRun)
		}

		assert.Equal(t, models.ShipmentStatusPending, f.shipmentStatus(t))
		stored := f.stored(t, rule.ID)
		assert.Equal(t, int64(2), stored.TriggerCount)
		require.Len(t, stored.ShadowLog.Data, 2)
		assert.Equal(t, models.ActionAutoApprove, stored.ShadowLog.Data[0].Action)
		assert.Equal(t, "would approve shipment "+f.shipment.ID.String()+": lane IL", stored.ShadowLog.Data[0].Description)
		assert.Equal(t, testNow, *stored.LastTriggeredAt)
	})

	t.Run("should log a shadow dry-run that failed", func(t *testing.T) {
		f := newFixture(t)
		rule := f.rule(t, "weigh", models.RolloutShadow, 0, 10, &models.SendNotificationConfig{Channel: "ops", Message: "weight {{ length(weight_lbs) }}"})

		outcomes, err := f.engine.ProcessTrigger(ctx, models.TriggerShipmentCreated, f.entity(t))
		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.Equal(t, StatusFailed, outcomes[0].Status)

		stored := f.stored(t, rule.ID)
		assert.Equal(t, int64(1), stored.TriggerCount)
		require.Len(t, stored.ShadowLog.Data, 1)
		entry := stored.ShadowLog.Data[0]
		assert.Equal(t, models.ActionSendNotification, entry.Action)
		assert.Equal(t, f.shipment.ID.String(), entry.EntityID)
		assert.Equal(t, outcomes[0].Error, entry.Error)
		assert.NotEmpty(t, entry.Error)
		assert.Zero(t, f.dispatcher.sent())
	})

	t.Run("should never execute partial rules at zero percent", func(t *testing.T) {
		f := newFixture(t)
		f.roller.rolls = []int{1, 37, 50, 99, 100}
		rule := f.rule(t, "approve", models.RolloutPartial, 0, 10, &models.AutoApproveConfig{})

		for i := 0; i < 10; i++ {
			outcomes, err := f.engine.ProcessTrigger(ctx, models.TriggerShipmentCreated, f.entity(t))
			require.NoError(t, err)
			assert.Equal(t, StatusSimulated, outcomes[0].Status)
			assert.Equal(t, reasonRollExceeded, outcomes[0].Reason)
		}

		assert.Equal(t, models.ShipmentStatusPending, f.shipmentStatus(t))
		stored := f.stored(t, rule.ID)
		assert.Equal(t, int64(10), stored.TriggerCount)
		assert.Empty(t, stored.ShadowLog.Data)
	})

	t.Run("should always execute partial rules at one hundred percent", func(t *testing.T) {
		f := newFixture(t)
		f.roller.rolls = []int{1, 100}
		rule := f.rule(t, "notify", models.RolloutPartial, 100, 10, &models.SendNotificationConfig{Channel: "ops", Message: "new {{ shipment_number }}"})

		for i := 0; i < 4; i++ {
			outcomes, err := f.engine.ProcessTrigger(ctx, models.TriggerShipmentCreated, f.entity(t))
			require.NoError(t, err)
			assert.Equal(t, StatusExecuted, outcomes[0].Status)
			require.NotNil(t, outcomes[0].Roll)
		}

		require.Len(t, f.dispatcher.notifications, 4)
		assert.Equal(t, "new SHP-3001", f.dispatcher.notifications[0].Message)
		assert.Equal(t, rule.ID, *f.dispatcher.notifications[0].RuleID)
		assert.Equal(t, int64(4), f.stored(t, rule.ID).TriggerCount)
	})

	t.Run("should execute full rules in priority order", func(t *testing.T) {
		f := newFixture(t)
		low := f.rule(t, "low", models.RolloutFull, 0, 1, &models.CreateWorkItemConfig{Title: "Review {{ shipment_number }}", Priority: models.WorkItemPriorityHigh})
		high := f.rule(t, "high", models.RolloutFull, 0, 50, &models.AutoApproveConfig{Reason: "trusted lane"}, fromIL)

		outcomes, err := f.engine.ProcessTrigger(ctx, models.TriggerShipmentCreated, f.entity(t))
		require.NoError(t, err)
		require.Len(t, outcomes, 2)
		assert.Equal(t, high.ID, outcomes[0].RuleID)
		assert.Equal(t, low.ID, outcomes[1].RuleID)
		assert.True(t, outcomes[0].Action.Executed)
		assert.True(t, outcomes[1].Action.Executed)

		assert.Equal(t, models.ShipmentStatusApproved, f.shipmentStatus(t))
		items, err := f.store.WorkItems().ListByEntity(ctx, models.EntityTypeShipment, f.shipment.ID.String())
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Review SHP-3001", items[0].Title)
		assert.Equal(t, models.WorkItemTypeAutomation, items[0].Type)
	})

	t.Run("should skip disabled stages and unmet conditions", func(t *testing.T) {
		f := newFixture(t)
		disabled := f.rule(t, "disabled", models.RolloutDisabled, 0, 5, &models.AutoApproveConfig{})
		unmet := f.rule(t, "texas", models.RolloutFull, 0, 1, &models.AutoApproveConfig{},
			rules.Condition{Field: "origin_state", Operator: rules.OperatorEquals, Value: "TX"})

		outcomes, err := f.engine.ProcessTrigger(ctx, models.TriggerShipmentCreated, f.entity(t))
		require.NoError(t, err)
		require.Len(t, outcomes, 2)
		assert.Equal(t, StatusSkipped, outcomes[0].Status)
		assert.Equal(t, StatusConditionsUnmet, outcomes[1].Status)
		assert.Contains(t, outcomes[1].Reason, `actual="IL", expected="TX"`)

		assert.Zero(t, f.stored(t, disabled.ID).TriggerCount)
		assert.Zero(t, f.stored(t, unmet.ID).TriggerCount)
		assert.Equal(t, models.ShipmentStatusPending, f.shipmentStatus(t))
	})

	t.Run("should report a failing action and continue", func(t *testing.T) {
		f := newFixture(t)
		f.dispatcher.err = errors.New("broker down")
		failing := f.rule(t, "escalate", models.RolloutFull, 0, 10, &models.EscalateConfig{Message: "late"})
		f.rule(t, "approve", models.RolloutFull, 0, 1, &models.AutoApproveConfig{})

		outcomes, err := f.engine.ProcessTrigger(ctx, models.TriggerShipmentCreated, f.entity(t))
		require.NoError(t, err)
		require.Len(t, outcomes, 2)
		assert.Equal(t, StatusFailed, outcomes[0].Status)
		assert.Contains(t, outcomes[0].Error, "broker down")
		assert.Equal(t, StatusExecuted, outcomes[1].Status)
		assert.Equal(t, int64(1), f.stored(t, failing.ID).TriggerCount)
	})

	t.Run("should ignore rules of other triggers and reject mismatched entities", func(t *testing.T) {
		f := newFixture(t)
		rule := f.rule(t, "approve", models.RolloutFull, 0, 1, &models.AutoApproveConfig{})

		outcomes, err := f.engine.ProcessTrigger(ctx, models.TriggerShipmentDelivered, f.entity(t))
		require.NoError(t, err)
		assert.Empty(t, outcomes)
		assert.Zero(t, f.stored(t, rule.ID).TriggerCount)

		_, err = f.engine.ProcessTrigger(ctx, models.TriggerTenderAccepted, f.entity(t))
		assert.Error(t, err)
	})

	t.Run("should load the entity of a lifecycle event", func(t *testing.T) {
		f := newFixture(t)
		f.rule(t, "approve", models.RolloutFull, 0, 1, &models.AutoApproveConfig{})

		event := models.NewLifecycleEvent(models.TriggerShipmentCreated, f.shipment.ID.String(), testNow)
		outcomes, err := f.engine.ProcessEvent(ctx, event)
		require.NoError(t, err)
		require.Len(t, outcomes, 1)
		assert.Equal(t, models.ShipmentStatusApproved, f.shipmentStatus(t))
	})
}

func TestEngine_TestRules(t *testing.T) {
	ctx := context.Background()

	t.Run("should explain a condition mismatch", func(t *testing.T) {
		f := newFixture(t)
		rule := f.rule(t, "texas only", models.RolloutFull, 0, 1, &models.AutoApproveConfig{},
			rules.Condition{Field: "origin_state", Operator: rules.OperatorEquals, Value: "TX"})

		report, err := f.engine.TestRules(ctx, models.EntityTypeShipment, f.shipment.ID.String())
		require.NoError(t, err)
		require.Len(t, report.Rules, 1)

		sim := report.Rules[0]
		assert.False(t, sim.ConditionsMet)
		require.Len(t, sim.Conditions, 1)
		assert.Equal(t, "IL", sim.Conditions[0].Actual)
		assert.Equal(t, "TX", sim.Conditions[0].Expected)
		assert.Nil(t, sim.Action)
		assert.Zero(t, f.stored(t, rule.ID).TriggerCount)
	})

	t.Run("should dry-run disabled rules without writing anything", func(t *testing.T) {
		f := newFixture(t)
		rule := f.rule(t, "approve", models.RolloutDisabled, 0, 1, &models.AutoApproveConfig{})
		rule.Enabled = false
		require.NoError(t, f.store.AutomationRules().Save(ctx, rule))
		f.rule(t, "approve always", models.RolloutFull, 0, 1, &models.AutoApproveConfig{})

		report, err := f.engine.TestRules(ctx, models.EntityTypeShipment, f.shipment.ID.String())
		require.NoError(t, err)
		assert.Equal(t, 2, report.Matched)
		for _, sim := range report.Rules {
			require.NotNil(t, sim.Action)
			assert.True(t, sim.Action.DryRun)
			assert.False(t, sim.Action.Executed)
		}
		assert.Equal(t, models.ShipmentStatusPending, f.shipmentStatus(t))
		assert.Zero(t, f.stored(t, rule.ID).TriggerCount)
		assert.Empty(t, f.stored(t, rule.ID).ShadowLog.Data)
	})

	t.Run("should return not found for an unknown entity", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.TestRules(ctx, models.EntityTypeShipment, uuid.NewString())
		assert.Error(t, err)
	})
}
