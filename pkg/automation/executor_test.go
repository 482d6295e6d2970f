package automation

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

func int64Ptr(v int64) *int64 { return &v }

func TestActionExecutor_DryRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entity := f.entity(t)

	actions := []models.ActionConfig{
		&models.CreateWorkItemConfig{Title: "Check {{ shipment_number }}"},
		&models.SendNotificationConfig{Channel: "ops", Message: "new load"},
		&models.UpdateStatusConfig{Status: "booked"},
		&models.AssignCarrierConfig{CarrierID: &f.carriers[0]},
		&models.AssignCarrierConfig{},
		&models.CreateTenderConfig{CarrierIDs: []uuid.UUID{f.carriers[0]}},
		&models.CreateTenderConfig{CarrierIDs: f.carriers},
		&models.CreateTenderConfig{},
		&models.AutoApproveConfig{Reason: "repeat lane"},
		&models.EscalateConfig{Message: "look at {{ shipment_number }}"},
		&models.SendEmailConfig{To: []string{"ops@example.com"}, Subject: "load", Body: "body"},
	}

	for _, config := range actions {
		t.Run("should simulate "+string(config.Kind())+" without side effects", func(t *testing.T) {
			result, err := f.executor.Execute(ctx, models.NewActionSpec(config), entity, nil, true)
			require.NoError(t, err)
			assert.True(t, result.DryRun)
			assert.False(t, result.Executed)
			assert.Equal(t, config.Kind(), result.Action)
			assert.True(t, strings.HasPrefix(result.Description, "would "), result.Description)
		})
	}

	shipment, err := f.store.Shipments().GetByID(ctx, f.shipment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentStatusPending, shipment.Status)
	assert.False(t, shipment.HasCarrier())
	assert.False(t, shipment.AutoAssignmentAttempted)

	tenders, err := f.store.Tenders().ListByShipment(ctx, f.shipment.ID)
	require.NoError(t, err)
	assert.Empty(t, tenders)
	waterfalls, err := f.store.Waterfalls().ListByShipment(ctx, f.shipment.ID)
	require.NoError(t, err)
	assert.Empty(t, waterfalls)
	items, err := f.store.WorkItems().ListByEntity(ctx, models.EntityTypeShipment, f.shipment.ID.String())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, f.dispatcher.sent())
}

func TestActionExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("should start a waterfall for several carriers", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.executor.Execute(ctx, models.NewActionSpec(&models.CreateTenderConfig{
			CarrierIDs:          f.carriers,
			RateCents:           int64Ptr(150000),
			RateIncreasePercent: 5,
		}), f.entity(t), nil, false)
		require.NoError(t, err)
		assert.True(t, result.Executed)

		waterfalls, err := f.store.Waterfalls().ListByShipment(ctx, f.shipment.ID)
		require.NoError(t, err)
		require.Len(t, waterfalls, 1)
		assert.True(t, waterfalls[0].AutoEscalate)
		assert.Equal(t, 30, waterfalls[0].TimeoutMinutes)

		tenders, err := f.store.Tenders().ListByShipment(ctx, f.shipment.ID)
		require.NoError(t, err)
		require.Len(t, tenders, 1)
		assert.Equal(t, f.carriers[0], tenders[0].CarrierID)
		assert.Equal(t, int64(150000), tenders[0].OfferedRateCents)
	})

	t.Run("should send a plain tender for one carrier", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.executor.Execute(ctx, models.NewActionSpec(&models.CreateTenderConfig{
			CarrierIDs: []uuid.UUID{f.carriers[1]},
		}), f.entity(t), nil, false)
		require.NoError(t, err)
		assert.True(t, result.Executed)

		tenders, err := f.store.Tenders().ListByShipment(ctx, f.shipment.ID)
		require.NoError(t, err)
		require.Len(t, tenders, 1)
		assert.Nil(t, tenders[0].WaterfallID)
		assert.Equal(t, f.shipment.CustomerPriceCents, tenders[0].OfferedRateCents)
	})

	t.Run("should not replace an assigned carrier", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.executor.Execute(ctx, models.NewActionSpec(&models.AssignCarrierConfig{
			CarrierID: &f.carriers[0],
			RateCents: int64Ptr(120000),
		}), f.entity(t), nil, false)
		require.NoError(t, err)
		assert.True(t, first.Executed)

		second, err := f.executor.Execute(ctx, models.NewActionSpec(&models.AssignCarrierConfig{
			CarrierID: &f.carriers[1],
		}), f.entity(t), nil, false)
		require.NoError(t, err)
		assert.False(t, second.Executed)

		shipment, err := f.store.Shipments().GetByID(ctx, f.shipment.ID)
		require.NoError(t, err)
		assert.Equal(t, f.carriers[0], *shipment.CarrierID)
		assert.Equal(t, int64(120000), *shipment.CarrierCostCents)
	})

	t.Run("should email with rendered templates", func(t *testing.T) {
		f := newFixture(t)
		ruleID := uuid.New()
		_, err := f.executor.Execute(ctx, models.NewActionSpec(&models.SendEmailConfig{
			To:      []string{"ops@example.com"},
			Subject: "Load {{ shipment_number }}",
			Body:    "From {{ origin_state }} to {{ destination_state }}",
		}), f.entity(t), &ruleID, false)
		require.NoError(t, err)

		require.Len(t, f.dispatcher.emails, 1)
		email := f.dispatcher.emails[0]
		assert.Equal(t, "Load SHP-3001", email.Subject)
		assert.Equal(t, "From IL to OH", email.Body)
		assert.Equal(t, ruleID, *email.RuleID)
		assert.Equal(t, testNow, email.SentAt)
	})

	t.Run("should default escalation severity", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.executor.Execute(ctx, models.NewActionSpec(&models.EscalateConfig{Message: "stuck"}), f.entity(t), nil, false)
		require.NoError(t, err)
		require.Len(t, f.dispatcher.broadcasts, 1)
		assert.Equal(t, "warning", f.dispatcher.broadcasts[0].Severity)
	})

	t.Run("should reject actions on the wrong entity", func(t *testing.T) {
		f := newFixture(t)
		waterfallEntity := &Entity{Type: models.EntityTypeWaterfall, ID: uuid.NewString(), Snapshot: map[string]any{}}

		_, err := f.executor.Execute(ctx, models.NewActionSpec(&models.UpdateStatusConfig{Status: "done"}), waterfallEntity, nil, false)
		assert.True(t, repositories.IsBadRequest(err))

		_, err = f.executor.Execute(ctx, models.NewActionSpec(&models.AutoApproveConfig{}), waterfallEntity, nil, false)
		assert.True(t, repositories.IsBadRequest(err))
	})

	t.Run("should reject a config that does not match its kind", func(t *testing.T) {
		f := newFixture(t)
		spec := models.ActionSpec{Kind: models.ActionEscalate, Config: &models.AutoApproveConfig{}}
		_, err := f.executor.Execute(ctx, spec, f.entity(t), nil, false)
		assert.True(t, repositories.IsBadRequest(err))
	})
}
