package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
)

func TestActionSpec(t *testing.T) {
	t.Run("should decode the config matching its kind", func(t *testing.T) {
		var spec ActionSpec
		err := json.Unmarshal([]byte(`{"kind":"escalate","config":{"message":"stuck","severity":"critical"}}`), &spec)

		require.NoError(t, err)
		assert.Equal(t, ActionEscalate, spec.Kind)
		config, ok := spec.Config.(*EscalateConfig)
		require.True(t, ok)
		assert.Equal(t, "stuck", config.Message)
		assert.Equal(t, "critical", config.Severity)
	})

	t.Run("should reject an unknown kind", func(t *testing.T) {
		var spec ActionSpec
		err := json.Unmarshal([]byte(`{"kind":"launch_rocket"}`), &spec)

		require.ErrorContains(t, err, "unknown action")
	})

	t.Run("should give an empty config when none is stored", func(t *testing.T) {
		var spec ActionSpec
		require.NoError(t, spec.Scan(`{"kind":"assign_carrier","config":null}`))

		config, ok := spec.Config.(*AssignCarrierConfig)
		require.True(t, ok)
		assert.Nil(t, config.CarrierID)
	})

	t.Run("should reject a column that is not text", func(t *testing.T) {
		var spec ActionSpec
		assert.Error(t, spec.Scan(42))
	})
}

func TestTriggerType(t *testing.T) {
	t.Run("should map every trigger to the entity it fires for", func(t *testing.T) {
		assert.Equal(t, EntityTypeShipment, TriggerShipmentCreated.EntityType())
		assert.Equal(t, EntityTypeTender, TriggerTenderExpired.EntityType())
		assert.Equal(t, EntityTypeWaterfall, TriggerWaterfallExhausted.EntityType())
		assert.Equal(t, EntityTypeCarrier, TriggerCarrierUpdated.EntityType())
	})

	t.Run("should reject unknown triggers", func(t *testing.T) {
		assert.False(t, TriggerType("invoice_paid").IsValid())
		assert.Equal(t, EntityType(""), TriggerType("invoice_paid").EntityType())
	})

	t.Run("should fill the entity type of a lifecycle event", func(t *testing.T) {
		at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		event := NewLifecycleEvent(TriggerTenderDeclined, "t-1", at)

		assert.Equal(t, EntityTypeTender, event.EntityType)
		assert.Equal(t, at, event.OccurredAt)
	})
}

func TestSnapshot(t *testing.T) {
	t.Run("should key fields by json tag and drop empty optionals", func(t *testing.T) {
		snapshot, err := Snapshot(Shipment{ShipmentNumber: "SHP-1", OriginState: "IL", CustomerPriceCents: 1500})

		require.NoError(t, err)
		assert.Equal(t, "SHP-1", snapshot["shipment_number"])
		assert.Equal(t, "IL", snapshot["origin_state"])
		assert.Equal(t, float64(1500), snapshot["customer_price_cents"])
		assert.NotContains(t, snapshot, "carrier_id")
	})
}

func TestWaterfall(t *testing.T) {
	t.Run("should find the history entry of a tender", func(t *testing.T) {
		tenderID := uuid.New()
		wf := Waterfall{
			Status:     WaterfallStatusActive,
			CarrierIDs: database.NewJSONB([]uuid.UUID{uuid.New(), uuid.New()}),
			History:    database.NewJSONB([]WaterfallHistoryEntry{{TenderID: uuid.New()}, {TenderID: tenderID}}),
		}

		entry := wf.HistoryFor(tenderID)
		require.NotNil(t, entry)
		entry.Status = TenderStatusDeclined

		assert.Equal(t, TenderStatusDeclined, wf.History.Data[1].Status)
		assert.Nil(t, wf.HistoryFor(uuid.New()))
		assert.Equal(t, 2, wf.TotalCarriers())
	})

	t.Run("should treat every status but active as terminal", func(t *testing.T) {
		assert.False(t, WaterfallStatusActive.IsTerminal())
		assert.True(t, WaterfallStatusCompleted.IsTerminal())
		assert.True(t, WaterfallStatusCancelled.IsTerminal())
		assert.True(t, WaterfallStatusExhausted.IsTerminal())
	})
}

func TestAutoAssignConfig(t *testing.T) {
	t.Run("should report preferred and excluded carriers", func(t *testing.T) {
		preferred, excluded := uuid.New(), uuid.New()
		config := DefaultAutoAssignConfig()
		config.PreferredCarrierIDs = database.NewJSONB([]uuid.UUID{preferred})
		config.ExcludedCarrierIDs = database.NewJSONB([]uuid.UUID{excluded})

		assert.True(t, config.IsPreferred(preferred))
		assert.False(t, config.IsPreferred(excluded))
		assert.True(t, config.IsExcluded(excluded))
		assert.False(t, config.Enabled)
	})
}
