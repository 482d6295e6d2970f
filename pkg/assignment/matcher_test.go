package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories/memory"
)

func TestHeuristicMatcher_Match(t *testing.T) {
	ctx := context.Background()
	pickup := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	shipment := &models.Shipment{
		ID:               uuid.New(),
		OriginState:      "IL",
		DestinationState: "TX",
		EquipmentType:    "dry_van",
		PickupDate:       pickup,
	}

	put := func(store *memory.Store, name string, onTime float64, equipment []string, lanes []models.Lane, available *time.Time) uuid.UUID {
		id := uuid.New()
		store.PutCarrier(models.Carrier{
			ID:               id,
			Name:             name,
			Status:           models.CarrierStatusActive,
			OnTimePercentage: &onTime,
			InsuranceStatus:  models.InsuranceStatusActive,
			EquipmentTypes:   database.NewJSONB(equipment),
			Lanes:            database.NewJSONB(lanes),
			NextAvailableAt:  available,
		})
		return id
	}

	t.Run("should rank lane and equipment fit above partial fit", func(t *testing.T) {
		store := memory.NewStore()
		late := pickup.Add(10 * 24 * time.Hour)
		best := put(store, "Best", 98, []string{"dry_van"}, []models.Lane{{OriginState: "IL", DestinationState: "TX", LoadsHauled: 20}}, nil)
		partial := put(store, "Partial", 98, []string{"dry_van"}, []models.Lane{{OriginState: "IL", DestinationState: "GA"}}, &late)
		put(store, "Nothing", 99, []string{"flatbed"}, nil, nil)

		matcher := NewHeuristicMatcher(store.Carriers(), ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
		candidates, err := matcher.Match(ctx, shipment, 10)
		require.NoError(t, err)
		require.Len(t, candidates, 2)

		assert.Equal(t, best, candidates[0].CarrierID)
		assert.Equal(t, 99.7, candidates[0].Score)
		assert.Equal(t, SourceMatcher, candidates[0].Source)
		assert.Equal(t, partial, candidates[1].CarrierID)
		assert.Less(t, candidates[1].Score, candidates[0].Score)
		assert.NotNil(t, candidates[1].Carrier)
	})

	t.Run("should keep a carrier without the equipment below the confidence threshold", func(t *testing.T) {
		store := memory.NewStore()
		lanes := []models.Lane{{OriginState: "IL", DestinationState: "TX", LoadsHauled: 12}}
		van := put(store, "Van", 98, []string{"dry_van"}, lanes, nil)
		flatbed := put(store, "Flatbed Only", 98, []string{"flatbed"}, lanes, nil)

		matcher := NewHeuristicMatcher(store.Carriers(), ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
		candidates, err := matcher.Match(ctx, shipment, 10)
		require.NoError(t, err)
		require.Len(t, candidates, 2)

		threshold := models.DefaultAutoAssignConfig().MinConfidenceScore
		assert.Equal(t, van, candidates[0].CarrierID)
		assert.GreaterOrEqual(t, candidates[0].Score, threshold)
		assert.Equal(t, flatbed, candidates[1].CarrierID)
		assert.Equal(t, 64.7, candidates[1].Score)
		assert.Less(t, candidates[1].Score, threshold)
	})

	t.Run("should count a lane miss against an equipment match", func(t *testing.T) {
		store := memory.NewStore()
		put(store, "No Lanes", 100, []string{"dry_van"}, nil, nil)

		matcher := NewHeuristicMatcher(store.Carriers(), ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
		candidates, err := matcher.Match(ctx, shipment, 10)
		require.NoError(t, err)
		require.Len(t, candidates, 1)

		assert.Equal(t, 65.0, candidates[0].Score)
		assert.Equal(t, []string{"hauls dry_van"}, candidates[0].Reasons)
	})

	t.Run("should respect the limit", func(t *testing.T) {
		store := memory.NewStore()
		for i := 0; i < 4; i++ {
			put(store, "Carrier", 90, []string{"dry_van"}, nil, nil)
		}

		matcher := NewHeuristicMatcher(store.Carriers(), ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
		candidates, err := matcher.Match(ctx, shipment, 2)
		require.NoError(t, err)
		assert.Len(t, candidates, 2)
	})
}

func TestScorer(t *testing.T) {
	s := NewScorer()

	t.Run("should score identical strings as one", func(t *testing.T) {
		assert.Equal(t, 1.0, s.JaroWinkler("Reefer", "reefer"))
	})

	t.Run("should score spelling variants highly", func(t *testing.T) {
		assert.Greater(t, s.JaroWinkler("dry_van", "dry van"), fuzzyEquipmentThreshold)
		assert.Less(t, s.JaroWinkler("flatbed", "reefer"), fuzzyEquipmentThreshold)
	})

	t.Run("should decay date proximity linearly", func(t *testing.T) {
		day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		assert.InDelta(t, 0.5, s.DateProximity(day, day.Add(72*time.Hour), 6), 1e-9)
		assert.Zero(t, s.DateProximity(day, day.Add(7*24*time.Hour), 6))
	})
}
