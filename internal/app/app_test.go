package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/clock"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/sweeper"
	"github.com/Ramsey-B/clover/pkg/waterfall"
)

var testNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		AppName:                     "clover",
		Version:                     "test",
		Port:                        3000,
		LogLevel:                    "info",
		StartupMaxAttempts:          1,
		ShutdownTimeout:             time.Second,
		StorageDriver:               "memory",
		TraceExporter:               "none",
		TraceSampleRatio:            1,
		SweeperEnabled:              true,
		SweepExpiredTendersInterval: time.Minute,
		SweepNewShipmentsInterval:   5 * time.Minute,
		SweepLockTTL:                time.Minute,
		ExpiredTendersBatchSize:     100,
		NewShipmentsBatchSize:       100,
		ShipmentLockTTL:             30 * time.Second,
		ShipmentLockWait:            time.Second,
		AutomationShadowLogLimit:    100,
		MatcherCandidateLimit:       10,
		KafkaCompression:            "none",
	}
}

func newTestApp(t *testing.T) (*App, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(testNow)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	a, err := New(context.Background(), testConfig(), logger, WithClock(fake))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a, fake
}

func TestNew(t *testing.T) {
	t.Run("should build every collaborator on memory storage", func(t *testing.T) {
		a, _ := newTestApp(t)

		assert.NotNil(t, a.Memory)
		assert.NotNil(t, a.Locker)
		assert.NotNil(t, a.Waterfalls)
		assert.NotNil(t, a.Assignment)
		assert.NotNil(t, a.Automation)
		assert.NotNil(t, a.Rules)
		assert.Nil(t, a.Producer)
		assert.ElementsMatch(t, []string{sweeper.TaskExpiredTenders, sweeper.TaskNewShipments}, a.Sweeper.Tasks())
	})

	t.Run("should reject an unsupported trace exporter", func(t *testing.T) {
		cfg := testConfig()
		cfg.TraceExporter = "zipkin"
		logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

		_, err := New(context.Background(), cfg, logger)

		require.Error(t, err)
	})
}

func TestWaterfallScenario(t *testing.T) {
	t.Run("should escalate on decline and timeout then complete on accept", func(t *testing.T) {
		a, fake := newTestApp(t)
		ctx := context.Background()

		shipment := models.Shipment{
			ID:                 uuid.New(),
			ShipmentNumber:     "SHP-9001",
			CustomerPriceCents: 260000,
			OriginState:        "IL",
			DestinationState:   "GA",
			Status:             models.ShipmentStatusPending,
			CreatedAt:          testNow,
		}
		a.Memory.PutShipment(shipment)
		carriers := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
		for _, id := range carriers {
			a.Memory.PutCarrier(models.Carrier{ID: id, Name: "carrier", Status: models.CarrierStatusActive})
		}

		created, err := a.Waterfalls.CreateWaterfall(ctx, waterfall.CreateRequest{
			ShipmentID:     shipment.ID,
			CarrierIDs:     carriers,
			BaseRateCents:  200000,
			TimeoutMinutes: 30,
			AutoEscalate:   true,
		})
		require.NoError(t, err)
		require.NotNil(t, created.CurrentTenderID)

		declined, err := a.Waterfalls.ProcessTenderResponse(ctx, *created.CurrentTenderID, false, nil)
		require.NoError(t, err)
		require.True(t, declined.Escalated)
		require.NotNil(t, declined.NextTenderID)

		fake.Advance(31 * time.Minute)
		require.NoError(t, a.Sweeper.RunOnce(ctx, sweeper.TaskExpiredTenders))

		status, err := a.Waterfalls.GetWaterfallStatus(ctx, created.WaterfallID)
		require.NoError(t, err)
		require.NotNil(t, status.CurrentTender)
		assert.Equal(t, carriers[2], status.CurrentTender.CarrierID)
		assert.Equal(t, int64(200000), status.CurrentTender.OfferedRateCents)

		accepted, err := a.Waterfalls.ProcessTenderResponse(ctx, status.CurrentTender.ID, true, nil)
		require.NoError(t, err)
		assert.Equal(t, models.WaterfallStatusCompleted, accepted.WaterfallStatus)

		stored, err := a.Repositories.Shipments.GetByID(ctx, shipment.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.CarrierID)
		assert.Equal(t, carriers[2], *stored.CarrierID)

		tenders, err := a.Repositories.Tenders.ListByWaterfall(ctx, created.WaterfallID)
		require.NoError(t, err)
		statuses := map[uuid.UUID]models.TenderStatus{}
		for _, tender := range tenders {
			statuses[tender.CarrierID] = tender.Status
		}
		assert.Equal(t, models.TenderStatusDeclined, statuses[carriers[0]])
		assert.Equal(t, models.TenderStatusExpired, statuses[carriers[1]])
		assert.Equal(t, models.TenderStatusAccepted, statuses[carriers[2]])
	})
}

func TestNewServer(t *testing.T) {
	a, _ := newTestApp(t)
	server := a.NewServer()

	t.Run("should answer liveness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/liveness", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("should report not ready before startup completes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/readiness", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("should serve prometheus metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}

func TestServe(t *testing.T) {
	t.Run("should become ready and stop when the context ends", func(t *testing.T) {
		a, _ := newTestApp(t)
		a.Config.Port = 0
		a.Config.SweeperEnabled = false

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- a.Serve(ctx) }()

		require.Eventually(t, a.Health.IsReady, 2*time.Second, 10*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not stop")
		}
		assert.False(t, a.Health.IsReady())
	})
}
