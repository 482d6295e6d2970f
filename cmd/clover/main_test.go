package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/models"
)

const rulesYAML = `
rules:
  - name: Flag heavy Texas loads
    trigger: shipment_created
    rollout_stage: shadow
    conditions:
      - field: origin_state
        operator: equals
        value: TX
    action:
      kind: create_work_item
      config:
        title: "Heavy load {{ shipment_number }}"
  - name: Page on exhausted waterfalls
    trigger: waterfall_exhausted
    rollout_stage: full
    action:
      kind: escalate
      config:
        message: "No carrier took {{ shipment_id }}"
`

func testOptions(t *testing.T) (*rootOptions, *app.App) {
	t.Helper()
	cfg := &config.Config{
		AppName:                  "clover",
		Version:                  "test",
		LogLevel:                 "info",
		StartupMaxAttempts:       1,
		ShutdownTimeout:          time.Second,
		StorageDriver:            "memory",
		TraceExporter:            "none",
		TraceSampleRatio:         1,
		SweepLockTTL:             time.Minute,
		AutomationShadowLogLimit: 100,
	}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	shared, err := app.New(context.Background(), cfg, logger)
	require.NoError(t, err)

	opts := &rootOptions{
		config: cfg,
		logger: logger,
		openApp: func(context.Context, *config.Config, ectologger.Logger) (*app.App, error) {
			return shared, nil
		},
	}
	return opts, shared
}

func execute(opts *rootOptions, args ...string) (string, error) {
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeRules(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o600))
	return path
}

func TestRulesCommands(t *testing.T) {
	t.Run("should import a rule file and list the rules", func(t *testing.T) {
		opts, _ := testOptions(t)

		out, err := execute(opts, "rules", "import", writeRules(t))
		require.NoError(t, err)
		assert.Contains(t, out, "Imported 2 rules")

		out, err = execute(opts, "rules", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "Flag heavy Texas loads")
		assert.Contains(t, out, "Page on exhausted waterfalls")
	})

	t.Run("should validate a rule file without saving it", func(t *testing.T) {
		opts, shared := testOptions(t)

		out, err := execute(opts, "rules", "validate", writeRules(t))
		require.NoError(t, err)
		assert.Contains(t, out, "ok      Flag heavy Texas loads")

		saved, err := shared.Rules.ListRules(context.Background())
		require.NoError(t, err)
		assert.Empty(t, saved)
	})

	t.Run("should fail for a missing file", func(t *testing.T) {
		opts, _ := testOptions(t)

		_, err := execute(opts, "rules", "import", filepath.Join(t.TempDir(), "missing.yaml"))

		require.Error(t, err)
	})

	t.Run("should dry-run rules against a shipment", func(t *testing.T) {
		opts, shared := testOptions(t)
		shipment := models.Shipment{ID: uuid.New(), ShipmentNumber: "SHP-7", OriginState: "TX", Status: models.ShipmentStatusPending}
		shared.Memory.PutShipment(shipment)

		_, err := execute(opts, "rules", "import", writeRules(t))
		require.NoError(t, err)

		out, err := execute(opts, "rules", "test", "shipment", shipment.ID.String())
		require.NoError(t, err)
		assert.Contains(t, out, shipment.ID.String())
		assert.Contains(t, out, "Flag heavy Texas loads")
	})

	t.Run("should reject an unknown entity type", func(t *testing.T) {
		opts, _ := testOptions(t)

		_, err := execute(opts, "rules", "test", "invoice", uuid.NewString())

		require.ErrorContains(t, err, "unknown entity type")
	})
}

func TestTriggerCommand(t *testing.T) {
	t.Run("should reject an unknown trigger", func(t *testing.T) {
		opts, _ := testOptions(t)

		_, err := execute(opts, "trigger", "shipment_exploded", "shipment", uuid.NewString())

		require.ErrorContains(t, err, "unknown trigger")
	})

	t.Run("should reject an entity type the trigger does not fire for", func(t *testing.T) {
		opts, _ := testOptions(t)

		_, err := execute(opts, "trigger", "shipment_created", "carrier", uuid.NewString())

		require.ErrorContains(t, err, "fires for shipment entities")
	})

	t.Run("should run the rules of the trigger", func(t *testing.T) {
		opts, shared := testOptions(t)
		shipment := models.Shipment{ID: uuid.New(), ShipmentNumber: "SHP-8", OriginState: "TX", Status: models.ShipmentStatusPending}
		shared.Memory.PutShipment(shipment)
		_, err := execute(opts, "rules", "import", writeRules(t))
		require.NoError(t, err)

		out, err := execute(opts, "trigger", "shipment_created", "shipment", shipment.ID.String())

		require.NoError(t, err)
		assert.Contains(t, out, "Flag heavy Texas loads")
		assert.NotContains(t, out, "Page on exhausted waterfalls")
	})
}

func TestSweepCommand(t *testing.T) {
	t.Run("should run a task once", func(t *testing.T) {
		opts, _ := testOptions(t)

		out, err := execute(opts, "sweep", "expired-tenders")

		require.NoError(t, err)
		assert.Contains(t, out, "Sweep expired-tenders completed")
	})

	t.Run("should fail for an unknown task", func(t *testing.T) {
		opts, _ := testOptions(t)

		_, err := execute(opts, "sweep", "old-invoices")

		require.Error(t, err)
	})
}

func TestWaterfallCommand(t *testing.T) {
	t.Run("should reject a malformed id", func(t *testing.T) {
		opts, _ := testOptions(t)

		_, err := execute(opts, "waterfall", "status", "not-a-uuid")

		require.ErrorContains(t, err, "invalid waterfall id")
	})

	t.Run("should fail for an unknown waterfall", func(t *testing.T) {
		opts, _ := testOptions(t)

		_, err := execute(opts, "waterfall", "cancel", uuid.NewString())

		require.Error(t, err)
	})
}

func TestMigrateCommand(t *testing.T) {
	t.Run("should refuse to migrate memory storage", func(t *testing.T) {
		opts, _ := testOptions(t)

		_, err := execute(opts, "migrate")

		require.ErrorContains(t, err, "nothing to migrate")
	})
}
