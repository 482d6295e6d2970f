package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const autoAssignConfigTable = "auto_assign_config"

var autoAssignConfigStruct = database.NewStruct(new(models.AutoAssignConfig))

// AutoAssignConfigRepository stores the single auto-assignment config row.
type AutoAssignConfigRepository struct {
	*Repository
}

var _ AutoAssignConfigRepo = (*AutoAssignConfigRepository)(nil)

func NewAutoAssignConfigRepository(db database.DB, logger ectologger.Logger) *AutoAssignConfigRepository {
	return &AutoAssignConfigRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *AutoAssignConfigRepository) Get(ctx context.Context) (*models.AutoAssignConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "AutoAssignConfigRepository.Get")
	defer span.End()

	sb := autoAssignConfigStruct.SelectFrom(autoAssignConfigTable)
	sb.Where(sb.Equal("id", models.AutoAssignConfigID))

	query, args := sb.Build()
	var config models.AutoAssignConfig
	err := r.conn(ctx).GetContext(ctx, &config, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.WithContext(ctx).Debug("No auto-assign config saved, using defaults")
		return models.DefaultAutoAssignConfig(), nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get auto-assign config")
		return nil, Internal("failed to get auto-assign config")
	}
	return &config, nil
}

func (r *AutoAssignConfigRepository) Save(ctx context.Context, config *models.AutoAssignConfig) error {
	ctx, span := tracing.StartSpan(ctx, "AutoAssignConfigRepository.Save")
	defer span.End()

	config.ID = models.AutoAssignConfigID
	columns := []string{
		"enabled", "rate_threshold_percent", "min_confidence_score", "auto_tender_enabled",
		"max_rate_cents", "min_on_time_percent", "require_active_insurance",
		"preferred_carrier_ids", "excluded_carrier_ids", "max_carriers_to_consider",
		"waterfall_timeout_minutes", "waterfall_rate_increase_percent", "updated_at",
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(autoAssignConfigTable).
		Cols(append([]string{"id"}, columns...)...).
		Values(config.ID, config.Enabled, config.RateThresholdPercent, config.MinConfidenceScore, config.AutoTenderEnabled,
			config.MaxRateCents, config.MinOnTimePercent, config.RequireActiveInsurance,
			config.PreferredCarrierIDs, config.ExcludedCarrierIDs, config.MaxCarriersToConsider,
			config.WaterfallTimeoutMinutes, config.WaterfallRateIncreasePercent, sqlbuilder.Raw("NOW()"))
	database.OnConflictUpdate(ib, "id", columns...)
	ib.Returning("updated_at")

	query, args := ib.Build()
	if err := r.conn(ctx).QueryRowxContext(ctx, query, args...).Scan(&config.UpdatedAt); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to save auto-assign config")
		return Internal("failed to save auto-assign config")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"enabled": config.Enabled,
	}).Info("Saved auto-assign config")
	return nil
}
