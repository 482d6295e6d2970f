package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const waterfallsTable = "waterfalls"

var waterfallStruct = database.NewStruct(new(models.Waterfall))

type WaterfallRepository struct {
	*Repository
}

var _ WaterfallRepo = (*WaterfallRepository)(nil)

func NewWaterfallRepository(db database.DB, logger ectologger.Logger) *WaterfallRepository {
	return &WaterfallRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *WaterfallRepository) Create(ctx context.Context, waterfall *models.Waterfall) error {
	ctx, span := tracing.StartSpan(ctx, "WaterfallRepository.Create")
	defer span.End()

	if waterfall.ID == uuid.Nil {
		waterfall.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(waterfallsTable).
		Cols("id", "shipment_id", "carrier_ids", "current_step", "base_rate_cents", "current_rate_cents",
			"rate_increase_percent", "timeout_minutes", "auto_escalate", "status", "current_tender_id",
			"current_step_started_at", "history", "created_at", "updated_at").
		Values(waterfall.ID, waterfall.ShipmentID, waterfall.CarrierIDs, waterfall.CurrentStep, waterfall.BaseRateCents, waterfall.CurrentRateCents,
			waterfall.RateIncreasePercent, waterfall.TimeoutMinutes, waterfall.AutoEscalate, waterfall.Status, waterfall.CurrentTenderID,
			waterfall.CurrentStepStartedAt, waterfall.History, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.conn(ctx).QueryRowxContext(ctx, query, args...).Scan(&waterfall.CreatedAt, &waterfall.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"waterfall_id": waterfall.ID,
			"shipment_id":  waterfall.ShipmentID,
		}).Error("failed to create waterfall")
		return Internal("failed to create waterfall")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"waterfall_id": waterfall.ID,
	}).Debugf("Created %s", waterfallsTable)
	return nil
}

func (r *WaterfallRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Waterfall, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallRepository.GetByID")
	defer span.End()

	sb := waterfallStruct.SelectFrom(waterfallsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var waterfall models.Waterfall
	err := r.conn(ctx).GetContext(ctx, &waterfall, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("waterfall %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"waterfall_id": id,
		}).Error("failed to get waterfall")
		return nil, Internal("failed to get waterfall")
	}
	return &waterfall, nil
}

func (r *WaterfallRepository) ListByShipment(ctx context.Context, shipmentID uuid.UUID) ([]models.Waterfall, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallRepository.ListByShipment")
	defer span.End()

	sb := waterfallStruct.SelectFrom(waterfallsTable)
	sb.Where(sb.Equal("shipment_id", shipmentID))
	sb.OrderBy("created_at").Asc()

	return r.selectWaterfalls(ctx, sb, "list waterfalls by shipment")
}

func (r *WaterfallRepository) ListActive(ctx context.Context, autoEscalateOnly bool) ([]models.Waterfall, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallRepository.ListActive")
	defer span.End()

	sb := waterfallStruct.SelectFrom(waterfallsTable)
	sb.Where(sb.Equal("status", models.WaterfallStatusActive))
	if autoEscalateOnly {
		sb.Where(sb.Equal("auto_escalate", true))
	}
	sb.OrderBy("created_at").Asc()

	return r.selectWaterfalls(ctx, sb, "list active waterfalls")
}

func (r *WaterfallRepository) selectWaterfalls(ctx context.Context, sb *sqlbuilder.SelectBuilder, action string) ([]models.Waterfall, error) {
	query, args := sb.Build()
	var waterfalls []models.Waterfall
	if err := r.conn(ctx).SelectContext(ctx, &waterfalls, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("failed to %s", action)
		return nil, Internal("failed to " + action)
	}
	return waterfalls, nil
}

// Update writes the waterfall only while the stored row is active and has not
// advanced past waterfall.CurrentStep.
func (r *WaterfallRepository) Update(ctx context.Context, waterfall *models.Waterfall) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(waterfallsTable).
		Set(
			ub.Assign("current_step", waterfall.CurrentStep),
			ub.Assign("current_rate_cents", waterfall.CurrentRateCents),
			ub.Assign("status", waterfall.Status),
			ub.Assign("current_tender_id", waterfall.CurrentTenderID),
			ub.Assign("current_step_started_at", waterfall.CurrentStepStartedAt),
			ub.Assign("history", waterfall.History),
			ub.Assign("winning_carrier_id", waterfall.WinningCarrierID),
			ub.Assign("winning_tender_id", waterfall.WinningTenderID),
			ub.Assign("cancel_reason", waterfall.CancelReason),
			ub.Assign("completed_at", waterfall.CompletedAt),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("id", waterfall.ID),
			ub.Equal("status", models.WaterfallStatusActive),
			ub.LessEqualThan("current_step", waterfall.CurrentStep),
		)

	fields := map[string]any{
		"waterfall_id": waterfall.ID,
		"step":         waterfall.CurrentStep,
		"status":       waterfall.Status,
	}
	query, args := ub.Build()
	rows, err := r.exec(ctx, "update waterfall", fields, query, args...)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		if _, err := r.GetByID(ctx, waterfall.ID); err != nil {
			return false, err
		}
		r.logger.WithContext(ctx).WithFields(fields).Debug("Waterfall update skipped, stored row moved on")
		return false, nil
	}

	r.logger.WithContext(ctx).WithFields(fields).Debugf("Updated %s", waterfallsTable)
	return true, nil
}
