package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const tendersTable = "tenders"

var tenderStruct = database.NewStruct(new(models.Tender))

type TenderRepository struct {
	*Repository
}

var _ TenderRepo = (*TenderRepository)(nil)

func NewTenderRepository(db database.DB, logger ectologger.Logger) *TenderRepository {
	return &TenderRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *TenderRepository) Create(ctx context.Context, tender *models.Tender) error {
	ctx, span := tracing.StartSpan(ctx, "TenderRepository.Create")
	defer span.End()

	if tender.ID == uuid.Nil {
		tender.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(tendersTable).
		Cols("id", "shipment_id", "carrier_id", "status", "offered_rate_cents", "counter_rate_cents",
			"sent_at", "expires_at", "responded_at", "waterfall_id", "waterfall_step", "auto_assigned",
			"created_at", "updated_at").
		Values(tender.ID, tender.ShipmentID, tender.CarrierID, tender.Status, tender.OfferedRateCents, tender.CounterRateCents,
			tender.SentAt, tender.ExpiresAt, tender.RespondedAt, tender.WaterfallID, tender.WaterfallStep, tender.AutoAssigned,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.conn(ctx).QueryRowxContext(ctx, query, args...).Scan(&tender.CreatedAt, &tender.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tender_id":   tender.ID,
			"shipment_id": tender.ShipmentID,
		}).Error("failed to create tender")
		return Internal("failed to create tender")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"tender_id":  tender.ID,
		"carrier_id": tender.CarrierID,
	}).Debugf("Created %s", tendersTable)
	return nil
}

func (r *TenderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tender, error) {
	ctx, span := tracing.StartSpan(ctx, "TenderRepository.GetByID")
	defer span.End()

	sb := tenderStruct.SelectFrom(tendersTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var tender models.Tender
	err := r.conn(ctx).GetContext(ctx, &tender, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("tender %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tender_id": id,
		}).Error("failed to get tender")
		return nil, Internal("failed to get tender")
	}
	return &tender, nil
}

func (r *TenderRepository) ListByShipment(ctx context.Context, shipmentID uuid.UUID) ([]models.Tender, error) {
	ctx, span := tracing.StartSpan(ctx, "TenderRepository.ListByShipment")
	defer span.End()

	sb := tenderStruct.SelectFrom(tendersTable)
	sb.Where(sb.Equal("shipment_id", shipmentID))
	sb.OrderBy("sent_at").Asc()

	return r.selectTenders(ctx, sb, "list tenders by shipment")
}

func (r *TenderRepository) ListByWaterfall(ctx context.Context, waterfallID uuid.UUID) ([]models.Tender, error) {
	ctx, span := tracing.StartSpan(ctx, "TenderRepository.ListByWaterfall")
	defer span.End()

	sb := tenderStruct.SelectFrom(tendersTable)
	sb.Where(sb.Equal("waterfall_id", waterfallID))
	sb.OrderBy("sent_at").Asc()

	return r.selectTenders(ctx, sb, "list tenders by waterfall")
}

func (r *TenderRepository) ListExpiredStandalone(ctx context.Context, now time.Time, limit int) ([]models.Tender, error) {
	ctx, span := tracing.StartSpan(ctx, "TenderRepository.ListExpiredStandalone")
	defer span.End()

	sb := tenderStruct.SelectFrom(tendersTable)
	sb.Where(
		sb.IsNull("waterfall_id"),
		sb.Equal("status", models.TenderStatusSent),
		sb.LessThan("expires_at", now),
	)
	sb.OrderBy("expires_at").Asc()
	if limit > 0 {
		sb.Limit(limit)
	}

	return r.selectTenders(ctx, sb, "list expired tenders")
}

func (r *TenderRepository) selectTenders(ctx context.Context, sb *sqlbuilder.SelectBuilder, action string) ([]models.Tender, error) {
	query, args := sb.Build()
	var tenders []models.Tender
	if err := r.conn(ctx).SelectContext(ctx, &tenders, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("failed to %s", action)
		return nil, Internal("failed to " + action)
	}
	return tenders, nil
}

// Resolve is a compare-and-set on status: only a "sent" tender moves.
func (r *TenderRepository) Resolve(ctx context.Context, id uuid.UUID, to models.TenderStatus, at time.Time, counterRateCents *int64) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "TenderRepository.Resolve")
	defer span.End()

	ub := database.NewUpdateBuilder()
	assignments := []string{
		ub.Assign("status", to),
		ub.Assign("responded_at", at),
		ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
	}
	if counterRateCents != nil {
		assignments = append(assignments, ub.Assign("counter_rate_cents", *counterRateCents))
	}
	ub.Update(tendersTable).
		Set(assignments...).
		Where(ub.Equal("id", id), ub.Equal("status", models.TenderStatusSent))

	fields := map[string]any{"tender_id": id, "status": to}
	query, args := ub.Build()
	rows, err := r.exec(ctx, "resolve tender", fields, query, args...)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		r.logger.WithContext(ctx).WithFields(fields).Debug("Tender already resolved")
		return false, nil
	}

	r.logger.WithContext(ctx).WithFields(fields).Infof("Resolved %s", tendersTable)
	return true, nil
}
