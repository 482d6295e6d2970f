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

const shipmentsTable = "shipments"

var shipmentStruct = database.NewStruct(new(models.Shipment))

// ShipmentRepository reads shipments and writes the columns this service owns.
type ShipmentRepository struct {
	*Repository
}

var _ ShipmentRepo = (*ShipmentRepository)(nil)

func NewShipmentRepository(db database.DB, logger ectologger.Logger) *ShipmentRepository {
	return &ShipmentRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *ShipmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	ctx, span := tracing.StartSpan(ctx, "ShipmentRepository.GetByID")
	defer span.End()

	sb := shipmentStruct.SelectFrom(shipmentsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var shipment models.Shipment
	err := r.conn(ctx).GetContext(ctx, &shipment, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("shipment %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"shipment_id": id,
		}).Error("failed to get shipment")
		return nil, Internal("failed to get shipment")
	}
	return &shipment, nil
}

// ListAwaitingAutoAssignment returns the oldest carrierless shipments not yet claimed.
func (r *ShipmentRepository) ListAwaitingAutoAssignment(ctx context.Context, limit int) ([]models.Shipment, error) {
	ctx, span := tracing.StartSpan(ctx, "ShipmentRepository.ListAwaitingAutoAssignment")
	defer span.End()

	sb := shipmentStruct.SelectFrom(shipmentsTable)
	sb.Where(
		sb.IsNull("carrier_id"),
		sb.Equal("auto_assignment_attempted", false),
		sb.NotEqual("status", models.ShipmentStatusCancelled),
	)
	sb.OrderBy("created_at").Asc()
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var shipments []models.Shipment
	if err := r.conn(ctx).SelectContext(ctx, &shipments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list shipments awaiting auto-assignment")
		return nil, Internal("failed to list shipments awaiting auto-assignment")
	}

	r.logger.WithContext(ctx).Debugf("Listed %d %s awaiting auto-assignment", len(shipments), shipmentsTable)
	return shipments, nil
}

func (r *ShipmentRepository) ClaimAutoAssignment(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ShipmentRepository.ClaimAutoAssignment")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(shipmentsTable).
		Set(
			ub.Assign("auto_assignment_attempted", true),
			ub.Assign("auto_assignment_attempted_at", at),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id), ub.Equal("auto_assignment_attempted", false))

	query, args := ub.Build()
	rows, err := r.exec(ctx, "claim auto-assignment", map[string]any{"shipment_id": id}, query, args...)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *ShipmentRepository) AssignCarrier(ctx context.Context, id, carrierID uuid.UUID, costCents int64) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ShipmentRepository.AssignCarrier")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(shipmentsTable).
		Set(
			ub.Assign("carrier_id", carrierID),
			ub.Assign("carrier_cost_cents", costCents),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id), ub.Or(ub.IsNull("carrier_id"), ub.Equal("carrier_id", carrierID)))

	fields := map[string]any{"shipment_id": id, "carrier_id": carrierID}
	query, args := ub.Build()
	rows, err := r.exec(ctx, "assign carrier", fields, query, args...)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}

	r.logger.WithContext(ctx).WithFields(fields).Infof("Assigned carrier to %s", shipmentsTable)
	return true, nil
}

func (r *ShipmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ShipmentStatus) error {
	ctx, span := tracing.StartSpan(ctx, "ShipmentRepository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(shipmentsTable).
		Set(
			ub.Assign("status", status),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	rows, err := r.exec(ctx, "update shipment status", map[string]any{"shipment_id": id}, query, args...)
	if err != nil {
		return err
	}
	if rows == 0 {
		return NotFound("shipment %s does not exist", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"shipment_id": id,
	}).Debugf("Updated status of %s to %s", shipmentsTable, status)
	return nil
}
