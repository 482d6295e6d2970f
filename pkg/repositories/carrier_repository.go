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

const carriersTable = "carriers"

var carrierStruct = database.NewStruct(new(models.Carrier))

type CarrierRepository struct {
	*Repository
}

var _ CarrierRepo = (*CarrierRepository)(nil)

func NewCarrierRepository(db database.DB, logger ectologger.Logger) *CarrierRepository {
	return &CarrierRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *CarrierRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Carrier, error) {
	ctx, span := tracing.StartSpan(ctx, "CarrierRepository.GetByID")
	defer span.End()

	sb := carrierStruct.SelectFrom(carriersTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var carrier models.Carrier
	err := r.conn(ctx).GetContext(ctx, &carrier, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("carrier %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"carrier_id": id,
		}).Error("failed to get carrier")
		return nil, Internal("failed to get carrier")
	}
	return &carrier, nil
}

// ListByIDs returns the carriers that exist among ids. Missing ids are skipped.
func (r *CarrierRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Carrier, error) {
	ctx, span := tracing.StartSpan(ctx, "CarrierRepository.ListByIDs")
	defer span.End()

	if len(ids) == 0 {
		return []models.Carrier{}, nil
	}

	sb := carrierStruct.SelectFrom(carriersTable)
	sb.Where(sb.In("id", toArgs(ids)...))

	query, args := sb.Build()
	var carriers []models.Carrier
	if err := r.conn(ctx).SelectContext(ctx, &carriers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list carriers")
		return nil, Internal("failed to list carriers")
	}
	return carriers, nil
}

func (r *CarrierRepository) ListActive(ctx context.Context) ([]models.Carrier, error) {
	ctx, span := tracing.StartSpan(ctx, "CarrierRepository.ListActive")
	defer span.End()

	sb := carrierStruct.SelectFrom(carriersTable)
	sb.Where(sb.Equal("status", models.CarrierStatusActive))
	sb.OrderBy("name").Asc()

	query, args := sb.Build()
	var carriers []models.Carrier
	if err := r.conn(ctx).SelectContext(ctx, &carriers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list active carriers")
		return nil, Internal("failed to list active carriers")
	}

	r.logger.WithContext(ctx).Debugf("Listed %d active %s", len(carriers), carriersTable)
	return carriers, nil
}

func (r *CarrierRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CarrierStatus) error {
	ctx, span := tracing.StartSpan(ctx, "CarrierRepository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(carriersTable).
		Set(
			ub.Assign("status", status),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	rows, err := r.exec(ctx, "update carrier status", map[string]any{"carrier_id": id}, query, args...)
	if err != nil {
		return err
	}
	if rows == 0 {
		return NotFound("carrier %s does not exist", id)
	}
	return nil
}
