package waterfall

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// IssueTender sends one tender outside any waterfall. The shipment must have
// no carrier and no active waterfall.
func (e *Engine) IssueTender(ctx context.Context, req TenderRequest) (*models.Tender, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallEngine.IssueTender")
	defer span.End()

	if req.CarrierID == uuid.Nil {
		return nil, repositories.BadRequest("carrier_id is required")
	}
	if req.RateCents <= 0 {
		return nil, repositories.BadRequest("rate_cents must be positive, got %d", req.RateCents)
	}
	if req.TimeoutMinutes <= 0 {
		return nil, repositories.BadRequest("timeout_minutes must be positive, got %d", req.TimeoutMinutes)
	}

	var tender *models.Tender
	err := e.withShipmentLock(ctx, req.ShipmentID, func(ctx context.Context) error {
		shipment, err := e.shipments.GetByID(ctx, req.ShipmentID)
		if err != nil {
			return err
		}
		if shipment.HasCarrier() {
			return repositories.Conflict("shipment %s already has carrier %s", shipment.ID, *shipment.CarrierID)
		}
		if active, err := e.activeWaterfall(ctx, shipment.ID); err != nil {
			return err
		} else if active != nil {
			return repositories.Conflict("shipment %s already has active waterfall %s", shipment.ID, active.ID)
		}

		now := e.clock.Now()
		tender = &models.Tender{
			ID:               uuid.New(),
			ShipmentID:       shipment.ID,
			CarrierID:        req.CarrierID,
			Status:           models.TenderStatusSent,
			OfferedRateCents: req.RateCents,
			SentAt:           now,
			ExpiresAt:        now.Add(time.Duration(req.TimeoutMinutes) * time.Minute),
			AutoAssigned:     req.AutoAssigned,
		}
		return e.tenders.Create(ctx, tender)
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	metrics.RecordTender(string(models.TenderStatusSent))

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"tender_id":     tender.ID,
		"shipment_id":   tender.ShipmentID,
		"carrier_id":    tender.CarrierID,
		"auto_assigned": tender.AutoAssigned,
	}).Info("Sent standalone tender")

	e.notifyOffered(ctx, tender)
	return tender, nil
}
