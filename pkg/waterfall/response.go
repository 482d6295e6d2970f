package waterfall

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const reasonAssignedElsewhere = "shipment assigned to another carrier"

// ProcessTenderResponse applies a carrier's answer to a tender. Accepting
// assigns the carrier and closes the waterfall; declining escalates it when
// auto_escalate is set. Answers to tenders that are no longer "sent" are
// reported as no-ops.
func (e *Engine) ProcessTenderResponse(ctx context.Context, tenderID uuid.UUID, accepted bool, counterRateCents *int64) (*ResponseResult, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallEngine.ProcessTenderResponse")
	defer span.End()

	tender, err := e.tenders.GetByID(ctx, tenderID)
	if err != nil {
		return nil, err
	}

	var result *ResponseResult
	err = e.withShipmentLock(ctx, tender.ShipmentID, func(ctx context.Context) error {
		var err error
		result, err = e.respond(ctx, tenderID, accepted, counterRateCents)
		return err
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

func (e *Engine) respond(ctx context.Context, tenderID uuid.UUID, accepted bool, counterRateCents *int64) (*ResponseResult, error) {
	tender, err := e.tenders.GetByID(ctx, tenderID)
	if err != nil {
		return nil, err
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tender_id":   tender.ID,
		"shipment_id": tender.ShipmentID,
		"accepted":    accepted,
	})
	result := &ResponseResult{TenderID: tender.ID, Status: tender.Status}

	if !tender.IsOutstanding() {
		result.Message = fmt.Sprintf("tender already %s", tender.Status)
		log.Warnf("Ignoring response, tender already %s", tender.Status)
		return result, nil
	}

	var wf *models.Waterfall
	if tender.WaterfallID != nil {
		wf, err = e.waterfalls.GetByID(ctx, *tender.WaterfallID)
		if err != nil {
			return nil, err
		}
		result.WaterfallStatus = wf.Status

		if !wf.IsActive() || wf.CurrentTenderID == nil || *wf.CurrentTenderID != tender.ID {
			if _, err := e.resolve(ctx, tender, models.TenderStatusCancelled, e.clock.Now(), nil); err != nil {
				return nil, err
			}
			result.Status = tender.Status
			result.Message = "tender is no longer the current offer of its waterfall"
			log.Warn("Cancelled stale waterfall tender")
			return result, nil
		}
	}

	if accepted {
		return e.accept(ctx, tender, wf, result)
	}
	return e.decline(ctx, tender, wf, counterRateCents, result)
}

func (e *Engine) accept(ctx context.Context, tender *models.Tender, wf *models.Waterfall, result *ResponseResult) (*ResponseResult, error) {
	now := e.clock.Now()
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tender_id":   tender.ID,
		"shipment_id": tender.ShipmentID,
		"carrier_id":  tender.CarrierID,
	})

	shipment, err := e.shipments.GetByID(ctx, tender.ShipmentID)
	if err != nil {
		return nil, err
	}
	if shipment.HasCarrier() && *shipment.CarrierID != tender.CarrierID {
		if _, err := e.resolve(ctx, tender, models.TenderStatusCancelled, now, nil); err != nil {
			return nil, err
		}
		if wf != nil {
			markHistory(wf, tender.ID, models.TenderStatusCancelled, now, nil)
			if err := e.closeCancelled(ctx, wf, reasonAssignedElsewhere, now); err != nil {
				return nil, err
			}
			result.WaterfallStatus = wf.Status
		}
		result.Status = tender.Status
		result.Message = reasonAssignedElsewhere
		log.Warn("Refused acceptance, shipment already has another carrier")
		return result, nil
	}

	ok, err := e.resolve(ctx, tender, models.TenderStatusAccepted, now, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := e.tenders.GetByID(ctx, tender.ID)
		if err != nil {
			return nil, err
		}
		result.Status = current.Status
		result.Message = fmt.Sprintf("tender already %s", current.Status)
		return result, nil
	}
	result.Status = models.TenderStatusAccepted

	assigned, err := e.shipments.AssignCarrier(ctx, tender.ShipmentID, tender.CarrierID, tender.OfferedRateCents)
	if err != nil {
		return nil, err
	}
	if !assigned {
		log.Error("Accepted tender but shipment was assigned concurrently")
		result.Message = reasonAssignedElsewhere
		if wf != nil {
			markHistory(wf, tender.ID, models.TenderStatusAccepted, now, nil)
			if err := e.closeCancelled(ctx, wf, reasonAssignedElsewhere, now); err != nil {
				return nil, err
			}
			result.WaterfallStatus = wf.Status
		}
		return result, nil
	}

	if wf != nil {
		markHistory(wf, tender.ID, models.TenderStatusAccepted, now, nil)
		wf.Status = models.WaterfallStatusCompleted
		wf.WinningCarrierID = &tender.CarrierID
		wf.WinningTenderID = &tender.ID
		wf.CompletedAt = &now
		wf.UpdatedAt = now

		updated, err := e.waterfalls.Update(ctx, wf)
		if err != nil {
			return nil, err
		}
		if updated {
			metrics.RecordWaterfall(string(models.WaterfallStatusCompleted))
		}
		result.WaterfallStatus = wf.Status
	}

	e.cancelSiblings(ctx, tender, wf, now)
	e.publish(ctx, models.TriggerTenderAccepted, tender.ID)

	log.Infof("Carrier accepted tender at %d cents", tender.OfferedRateCents)
	return result, nil
}

func (e *Engine) decline(ctx context.Context, tender *models.Tender, wf *models.Waterfall, counterRateCents *int64, result *ResponseResult) (*ResponseResult, error) {
	now := e.clock.Now()

	ok, err := e.resolve(ctx, tender, models.TenderStatusDeclined, now, counterRateCents)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := e.tenders.GetByID(ctx, tender.ID)
		if err != nil {
			return nil, err
		}
		result.Status = current.Status
		result.Message = fmt.Sprintf("tender already %s", current.Status)
		return result, nil
	}
	result.Status = models.TenderStatusDeclined
	e.publish(ctx, models.TriggerTenderDeclined, tender.ID)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"tender_id":   tender.ID,
		"carrier_id":  tender.CarrierID,
		"counter_set": counterRateCents != nil,
	}).Info("Carrier declined tender")

	if wf == nil {
		return result, nil
	}

	markHistory(wf, tender.ID, models.TenderStatusDeclined, now, counterRateCents)
	if !wf.AutoEscalate {
		wf.UpdatedAt = now
		if _, err := e.waterfalls.Update(ctx, wf); err != nil {
			return nil, err
		}
		result.Message = "waterfall waits for manual escalation"
		return result, nil
	}

	next, err := e.escalate(ctx, wf, "declined")
	if err != nil {
		return nil, err
	}
	result.Escalated = true
	result.WaterfallStatus = wf.Status
	if next != nil {
		result.NextTenderID = &next.ID
	}
	return result, nil
}

// cancelSiblings cancels every other outstanding tender and active waterfall of
// the winner's shipment.
func (e *Engine) cancelSiblings(ctx context.Context, winner *models.Tender, wf *models.Waterfall, now time.Time) {
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tender_id":   winner.ID,
		"shipment_id": winner.ShipmentID,
	})

	tenders, err := e.tenders.ListByShipment(ctx, winner.ShipmentID)
	if err != nil {
		log.WithError(err).Error("failed to list sibling tenders")
		return
	}
	for i := range tenders {
		sibling := &tenders[i]
		if sibling.ID == winner.ID || !sibling.IsOutstanding() {
			continue
		}
		ok, err := e.resolve(ctx, sibling, models.TenderStatusCancelled, now, nil)
		if err != nil {
			log.WithError(err).WithField("sibling_id", sibling.ID).Error("failed to cancel sibling tender")
			continue
		}
		if ok {
			log.WithField("sibling_id", sibling.ID).Warn("Cancelled sibling tender")
			e.notifyCancelled(ctx, sibling, reasonAssignedElsewhere)
		}
	}

	waterfalls, err := e.waterfalls.ListByShipment(ctx, winner.ShipmentID)
	if err != nil {
		log.WithError(err).Error("failed to list sibling waterfalls")
		return
	}
	for i := range waterfalls {
		other := &waterfalls[i]
		if !other.IsActive() || (wf != nil && other.ID == wf.ID) {
			continue
		}
		if other.CurrentTenderID != nil {
			markHistory(other, *other.CurrentTenderID, models.TenderStatusCancelled, now, nil)
		}
		if err := e.closeCancelled(ctx, other, reasonAssignedElsewhere, now); err != nil {
			log.WithError(err).WithField("waterfall_id", other.ID).Error("failed to cancel sibling waterfall")
		}
	}
}
