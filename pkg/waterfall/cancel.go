package waterfall

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// CancelWaterfall cancels an active waterfall and its in-flight tender.
// Cancelling a terminal waterfall changes nothing.
func (e *Engine) CancelWaterfall(ctx context.Context, id uuid.UUID, reason string) (*CancelResult, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallEngine.CancelWaterfall")
	defer span.End()

	wf, err := e.waterfalls.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *CancelResult
	err = e.withShipmentLock(ctx, wf.ShipmentID, func(ctx context.Context) error {
		wf, err := e.waterfalls.GetByID(ctx, id)
		if err != nil {
			return err
		}
		result = &CancelResult{WaterfallID: wf.ID, Status: wf.Status}
		if !wf.IsActive() {
			result.Message = fmt.Sprintf("waterfall already %s", wf.Status)
			e.logger.WithContext(ctx).WithField("waterfall_id", wf.ID).Warnf("Cannot cancel waterfall, already %s", wf.Status)
			return nil
		}

		now := e.clock.Now()
		if err := e.cancelCurrentTender(ctx, wf, reason, now); err != nil {
			return err
		}
		if err := e.closeCancelled(ctx, wf, reason, now); err != nil {
			return err
		}
		result.Cancelled = wf.Status == models.WaterfallStatusCancelled
		result.Status = wf.Status
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// EscalateWaterfall skips the current carrier of an active waterfall and
// tenders the next one. It is the manual path for waterfalls without
// auto_escalate.
func (e *Engine) EscalateWaterfall(ctx context.Context, id uuid.UUID) (*Escalation, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallEngine.EscalateWaterfall")
	defer span.End()

	wf, err := e.waterfalls.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var escalation *Escalation
	err = e.withShipmentLock(ctx, wf.ShipmentID, func(ctx context.Context) error {
		wf, err := e.waterfalls.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !wf.IsActive() {
			return repositories.Conflict("waterfall %s is already %s", wf.ID, wf.Status)
		}

		escalation = &Escalation{WaterfallID: wf.ID, ShipmentID: wf.ShipmentID}
		if wf.CurrentTenderID != nil {
			escalation.ExpiredTenderID = *wf.CurrentTenderID
		}
		if err := e.cancelCurrentTender(ctx, wf, "skipped by operator", e.clock.Now()); err != nil {
			return err
		}

		next, err := e.escalate(ctx, wf, "manual")
		if err != nil {
			return err
		}
		if next != nil {
			escalation.NextTenderID = &next.ID
		}
		escalation.Exhausted = wf.Status == models.WaterfallStatusExhausted
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return escalation, nil
}

// GetWaterfallStatus returns a read-only projection of the waterfall.
func (e *Engine) GetWaterfallStatus(ctx context.Context, id uuid.UUID) (*StatusView, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallEngine.GetWaterfallStatus")
	defer span.End()

	wf, err := e.waterfalls.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tenders, err := e.tenders.ListByWaterfall(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &StatusView{
		Waterfall:     wf,
		Tenders:       tenders,
		TotalCarriers: wf.TotalCarriers(),
	}
	if wf.IsActive() {
		view.RemainingCarriers = max(wf.TotalCarriers()-wf.CurrentStep-1, 0)
	}
	if wf.CurrentTenderID != nil {
		for i := range tenders {
			if tenders[i].ID == *wf.CurrentTenderID {
				view.CurrentTender = &tenders[i]
				break
			}
		}
	}
	return view, nil
}

// cancelCurrentTender withdraws the waterfall's outstanding tender, if any.
func (e *Engine) cancelCurrentTender(ctx context.Context, wf *models.Waterfall, reason string, now time.Time) error {
	if wf.CurrentTenderID == nil {
		return nil
	}
	tender, err := e.tenders.GetByID(ctx, *wf.CurrentTenderID)
	if err != nil {
		return err
	}
	ok, err := e.resolve(ctx, tender, models.TenderStatusCancelled, now, nil)
	if err != nil {
		return err
	}
	if ok {
		markHistory(wf, tender.ID, models.TenderStatusCancelled, now, nil)
		e.notifyCancelled(ctx, tender, reason)
	}
	return nil
}

// closeCancelled marks an active waterfall cancelled.
func (e *Engine) closeCancelled(ctx context.Context, wf *models.Waterfall, reason string, now time.Time) error {
	wf.Status = models.WaterfallStatusCancelled
	wf.CancelReason = &reason
	wf.CompletedAt = &now
	wf.UpdatedAt = now

	ok, err := e.waterfalls.Update(ctx, wf)
	if err != nil {
		return err
	}
	if !ok {
		stored, err := e.waterfalls.GetByID(ctx, wf.ID)
		if err != nil {
			return err
		}
		*wf = *stored
		return nil
	}
	metrics.RecordWaterfall(string(models.WaterfallStatusCancelled))

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"waterfall_id": wf.ID,
		"shipment_id":  wf.ShipmentID,
		"reason":       reason,
	}).Info("Cancelled waterfall")
	return nil
}
