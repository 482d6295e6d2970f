package waterfall

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/lock"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// CheckExpiredTenders escalates every auto-escalating waterfall whose current
// tender timed out, and expires standalone tenders past their window. A tender
// is only expired while still "sent", so repeated runs escalate once.
func (e *Engine) CheckExpiredTenders(ctx context.Context) (*SweepResult, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallEngine.CheckExpiredTenders")
	defer span.End()

	result := &SweepResult{Escalations: []Escalation{}}
	now := e.clock.Now()

	waterfalls, err := e.waterfalls.ListActive(ctx, true)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	for i := range waterfalls {
		wf := &waterfalls[i]
		if wf.CurrentTenderID == nil {
			continue
		}
		tender, err := e.tenders.GetByID(ctx, *wf.CurrentTenderID)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("waterfall_id", wf.ID).Error("failed to load current tender")
			continue
		}
		if !tender.IsOutstanding() || !tender.IsExpired(now) {
			continue
		}

		var escalation *Escalation
		err = e.trySweepLock(ctx, wf.ShipmentID, func(ctx context.Context) error {
			var err error
			escalation, err = e.expireCurrent(ctx, wf.ID, tender.ID)
			return err
		})
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("waterfall_id", wf.ID).Error("failed to escalate expired tender")
			continue
		}
		if escalation != nil {
			result.Escalations = append(result.Escalations, *escalation)
		}
	}
	result.EscalatedCount = len(result.Escalations)

	expired, err := e.expireStandalone(ctx)
	result.ExpiredStandalone = expired
	if err != nil {
		tracing.RecordError(span, err)
		return result, err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"escalated":          result.EscalatedCount,
		"expired_standalone": result.ExpiredStandalone,
	}).Debug("Checked expired tenders")
	return result, nil
}

// expireCurrent re-reads the waterfall under the shipment lock and escalates
// it when tenderID is still its expired, outstanding tender.
func (e *Engine) expireCurrent(ctx context.Context, waterfallID, tenderID uuid.UUID) (*Escalation, error) {
	wf, err := e.waterfalls.GetByID(ctx, waterfallID)
	if err != nil {
		return nil, err
	}
	if !wf.IsActive() || !wf.AutoEscalate || wf.CurrentTenderID == nil || *wf.CurrentTenderID != tenderID {
		return nil, nil
	}

	tender, err := e.tenders.GetByID(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	if !tender.IsOutstanding() || !tender.IsExpired(now) {
		return nil, nil
	}

	ok, err := e.resolve(ctx, tender, models.TenderStatusExpired, now, nil)
	if err != nil || !ok {
		return nil, err
	}
	e.publish(ctx, models.TriggerTenderExpired, tender.ID)
	markHistory(wf, tender.ID, models.TenderStatusExpired, now, nil)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"waterfall_id": wf.ID,
		"tender_id":    tender.ID,
		"carrier_id":   tender.CarrierID,
	}).Info("Tender expired without response")

	next, err := e.escalate(ctx, wf, "expired")
	if err != nil {
		return nil, err
	}

	escalation := &Escalation{
		WaterfallID:     wf.ID,
		ShipmentID:      wf.ShipmentID,
		ExpiredTenderID: tender.ID,
		Exhausted:       wf.Status == models.WaterfallStatusExhausted,
	}
	if next != nil {
		escalation.NextTenderID = &next.ID
	}
	return escalation, nil
}

// expireStandalone marks lapsed tenders outside any waterfall as expired.
func (e *Engine) expireStandalone(ctx context.Context) (int, error) {
	tenders, err := e.tenders.ListExpiredStandalone(ctx, e.clock.Now(), e.opts.ExpiredBatchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range tenders {
		candidate := tenders[i]
		err := e.trySweepLock(ctx, candidate.ShipmentID, func(ctx context.Context) error {
			tender, err := e.tenders.GetByID(ctx, candidate.ID)
			if err != nil {
				return err
			}
			now := e.clock.Now()
			if !tender.IsOutstanding() || !tender.IsExpired(now) {
				return nil
			}
			ok, err := e.resolve(ctx, tender, models.TenderStatusExpired, now, nil)
			if err != nil || !ok {
				return err
			}
			count++
			e.publish(ctx, models.TriggerTenderExpired, tender.ID)
			return nil
		})
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithField("tender_id", candidate.ID).Error("failed to expire tender")
		}
	}
	return count, nil
}

// trySweepLock runs fn under the shipment lock, skipping shipments another
// caller is working on. The next sweep picks them up.
func (e *Engine) trySweepLock(ctx context.Context, shipmentID uuid.UUID, fn func(ctx context.Context) error) error {
	err := lock.WithLock(ctx, e.locker, ShipmentLockKey(shipmentID), e.opts.LockTTL, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		e.logger.WithContext(ctx).WithField("shipment_id", shipmentID).Debug("Shipment busy, skipping until next sweep")
		return nil
	}
	return err
}
