// Package waterfall runs sequential, timeout-bounded tender negotiations.
//
// A waterfall offers a shipment to one carrier at a time. A decline or an
// expired offer moves current_step to the next carrier, optionally at a higher
// rate, until a carrier accepts or the list runs out. Every mutation for a
// shipment runs under that shipment's lock, and tender transitions are
// compare-and-set on status "sent".
package waterfall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/clock"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/lock"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockWait  = 5 * time.Second
	defaultBatchSize = 500
)

// ShipmentLockKey is the lock key serializing tender work for one shipment.
func ShipmentLockKey(shipmentID uuid.UUID) string {
	return "shipment:" + shipmentID.String()
}

type Options struct {
	LockTTL          time.Duration
	LockWait         time.Duration
	ExpiredBatchSize int
}

type Deps struct {
	Shipments  repositories.ShipmentRepo
	Tenders    repositories.TenderRepo
	Waterfalls repositories.WaterfallRepo
	WorkItems  repositories.WorkItemRepo
	Notifier   Notifier
	Locker     lock.Locker
	Clock      clock.Clock
	Logger     ectologger.Logger
}

type Engine struct {
	shipments  repositories.ShipmentRepo
	tenders    repositories.TenderRepo
	waterfalls repositories.WaterfallRepo
	workItems  repositories.WorkItemRepo
	notifier   Notifier
	locker     lock.Locker
	clock      clock.Clock
	logger     ectologger.Logger
	opts       Options
}

func NewEngine(deps Deps, opts Options) *Engine {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.LockWait <= 0 {
		opts.LockWait = defaultLockWait
	}
	if opts.ExpiredBatchSize <= 0 {
		opts.ExpiredBatchSize = defaultBatchSize
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}

	return &Engine{
		shipments:  deps.Shipments,
		tenders:    deps.Tenders,
		waterfalls: deps.Waterfalls,
		workItems:  deps.WorkItems,
		notifier:   deps.Notifier,
		locker:     deps.Locker,
		clock:      deps.Clock,
		logger:     deps.Logger,
		opts:       opts,
	}
}

// CreateWaterfall persists a waterfall at step 0 and sends the first tender.
func (e *Engine) CreateWaterfall(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallEngine.CreateWaterfall")
	defer span.End()

	if err := validateCreate(req); err != nil {
		return nil, err
	}

	var result *CreateResult
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
		if outstanding, err := e.outstandingTender(ctx, shipment.ID); err != nil {
			return err
		} else if outstanding != nil {
			return repositories.Conflict("shipment %s has outstanding tender %s to carrier %s", shipment.ID, outstanding.ID, outstanding.CarrierID)
		}

		now := e.clock.Now()
		wf := &models.Waterfall{
			ID:                  uuid.New(),
			ShipmentID:          shipment.ID,
			CarrierIDs:          database.NewJSONB(append([]uuid.UUID(nil), req.CarrierIDs...)),
			CurrentStep:         0,
			BaseRateCents:       req.BaseRateCents,
			CurrentRateCents:    req.BaseRateCents,
			RateIncreasePercent: req.RateIncreasePercent,
			TimeoutMinutes:      req.TimeoutMinutes,
			AutoEscalate:        req.AutoEscalate,
			Status:              models.WaterfallStatusActive,
			History:             database.NewJSONB([]models.WaterfallHistoryEntry{}),
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := e.waterfalls.Create(ctx, wf); err != nil {
			return err
		}
		metrics.RecordWaterfall(string(models.WaterfallStatusActive))

		e.logger.WithContext(ctx).WithFields(map[string]any{
			"waterfall_id":   wf.ID,
			"shipment_id":    wf.ShipmentID,
			"total_carriers": wf.TotalCarriers(),
		}).Info("Created waterfall")

		tender, err := e.sendNextTender(ctx, wf)
		if err != nil {
			return err
		}

		result = &CreateResult{
			WaterfallID:   wf.ID,
			Status:        wf.Status,
			TotalCarriers: wf.TotalCarriers(),
		}
		if tender != nil {
			result.CurrentTenderID = &tender.ID
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

func validateCreate(req CreateRequest) error {
	if len(req.CarrierIDs) == 0 {
		return repositories.BadRequest("waterfall needs at least one carrier")
	}
	seen := make(map[uuid.UUID]struct{}, len(req.CarrierIDs))
	for _, id := range req.CarrierIDs {
		if id == uuid.Nil {
			return repositories.BadRequest("waterfall carrier ids must not be empty")
		}
		if _, ok := seen[id]; ok {
			return repositories.BadRequest("carrier %s appears more than once", id)
		}
		seen[id] = struct{}{}
	}
	if req.TimeoutMinutes <= 0 {
		return repositories.BadRequest("timeout_minutes must be positive, got %d", req.TimeoutMinutes)
	}
	if req.BaseRateCents <= 0 {
		return repositories.BadRequest("base_rate_cents must be positive, got %d", req.BaseRateCents)
	}
	if req.RateIncreasePercent < 0 {
		return repositories.BadRequest("rate_increase_percent must not be negative, got %v", req.RateIncreasePercent)
	}
	return nil
}

// sendNextTender offers the shipment to the carrier at current_step, or
// exhausts the waterfall when no carrier is left. The shipment lock must be held.
func (e *Engine) sendNextTender(ctx context.Context, wf *models.Waterfall) (*models.Tender, error) {
	ctx, span := tracing.StartSpan(ctx, "WaterfallEngine.sendNextTender")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"waterfall_id": wf.ID,
		"shipment_id":  wf.ShipmentID,
		"step":         wf.CurrentStep,
	})

	if !wf.IsActive() {
		log.Debugf("Waterfall is %s, nothing to send", wf.Status)
		return nil, nil
	}

	now := e.clock.Now()
	if wf.CurrentStep >= wf.TotalCarriers() {
		return nil, e.exhaust(ctx, wf, now)
	}

	step := wf.CurrentStep
	rate := RateForStep(wf.BaseRateCents, wf.RateIncreasePercent, step)
	waterfallID := wf.ID
	tender := &models.Tender{
		ID:               uuid.New(),
		ShipmentID:       wf.ShipmentID,
		CarrierID:        wf.CarrierIDs.Data[step],
		Status:           models.TenderStatusSent,
		OfferedRateCents: rate,
		SentAt:           now,
		ExpiresAt:        now.Add(time.Duration(wf.TimeoutMinutes) * time.Minute),
		WaterfallID:      &waterfallID,
		WaterfallStep:    &step,
	}
	if err := e.tenders.Create(ctx, tender); err != nil {
		return nil, err
	}

	wf.CurrentRateCents = rate
	wf.CurrentTenderID = &tender.ID
	wf.CurrentStepStartedAt = &now
	wf.History.Data = append(wf.History.Data, models.WaterfallHistoryEntry{
		Step:      step,
		CarrierID: tender.CarrierID,
		TenderID:  tender.ID,
		RateCents: rate,
		SentAt:    now,
		Status:    models.TenderStatusSent,
	})
	wf.UpdatedAt = now

	ok, err := e.waterfalls.Update(ctx, wf)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Warn("Waterfall moved on while sending, retracting tender")
		if _, err := e.tenders.Resolve(ctx, tender.ID, models.TenderStatusCancelled, now, nil); err != nil {
			log.WithError(err).Error("failed to retract tender")
		}
		return nil, nil
	}
	metrics.RecordTender(string(models.TenderStatusSent))

	log.WithFields(map[string]any{
		"tender_id":  tender.ID,
		"carrier_id": tender.CarrierID,
		"rate_cents": rate,
	}).Info("Sent waterfall tender")

	e.notifyOffered(ctx, tender)
	return tender, nil
}

// exhaust ends the waterfall after its last carrier and opens a manual work item.
func (e *Engine) exhaust(ctx context.Context, wf *models.Waterfall, now time.Time) error {
	wf.Status = models.WaterfallStatusExhausted
	wf.CurrentTenderID = nil
	wf.CompletedAt = &now
	wf.UpdatedAt = now

	ok, err := e.waterfalls.Update(ctx, wf)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	metrics.RecordWaterfall(string(models.WaterfallStatusExhausted))

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"waterfall_id": wf.ID,
		"shipment_id":  wf.ShipmentID,
	})
	log.Warnf("Waterfall exhausted after %d carriers", wf.TotalCarriers())

	item := &models.WorkItem{
		Type:     models.WorkItemTypeWaterfallExhausted,
		Priority: models.WorkItemPriorityHigh,
		Title:    fmt.Sprintf("No carrier accepted shipment %s", wf.ShipmentID),
		Description: fmt.Sprintf("Waterfall %s tendered %d carriers without acceptance. Assign a carrier manually.",
			wf.ID, wf.TotalCarriers()),
		EntityType: models.EntityTypeShipment,
		EntityID:   wf.ShipmentID.String(),
		CreatedAt:  now,
	}
	if err := e.workItems.Create(ctx, item); err != nil {
		log.WithError(err).Error("failed to create work item for exhausted waterfall")
	}

	e.publish(ctx, models.TriggerWaterfallExhausted, wf.ID)
	return nil
}

// escalate advances the waterfall one carrier and sends the next tender.
func (e *Engine) escalate(ctx context.Context, wf *models.Waterfall, reason string) (*models.Tender, error) {
	wf.CurrentStep++
	metrics.RecordEscalation(reason)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"waterfall_id": wf.ID,
		"step":         wf.CurrentStep,
		"reason":       reason,
	}).Info("Escalating waterfall")

	return e.sendNextTender(ctx, wf)
}

// resolve moves tender out of "sent" and mirrors the change onto the struct.
func (e *Engine) resolve(ctx context.Context, tender *models.Tender, to models.TenderStatus, at time.Time, counterRateCents *int64) (bool, error) {
	ok, err := e.tenders.Resolve(ctx, tender.ID, to, at, counterRateCents)
	if err != nil || !ok {
		return ok, err
	}
	tender.Status = to
	tender.RespondedAt = &at
	if counterRateCents != nil {
		tender.CounterRateCents = counterRateCents
	}
	metrics.RecordTender(string(to))
	return true, nil
}

func (e *Engine) activeWaterfall(ctx context.Context, shipmentID uuid.UUID) (*models.Waterfall, error) {
	waterfalls, err := e.waterfalls.ListByShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	for i := range waterfalls {
		if waterfalls[i].IsActive() {
			return &waterfalls[i], nil
		}
	}
	return nil, nil
}

// outstandingTender returns a tender of the shipment still awaiting a response.
func (e *Engine) outstandingTender(ctx context.Context, shipmentID uuid.UUID) (*models.Tender, error) {
	tenders, err := e.tenders.ListByShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	for i := range tenders {
		if tenders[i].IsOutstanding() {
			return &tenders[i], nil
		}
	}
	return nil, nil
}

func (e *Engine) withShipmentLock(ctx context.Context, shipmentID uuid.UUID, fn func(ctx context.Context) error) error {
	err := lock.WithLockWait(ctx, e.locker, ShipmentLockKey(shipmentID), e.opts.LockTTL, e.opts.LockWait, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return repositories.Conflict("shipment %s is busy, retry shortly", shipmentID)
	}
	return err
}

func (e *Engine) notifyOffered(ctx context.Context, tender *models.Tender) {
	if err := e.notifier.TenderOffered(ctx, tender); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tender_id":  tender.ID,
			"carrier_id": tender.CarrierID,
		}).Error("failed to notify carrier of tender")
	}
}

func (e *Engine) notifyCancelled(ctx context.Context, tender *models.Tender, reason string) {
	if err := e.notifier.TenderCancelled(ctx, tender, reason); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tender_id":  tender.ID,
			"carrier_id": tender.CarrierID,
		}).Error("failed to notify carrier of cancelled tender")
	}
}

func (e *Engine) publish(ctx context.Context, trigger models.TriggerType, entityID uuid.UUID) {
	event := models.NewLifecycleEvent(trigger, entityID.String(), e.clock.Now())
	if err := e.notifier.PublishEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"trigger":   trigger,
			"entity_id": entityID,
		}).Error("failed to publish lifecycle event")
	}
}

// markHistory records the outcome of tenderID in the waterfall history.
func markHistory(wf *models.Waterfall, tenderID uuid.UUID, status models.TenderStatus, at time.Time, counterRateCents *int64) {
	entry := wf.HistoryFor(tenderID)
	if entry == nil {
		return
	}
	entry.Status = status
	entry.RespondedAt = &at
	if counterRateCents != nil {
		entry.CounterRateCents = counterRateCents
	}
}
