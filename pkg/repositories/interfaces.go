package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ShipmentRepo reads shipments and writes the fields this service owns.
type ShipmentRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	// ListAwaitingAutoAssignment returns carrierless shipments not yet claimed for auto-assignment.
	ListAwaitingAutoAssignment(ctx context.Context, limit int) ([]models.Shipment, error)
	// ClaimAutoAssignment sets auto_assignment_attempted and reports whether this call set it.
	ClaimAutoAssignment(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// AssignCarrier writes the carrier only when none (or the same one) is assigned.
	AssignCarrier(ctx context.Context, id, carrierID uuid.UUID, costCents int64) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ShipmentStatus) error
}

type CarrierRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Carrier, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Carrier, error)
	ListActive(ctx context.Context) ([]models.Carrier, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.CarrierStatus) error
}

type AssignmentRuleRepo interface {
	Save(ctx context.Context, rule *models.AssignmentRule) error
	// ListActive returns active rules, highest priority first.
	ListActive(ctx context.Context) ([]models.AssignmentRule, error)
}

type AutoAssignConfigRepo interface {
	// Get returns the saved config, or the defaults when none was saved.
	Get(ctx context.Context) (*models.AutoAssignConfig, error)
	Save(ctx context.Context, config *models.AutoAssignConfig) error
}

type AutomationRuleRepo interface {
	// Save inserts or updates a rule. trigger_count and shadow_log are never overwritten.
	Save(ctx context.Context, rule *models.AutomationRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AutomationRule, error)
	// List returns every rule, highest priority first.
	List(ctx context.Context) ([]models.AutomationRule, error)
	// ListEnabledByTrigger returns enabled rules for trigger, highest priority first.
	ListEnabledByTrigger(ctx context.Context, trigger models.TriggerType) ([]models.AutomationRule, error)
	// RecordTrigger increments trigger_count and appends entry, when given, to the
	// shadow log, keeping at most shadowLimit newest entries.
	RecordTrigger(ctx context.Context, id uuid.UUID, at time.Time, entry *models.ShadowLogEntry, shadowLimit int) error
}

type TenderRepo interface {
	Create(ctx context.Context, tender *models.Tender) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tender, error)
	ListByShipment(ctx context.Context, shipmentID uuid.UUID) ([]models.Tender, error)
	ListByWaterfall(ctx context.Context, waterfallID uuid.UUID) ([]models.Tender, error)
	// Resolve moves a tender out of "sent". It reports false, changing nothing,
	// when the tender is no longer "sent".
	Resolve(ctx context.Context, id uuid.UUID, to models.TenderStatus, at time.Time, counterRateCents *int64) (bool, error)
	// ListExpiredStandalone returns "sent" tenders outside any waterfall whose window closed before now.
	ListExpiredStandalone(ctx context.Context, now time.Time, limit int) ([]models.Tender, error)
}

type WaterfallRepo interface {
	Create(ctx context.Context, waterfall *models.Waterfall) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Waterfall, error)
	ListByShipment(ctx context.Context, shipmentID uuid.UUID) ([]models.Waterfall, error)
	ListActive(ctx context.Context, autoEscalateOnly bool) ([]models.Waterfall, error)
	// Update saves progress of an active waterfall. It reports false when the stored
	// waterfall is already terminal or has advanced past waterfall.CurrentStep.
	Update(ctx context.Context, waterfall *models.Waterfall) (bool, error)
}

type WorkItemRepo interface {
	Create(ctx context.Context, item *models.WorkItem) error
	ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]models.WorkItem, error)
}
