package automation

import (
	"context"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/rules"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Entity is the snapshot a rule is evaluated against.
type Entity struct {
	Snapshot map[string]any
	Type     models.EntityType
	ID       string
}

// ShipmentID returns the shipment an entity belongs to, if any.
func (e *Entity) ShipmentID() (uuid.UUID, bool) {
	var raw any
	switch e.Type {
	case models.EntityTypeShipment:
		raw = e.ID
	case models.EntityTypeTender, models.EntityTypeWaterfall:
		raw, _ = rules.Resolve(e.Snapshot, "shipment_id")
	default:
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rules.Stringify(raw))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Schemas lists the condition paths each entity type exposes.
var Schemas = map[models.EntityType]*rules.Schema{
	models.EntityTypeShipment: rules.SchemaFromStruct(string(models.EntityTypeShipment), models.Shipment{}).
		Nest("carrier", rules.SchemaFromStruct(string(models.EntityTypeCarrier), models.Carrier{})),
	models.EntityTypeTender: rules.SchemaFromStruct(string(models.EntityTypeTender), models.Tender{}).
		Nest("carrier", rules.SchemaFromStruct(string(models.EntityTypeCarrier), models.Carrier{})),
	models.EntityTypeCarrier:   rules.SchemaFromStruct(string(models.EntityTypeCarrier), models.Carrier{}),
	models.EntityTypeWaterfall: rules.SchemaFromStruct(string(models.EntityTypeWaterfall), models.Waterfall{}),
}

// EntityLoader builds snapshots from storage. Shipments and tenders carry
// their carrier under "carrier" so paths like carrier.name resolve.
type EntityLoader struct {
	shipments  repositories.ShipmentRepo
	carriers   repositories.CarrierRepo
	tenders    repositories.TenderRepo
	waterfalls repositories.WaterfallRepo
}

func NewEntityLoader(shipments repositories.ShipmentRepo, carriers repositories.CarrierRepo, tenders repositories.TenderRepo, waterfalls repositories.WaterfallRepo) *EntityLoader {
	return &EntityLoader{shipments: shipments, carriers: carriers, tenders: tenders, waterfalls: waterfalls}
}

func (l *EntityLoader) Load(ctx context.Context, entityType models.EntityType, entityID string) (*Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityLoader.Load")
	defer span.End()

	id, err := uuid.Parse(entityID)
	if err != nil {
		return nil, repositories.BadRequest("invalid %s id %q", entityType, entityID)
	}

	var (
		model     any
		carrierID *uuid.UUID
	)
	switch entityType {
	case models.EntityTypeShipment:
		shipment, err := l.shipments.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		model, carrierID = shipment, shipment.CarrierID
	case models.EntityTypeTender:
		tender, err := l.tenders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		model, carrierID = tender, &tender.CarrierID
	case models.EntityTypeCarrier:
		model, err = l.carriers.GetByID(ctx, id)
	case models.EntityTypeWaterfall:
		model, err = l.waterfalls.GetByID(ctx, id)
	default:
		return nil, repositories.BadRequest("unknown entity type %q", entityType)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	snapshot, err := models.Snapshot(model)
	if err != nil {
		return nil, err
	}
	if carrierID != nil {
		carrier, err := l.carriers.GetByID(ctx, *carrierID)
		if err != nil && !repositories.IsNotFound(err) {
			return nil, err
		}
		if carrier != nil {
			nested, err := models.Snapshot(carrier)
			if err != nil {
				return nil, err
			}
			snapshot["carrier"] = nested
		}
	}

	return &Entity{Type: entityType, ID: id.String(), Snapshot: snapshot}, nil
}
