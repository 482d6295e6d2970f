package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

type ShipmentRepository struct {
	store *Store
}

var _ repositories.ShipmentRepo = (*ShipmentRepository)(nil)

func (r *ShipmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	shipment, ok := r.store.shipments[id]
	if !ok {
		return nil, repositories.NotFound("shipment %s does not exist", id)
	}
	out := cloneShipment(shipment)
	return &out, nil
}

func (r *ShipmentRepository) ListAwaitingAutoAssignment(ctx context.Context, limit int) ([]models.Shipment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]models.Shipment, 0)
	for _, shipment := range r.store.shipments {
		if shipment.HasCarrier() || shipment.AutoAssignmentAttempted || shipment.Status == models.ShipmentStatusCancelled {
			continue
		}
		out = append(out, cloneShipment(shipment))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ShipmentRepository) ClaimAutoAssignment(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	shipment, ok := r.store.shipments[id]
	if !ok {
		return false, repositories.NotFound("shipment %s does not exist", id)
	}
	if shipment.AutoAssignmentAttempted {
		return false, nil
	}
	shipment.AutoAssignmentAttempted = true
	shipment.AutoAssignmentAttemptedAt = &at
	shipment.UpdatedAt = at
	r.store.shipments[id] = shipment
	return true, nil
}

func (r *ShipmentRepository) AssignCarrier(ctx context.Context, id, carrierID uuid.UUID, costCents int64) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	shipment, ok := r.store.shipments[id]
	if !ok {
		return false, repositories.NotFound("shipment %s does not exist", id)
	}
	if shipment.HasCarrier() && *shipment.CarrierID != carrierID {
		return false, nil
	}
	shipment.CarrierID = &carrierID
	shipment.CarrierCostCents = &costCents
	shipment.UpdatedAt = time.Now().UTC()
	r.store.shipments[id] = shipment
	return true, nil
}

func (r *ShipmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ShipmentStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	shipment, ok := r.store.shipments[id]
	if !ok {
		return repositories.NotFound("shipment %s does not exist", id)
	}
	shipment.Status = status
	shipment.UpdatedAt = time.Now().UTC()
	r.store.shipments[id] = shipment
	return nil
}
