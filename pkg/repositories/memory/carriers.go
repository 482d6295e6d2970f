package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

type CarrierRepository struct {
	store *Store
}

var _ repositories.CarrierRepo = (*CarrierRepository)(nil)

func (r *CarrierRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Carrier, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	carrier, ok := r.store.carriers[id]
	if !ok {
		return nil, repositories.NotFound("carrier %s does not exist", id)
	}
	out := cloneCarrier(carrier)
	return &out, nil
}

func (r *CarrierRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Carrier, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]models.Carrier, 0, len(ids))
	for _, id := range ids {
		if carrier, ok := r.store.carriers[id]; ok {
			out = append(out, cloneCarrier(carrier))
		}
	}
	return out, nil
}

func (r *CarrierRepository) ListActive(ctx context.Context) ([]models.Carrier, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]models.Carrier, 0)
	for _, carrier := range r.store.carriers {
		if carrier.IsActive() {
			out = append(out, cloneCarrier(carrier))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *CarrierRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CarrierStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	carrier, ok := r.store.carriers[id]
	if !ok {
		return repositories.NotFound("carrier %s does not exist", id)
	}
	carrier.Status = status
	carrier.UpdatedAt = time.Now().UTC()
	r.store.carriers[id] = carrier
	return nil
}
