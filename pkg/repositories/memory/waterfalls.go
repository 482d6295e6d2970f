package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

type WaterfallRepository struct {
	store *Store
}

var _ repositories.WaterfallRepo = (*WaterfallRepository)(nil)

func (r *WaterfallRepository) Create(ctx context.Context, waterfall *models.Waterfall) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if waterfall.ID == uuid.Nil {
		waterfall.ID = uuid.New()
	}
	if _, ok := r.store.waterfalls[waterfall.ID]; ok {
		return repositories.Conflict("waterfall %s already exists", waterfall.ID)
	}
	if waterfall.CreatedAt.IsZero() {
		waterfall.CreatedAt = time.Now().UTC()
	}
	waterfall.UpdatedAt = waterfall.CreatedAt
	r.store.waterfalls[waterfall.ID] = cloneWaterfall(*waterfall)
	return nil
}

func (r *WaterfallRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Waterfall, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	waterfall, ok := r.store.waterfalls[id]
	if !ok {
		return nil, repositories.NotFound("waterfall %s does not exist", id)
	}
	out := cloneWaterfall(waterfall)
	return &out, nil
}

func (r *WaterfallRepository) ListByShipment(ctx context.Context, shipmentID uuid.UUID) ([]models.Waterfall, error) {
	return r.list(func(w models.Waterfall) bool { return w.ShipmentID == shipmentID }), nil
}

func (r *WaterfallRepository) ListActive(ctx context.Context, autoEscalateOnly bool) ([]models.Waterfall, error) {
	return r.list(func(w models.Waterfall) bool {
		return w.IsActive() && (!autoEscalateOnly || w.AutoEscalate)
	}), nil
}

func (r *WaterfallRepository) Update(ctx context.Context, waterfall *models.Waterfall) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.waterfalls[waterfall.ID]
	if !ok {
		return false, repositories.NotFound("waterfall %s does not exist", waterfall.ID)
	}
	if !stored.IsActive() || stored.CurrentStep > waterfall.CurrentStep {
		return false, nil
	}
	waterfall.CreatedAt = stored.CreatedAt
	if waterfall.UpdatedAt.Before(stored.UpdatedAt) {
		waterfall.UpdatedAt = stored.UpdatedAt
	}
	r.store.waterfalls[waterfall.ID] = cloneWaterfall(*waterfall)
	return true, nil
}

func (r *WaterfallRepository) list(keep func(models.Waterfall) bool) []models.Waterfall {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]models.Waterfall, 0)
	for _, waterfall := range r.store.waterfalls {
		if keep(waterfall) {
			out = append(out, cloneWaterfall(waterfall))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
