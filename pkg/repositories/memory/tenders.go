package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

type TenderRepository struct {
	store *Store
}

var _ repositories.TenderRepo = (*TenderRepository)(nil)

func (r *TenderRepository) Create(ctx context.Context, tender *models.Tender) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if tender.ID == uuid.Nil {
		tender.ID = uuid.New()
	}
	if _, ok := r.store.tenders[tender.ID]; ok {
		return repositories.Conflict("tender %s already exists", tender.ID)
	}
	if tender.CreatedAt.IsZero() {
		tender.CreatedAt = tender.SentAt
	}
	tender.UpdatedAt = tender.CreatedAt
	r.store.tenders[tender.ID] = cloneTender(*tender)
	return nil
}

func (r *TenderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tender, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	tender, ok := r.store.tenders[id]
	if !ok {
		return nil, repositories.NotFound("tender %s does not exist", id)
	}
	out := cloneTender(tender)
	return &out, nil
}

func (r *TenderRepository) ListByShipment(ctx context.Context, shipmentID uuid.UUID) ([]models.Tender, error) {
	return r.list(func(t models.Tender) bool { return t.ShipmentID == shipmentID }, 0), nil
}

func (r *TenderRepository) ListByWaterfall(ctx context.Context, waterfallID uuid.UUID) ([]models.Tender, error) {
	return r.list(func(t models.Tender) bool {
		return t.WaterfallID != nil && *t.WaterfallID == waterfallID
	}, 0), nil
}

func (r *TenderRepository) Resolve(ctx context.Context, id uuid.UUID, to models.TenderStatus, at time.Time, counterRateCents *int64) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tender, ok := r.store.tenders[id]
	if !ok {
		return false, repositories.NotFound("tender %s does not exist", id)
	}
	if tender.Status != models.TenderStatusSent {
		return false, nil
	}
	tender.Status = to
	tender.RespondedAt = &at
	if counterRateCents != nil {
		tender.CounterRateCents = clonePtr(counterRateCents)
	}
	tender.UpdatedAt = at
	r.store.tenders[id] = tender
	return true, nil
}

func (r *TenderRepository) ListExpiredStandalone(ctx context.Context, now time.Time, limit int) ([]models.Tender, error) {
	return r.list(func(t models.Tender) bool {
		return t.WaterfallID == nil && t.IsOutstanding() && t.IsExpired(now)
	}, limit), nil
}

func (r *TenderRepository) list(keep func(models.Tender) bool, limit int) []models.Tender {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]models.Tender, 0)
	for _, tender := range r.store.tenders {
		if keep(tender) {
			out = append(out, cloneTender(tender))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
