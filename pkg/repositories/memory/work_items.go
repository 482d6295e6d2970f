package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

type WorkItemRepository struct {
	store *Store
}

var _ repositories.WorkItemRepo = (*WorkItemRepository)(nil)

func (r *WorkItemRepository) Create(ctx context.Context, item *models.WorkItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = "open"
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	r.store.workItems = append(r.store.workItems, *item)
	return nil
}

func (r *WorkItemRepository) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]models.WorkItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]models.WorkItem, 0)
	for _, item := range r.store.workItems {
		if item.EntityType == entityType && item.EntityID == entityID {
			out = append(out, item)
		}
	}
	return out, nil
}
