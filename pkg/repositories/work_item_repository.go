package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const workItemsTable = "work_items"

var workItemStruct = database.NewStruct(new(models.WorkItem))

type WorkItemRepository struct {
	*Repository
}

var _ WorkItemRepo = (*WorkItemRepository)(nil)

func NewWorkItemRepository(db database.DB, logger ectologger.Logger) *WorkItemRepository {
	return &WorkItemRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *WorkItemRepository) Create(ctx context.Context, item *models.WorkItem) error {
	ctx, span := tracing.StartSpan(ctx, "WorkItemRepository.Create")
	defer span.End()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = "open"
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(workItemsTable).
		Cols("id", "type", "priority", "title", "description", "entity_type", "entity_id", "status", "created_at").
		Values(item.ID, item.Type, item.Priority, item.Title, item.Description, item.EntityType, item.EntityID, item.Status,
			sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	if err := r.conn(ctx).QueryRowxContext(ctx, query, args...).Scan(&item.CreatedAt); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": item.EntityType,
			"entity_id":   item.EntityID,
		}).Error("failed to create work item")
		return Internal("failed to create work item")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"work_item_id": item.ID,
		"type":         item.Type,
		"priority":     item.Priority,
	}).Infof("Created %s", workItemsTable)
	return nil
}

func (r *WorkItemRepository) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]models.WorkItem, error) {
	ctx, span := tracing.StartSpan(ctx, "WorkItemRepository.ListByEntity")
	defer span.End()

	sb := workItemStruct.SelectFrom(workItemsTable)
	sb.Where(sb.Equal("entity_type", entityType), sb.Equal("entity_id", entityID))
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()
	var items []models.WorkItem
	if err := r.conn(ctx).SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list work items")
		return nil, Internal("failed to list work items")
	}
	return items, nil
}
