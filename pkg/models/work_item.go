package models

import (
	"time"

	"github.com/google/uuid"
)

type WorkItemPriority string

const (
	WorkItemPriorityLow    WorkItemPriority = "low"
	WorkItemPriorityNormal WorkItemPriority = "normal"
	WorkItemPriorityHigh   WorkItemPriority = "high"
	WorkItemPriorityUrgent WorkItemPriority = "urgent"
)

type WorkItemType string

const (
	WorkItemTypeWaterfallExhausted WorkItemType = "waterfall_exhausted"
	WorkItemTypeAutomation         WorkItemType = "automation"
)

// WorkItem is a manual-intervention ticket for the operations team.
type WorkItem struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	Type        WorkItemType     `db:"type" json:"type"`
	Priority    WorkItemPriority `db:"priority" json:"priority"`
	Title       string           `db:"title" json:"title"`
	Description string           `db:"description" json:"description"`
	EntityType  EntityType       `db:"entity_type" json:"entity_type"`
	EntityID    string           `db:"entity_id" json:"entity_id"`
	Status      string           `db:"status" json:"status"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

func (WorkItem) TableName() string {
	return "work_items"
}
