package models

import (
	"encoding/json"
	"fmt"
)

type EntityType string

const (
	EntityTypeShipment  EntityType = "shipment"
	EntityTypeTender    EntityType = "tender"
	EntityTypeCarrier   EntityType = "carrier"
	EntityTypeWaterfall EntityType = "waterfall"
)

var EntityTypes = []EntityType{EntityTypeShipment, EntityTypeTender, EntityTypeCarrier, EntityTypeWaterfall}

func (e EntityType) IsValid() bool {
	for _, t := range EntityTypes {
		if t == e {
			return true
		}
	}
	return false
}

// Snapshot renders a model as the key-value map rule conditions are evaluated against.
func Snapshot(model any) (map[string]any, error) {
	b, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return out, nil
}
