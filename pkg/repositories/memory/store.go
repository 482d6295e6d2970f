// Package memory implements the repositories in process. It backs the
// "memory" storage driver and the engine tests.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Store holds every entity behind one mutex. Values are copied in and out so
// callers never share state with the store.
type Store struct {
	mu              sync.RWMutex
	shipments       map[uuid.UUID]models.Shipment
	carriers        map[uuid.UUID]models.Carrier
	assignmentRules map[uuid.UUID]models.AssignmentRule
	automationRules map[uuid.UUID]models.AutomationRule
	tenders         map[uuid.UUID]models.Tender
	waterfalls      map[uuid.UUID]models.Waterfall
	workItems       []models.WorkItem
	config          *models.AutoAssignConfig
}

func NewStore() *Store {
	return &Store{
		shipments:       map[uuid.UUID]models.Shipment{},
		carriers:        map[uuid.UUID]models.Carrier{},
		assignmentRules: map[uuid.UUID]models.AssignmentRule{},
		automationRules: map[uuid.UUID]models.AutomationRule{},
		tenders:         map[uuid.UUID]models.Tender{},
		waterfalls:      map[uuid.UUID]models.Waterfall{},
	}
}

func (s *Store) Shipments() *ShipmentRepository {
	return &ShipmentRepository{store: s}
}

func (s *Store) Carriers() *CarrierRepository {
	return &CarrierRepository{store: s}
}

func (s *Store) AssignmentRules() *AssignmentRuleRepository {
	return &AssignmentRuleRepository{store: s}
}

func (s *Store) AutoAssignConfig() *AutoAssignConfigRepository {
	return &AutoAssignConfigRepository{store: s}
}

func (s *Store) AutomationRules() *AutomationRuleRepository {
	return &AutomationRuleRepository{store: s}
}

func (s *Store) Tenders() *TenderRepository {
	return &TenderRepository{store: s}
}

func (s *Store) Waterfalls() *WaterfallRepository {
	return &WaterfallRepository{store: s}
}

func (s *Store) WorkItems() *WorkItemRepository {
	return &WorkItemRepository{store: s}
}

// PutShipment seeds or replaces a shipment. Shipments are owned upstream.
func (s *Store) PutShipment(shipment models.Shipment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shipments[shipment.ID] = cloneShipment(shipment)
}

// PutCarrier seeds or replaces a carrier. Carriers are owned upstream.
func (s *Store) PutCarrier(carrier models.Carrier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carriers[carrier.ID] = cloneCarrier(carrier)
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func clonePtr[T any](in *T) *T {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}

func cloneShipment(s models.Shipment) models.Shipment {
	s.CarrierID = clonePtr(s.CarrierID)
	s.CarrierCostCents = clonePtr(s.CarrierCostCents)
	s.WeightLbs = clonePtr(s.WeightLbs)
	s.DeliveryDate = clonePtr(s.DeliveryDate)
	s.AutoAssignmentAttemptedAt = clonePtr(s.AutoAssignmentAttemptedAt)
	return s
}

func cloneCarrier(c models.Carrier) models.Carrier {
	c.OnTimePercentage = clonePtr(c.OnTimePercentage)
	c.EquipmentTypes = database.NewJSONB(cloneSlice(c.EquipmentTypes.Data))
	c.Lanes = database.NewJSONB(cloneSlice(c.Lanes.Data))
	c.NextAvailableAt = clonePtr(c.NextAvailableAt)
	return c
}

func cloneTender(t models.Tender) models.Tender {
	t.CounterRateCents = clonePtr(t.CounterRateCents)
	t.RespondedAt = clonePtr(t.RespondedAt)
	t.WaterfallID = clonePtr(t.WaterfallID)
	t.WaterfallStep = clonePtr(t.WaterfallStep)
	return t
}

func cloneWaterfall(w models.Waterfall) models.Waterfall {
	w.CarrierIDs = database.NewJSONB(cloneSlice(w.CarrierIDs.Data))
	history := make([]models.WaterfallHistoryEntry, len(w.History.Data))
	for i, entry := range w.History.Data {
		entry.RespondedAt = clonePtr(entry.RespondedAt)
		entry.CounterRateCents = clonePtr(entry.CounterRateCents)
		history[i] = entry
	}
	w.History = database.NewJSONB(history)
	w.CurrentTenderID = clonePtr(w.CurrentTenderID)
	w.CurrentStepStartedAt = clonePtr(w.CurrentStepStartedAt)
	w.WinningCarrierID = clonePtr(w.WinningCarrierID)
	w.WinningTenderID = clonePtr(w.WinningTenderID)
	w.CancelReason = clonePtr(w.CancelReason)
	w.CompletedAt = clonePtr(w.CompletedAt)
	return w
}

func cloneAutomationRule(r models.AutomationRule) models.AutomationRule {
	r.Conditions = database.NewJSONB(cloneSlice(r.Conditions.Data))
	r.ShadowLog = database.NewJSONB(cloneSlice(r.ShadowLog.Data))
	r.LastTriggeredAt = clonePtr(r.LastTriggeredAt)
	return r
}

func cloneAssignmentRule(r models.AssignmentRule) models.AssignmentRule {
	actions := r.Actions.Data
	actions.CarrierIDs = cloneSlice(actions.CarrierIDs)
	r.Actions = database.NewJSONB(actions)
	return r
}

func cloneConfig(c models.AutoAssignConfig) *models.AutoAssignConfig {
	c.MaxRateCents = clonePtr(c.MaxRateCents)
	c.MinOnTimePercent = clonePtr(c.MinOnTimePercent)
	c.PreferredCarrierIDs = database.NewJSONB(cloneSlice(c.PreferredCarrierIDs.Data))
	c.ExcludedCarrierIDs = database.NewJSONB(cloneSlice(c.ExcludedCarrierIDs.Data))
	return &c
}
