package assignment

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	fieldEquipment    = "equipment"
	fieldLane         = "lane"
	fieldAvailability = "availability"
	fieldOnTime       = "on_time"

	// availabilityWindowDays is how far past pickup a carrier may free up and still score.
	availabilityWindowDays = 7
	// fuzzyEquipmentThreshold accepts spelling variants such as "dry van" vs "dryvan".
	fuzzyEquipmentThreshold = 0.9
)

var defaultWeights = map[string]float64{
	fieldEquipment:    0.35,
	fieldLane:         0.35,
	fieldAvailability: 0.15,
	fieldOnTime:       0.15,
}

// HeuristicMatcher scores active carriers by equipment, lane history,
// availability around pickup and on-time performance.
type HeuristicMatcher struct {
	carriers repositories.CarrierRepo
	scorer   *Scorer
	weights  map[string]float64
	logger   ectologger.Logger
}

func NewHeuristicMatcher(carriers repositories.CarrierRepo, logger ectologger.Logger) *HeuristicMatcher {
	return &HeuristicMatcher{
		carriers: carriers,
		scorer:   NewScorer(),
		weights:  defaultWeights,
		logger:   logger,
	}
}

func (m *HeuristicMatcher) Match(ctx context.Context, shipment *models.Shipment, limit int) ([]Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "HeuristicMatcher.Match")
	defer span.End()

	carriers, err := m.carriers.ListActive(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	candidates := make([]Candidate, 0, len(carriers))
	for i := range carriers {
		carrier := &carriers[i]
		scores, reasons := m.fit(carrier, shipment)
		if scores[fieldEquipment] == 0 && scores[fieldLane] == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Carrier:     carrier,
			CarrierID:   carrier.ID,
			CarrierName: carrier.Name,
			Source:      SourceMatcher,
			Score:       roundScore(m.scorer.WeightedScore(scores, m.weights) * 100),
			Reasons:     reasons,
		})
	}

	sortCandidates(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"shipment_id": shipment.ID,
		"scanned":     len(carriers),
		"matched":     len(candidates),
	}).Debug("Heuristic carrier match")
	return candidates, nil
}

func (m *HeuristicMatcher) fit(carrier *models.Carrier, shipment *models.Shipment) (map[string]float64, []string) {
	// A miss scores 0 so it still carries its weight in the average.
	scores := map[string]float64{fieldEquipment: 0, fieldLane: 0}
	var reasons []string

	for _, equipment := range carrier.EquipmentTypes.Data {
		score := m.scorer.JaroWinkler(equipment, shipment.EquipmentType)
		if score < fuzzyEquipmentThreshold {
			continue
		}
		if score > scores[fieldEquipment] {
			scores[fieldEquipment] = score
		}
	}
	if scores[fieldEquipment] > 0 {
		reasons = append(reasons, fmt.Sprintf("hauls %s", shipment.EquipmentType))
	}

	for _, lane := range carrier.Lanes.Data {
		origin := strings.EqualFold(lane.OriginState, shipment.OriginState)
		destination := strings.EqualFold(lane.DestinationState, shipment.DestinationState)
		var score float64
		switch {
		case origin && destination:
			score = min(0.6+0.04*float64(lane.LoadsHauled), 1.0)
		case origin || destination:
			score = 0.4
		}
		if score > scores[fieldLane] {
			scores[fieldLane] = score
		}
	}
	if scores[fieldLane] > 0 {
		reasons = append(reasons, fmt.Sprintf("lane %s->%s history", shipment.OriginState, shipment.DestinationState))
	}

	switch {
	case carrier.NextAvailableAt == nil || shipment.PickupDate.IsZero() || !carrier.NextAvailableAt.After(shipment.PickupDate):
		scores[fieldAvailability] = 1.0
	default:
		scores[fieldAvailability] = m.scorer.DateProximity(*carrier.NextAvailableAt, shipment.PickupDate, availabilityWindowDays)
	}

	scores[fieldOnTime] = carrier.OnTime() / 100
	return scores, reasons
}

// sortCandidates orders by score, then name and id so ties are stable.
func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].CarrierName != candidates[j].CarrierName {
			return candidates[i].CarrierName < candidates[j].CarrierName
		}
		return candidates[i].CarrierID.String() < candidates[j].CarrierID.String()
	})
}

func roundScore(score float64) float64 {
	return math.Round(score*100) / 100
}
