package assignment

import (
	"math"
	"strings"
	"time"
)

// Scorer holds the fit functions the heuristic matcher combines.
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

// JaroWinkler returns the Jaro-Winkler similarity of a and b in [0, 1].
func (s *Scorer) JaroWinkler(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1.0
	}

	jaro := s.Jaro(a, b)

	prefixLen := 0
	for i := 0; i < len(a) && i < len(b) && i < 4; i++ {
		if a[i] != b[i] {
			break
		}
		prefixLen++
	}
	return jaro + float64(prefixLen)*0.1*(1.0-jaro)
}

func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(max(len(a), len(b))/2-1, 0)
	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)
		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2
	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// DateProximity is 1.0 for the same instant and decays linearly to 0.0 at maxDaysDiff.
func (s *Scorer) DateProximity(a, b time.Time, maxDaysDiff int) float64 {
	if a.IsZero() || b.IsZero() || maxDaysDiff <= 0 {
		return 0.0
	}
	daysDiff := math.Abs(a.Sub(b).Hours() / 24)
	if daysDiff >= float64(maxDaysDiff) {
		return 0.0
	}
	return 1.0 - daysDiff/float64(maxDaysDiff)
}

// WeightedScore averages scores by weight. Fields without a weight count once.
func (s *Scorer) WeightedScore(scores map[string]float64, weights map[string]float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}

	var totalWeight, weightedSum float64
	for field, score := range scores {
		weight := 1.0
		if w, ok := weights[field]; ok {
			weight = w
		}
		weightedSum += score * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0.0
	}
	return weightedSum / totalWeight
}
