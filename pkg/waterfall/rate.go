package waterfall

import "math"

// RateForStep returns the offer at step. The rate grows linearly from base by
// increasePercent per step and does not compound.
func RateForStep(baseCents int64, increasePercent float64, step int) int64 {
	return int64(math.Round(float64(baseCents) * (1 + increasePercent/100*float64(step))))
}
