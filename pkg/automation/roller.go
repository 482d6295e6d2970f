package automation

import "math/rand/v2"

// Roller draws the partial-rollout percentile.
type Roller interface {
	// Roll returns a uniform integer in [1, 100].
	Roll() int
}

type RandomRoller struct{}

func (RandomRoller) Roll() int {
	return rand.IntN(100) + 1
}
