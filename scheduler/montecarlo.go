package scheduler

import (
	"math/rand"
)

// MonteCarloEngine samples whole-round layouts at random and keeps the
// cheapest one seen. Ties keep the earliest sample, so a fixed seed always
// reproduces the same round.
type MonteCarloEngine struct {
	cost   *CostModel
	trials int
}

func (e *MonteCarloEngine) Strategy() Strategy { return StrategyMonteCarlo }

func (e *MonteCarloEngine) Assign(pool []Player, maxCourts int, rng *rand.Rand) []Court {
	if len(pool) < 2 || maxCourts <= 0 {
		return nil
	}
	e.cost.Reset()
	e.cost.BuildPairTable(pool)
	trials := e.trials
	if trials <= 0 {
		trials = DefaultMonteCarloTrials
	}
	var best []Court
	bestCost := -1.0
	for t := 0; t < trials; t++ {
		courts, c := randomSolution(e.cost, pool, maxCourts, rng)
		if bestCost < 0 || c < bestCost {
			best, bestCost = courts, c
		}
		if bestCost == 0 {
			break
		}
	}
	return best
}
