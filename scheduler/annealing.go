package scheduler

import (
	"math"
	"math/rand"
)

// AnnealingEngine starts from a random layout and walks the neighborhood of
// player swaps under a cooling temperature. Repeat-teammate pairings carry a
// prohibitive weight, so the walk treats them as constraints to escape
// rather than costs to trade.
type AnnealingEngine struct {
	cost        *CostModel
	steps       int
	temperature float64
	cooling     float64
	floor       float64
}

func (e *AnnealingEngine) Strategy() Strategy { return StrategyAnnealing }

func (e *AnnealingEngine) Assign(pool []Player, maxCourts int, rng *rand.Rand) []Court {
	if len(pool) < 2 || maxCourts <= 0 {
		return nil
	}
	e.cost.Reset()
	e.cost.BuildPairTable(pool)

	steps := e.steps
	if steps <= 0 {
		steps = DefaultAnnealingSteps
	}
	temp := e.temperature
	if temp <= 0 {
		temp = DefaultAnnealingTemperature
	}
	cooling := e.cooling
	if cooling <= 0 || cooling >= 1 {
		cooling = DefaultAnnealingCooling
	}
	floor := e.floor
	if floor <= 0 {
		floor = DefaultAnnealingFloor
	}

	cur, curCost := randomSolution(e.cost, pool, maxCourts, rng)
	best, bestCost := CloneCourts(cur), curCost

	for i := 0; i < steps && bestCost > 0; i++ {
		cand := e.perturb(cur, rng)
		candCost := e.cost.RoundCost(cand)
		delta := candCost - curCost
		if delta < 0 || (temp > floor && rng.Float64() < math.Exp(-delta/temp)) {
			cur, curCost = cand, candCost
			if curCost < bestCost {
				best, bestCost = CloneCourts(cur), curCost
			}
		}
		temp *= cooling
		if temp < floor {
			temp = floor
		}
	}
	return best
}

// perturb produces a neighboring layout without touching the input. Court
// sizes never change; only membership and team splits move.
func (e *AnnealingEngine) perturb(courts []Court, rng *rand.Rand) []Court {
	cand := CloneCourts(courts)
	move := rng.Float64()
	switch {
	case move < 0.2:
		e.swapWithin(cand, rng)
	case len(cand) >= 2 && move < 0.7:
		e.swapBetween(cand, rng)
	default:
		e.resplitWithin(cand, rng)
	}
	return cand
}

// swapBetween exchanges one player between two distinct courts and re-splits
// both at their cheapest.
func (e *AnnealingEngine) swapBetween(cand []Court, rng *rand.Rand) {
	ci := rng.Intn(len(cand))
	cj := rng.Intn(len(cand) - 1)
	if cj >= ci {
		cj++
	}
	a, b := &cand[ci], &cand[cj]
	pi, pj := rng.Intn(len(a.Players)), rng.Intn(len(b.Players))
	a.Players[pi], b.Players[pj] = b.Players[pj], a.Players[pi]
	a.Teams, _ = e.cost.BestSplit(a.Players)
	b.Teams, _ = e.cost.BestSplit(b.Players)
}

// swapWithin trades one player across the net of a single court: the court
// keeps its four members but lands on a different one of the three possible
// team splits. Courts without a 2v2 split are left alone.
func (e *AnnealingEngine) swapWithin(cand []Court, rng *rand.Rand) {
	c := &cand[rng.Intn(len(cand))]
	if c.Teams == nil || len(c.Teams.A) != 2 || len(c.Teams.B) != 2 {
		return
	}
	i, j := rng.Intn(2), rng.Intn(2)
	c.Teams.A[i], c.Teams.B[j] = c.Teams.B[j], c.Teams.A[i]
}

// resplitWithin forces one court onto a random team split rather than its
// best one, giving the walk a way through uphill intermediate states.
func (e *AnnealingEngine) resplitWithin(cand []Court, rng *rand.Rand) {
	c := &cand[rng.Intn(len(cand))]
	if len(c.Players) != 4 {
		return
	}
	perm := rng.Perm(4)
	c.Teams = &Teams{
		A: []Player{c.Players[perm[0]], c.Players[perm[1]]},
		B: []Player{c.Players[perm[2]], c.Players[perm[3]]},
	}
}
