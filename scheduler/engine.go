package scheduler

import (
	"fmt"
	"math/rand"
	"slices"
)

// Strategy names a court-generation algorithm.
type Strategy string

const (
	// StrategyMonteCarlo samples random layouts and keeps the cheapest.
	StrategyMonteCarlo Strategy = "monte_carlo"
	// StrategyAnnealing refines a random layout by simulated annealing.
	StrategyAnnealing Strategy = "simulated_annealing"
	// StrategyConflictGraph peels off court groups that minimize repeat
	// teammate edges.
	StrategyConflictGraph Strategy = "conflict_graph"
)

// ParseStrategy validates a strategy name from config or an API request.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyMonteCarlo, StrategyAnnealing, StrategyConflictGraph:
		return Strategy(s), nil
	case "":
		return StrategyMonteCarlo, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Engine turns a playing pool into a set of courts with team splits. Assign
// never places a player twice, never builds a 3-player court, and returns at
// most maxCourts courts numbered from 1. The rng is the only source of
// randomness, so a fixed seed replays the same layout.
type Engine interface {
	Strategy() Strategy
	Assign(pool []Player, maxCourts int, rng *rand.Rand) []Court
}

// NewEngine builds the engine for a strategy, bound to the session history
// it will price against.
func NewEngine(strategy Strategy, hist *History, cfg *Config) (Engine, error) {
	switch strategy {
	case StrategyMonteCarlo:
		return &MonteCarloEngine{
			cost:   NewCostModel(hist, SoftWeights()),
			trials: cfg.MonteCarloTrials,
		}, nil
	case StrategyAnnealing:
		return &AnnealingEngine{
			cost:        NewCostModel(hist, HardWeights()),
			steps:       cfg.AnnealingSteps,
			temperature: cfg.AnnealingTemperature,
			cooling:     cfg.AnnealingCooling,
			floor:       cfg.AnnealingFloor,
		}, nil
	case StrategyConflictGraph:
		return &ConflictGraphEngine{
			cost:     NewCostModel(hist, SoftWeights()),
			hist:     hist,
			attempts: cfg.ConflictAttempts,
			samples:  cfg.ConflictSamples,
		}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q", strategy)
}

// sliceGroups cuts an ordered pool into court-sized groups: fours while both
// players and courts remain, then one pair if at least two are left. Anyone
// past the last group is stranded and treated as benched by the caller.
func sliceGroups(pool []Player, maxCourts int) [][]Player {
	if maxCourts <= 0 {
		return nil
	}
	groups := make([][]Player, 0, maxCourts)
	i := 0
	for len(groups) < maxCourts && len(pool)-i >= 4 {
		groups = append(groups, pool[i:i+4])
		i += 4
	}
	if len(groups) < maxCourts && len(pool)-i >= 2 {
		groups = append(groups, pool[i:i+2])
	}
	return groups
}

// randomSolution shuffles the pool, slices it into court groups, and splits
// each group at its cheapest. It returns the courts and the summed cost.
func randomSolution(cost *CostModel, pool []Player, maxCourts int, rng *rand.Rand) ([]Court, float64) {
	shuffled := slices.Clone(pool)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	groups := sliceGroups(shuffled, maxCourts)
	courts := make([]Court, 0, len(groups))
	var total float64
	for i, g := range groups {
		teams, c := cost.BestSplit(g)
		courts = append(courts, Court{Number: i + 1, Players: slices.Clone(g), Teams: teams})
		total += c
	}
	return courts, total
}
