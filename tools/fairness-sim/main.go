// Command fairness-sim runs a session offline for a number of rounds with
// random match results and prints the per-player fairness counters. Handy for
// comparing how the strategies spread bench time and pairings before trusting
// one with a club night.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"

	"go.uber.org/zap"

	"github.com/courtmix/courtmix/scheduler"
)

var (
	flagPlayers  = flag.Int("players", 10, "Roster size")
	flagCourts   = flag.Int("courts", 2, "Courts available per round")
	flagRounds   = flag.Int("rounds", 20, "Rounds to simulate")
	flagStrategy = flag.String("strategy", "monte_carlo", "Strategy: monte_carlo | simulated_annealing | conflict_graph")
	flagSeed     = flag.Int64("seed", 1, "Random seed")
)

var logger = log.New(os.Stderr, "[fairness-sim] ", log.LstdFlags|log.Lmsgprefix)

func main() {
	flag.Parse()

	cfg := scheduler.NewConfig()
	cfg.Strategy = *flagStrategy
	cfg.Seed = *flagSeed
	session, err := scheduler.NewSession(zap.NewNop(), nil, cfg)
	if err != nil {
		logger.Fatalf("Session error: %v", err)
	}
	defer session.Close()

	ids := make([]string, 0, *flagPlayers)
	for i := 1; i <= *flagPlayers; i++ {
		id := fmt.Sprintf("p%02d", i)
		if _, err := session.AddPlayer(id, fmt.Sprintf("Player %d", i)); err != nil {
			logger.Fatalf("Roster error: %v", err)
		}
		ids = append(ids, id)
	}

	rng := rand.New(rand.NewSource(*flagSeed))
	for r := 0; r < *flagRounds; r++ {
		courts, err := session.Generate(*flagCourts, nil)
		if err != nil {
			logger.Fatalf("Generate error: %v", err)
		}
		for _, c := range courts {
			if err := session.UpdateWinner(c.Number, 1+rng.Intn(2)); err != nil {
				logger.Fatalf("Outcome error: %v", err)
			}
		}
	}

	hist := session.History()
	fmt.Printf("strategy=%s players=%d courts=%d rounds=%d\n\n", *flagStrategy, *flagPlayers, *flagCourts, hist.Round)
	fmt.Println("player  bench  singles  wins  losses")
	for _, id := range ids {
		fmt.Printf("%-6s  %5d  %7d  %4d  %6d\n",
			id, hist.BenchCount[id], hist.SinglesCount[id], hist.Wins[id], hist.Losses[id])
	}

	minBench, maxBench := hist.BenchCount[ids[0]], hist.BenchCount[ids[0]]
	for _, id := range ids {
		if hist.BenchCount[id] < minBench {
			minBench = hist.BenchCount[id]
		}
		if hist.BenchCount[id] > maxBench {
			maxBench = hist.BenchCount[id]
		}
	}
	maxTeammate, maxOpponent := 0, 0
	for _, v := range hist.TeammateCount {
		if v > maxTeammate {
			maxTeammate = v
		}
	}
	for _, v := range hist.OpponentCount {
		if v > maxOpponent {
			maxOpponent = v
		}
	}
	fmt.Printf("\nbench spread: %d  max teammate repeats: %d  max opponent repeats: %d\n",
		maxBench-minBench, maxTeammate, maxOpponent)
}
