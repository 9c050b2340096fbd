package scheduler

import (
	"math/rand"
	"slices"
	"sort"
)

// benchSpots decides how many players sit out given the pool size and the
// courts available. Overflow past full courts benches first; one more spot is
// added when the leftover parity would otherwise force a 3-player court.
func benchSpots(poolSize, maxCourts int) int {
	spots := poolSize - 4*maxCourts
	if spots < 0 {
		spots = 0
	}
	remaining := poolSize - spots
	if (remaining-spots)%2 != 0 {
		spots++
	}
	if spots > poolSize {
		spots = poolSize
	}
	return spots
}

// selectBench picks which players sit out and returns them alongside the
// players who take the courts. Fewest prior benches sit first; with
// noConsecutive set, anyone who sat out last round is pushed to the back of
// the order. Ties break randomly via the pre-sort shuffle, and the returned
// playing pool keeps that shuffle, so downstream generators start from a
// randomized order.
func selectBench(pool []Player, spots int, hist *History, rng *rand.Rand, noConsecutive bool) (benched, playing []Player) {
	ordered := slices.Clone(pool)
	rng.Shuffle(len(ordered), func(i, j int) {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	})
	sort.SliceStable(ordered, func(i, j int) bool {
		if noConsecutive {
			si, sj := hist.LastBenched[ordered[i].ID], hist.LastBenched[ordered[j].ID]
			if si != sj {
				return !si
			}
		}
		return hist.BenchCount[ordered[i].ID] < hist.BenchCount[ordered[j].ID]
	})
	if spots > len(ordered) {
		spots = len(ordered)
	}
	return ordered[:spots], ordered[spots:]
}
