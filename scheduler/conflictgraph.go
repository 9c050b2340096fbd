package scheduler

import (
	"math/rand"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

// ConflictGraphEngine builds a graph whose edges are pairs that have already
// played together, then peels off one court group at a time, preferring
// groups that are independent sets. Only when no conflict-free group exists
// does it fall back to minimizing repeat magnitude.
type ConflictGraphEngine struct {
	cost     *CostModel
	hist     *History
	attempts int
	samples  int
}

func (e *ConflictGraphEngine) Strategy() Strategy { return StrategyConflictGraph }

func (e *ConflictGraphEngine) Assign(pool []Player, maxCourts int, rng *rand.Rand) []Court {
	if len(pool) < 2 || maxCourts <= 0 {
		return nil
	}
	e.cost.Reset()
	e.cost.BuildPairTable(pool)

	remaining := slices.Clone(pool)
	courts := make([]Court, 0, maxCourts)
	for len(remaining) >= 2 && len(courts) < maxCourts {
		size := 4
		if len(remaining) < 4 {
			size = 2
		}
		idx := e.pickGroup(remaining, size, rng)
		group := make([]Player, 0, size)
		for _, i := range idx {
			group = append(group, remaining[i])
		}
		teams, _ := e.cost.BestSplit(group)
		courts = append(courts, Court{Number: len(courts) + 1, Players: group, Teams: teams})
		remaining = removeIndices(remaining, idx)
	}
	return courts
}

// pickGroup selects indices of a court group from the remaining pool. It
// tries random greedy independent sets first, then a fewest-conflicts greedy
// build, then random sampling scored by total repeat count, keeping the best
// seen.
func (e *ConflictGraphEngine) pickGroup(pool []Player, size int, rng *rand.Rand) []int {
	n := len(pool)
	if n <= size {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	adj := make([]*bitset.BitSet, n)
	for i := range adj {
		adj[i] = bitset.New(uint(n))
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if e.hist.Teammates(pool[i].ID, pool[j].ID) > 0 {
				adj[i].Set(uint(j))
				adj[j].Set(uint(i))
			}
		}
	}

	attempts := e.attempts
	if attempts <= 0 {
		attempts = DefaultConflictAttempts
	}
	for a := 0; a < attempts; a++ {
		chosen := bitset.New(uint(n))
		idx := make([]int, 0, size)
		for _, v := range rng.Perm(n) {
			if adj[v].IntersectionCardinality(chosen) != 0 {
				continue
			}
			chosen.Set(uint(v))
			idx = append(idx, v)
			if len(idx) == size {
				return idx
			}
		}
	}

	greedy := e.greedyGroup(pool, size)
	if e.groupScore(pool, greedy) == 0 {
		return greedy
	}

	samples := e.samples
	if samples <= 0 {
		samples = DefaultConflictSamples
	}
	best := greedy
	bestScore := e.groupScore(pool, best)
	for s := 0; s < samples && bestScore > 0; s++ {
		idx := rng.Perm(n)[:size]
		if score := e.groupScore(pool, idx); score < bestScore {
			best, bestScore = idx, score
		}
	}
	return best
}

// greedyGroup starts from the player with the fewest conflict edges and
// keeps adding whichever player brings the fewest new edges against the
// chosen set. Repeat weight only breaks ties: on a dense graph edge counts
// all tie, and weights still steer toward the least-repeated players.
func (e *ConflictGraphEngine) greedyGroup(pool []Player, size int) []int {
	n := len(pool)
	weight := func(i, j int) int { return e.hist.Teammates(pool[i].ID, pool[j].ID) }

	start, startDeg, startW := 0, -1, 0
	for v := 0; v < n; v++ {
		d, w := 0, 0
		for u := 0; u < n; u++ {
			if u == v {
				continue
			}
			if c := weight(v, u); c > 0 {
				d++
				w += c
			}
		}
		if startDeg < 0 || d < startDeg || (d == startDeg && w < startW) {
			start, startDeg, startW = v, d, w
		}
	}
	idx := []int{start}
	chosen := make(map[int]bool, size)
	chosen[start] = true
	for len(idx) < size {
		next, nextDeg, nextW := -1, 0, 0
		for v := 0; v < n; v++ {
			if chosen[v] {
				continue
			}
			d, w := 0, 0
			for _, u := range idx {
				if c := weight(v, u); c > 0 {
					d++
					w += c
				}
			}
			if next < 0 || d < nextDeg || (d == nextDeg && w < nextW) {
				next, nextDeg, nextW = v, d, w
			}
		}
		chosen[next] = true
		idx = append(idx, next)
	}
	return idx
}

// groupScore sums the repeat-teammate counts across every pair in the group.
// Zero means the group is an independent set of the conflict graph.
func (e *ConflictGraphEngine) groupScore(pool []Player, idx []int) int {
	var score int
	for i := 0; i < len(idx); i++ {
		for j := i + 1; j < len(idx); j++ {
			score += e.hist.Teammates(pool[idx[i]].ID, pool[idx[j]].ID)
		}
	}
	return score
}

// removeIndices drops the given indices from the pool, preserving the order
// of everyone else.
func removeIndices(pool []Player, idx []int) []Player {
	drop := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		drop[i] = struct{}{}
	}
	out := make([]Player, 0, len(pool)-len(idx))
	for i, p := range pool {
		if _, ok := drop[i]; !ok {
			out = append(out, p)
		}
	}
	return out
}
