package scheduler

import (
	"slices"
	"strings"

	"github.com/twmb/murmur3"
)

// Weights scales the cost terms the generators minimize. Larger means more
// averse.
type Weights struct {
	Singles   float64 `json:"singles"`
	Teammate  float64 `json:"teammate"`
	Opponent  float64 `json:"opponent"`
	SkillPair float64 `json:"skill_pair"`
	Balance   float64 `json:"balance"`
}

// SoftWeights treats repeat teammates as expensive but tradable. The shuffle
// based generators use these.
func SoftWeights() Weights {
	return Weights{Singles: 25, Teammate: 4, Opponent: 2, SkillPair: 1, Balance: 1}
}

// HardWeights makes any repeat teammate pairing dominate every other term,
// so the annealer treats them as near-constraints.
func HardWeights() Weights {
	w := SoftWeights()
	w.Teammate = 100000
	return w
}

// PairCost is one row of the pairing cost table: the cost of putting two
// players on the same team, and of putting them on opposite teams.
type PairCost struct {
	Teammate float64
	Opponent float64
}

type splitEntry struct {
	teams Teams
	cost  float64
}

// CostModel prices court assignments against a session's history. A model is
// built once per generation pass: Reset clears the split memo, and
// BuildPairTable snapshots per-pair costs for the present roster so the hot
// loops do two map lookups instead of recomputing terms.
//
// CostModel is not safe for concurrent use.
type CostModel struct {
	hist  *History
	w     Weights
	memo  map[uint64]splitEntry
	pairs map[string]PairCost
}

func NewCostModel(hist *History, w Weights) *CostModel {
	return &CostModel{
		hist: hist,
		w:    w,
		memo: make(map[uint64]splitEntry),
	}
}

// Reset clears the split memo and pair table. Call it at the top of each
// generation pass; history moves between rounds, so cached splits go stale.
func (m *CostModel) Reset() {
	m.memo = make(map[uint64]splitEntry)
	m.pairs = nil
}

// BuildPairTable precomputes the pairing costs for every pair of the given
// players. Lookups for pairs outside the table fall through to the direct
// computation, so the table is an accelerator, never a behavior change.
func (m *CostModel) BuildPairTable(players []Player) {
	m.pairs = make(map[string]PairCost, len(players)*(len(players)-1)/2)
	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			a, b := players[i], players[j]
			m.pairs[PairKey(a.ID, b.ID)] = PairCost{
				Teammate: m.teammateCost(a.ID, b.ID),
				Opponent: m.opponentCost(a.ID, b.ID),
			}
		}
	}
}

// teammateCost prices a same-team pairing: repeat teammates, plus a skill
// clustering term that rises when two frequent winners or two frequent
// losers end up together.
func (m *CostModel) teammateCost(a, b string) float64 {
	cost := m.w.Teammate * float64(m.hist.Teammates(a, b))
	cost += m.w.SkillPair * float64(m.hist.Wins[a]*m.hist.Wins[b]+m.hist.Losses[a]*m.hist.Losses[b])
	return cost
}

// opponentCost prices a cross-net pairing by how often the two have already
// faced each other.
func (m *CostModel) opponentCost(a, b string) float64 {
	return m.w.Opponent * float64(m.hist.Opponents(a, b))
}

func (m *CostModel) pairCost(a, b string) PairCost {
	if m.pairs != nil {
		if pc, ok := m.pairs[PairKey(a, b)]; ok {
			return pc
		}
	}
	return PairCost{Teammate: m.teammateCost(a, b), Opponent: m.opponentCost(a, b)}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// splitCost prices one concrete team split: same-team costs within each
// side, opponent costs across the net, balance terms for the win gap and
// the loss gap, and the singles penalty for 2-player courts, weighted by
// how often each has already played singles. Win and loss gaps count
// separately; an even record does not cancel to neutral.
func (m *CostModel) splitCost(t Teams) float64 {
	var cost float64
	for _, team := range [][]Player{t.A, t.B} {
		if len(team) == 2 {
			cost += m.pairCost(team[0].ID, team[1].ID).Teammate
		}
	}
	var winsA, lossesA, winsB, lossesB int
	for _, p := range t.A {
		winsA += m.hist.Wins[p.ID]
		lossesA += m.hist.Losses[p.ID]
	}
	for _, p := range t.B {
		winsB += m.hist.Wins[p.ID]
		lossesB += m.hist.Losses[p.ID]
	}
	for _, a := range t.A {
		for _, b := range t.B {
			cost += m.pairCost(a.ID, b.ID).Opponent
		}
	}
	cost += m.w.Balance * float64(absInt(winsA-winsB)+absInt(lossesA-lossesB))
	if len(t.A)+len(t.B) == 2 {
		for _, p := range []Player{t.A[0], t.B[0]} {
			cost += m.w.Singles * float64(m.hist.SinglesCount[p.ID])
		}
	}
	return cost
}

// BestSplit finds the cheapest team split for a group of 2 or 4 players and
// its cost. Ties keep the first split in enumeration order. Results are
// memoized per group, ignoring player order; callers get a detached copy.
func (m *CostModel) BestSplit(group []Player) (*Teams, float64) {
	switch len(group) {
	case 2:
		t := Teams{A: group[0:1], B: group[1:2]}
		return cloneTeams(t), m.splitCost(t)
	case 4:
	default:
		return nil, 0
	}
	key := groupHash(group)
	if e, ok := m.memo[key]; ok {
		return cloneTeams(e.teams), e.cost
	}
	splits := [3][2][2]int{
		{{0, 1}, {2, 3}},
		{{0, 2}, {1, 3}},
		{{0, 3}, {1, 2}},
	}
	var best Teams
	bestCost := -1.0
	for _, s := range splits {
		t := Teams{
			A: []Player{group[s[0][0]], group[s[0][1]]},
			B: []Player{group[s[1][0]], group[s[1][1]]},
		}
		if c := m.splitCost(t); bestCost < 0 || c < bestCost {
			best, bestCost = t, c
		}
	}
	m.memo[key] = splitEntry{teams: best, cost: bestCost}
	return cloneTeams(best), bestCost
}

// CourtCost prices a court that already has a split. Courts without one are
// priced at their best split.
func (m *CostModel) CourtCost(c Court) float64 {
	if c.Teams == nil {
		_, cost := m.BestSplit(c.Players)
		return cost
	}
	return m.splitCost(*c.Teams)
}

// RoundCost prices a whole candidate round.
func (m *CostModel) RoundCost(courts []Court) float64 {
	var total float64
	for _, c := range courts {
		total += m.CourtCost(c)
	}
	return total
}

func cloneTeams(t Teams) *Teams {
	return &Teams{A: slices.Clone(t.A), B: slices.Clone(t.B)}
}

// groupHash keys the split memo: murmur3 over the sorted, joined player IDs,
// so every ordering of the same group hits the same entry.
func groupHash(players []Player) uint64 {
	ids := PlayerIDs(players)
	slices.Sort(ids)
	return murmur3.StringSum64(strings.Join(ids, "|"))
}
