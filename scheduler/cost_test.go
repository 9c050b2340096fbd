package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKey(t *testing.T) {
	assert.Equal(t, PairKey("a", "b"), PairKey("b", "a"), "pair key must ignore order")
	assert.NotEqual(t, PairKey("a", "b"), PairKey("a", "c"))
}

func TestBestSplitSeparatesRepeatTeammates(t *testing.T) {
	h := NewHistory()
	h.TeammateCount[PairKey("p1", "p2")] = 3

	m := NewCostModel(h, SoftWeights())
	group := []Player{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}, {ID: "p4"}}
	teams, cost := m.BestSplit(group)

	require.NotNil(t, teams)
	sameTeam := onSameTeam(teams, "p1", "p2")
	assert.False(t, sameTeam, "p1 and p2 have partnered three times and must be split up")
	assert.Zero(t, cost, "separating the only repeat pair prices at zero on fresh counters")
}

func TestBestSplitTieKeepsFirstEnumeration(t *testing.T) {
	m := NewCostModel(NewHistory(), SoftWeights())
	group := []Player{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}, {ID: "p4"}}

	teams, cost := m.BestSplit(group)

	require.NotNil(t, teams)
	assert.Zero(t, cost)
	assert.Equal(t, []string{"p1", "p2"}, PlayerIDs(teams.A), "empty history ties must keep the first split")
	assert.Equal(t, []string{"p3", "p4"}, PlayerIDs(teams.B))
}

func TestBestSplitPairsReturnsSingles(t *testing.T) {
	h := NewHistory()
	h.SinglesCount["p1"] = 2
	h.SinglesCount["p2"] = 1
	m := NewCostModel(h, SoftWeights())

	teams, cost := m.BestSplit([]Player{{ID: "p1"}, {ID: "p2"}})

	require.NotNil(t, teams)
	assert.Len(t, teams.A, 1)
	assert.Len(t, teams.B, 1)
	assert.Equal(t, SoftWeights().Singles*3, cost, "two-player court prices by prior singles appearances")
}

func TestBestSplitMemoIgnoresPlayerOrder(t *testing.T) {
	h := NewHistory()
	h.TeammateCount[PairKey("p1", "p4")] = 2
	m := NewCostModel(h, SoftWeights())

	forward := []Player{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}, {ID: "p4"}}
	backward := []Player{{ID: "p4"}, {ID: "p3"}, {ID: "p2"}, {ID: "p1"}}

	_, costA := m.BestSplit(forward)
	_, costB := m.BestSplit(backward)

	assert.Equal(t, costA, costB, "group identity must not depend on order")
	assert.Len(t, m.memo, 1, "both orders must share one memo entry")
}

func TestBestSplitMemoReset(t *testing.T) {
	h := NewHistory()
	m := NewCostModel(h, SoftWeights())
	group := []Player{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}, {ID: "p4"}}

	_, costBefore := m.BestSplit(group)
	require.Zero(t, costBefore)

	// History moves between rounds; without a reset the memo would serve
	// stale prices.
	h.TeammateCount[PairKey("p1", "p2")] = 1
	h.TeammateCount[PairKey("p3", "p4")] = 1
	h.TeammateCount[PairKey("p1", "p3")] = 1
	h.TeammateCount[PairKey("p2", "p4")] = 1
	h.TeammateCount[PairKey("p1", "p4")] = 1
	h.TeammateCount[PairKey("p2", "p3")] = 1

	_, stale := m.BestSplit(group)
	assert.Zero(t, stale, "memo hit is expected before the reset")

	m.Reset()
	_, fresh := m.BestSplit(group)
	want := SoftWeights().Teammate*2 + SoftWeights().Opponent*4
	assert.Equal(t, want, fresh, "post-reset price must see the new counters")
}

func TestPairTableMatchesDirectComputation(t *testing.T) {
	h := NewHistory()
	h.TeammateCount[PairKey("p1", "p2")] = 2
	h.OpponentCount[PairKey("p1", "p3")] = 4
	h.Wins["p1"] = 3
	h.Wins["p2"] = 2
	h.Losses["p3"] = 1
	h.Losses["p4"] = 5

	players := []Player{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}, {ID: "p4"}}

	direct := NewCostModel(h, SoftWeights())
	tabled := NewCostModel(h, SoftWeights())
	tabled.BuildPairTable(players)

	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			a, b := players[i].ID, players[j].ID
			assert.Equal(t, direct.pairCost(a, b), tabled.pairCost(a, b),
				"tabled cost must match direct computation for %s-%s", a, b)
		}
	}
}

func TestSkillPairTermAvoidsStackedTeams(t *testing.T) {
	h := NewHistory()
	h.Wins["p1"] = 4
	h.Wins["p2"] = 4
	h.Losses["p3"] = 4
	h.Losses["p4"] = 4
	m := NewCostModel(h, SoftWeights())

	group := []Player{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}, {ID: "p4"}}
	teams, _ := m.BestSplit(group)

	require.NotNil(t, teams)
	assert.False(t, onSameTeam(teams, "p1", "p2"), "two frequent winners should not stack one team")
	assert.False(t, onSameTeam(teams, "p3", "p4"), "two frequent losers should not stack one team")
}

func TestBalanceTermCountsWinAndLossGapsSeparately(t *testing.T) {
	h := NewHistory()
	h.Wins["p1"] = 2
	h.Losses["p1"] = 2
	m := NewCostModel(h, Weights{Balance: 1})

	// p1's wins and losses cancel if the gap is priced on net strength, yet
	// the side carrying the veteran is the stronger pick in either column.
	veteranSide := Teams{
		A: []Player{{ID: "p1"}, {ID: "p2"}},
		B: []Player{{ID: "p3"}, {ID: "p4"}},
	}
	assert.Equal(t, 4.0, m.splitCost(veteranSide),
		"a 2-2 record must price as a two-win and a two-loss gap, not cancel to zero")

	h.Wins["p5"] = 3
	h.Wins["p7"] = 1
	h.Losses["p7"] = 1
	mixed := Teams{
		A: []Player{{ID: "p5"}, {ID: "p6"}},
		B: []Player{{ID: "p7"}, {ID: "p8"}},
	}
	assert.Equal(t, 3.0, m.splitCost(mixed),
		"win gap |3-1| and loss gap |0-1| must sum, not offset")
}

func TestHardWeightsDominate(t *testing.T) {
	h := NewHistory()
	h.TeammateCount[PairKey("p1", "p2")] = 1
	m := NewCostModel(h, HardWeights())

	repeat := Teams{
		A: []Player{{ID: "p1"}, {ID: "p2"}},
		B: []Player{{ID: "p3"}, {ID: "p4"}},
	}
	assert.GreaterOrEqual(t, m.splitCost(repeat), 100000.0,
		"a repeat pairing under hard weights must dwarf every other term")
}

func TestRoundCostSumsCourts(t *testing.T) {
	h := NewHistory()
	h.OpponentCount[PairKey("p1", "p2")] = 1
	h.OpponentCount[PairKey("p3", "p4")] = 2
	m := NewCostModel(h, SoftWeights())

	courts := []Court{
		{Number: 1, Players: []Player{{ID: "p1"}, {ID: "p2"}}, Teams: &Teams{A: []Player{{ID: "p1"}}, B: []Player{{ID: "p2"}}}},
		{Number: 2, Players: []Player{{ID: "p3"}, {ID: "p4"}}, Teams: &Teams{A: []Player{{ID: "p3"}}, B: []Player{{ID: "p4"}}}},
	}

	want := m.CourtCost(courts[0]) + m.CourtCost(courts[1])
	assert.Equal(t, want, m.RoundCost(courts))
	assert.Equal(t, SoftWeights().Opponent*3, want)
}

func onSameTeam(t *Teams, a, b string) bool {
	for _, team := range [][]Player{t.A, t.B} {
		ids := PlayerIDs(team)
		var hasA, hasB bool
		for _, id := range ids {
			if id == a {
				hasA = true
			}
			if id == b {
				hasB = true
			}
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}
