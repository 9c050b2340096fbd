package scheduler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSession(t *testing.T, seed int64) *Session {
	t.Helper()
	cfg := testConfig()
	cfg.Seed = seed
	s, err := NewSession(zap.NewNop(), nil, cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func addTestPlayers(t *testing.T, s *Session, n int) {
	t.Helper()
	for _, p := range testPlayers(n) {
		_, err := s.AddPlayer(p.ID, p.Name)
		require.NoError(t, err)
	}
}

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSessionRoster(t *testing.T) {
	s := newTestSession(t, 1)

	p, err := s.AddPlayer("p1", "Alice")
	require.NoError(t, err)
	assert.True(t, p.Present, "new players are present by default")

	_, err = s.AddPlayer("p1", "Another Alice")
	assert.ErrorIs(t, err, ErrDuplicatePlayer)

	anon, err := s.AddPlayer("", "Walk-in")
	require.NoError(t, err)
	assert.NotEmpty(t, anon.ID, "an empty id gets generated")

	require.NoError(t, s.SetPresent("p1", false))
	players := s.Players()
	require.Len(t, players, 2)
	assert.False(t, players[0].Present)

	assert.ErrorIs(t, s.SetPresent("ghost", true), ErrUnknownPlayer)
	assert.ErrorIs(t, s.RemovePlayer("ghost"), ErrUnknownPlayer)
	require.NoError(t, s.RemovePlayer("p1"))
	assert.Len(t, s.Players(), 1)
}

func TestSessionGenerateEightPlayersTwoCourts(t *testing.T) {
	s := newTestSession(t, 42)
	addTestPlayers(t, s, 8)

	courts, err := s.Generate(2, nil)
	require.NoError(t, err)
	requireValidRound(t, courts, 2)
	require.Len(t, courts, 2)
	assert.Len(t, courts[0].Players, 4)
	assert.Len(t, courts[1].Players, 4)

	round, current := s.CurrentRound()
	assert.Equal(t, 1, round)
	assert.Len(t, current, 2)

	h := s.History()
	assert.Empty(t, h.BenchCount, "eight players fill two courts exactly")
	assert.Len(t, h.TeammateCount, 4, "two courts contribute four teammate pairs")
	assert.Len(t, h.OpponentCount, 8)
}

func TestSessionGenerateEmptyCases(t *testing.T) {
	t.Run("no roster", func(t *testing.T) {
		s := newTestSession(t, 1)
		courts, err := s.Generate(2, nil)
		require.NoError(t, err)
		assert.Empty(t, courts)
		round, _ := s.CurrentRound()
		assert.Zero(t, round, "an empty generation must not advance the round")
	})

	t.Run("single player", func(t *testing.T) {
		s := newTestSession(t, 1)
		addTestPlayers(t, s, 1)
		courts, err := s.Generate(2, nil)
		require.NoError(t, err)
		assert.Empty(t, courts)
	})

	t.Run("no courts", func(t *testing.T) {
		s := newTestSession(t, 1)
		addTestPlayers(t, s, 8)
		courts, err := s.Generate(0, nil)
		require.NoError(t, err)
		assert.Empty(t, courts)
	})

	t.Run("everyone absent", func(t *testing.T) {
		s := newTestSession(t, 1)
		addTestPlayers(t, s, 4)
		for _, p := range s.Players() {
			require.NoError(t, s.SetPresent(p.ID, false))
		}
		courts, err := s.Generate(1, nil)
		require.NoError(t, err)
		assert.Empty(t, courts)
	})
}

func TestSessionGenerateNinePlayersTwoCourts(t *testing.T) {
	s := newTestSession(t, 42)
	addTestPlayers(t, s, 9)

	courts, err := s.Generate(2, nil)
	require.NoError(t, err)
	requireValidRound(t, courts, 2)
	require.Len(t, courts, 2)
	assert.Len(t, courts[0].Players, 4)
	assert.Len(t, courts[1].Players, 2, "nine players bench up to an even on-court count")

	h := s.History()
	var benchTotal int
	for _, c := range h.BenchCount {
		benchTotal += c
	}
	assert.Equal(t, 3, benchTotal, "the adjusted bench plus the stranded player all sit")

	onCourt := 0
	for _, c := range courts {
		onCourt += len(c.Players)
	}
	assert.Equal(t, 9, onCourt+benchTotal, "every present player is on court or benched")
}

func TestSessionManualCourt(t *testing.T) {
	t.Run("four pinned players take court one", func(t *testing.T) {
		s := newTestSession(t, 42)
		addTestPlayers(t, s, 8)

		courts, err := s.Generate(2, []string{"p03", "p05", "p01", "p07"})
		require.NoError(t, err)
		require.Len(t, courts, 2)
		assert.True(t, courts[0].Manual)
		assert.ElementsMatch(t, []string{"p01", "p03", "p05", "p07"}, PlayerIDs(courts[0].Players))
		assert.Equal(t, 1, courts[0].Number)
		assert.Equal(t, 2, courts[1].Number)
		assert.False(t, courts[1].Manual)
	})

	t.Run("a trio is completed to four", func(t *testing.T) {
		s := newTestSession(t, 42)
		addTestPlayers(t, s, 8)

		courts, err := s.Generate(2, []string{"p01", "p02", "p03"})
		require.NoError(t, err)
		require.Len(t, courts, 2)
		assert.True(t, courts[0].Manual)
		require.Len(t, courts[0].Players, 4, "a manual trio gains a fourth")
		ids := PlayerIDs(courts[0].Players)
		assert.Subset(t, ids, []string{"p01", "p02", "p03"})
	})

	t.Run("a pinned pair forms a singles court", func(t *testing.T) {
		s := newTestSession(t, 42)
		addTestPlayers(t, s, 6)

		courts, err := s.Generate(2, []string{"p01", "p02"})
		require.NoError(t, err)
		require.Len(t, courts, 2)
		assert.True(t, courts[0].Manual)
		assert.Len(t, courts[0].Players, 2)
		assert.Len(t, courts[1].Players, 4)
	})

	t.Run("unknown player degrades to automatic", func(t *testing.T) {
		s := newTestSession(t, 42)
		addTestPlayers(t, s, 8)

		courts, err := s.Generate(2, []string{"p01", "p02", "ghost", "p04"})
		require.NoError(t, err)
		require.Len(t, courts, 2)
		for _, c := range courts {
			assert.False(t, c.Manual, "an invalid manual group must be ignored")
		}
	})

	t.Run("oversized group degrades to automatic", func(t *testing.T) {
		s := newTestSession(t, 42)
		addTestPlayers(t, s, 8)

		courts, err := s.Generate(2, []string{"p01", "p02", "p03", "p04", "p05"})
		require.NoError(t, err)
		require.Len(t, courts, 2)
		for _, c := range courts {
			assert.False(t, c.Manual)
		}
	})
}

func TestSessionUpdateWinner(t *testing.T) {
	s := newTestSession(t, 42)
	addTestPlayers(t, s, 4)

	courts, err := s.Generate(1, nil)
	require.NoError(t, err)
	require.Len(t, courts, 1)
	teamA := PlayerIDs(courts[0].Teams.A)
	teamB := PlayerIDs(courts[0].Teams.B)

	require.NoError(t, s.UpdateWinner(1, WinnerTeam1))
	require.NoError(t, s.UpdateWinner(1, WinnerTeam1), "repeating the same winner must be safe")

	h := s.History()
	for _, id := range teamA {
		assert.Equal(t, 1, h.Wins[id], "idempotent recording awards exactly one win to %s", id)
	}
	for _, id := range teamB {
		assert.Equal(t, 1, h.Losses[id])
	}

	require.NoError(t, s.UpdateWinner(1, WinnerTeam2))
	h = s.History()
	for _, id := range teamA {
		assert.Zero(t, h.Wins[id], "flipping the winner must take back %s's win", id)
		assert.Equal(t, 1, h.Losses[id])
	}
	for _, id := range teamB {
		assert.Equal(t, 1, h.Wins[id])
		assert.Zero(t, h.Losses[id])
	}

	require.NoError(t, s.UpdateWinner(1, WinnerNone))
	h = s.History()
	assert.Empty(t, h.Wins)
	assert.Empty(t, h.Losses)
	assert.Empty(t, h.Outcomes)

	assert.ErrorIs(t, s.UpdateWinner(9, WinnerTeam1), ErrUnknownCourt)
	assert.Error(t, s.UpdateWinner(1, 7))
}

func TestSessionRecordWinsBatch(t *testing.T) {
	s := newTestSession(t, 42)
	addTestPlayers(t, s, 8)

	_, err := s.Generate(2, nil)
	require.NoError(t, err)

	require.NoError(t, s.RecordWins(map[int]int{1: WinnerTeam1, 2: WinnerTeam2}))

	h := s.History()
	assert.Len(t, h.Outcomes, 2)
	assert.Len(t, h.Journal, 2)
	var wins int
	for _, c := range h.Wins {
		wins += c
	}
	assert.Equal(t, 4, wins, "two winning doubles teams hold four wins")
}

func TestSessionOutcomeLedgerClosesOnNextRound(t *testing.T) {
	s := newTestSession(t, 42)
	addTestPlayers(t, s, 8)

	_, err := s.Generate(2, nil)
	require.NoError(t, err)
	require.NoError(t, s.RecordWins(map[int]int{1: WinnerTeam1}))

	_, err = s.Generate(2, nil)
	require.NoError(t, err)

	h := s.History()
	assert.Empty(t, h.Outcomes, "a new round opens a clean ledger")
	assert.Len(t, h.Journal, 1, "committed results stay in the journal")
	var wins int
	for _, c := range h.Wins {
		wins += c
	}
	assert.Equal(t, 2, wins, "closing the ledger must not disturb the counters")
}

func TestSessionSnapshotRestoreRoundTrip(t *testing.T) {
	a := newTestSession(t, 42)
	addTestPlayers(t, a, 8)
	_, err := a.Generate(2, nil)
	require.NoError(t, err)
	require.NoError(t, a.UpdateWinner(1, WinnerTeam1))

	raw, err := json.Marshal(a.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	b := newTestSession(t, 43)
	require.NoError(t, b.Restore(&snap))

	if diff := cmp.Diff(a.History(), b.History(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("restored history differs (-a +b):\n%s", diff)
	}
	aRound, aCourts := a.CurrentRound()
	bRound, bCourts := b.CurrentRound()
	assert.Equal(t, aRound, bRound)
	if diff := cmp.Diff(aCourts, bCourts, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("restored courts differ (-a +b):\n%s", diff)
	}
	assert.Equal(t, a.Players(), b.Players())

	// The restored session must keep working against the restored history.
	courts, err := b.Generate(2, nil)
	require.NoError(t, err)
	requireValidRound(t, courts, 2)
	round, _ := b.CurrentRound()
	assert.Equal(t, 2, round)
}

func TestSessionRestoreRejectsCorruptCourts(t *testing.T) {
	s := newTestSession(t, 1)
	bad := &Snapshot{
		Courts: []Court{{Number: 1, Players: testPlayers(3)}},
	}
	assert.Error(t, s.Restore(bad), "a three player court must not restore")
}

func TestSessionResetHistory(t *testing.T) {
	s := newTestSession(t, 42)
	addTestPlayers(t, s, 8)
	_, err := s.Generate(2, nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateWinner(1, WinnerTeam1))

	s.ResetHistory()

	h := s.History()
	assert.Zero(t, h.Round)
	assert.Empty(t, h.TeammateCount)
	assert.Empty(t, h.Wins)
	assert.Empty(t, h.Journal)
	_, courts := s.CurrentRound()
	assert.Empty(t, courts)
	assert.Len(t, s.Players(), 8, "the roster survives a reset")
}

func TestSessionSetStrategy(t *testing.T) {
	s := newTestSession(t, 42)
	addTestPlayers(t, s, 8)

	require.NoError(t, s.SetStrategy(string(StrategyAnnealing)))
	assert.Equal(t, StrategyAnnealing, s.Strategy())

	courts, err := s.Generate(2, nil)
	require.NoError(t, err)
	requireValidRound(t, courts, 2)

	assert.Error(t, s.SetStrategy("round_robin"))
}

func TestSessionEvents(t *testing.T) {
	s := newTestSession(t, 42)
	_, ch := s.Events()

	_, err := s.AddPlayer("p1", "Alice")
	require.NoError(t, err)
	evt := recvEvent(t, ch)
	assert.Equal(t, EventRosterChanged, evt.Name)
	assert.Equal(t, "p1", evt.Properties["player_id"])

	addTestPlayers(t, s, 4)
	for i := 0; i < 4; i++ {
		recvEvent(t, ch)
	}

	_, err = s.Generate(1, nil)
	require.NoError(t, err)
	evt = recvEvent(t, ch)
	assert.Equal(t, EventRoundGenerated, evt.Name)
	assert.Equal(t, 1, evt.Round)
	assert.Equal(t, "1", evt.Properties["courts"])

	require.NoError(t, s.UpdateWinner(1, WinnerTeam1))
	evt = recvEvent(t, ch)
	assert.Equal(t, EventWinnerUpdated, evt.Name)

	s.ResetHistory()
	evt = recvEvent(t, ch)
	assert.Equal(t, EventHistoryReset, evt.Name)

	s.Close()
	_, open := <-ch
	assert.False(t, open, "closing the session closes subscriber channels")
}

// With an evenly divisible bench rotation, nobody sits noticeably more than
// anyone else.
func TestSessionBenchSpreadOverRounds(t *testing.T) {
	const rounds = 25
	s := newTestSession(t, 7)
	addTestPlayers(t, s, 10)

	for r := 0; r < rounds; r++ {
		courts, err := s.Generate(2, nil)
		require.NoError(t, err)
		require.Len(t, courts, 2)
	}

	h := s.History()
	low, high, total := -1, 0, 0
	for _, p := range s.Players() {
		c := h.BenchCount[p.ID]
		if low < 0 || c < low {
			low = c
		}
		if c > high {
			high = c
		}
		total += c
	}
	assert.Equal(t, rounds*2, total, "two players sit out each round")
	assert.LessOrEqual(t, high-low, 1, "bench duty must stay within one sit-out of even")
}
