package scheduler

import (
	"fmt"
	"maps"
	"slices"
)

// Outcome is the recorded result of one court in the current round. It is
// editable until the next round is generated.
type Outcome struct {
	Winner    int      `json:"winner"`
	WinnerIDs []string `json:"winner_ids"`
	LoserIDs  []string `json:"loser_ids"`
}

// RecordedMatch is a committed court result in the match journal. The journal
// keeps one entry per round and court, amended in place when a winner is
// corrected before the round closes.
type RecordedMatch struct {
	Round     int      `json:"round"`
	Court     int      `json:"court"`
	Winner    int      `json:"winner"`
	WinnerIDs []string `json:"winner_ids"`
	LoserIDs  []string `json:"loser_ids"`
}

// History accumulates the fairness counters a session's generator steers by.
// All counters are keyed by player ID (pair counters by PairKey) and survive
// roster edits; entries for departed players are simply never read again.
//
// History is not safe for concurrent use. Session serializes access to it.
type History struct {
	Round         int             `json:"round"`
	BenchCount    map[string]int  `json:"bench_count"`
	SinglesCount  map[string]int  `json:"singles_count"`
	TeammateCount map[string]int  `json:"teammate_count"`
	OpponentCount map[string]int  `json:"opponent_count"`
	Wins          map[string]int  `json:"wins"`
	Losses        map[string]int  `json:"losses"`
	LastBenched   map[string]bool `json:"last_benched,omitempty"`
	Outcomes      map[int]Outcome `json:"outcomes,omitempty"`
	Journal       []RecordedMatch `json:"journal,omitempty"`
}

func NewHistory() *History {
	return &History{
		BenchCount:    make(map[string]int),
		SinglesCount:  make(map[string]int),
		TeammateCount: make(map[string]int),
		OpponentCount: make(map[string]int),
		Wins:          make(map[string]int),
		Losses:        make(map[string]int),
		LastBenched:   make(map[string]bool),
		Outcomes:      make(map[int]Outcome),
	}
}

// Reset returns the history to its initial empty state.
func (h *History) Reset() {
	*h = *NewHistory()
}

// Teammates returns how many rounds a and b have played on the same team.
func (h *History) Teammates(a, b string) int {
	return h.TeammateCount[PairKey(a, b)]
}

// Opponents returns how many rounds a and b have faced each other.
func (h *History) Opponents(a, b string) int {
	return h.OpponentCount[PairKey(a, b)]
}

// finalizeRound folds a freshly generated round into the counters: teammate
// and opponent pairs per court split, singles appearances for 2-player
// courts, bench counts for everyone left off the courts. It advances the
// round number and opens a fresh outcome ledger.
func (h *History) finalizeRound(courts []Court, benched []Player) {
	for _, c := range courts {
		if len(c.Players) == 2 {
			for _, p := range c.Players {
				h.SinglesCount[p.ID]++
			}
		}
		if c.Teams == nil {
			continue
		}
		for _, pair := range teamPairs(c.Teams) {
			h.TeammateCount[PairKey(pair[0], pair[1])]++
		}
		for _, pair := range opponentPairs(c.Teams) {
			h.OpponentCount[PairKey(pair[0], pair[1])]++
		}
	}
	h.LastBenched = make(map[string]bool, len(benched))
	for _, p := range benched {
		h.BenchCount[p.ID]++
		h.LastBenched[p.ID] = true
	}
	h.Round++
	h.Outcomes = make(map[int]Outcome)
}

// applyOutcome records, corrects, or clears the winner of one current-round
// court. Re-recording the same winner over the same roster is a no-op.
// Changing either first takes back the previous award, so flipping a result
// twice lands the ledger exactly where it started. winner == WinnerNone
// clears the outcome.
func (h *History) applyOutcome(courtNumber int, teams *Teams, winner int) error {
	if winner != WinnerNone && winner != WinnerTeam1 && winner != WinnerTeam2 {
		return fmt.Errorf("invalid winner %d for court %d", winner, courtNumber)
	}
	var winners, losers []string
	if winner != WinnerNone {
		winTeam, loseTeam := teams.A, teams.B
		if winner == WinnerTeam2 {
			winTeam, loseTeam = teams.B, teams.A
		}
		winners, losers = PlayerIDs(winTeam), PlayerIDs(loseTeam)
	}
	prev, had := h.Outcomes[courtNumber]
	if had && prev.Winner == winner && sameRoster(prev.WinnerIDs, winners) {
		return nil
	}
	if had {
		for _, id := range prev.WinnerIDs {
			decrement(h.Wins, id)
		}
		for _, id := range prev.LoserIDs {
			decrement(h.Losses, id)
		}
		delete(h.Outcomes, courtNumber)
		h.dropJournal(h.Round, courtNumber)
	}
	if winner == WinnerNone {
		return nil
	}
	for _, id := range winners {
		h.Wins[id]++
	}
	for _, id := range losers {
		h.Losses[id]++
	}
	h.Outcomes[courtNumber] = Outcome{Winner: winner, WinnerIDs: winners, LoserIDs: losers}
	h.Journal = append(h.Journal, RecordedMatch{
		Round:     h.Round,
		Court:     courtNumber,
		Winner:    winner,
		WinnerIDs: winners,
		LoserIDs:  losers,
	})
	return nil
}

// sameRoster reports whether two ID lists name the same players, in any
// order.
func sameRoster(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := slices.Clone(a), slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}

// decrement takes one from a counter, dropping the key at zero so a flipped
// and re-flipped outcome leaves no residue behind.
func decrement(m map[string]int, id string) {
	if v := m[id]; v > 1 {
		m[id] = v - 1
	} else {
		delete(m, id)
	}
}

// dropJournal removes the committed entry for one round and court, if any.
func (h *History) dropJournal(round, court int) {
	for i := len(h.Journal) - 1; i >= 0; i-- {
		if h.Journal[i].Round == round && h.Journal[i].Court == court {
			h.Journal = slices.Delete(h.Journal, i, i+1)
			return
		}
	}
}

// Clone deep-copies the history so snapshots stay detached from the live
// session.
func (h *History) Clone() *History {
	c := &History{
		Round:         h.Round,
		BenchCount:    maps.Clone(h.BenchCount),
		SinglesCount:  maps.Clone(h.SinglesCount),
		TeammateCount: maps.Clone(h.TeammateCount),
		OpponentCount: maps.Clone(h.OpponentCount),
		Wins:          maps.Clone(h.Wins),
		Losses:        maps.Clone(h.Losses),
		LastBenched:   maps.Clone(h.LastBenched),
		Outcomes:      make(map[int]Outcome, len(h.Outcomes)),
		Journal:       make([]RecordedMatch, 0, len(h.Journal)),
	}
	for k, o := range h.Outcomes {
		o.WinnerIDs = slices.Clone(o.WinnerIDs)
		o.LoserIDs = slices.Clone(o.LoserIDs)
		c.Outcomes[k] = o
	}
	for _, m := range h.Journal {
		m.WinnerIDs = slices.Clone(m.WinnerIDs)
		m.LoserIDs = slices.Clone(m.LoserIDs)
		c.Journal = append(c.Journal, m)
	}
	return c
}

// normalize backfills nil maps after a JSON round-trip, where empty maps
// marshal away.
func (h *History) normalize() {
	if h.BenchCount == nil {
		h.BenchCount = make(map[string]int)
	}
	if h.SinglesCount == nil {
		h.SinglesCount = make(map[string]int)
	}
	if h.TeammateCount == nil {
		h.TeammateCount = make(map[string]int)
	}
	if h.OpponentCount == nil {
		h.OpponentCount = make(map[string]int)
	}
	if h.Wins == nil {
		h.Wins = make(map[string]int)
	}
	if h.Losses == nil {
		h.Losses = make(map[string]int)
	}
	if h.LastBenched == nil {
		h.LastBenched = make(map[string]bool)
	}
	if h.Outcomes == nil {
		h.Outcomes = make(map[int]Outcome)
	}
}
