package scheduler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Winner values for a court outcome. WinnerNone means no outcome recorded.
const (
	WinnerNone = iota
	WinnerTeam1
	WinnerTeam2
)

// Teams is a 1v1 or 2v2 split of a court's players.
type Teams struct {
	A []Player `json:"team1"`
	B []Player `json:"team2"`
}

// Court is one playing area in a round. Players holds 2 or 4 entries, never
// 3. Teams is set once the court's split has been decided. Winner is
// WinnerNone until an outcome is recorded.
type Court struct {
	Number  int      `json:"court_number"`
	Players []Player `json:"players"`
	Teams   *Teams   `json:"teams,omitempty"`
	Winner  int      `json:"winner,omitempty"`
	Manual  bool     `json:"is_manual,omitempty"`
}

// CloneCourts deep-copies a court list, including team slices, so callers can
// perturb the copy without aliasing the original.
func CloneCourts(courts []Court) []Court {
	out := make([]Court, len(courts))
	for i, c := range courts {
		out[i] = c
		out[i].Players = slices.Clone(c.Players)
		if c.Teams != nil {
			out[i].Teams = &Teams{
				A: slices.Clone(c.Teams.A),
				B: slices.Clone(c.Teams.B),
			}
		}
	}
	return out
}

// groupKey is the canonical identity of a court group: the sorted player IDs
// joined into one string, independent of order and of the team split.
func groupKey(players []Player) string {
	ids := PlayerIDs(players)
	slices.Sort(ids)
	return strings.Join(ids, "|")
}

// teamPairs returns the same-team ID pairs of a split: one pair per doubles
// team, none for singles.
func teamPairs(t *Teams) [][2]string {
	pairs := make([][2]string, 0, 2)
	for _, team := range [][]Player{t.A, t.B} {
		if len(team) == 2 {
			pairs = append(pairs, [2]string{team[0].ID, team[1].ID})
		}
	}
	return pairs
}

// opponentPairs returns every cross-team ID pair of a split: one for singles,
// four for doubles.
func opponentPairs(t *Teams) [][2]string {
	pairs := make([][2]string, 0, 4)
	for _, a := range t.A {
		for _, b := range t.B {
			pairs = append(pairs, [2]string{a.ID, b.ID})
		}
	}
	return pairs
}

// winningIDs returns the winning and losing player IDs for a court, or false
// when the court has no recorded winner or no team split.
func winningIDs(c Court) (winners, losers []string, ok bool) {
	if c.Teams == nil || (c.Winner != WinnerTeam1 && c.Winner != WinnerTeam2) {
		return nil, nil, false
	}
	winTeam, loseTeam := c.Teams.A, c.Teams.B
	if c.Winner == WinnerTeam2 {
		winTeam, loseTeam = c.Teams.B, c.Teams.A
	}
	return PlayerIDs(winTeam), PlayerIDs(loseTeam), true
}

// validateCourts rejects court lists that violate the structural invariants
// the engines guarantee. It exists for the service boundary, where court
// lists arrive from callers rather than from a generator.
func validateCourts(courts []Court) error {
	seen := make(map[string]struct{}, len(courts)*4)
	for _, c := range courts {
		if n := len(c.Players); n != 2 && n != 4 {
			return fmt.Errorf("court %d has %d players, want 2 or 4", c.Number, n)
		}
		if c.Teams != nil {
			split := append(slices.Clone(c.Teams.A), c.Teams.B...)
			if len(split) != len(c.Players) {
				return fmt.Errorf("court %d team split covers %d of %d players", c.Number, len(split), len(c.Players))
			}
			splitIDs := PlayerIDs(split)
			courtIDs := PlayerIDs(c.Players)
			slices.Sort(splitIDs)
			slices.Sort(courtIDs)
			if !slices.Equal(splitIDs, courtIDs) {
				return fmt.Errorf("court %d team split does not match its players", c.Number)
			}
		}
		dupes := lo.FindDuplicates(PlayerIDs(c.Players))
		if len(dupes) > 0 {
			return fmt.Errorf("court %d lists player %s more than once", c.Number, dupes[0])
		}
		for _, p := range c.Players {
			if _, ok := seen[p.ID]; ok {
				return fmt.Errorf("player %s appears on more than one court", p.ID)
			}
			seen[p.ID] = struct{}{}
		}
	}
	return nil
}
