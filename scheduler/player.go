package scheduler

import (
	"github.com/samber/lo"
)

// Player is a roster entry. Identity across rounds is the ID; Name is
// display-only and never used for matching.
type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Present bool   `json:"is_present"`
}

// PairKey returns the canonical, order-independent key for a pair of player
// IDs. PairKey(a, b) == PairKey(b, a) for all a, b.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// PresentPlayers filters the roster down to the players marked present.
func PresentPlayers(players []Player) []Player {
	return lo.Filter(players, func(p Player, _ int) bool { return p.Present })
}

// PlayerIDs projects a list of players onto their IDs, preserving order.
func PlayerIDs(players []Player) []string {
	return lo.Map(players, func(p Player, _ int) string { return p.ID })
}

// BenchedPlayers returns the present players that appear on none of the given
// courts. The result preserves roster order.
func BenchedPlayers(courts []Court, players []Player) []Player {
	assigned := make(map[string]struct{}, len(courts)*4)
	for _, c := range courts {
		for _, p := range c.Players {
			assigned[p.ID] = struct{}{}
		}
	}
	benched := make([]Player, 0, len(players))
	for _, p := range players {
		if !p.Present {
			continue
		}
		if _, ok := assigned[p.ID]; !ok {
			benched = append(benched, p)
		}
	}
	return benched
}
