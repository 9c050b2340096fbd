package scheduler

import (
	"github.com/intinig/go-openskill/rating"
	"github.com/intinig/go-openskill/types"
	"go.uber.org/thriftrw/ptr"
)

// RatingDefaults seeds the OpenSkill rating every player starts from.
type RatingDefaults struct {
	Z     int     `json:"z" yaml:"z"`
	Mu    float64 `json:"mu" yaml:"mu"`
	Sigma float64 `json:"sigma" yaml:"sigma"`
	Tau   float64 `json:"tau" yaml:"tau"`
}

// NewRatingDefaults returns the standard OpenSkill starting point.
func NewRatingDefaults() RatingDefaults {
	return RatingDefaults{Z: 3, Mu: 25.0, Sigma: 25.0 / 3.0, Tau: 0.3}
}

func (d RatingDefaults) rating() types.Rating {
	r := types.Rating{Z: d.Z, Mu: d.Mu, Sigma: d.Sigma}
	if r.Z <= 0 {
		r.Z = 3
	}
	if r.Mu <= 0 {
		r.Mu = 25.0
	}
	if r.Sigma <= 0 {
		r.Sigma = r.Mu / float64(r.Z)
	}
	return r
}

// RatingBook derives OpenSkill ratings for a session by replaying its match
// journal from the start. Replays keep corrections simple: a flipped winner
// amends the journal and the next replay lands on the right ratings without
// any reverse-update math.
type RatingBook struct {
	defaults RatingDefaults
}

func NewRatingBook(defaults RatingDefaults) *RatingBook {
	return &RatingBook{defaults: defaults}
}

// Replay folds every journal entry into a fresh rating map, winner ranked
// first in each match.
func (b *RatingBook) Replay(journal []RecordedMatch) map[string]types.Rating {
	ratings := make(map[string]types.Rating)
	for _, m := range journal {
		b.rate(ratings, m)
	}
	return ratings
}

func (b *RatingBook) rate(ratings map[string]types.Rating, m RecordedMatch) {
	if len(m.WinnerIDs) == 0 || len(m.LoserIDs) == 0 {
		return
	}
	teams := []types.Team{
		b.team(ratings, m.WinnerIDs),
		b.team(ratings, m.LoserIDs),
	}
	tau := b.defaults.Tau
	if tau <= 0 {
		tau = 0.3
	}
	rated := rating.Rate(teams, &types.OpenSkillOptions{
		Tau: ptr.Float64(tau),
	})
	for i, id := range m.WinnerIDs {
		ratings[id] = rated[0][i]
	}
	for i, id := range m.LoserIDs {
		ratings[id] = rated[1][i]
	}
}

func (b *RatingBook) team(ratings map[string]types.Rating, ids []string) types.Team {
	team := make(types.Team, 0, len(ids))
	for _, id := range ids {
		r, ok := ratings[id]
		if !ok {
			r = b.defaults.rating()
		}
		team = append(team, r)
	}
	return team
}

// PlayerRating is the reported view of one player's skill estimate.
type PlayerRating struct {
	Mu      float64 `json:"mu"`
	Sigma   float64 `json:"sigma"`
	Ordinal float64 `json:"ordinal"`
}

// CourtBalance reports how even one current court is: summed team strength
// on each side and the OpenSkill draw probability between the two splits.
type CourtBalance struct {
	Court      int     `json:"court"`
	Team1Mu    float64 `json:"team1_mu"`
	Team2Mu    float64 `json:"team2_mu"`
	DrawChance float64 `json:"draw_chance"`
}

// BalanceReport is the rating view of a session: per-player estimates from
// the journal replay and per-court evenness for the current round.
type BalanceReport struct {
	Round   int                     `json:"round"`
	Courts  []CourtBalance          `json:"courts"`
	Ratings map[string]PlayerRating `json:"ratings"`
}

// buildBalanceReport replays the journal and scores each current court that
// has a team split.
func (b *RatingBook) buildBalanceReport(round int, courts []Court, journal []RecordedMatch) *BalanceReport {
	ratings := b.Replay(journal)
	report := &BalanceReport{
		Round:   round,
		Courts:  make([]CourtBalance, 0, len(courts)),
		Ratings: make(map[string]PlayerRating, len(ratings)),
	}
	for id, r := range ratings {
		report.Ratings[id] = PlayerRating{Mu: r.Mu, Sigma: r.Sigma, Ordinal: rating.Ordinal(r)}
	}
	for _, c := range courts {
		if c.Teams == nil {
			continue
		}
		team1 := b.team(ratings, PlayerIDs(c.Teams.A))
		team2 := b.team(ratings, PlayerIDs(c.Teams.B))
		report.Courts = append(report.Courts, CourtBalance{
			Court:      c.Number,
			Team1Mu:    teamStrength(team1),
			Team2Mu:    teamStrength(team2),
			DrawChance: rating.PredictDraw([]types.Team{team1, team2}, nil),
		})
	}
	return report
}

func teamStrength(t types.Team) float64 {
	var s float64
	for _, r := range t {
		s += r.Mu
	}
	return s
}
