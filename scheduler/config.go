package scheduler

import (
	"fmt"
)

// Tuning defaults. Chosen so a round over a few dozen players generates in
// well under a millisecond on commodity hardware.
const (
	DefaultMonteCarloTrials     = 300
	DefaultAnnealingSteps       = 3000
	DefaultAnnealingTemperature = 10.0
	DefaultAnnealingCooling     = 0.995
	DefaultAnnealingFloor       = 0.01
	DefaultConflictAttempts     = 100
	DefaultConflictSamples      = 100
	DefaultEventQueueSize       = 64
)

// Config tunes a session: which strategy generates rounds, how hard each
// strategy searches, the bench rotation policy, and the rating model seeds.
// The zero value is not usable; start from NewConfig.
type Config struct {
	Strategy             string         `json:"strategy" yaml:"strategy"`
	MonteCarloTrials     int            `json:"monte_carlo_trials" yaml:"monte_carlo_trials"`
	AnnealingSteps       int            `json:"annealing_steps" yaml:"annealing_steps"`
	AnnealingTemperature float64        `json:"annealing_temperature" yaml:"annealing_temperature"`
	AnnealingCooling     float64        `json:"annealing_cooling" yaml:"annealing_cooling"`
	AnnealingFloor       float64        `json:"annealing_floor" yaml:"annealing_floor"`
	ConflictAttempts     int            `json:"conflict_attempts" yaml:"conflict_attempts"`
	ConflictSamples      int            `json:"conflict_samples" yaml:"conflict_samples"`
	NoConsecutiveBench   bool           `json:"no_consecutive_bench" yaml:"no_consecutive_bench"`
	EventQueueSize       int            `json:"event_queue_size" yaml:"event_queue_size"`
	Seed                 int64          `json:"seed" yaml:"seed"`
	Rating               RatingDefaults `json:"rating" yaml:"rating"`
}

// NewConfig returns the default tuning. Seed zero means each session seeds
// itself from the wall clock.
func NewConfig() *Config {
	return &Config{
		Strategy:             string(StrategyMonteCarlo),
		MonteCarloTrials:     DefaultMonteCarloTrials,
		AnnealingSteps:       DefaultAnnealingSteps,
		AnnealingTemperature: DefaultAnnealingTemperature,
		AnnealingCooling:     DefaultAnnealingCooling,
		AnnealingFloor:       DefaultAnnealingFloor,
		ConflictAttempts:     DefaultConflictAttempts,
		ConflictSamples:      DefaultConflictSamples,
		NoConsecutiveBench:   true,
		EventQueueSize:       DefaultEventQueueSize,
		Rating:               NewRatingDefaults(),
	}
}

// Validate rejects tunings the engines cannot run with.
func (c *Config) Validate() error {
	if _, err := ParseStrategy(c.Strategy); err != nil {
		return err
	}
	if c.MonteCarloTrials < 0 || c.AnnealingSteps < 0 || c.ConflictAttempts < 0 || c.ConflictSamples < 0 {
		return fmt.Errorf("search budgets must not be negative")
	}
	if c.AnnealingCooling != 0 && (c.AnnealingCooling <= 0 || c.AnnealingCooling >= 1) {
		return fmt.Errorf("annealing cooling must be inside (0, 1), got %v", c.AnnealingCooling)
	}
	if c.AnnealingTemperature < 0 || c.AnnealingFloor < 0 {
		return fmt.Errorf("annealing temperatures must not be negative")
	}
	return nil
}

// Clone returns a copy safe to mutate without touching the original.
func (c *Config) Clone() *Config {
	cc := *c
	return &cc
}
