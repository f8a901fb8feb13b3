package game

import "time"

// Config holds the timing policy of the game. The values are fixed by
// design; tests shorten them, production uses DefaultConfig.
type Config struct {
	// RoundDuration is how long a round accepts picks.
	RoundDuration time.Duration
	// RevealInterval is the cadence at which numbers appear.
	RevealInterval time.Duration
	// NumbersPerRound is how many numbers are revealed in a round.
	NumbersPerRound int
	// Cooldown is the pause between a round ending and the next starting.
	Cooldown time.Duration
	// StartRetryDelay is how long to wait before retrying a failed round
	// start.
	StartRetryDelay time.Duration
}

// DefaultConfig returns the standard game policy: a 10 second round, one
// reveal per second, 10 numbers, a 3 second cooldown.
func DefaultConfig() Config {
	return Config{
		RoundDuration:   10 * time.Second,
		RevealInterval:  time.Second,
		NumbersPerRound: 10,
		Cooldown:        3 * time.Second,
		StartRetryDelay: time.Second,
	}
}
