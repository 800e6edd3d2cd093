package ranking

import (
	"math/rand"
	"time"
)

// Option applies a configuration option to an engine.
type Option func(*settings)

type settings struct {
	clock           func() time.Time
	rng             *rand.Rand
	confidenceBoost int
}

func defaultSettings() settings {
	return settings{
		clock:           time.Now,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // sampling, not security
		confidenceBoost: DefaultConfidenceBoost,
	}
}

// WithClock sets the source of "now" used for time decay.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRand sets the random source used by the Glicko selection policy.
// Pass a seeded generator for reproducible matchups.
func WithRand(rng *rand.Rand) Option {
	return func(s *settings) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithSeed seeds a private random source.
func WithSeed(seed int64) Option {
	return func(s *settings) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // sampling, not security
	}
}

// WithConfidenceBoost sets how many times each record is replayed by the
// Glicko engine. Values below 1 are ignored.
func WithConfidenceBoost(n int) Option {
	return func(s *settings) {
		if n >= 1 {
			s.confidenceBoost = n
		}
	}
}
