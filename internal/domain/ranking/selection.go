package ranking

import (
	"math"
	"math/rand"

	"github.com/okian/charsort/internal/domain/model"
)

// rdWeightScale keeps softmax inputs in a range where RD differences of a few
// dozen points matter without one character taking all the mass.
const rdWeightScale = 15.0

// ratingBoost favours resolving the top of the ranking.
func ratingBoost(rating float64) float64 {
	clamped := math.Min(math.Max(rating, BoostRatingMin), BoostRatingMax)
	return math.Pow(clamped/BoostRatingMin, BoostRatingPow)
}

// characterWeight is the softmax input for picking the next character.
func characterWeight(r Rating) float64 {
	return r.RD / rdWeightScale * ratingBoost(r.Rating)
}

// softmax normalizes weights into probabilities, subtracting the maximum
// before exponentiating.
func softmax(weights []float64) []float64 {
	probs := make([]float64, len(weights))
	if len(weights) == 0 {
		return probs
	}
	maxW := weights[0]
	for _, w := range weights[1:] {
		maxW = math.Max(maxW, w)
	}
	var sum float64
	for i, w := range weights {
		probs[i] = math.Exp(w - maxW)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// normalize scales non-negative weights to sum to one. An all-zero input
// becomes uniform.
func normalize(weights []float64) []float64 {
	probs := make([]float64, len(weights))
	var sum float64
	for _, w := range weights {
		sum += w
	}
	for i, w := range weights {
		if sum > 0 {
			probs[i] = w / sum
		} else {
			probs[i] = 1 / float64(len(weights))
		}
	}
	return probs
}

// sample draws an index from probs.
func sample(rng *rand.Rand, probs []float64) int {
	u := rng.Float64()
	var acc float64
	for i, p := range probs {
		acc += p
		if u < acc {
			return i
		}
	}
	return len(probs) - 1
}

// daysSincePair is the staleness of a pairing, capped at RDResetDays.
// Pairs that never met count as fully stale.
func daysSincePair(idx model.PairIndex, a, b model.CharacterID, snap model.Snapshot) float64 {
	r, ok := idx.Get(a, b)
	if !ok {
		return RDResetDays
	}
	days := snap.Now.Sub(r.Timestamp).Hours() / hoursPerDay
	return math.Min(math.Max(days, 0), RDResetDays)
}

// opponentWeight combines staleness with the information value of the
// matchup, discouraging rematches and favouring informative pairings.
func opponentWeight(self, other Rating, days float64) float64 {
	return days * invDSquared(self, other)
}

// selector picks matchups for the Glicko engine.
type selector struct {
	snap  model.Snapshot
	table RatingTable
	idx   model.PairIndex
}

func newSelector(snap model.Snapshot, table RatingTable) selector {
	return selector{snap: snap, table: table, idx: model.NewPairIndex(snap.Records)}
}

// characterProbabilities is the softmax distribution over snap.Characters.
func (s selector) characterProbabilities() []float64 {
	weights := make([]float64, len(s.snap.Characters))
	for i, c := range s.snap.Characters {
		weights[i] = characterWeight(s.table[c.ID])
	}
	return softmax(weights)
}

// opponentWeights returns the candidates for self and their weights.
func (s selector) opponentWeights(self model.CharacterID) ([]model.CharacterID, []float64) {
	ids := make([]model.CharacterID, 0, len(s.snap.Characters)-1)
	weights := make([]float64, 0, len(s.snap.Characters)-1)
	for _, c := range s.snap.Characters {
		if c.ID == self {
			continue
		}
		ids = append(ids, c.ID)
		weights = append(weights, opponentWeight(s.table[self], s.table[c.ID], daysSincePair(s.idx, self, c.ID, s.snap)))
	}
	return ids, weights
}

// pick samples a character, then an opponent for it.
func (s selector) pick(rng *rand.Rand) (model.Matchup, bool) {
	if len(s.snap.Characters) < 2 {
		return model.Matchup{}, false
	}
	self := s.snap.Characters[sample(rng, s.characterProbabilities())].ID
	ids, weights := s.opponentWeights(self)
	other := ids[sample(rng, normalize(weights))]
	return model.Matchup{A: self, B: other}, true
}
