package ranking

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/charsort/internal/domain/model"
)

// Glicko model constants.
const (
	DefaultRating = 1500.0
	DefaultRD     = 350.0
	// TypicalRD is the deviation of a well-established character. An RD
	// decays from TypicalRD back to DefaultRD over RDResetDays.
	TypicalRD   = 50.0
	MinRD       = 30.0
	RDResetDays = 90.0

	// DefaultConfidenceBoost is how many times each record is replayed.
	DefaultConfidenceBoost = 3

	// Selection boost: higher rated characters are resolved first.
	BoostRatingMax = 2500.0
	BoostRatingMin = 500.0
	BoostRatingPow = 0.43

	hoursPerDay = 24.0
)

// q converts between the rating scale and natural-log odds.
var q = math.Ln10 / 400

// rdGrowthPerDay is c² in RD' = sqrt(RD² + c²·days).
var rdGrowthPerDay = (DefaultRD*DefaultRD - TypicalRD*TypicalRD) / RDResetDays

// Rating is the derived Glicko state of one character.
type Rating struct {
	Rating    float64   `json:"rating"`
	RD        float64   `json:"rd"`
	LastMatch time.Time `json:"last_match"` // zero when never compared
}

// NewRating returns the state of a character with no comparisons.
func NewRating() Rating {
	return Rating{Rating: DefaultRating, RD: DefaultRD}
}

// Score is the conservative ranking key rating − 2·RD.
func (r Rating) Score() float64 { return r.Rating - 2*r.RD }

// Interval returns the 2·RD confidence interval around the rating.
func (r Rating) Interval() (low, high float64) {
	return r.Rating - 2*r.RD, r.Rating + 2*r.RD
}

// rdAfterTime grows rd with the days elapsed since last, capped at
// DefaultRD so nothing is less certain than a new character.
func rdAfterTime(rd float64, last, now time.Time) float64 {
	if last.IsZero() {
		return DefaultRD
	}
	days := now.Sub(last).Hours() / hoursPerDay
	if days < 0 {
		days = 0
	}
	return math.Min(math.Sqrt(rd*rd+rdGrowthPerDay*days), DefaultRD)
}

// g discounts an opponent's influence by their uncertainty.
func g(rd float64) float64 {
	x := q * rd / math.Pi
	return 1 / math.Sqrt(1+3*x*x)
}

// expected is the win probability of rating r against rOther, given g of the
// opponent's RD.
func expected(r, rOther, gOther float64) float64 {
	return 1 / (1 + math.Pow(10, -gOther*(r-rOther)/400))
}

// invDSquared is the information a match between self and other carries
// about self.
func invDSquared(self, other Rating) float64 {
	gOther := g(other.RD)
	e := expected(self.Rating, other.Rating, gOther)
	return q * q * gOther * gOther * e * (1 - e)
}

// updateOne applies one match to self using the opponent's pre-match state.
func updateOne(self, other Rating, score float64) Rating {
	gOther := g(other.RD)
	e := expected(self.Rating, other.Rating, gOther)
	info := q * q * gOther * gOther * e * (1 - e)
	newRDSq := 1 / (1/(self.RD*self.RD) + info)
	self.Rating += q * newRDSq * gOther * (score - e)
	self.RD = math.Max(math.Sqrt(newRDSq), MinRD)
	return self
}

// updatePair updates both sides simultaneously from their pre-match values.
// scoreA is A's result: 1 win, 0.5 tie, 0 loss.
func updatePair(a, b Rating, scoreA float64) (Rating, Rating) {
	return updateOne(a, b, scoreA), updateOne(b, a, 1-scoreA)
}

// RatingTable maps characters to their derived state.
type RatingTable map[model.CharacterID]Rating

// computeRatings replays the log in order. Each record is applied boost
// times at its own timestamp, so the repeats see no time decay between them.
// After the replay every RD is decayed to snap.Now.
func computeRatings(snap model.Snapshot, boost int) (RatingTable, error) {
	if boost < 1 {
		boost = 1
	}
	table := make(RatingTable, len(snap.Characters))
	for _, c := range snap.Characters {
		table[c.ID] = NewRating()
	}
	for _, rec := range snap.Records {
		a, okA := table[rec.CharA]
		b, okB := table[rec.CharB]
		if !okA || !okB || rec.CharA == rec.CharB {
			return nil, fmt.Errorf("%w: record %d references (%d, %d) outside list %d",
				ErrInvariant, rec.ID, rec.CharA, rec.CharB, snap.List.ID)
		}
		for _, side := range []struct {
			id model.CharacterID
			r  Rating
		}{{rec.CharA, a}, {rec.CharB, b}} {
			if !side.r.LastMatch.IsZero() && rec.Timestamp.Before(side.r.LastMatch) {
				return nil, fmt.Errorf("%w: record %d at %s precedes character %d's last match at %s",
					ErrInvariant, rec.ID, rec.Timestamp.Format(time.RFC3339Nano), side.id,
					side.r.LastMatch.Format(time.RFC3339Nano))
			}
		}
		a.RD = rdAfterTime(a.RD, a.LastMatch, rec.Timestamp)
		b.RD = rdAfterTime(b.RD, b.LastMatch, rec.Timestamp)
		scoreA := rec.ScoreFor(rec.CharA)
		for i := 0; i < boost; i++ {
			a, b = updatePair(a, b, scoreA)
		}
		a.LastMatch, b.LastMatch = rec.Timestamp, rec.Timestamp
		table[rec.CharA], table[rec.CharB] = a, b
	}
	for id, r := range table {
		r.RD = rdAfterTime(r.RD, r.LastMatch, snap.Now)
		table[id] = r
	}
	return table, nil
}

// normalCDF is Φ, the standard normal cumulative distribution.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// pairConfidence is the probability that two characters are ordered
// correctly by their ratings.
func pairConfidence(a, b Rating) float64 {
	spread := math.Sqrt(a.RD*a.RD + b.RD*b.RD)
	if spread == 0 {
		return 1
	}
	return normalCDF(math.Abs(a.Rating-b.Rating) / spread)
}
