package model

// Pair is an unordered pair of characters. Low < High always holds for pairs
// built with NewPair.
type Pair struct {
	Low  CharacterID
	High CharacterID
}

// NewPair normalizes (a, b) into an unordered key.
func NewPair(a, b CharacterID) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}

// Matchup is an ordered pair of characters to present to a user.
type Matchup struct {
	A CharacterID `json:"a"`
	B CharacterID `json:"b"`
}

// PairIndex maps each unordered pair to the most recent record touching it.
// Lookups succeed for either ordering; the returned record keeps its stored
// A/B orientation and callers interpret it with ComparisonRecord.ValueFor.
type PairIndex map[Pair]ComparisonRecord

// NewPairIndex indexes records that are already in log order; later records
// replace earlier ones.
func NewPairIndex(records []ComparisonRecord) PairIndex {
	idx := make(PairIndex, len(records))
	for _, r := range records {
		idx[NewPair(r.CharA, r.CharB)] = r
	}
	return idx
}

// Get returns the latest record for {a, b}.
func (p PairIndex) Get(a, b CharacterID) (ComparisonRecord, bool) {
	r, ok := p[NewPair(a, b)]
	return r, ok
}
