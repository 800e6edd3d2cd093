package ranking

import (
	"context"
	"fmt"

	"github.com/okian/charsort/internal/domain/model"
)

// Annotation labels used by the insertion sort engine.
const (
	LabelUnsorted   = "Unsorted"
	LabelNowSorting = "Now Sorting"
)

// InsertionEngine orders a list by binary insertion, asking only for the
// comparisons the insertion needs. It uses the most recent verdict per pair
// and ignores older ones.
type InsertionEngine struct {
	base
}

// NewInsertionEngine creates an insertion sort engine reading from src.
func NewInsertionEngine(src Source, opts ...Option) *InsertionEngine {
	return &InsertionEngine{base: newBase(src, opts)}
}

// Algorithm implements Engine.
func (e *InsertionEngine) Algorithm() model.Algorithm { return model.InsertionSort }

// insertionState is the outcome of one insertion pass over a snapshot.
type insertionState struct {
	// order holds placed characters, best first. While blocked it also
	// holds the blocked character at its tentative position.
	order   []model.CharacterID
	blocked bool
	current model.CharacterID
	next    model.Matchup
	total   int
}

// insertionSort inserts characters in id order into a growing result using
// binary search against the latest verdict for each compared pair. It stops at
// the first pair without a verdict and reports it as the next comparison.
// idx is the latest verdict per pair, normally built from snap.Records.
func insertionSort(snap model.Snapshot, idx model.PairIndex) (insertionState, error) {
	st := insertionState{
		order: make([]model.CharacterID, 0, len(snap.Characters)),
		total: len(snap.Characters),
	}
	for _, c := range snap.Characters {
		low, high := 0, len(st.order)
		for low < high {
			mid := (low + high) / 2
			other := st.order[mid]
			r, ok, err := lookupPair(idx, c.ID, other)
			if err != nil {
				return insertionState{}, err
			}
			if !ok {
				st.order = insertAt(st.order, high, c.ID)
				st.blocked = true
				st.current = c.ID
				st.next = model.Matchup{A: c.ID, B: other}
				return st, nil
			}
			if r.ValueFor(c.ID) > 0 {
				high = mid
			} else {
				low = mid + 1
			}
		}
		st.order = insertAt(st.order, low, c.ID)
	}
	return st, nil
}

func insertAt(s []model.CharacterID, i int, id model.CharacterID) []model.CharacterID {
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = id
	return s
}

// sorted returns the placed order followed by unplaced characters in id order.
func (st insertionState) sorted(snap model.Snapshot) []model.CharacterID {
	out := make([]model.CharacterID, 0, len(snap.Characters))
	out = append(out, st.order...)
	placed := st.placedSet()
	for _, c := range snap.Characters {
		if _, ok := placed[c.ID]; !ok {
			out = append(out, c.ID)
		}
	}
	return out
}

func (st insertionState) placedSet() map[model.CharacterID]struct{} {
	placed := make(map[model.CharacterID]struct{}, len(st.order))
	for _, id := range st.order {
		placed[id] = struct{}{}
	}
	return placed
}

func (st insertionState) annotations(snap model.Snapshot) map[model.CharacterID]string {
	labels := make(map[model.CharacterID]string)
	placed := st.placedSet()
	for _, c := range snap.Characters {
		if _, ok := placed[c.ID]; !ok {
			labels[c.ID] = LabelUnsorted
		}
	}
	if st.blocked {
		labels[st.current] = LabelNowSorting
	}
	return labels
}

// progress counts the blocked character as placed and subtracts one for it.
// The subtraction is kept even after the sort completes.
func (st insertionState) progress() string {
	done := len(st.order) - 1
	if done < 0 {
		done = 0
	}
	return fmt.Sprintf("%d/%d sorted", done, st.total)
}

func (e *InsertionEngine) state(ctx context.Context, listID model.ListID) (model.Snapshot, insertionState, error) {
	snap, err := e.load(ctx, listID)
	if err != nil {
		return model.Snapshot{}, insertionState{}, err
	}
	st, err := insertionSort(snap, model.NewPairIndex(snap.Records))
	if err != nil {
		return model.Snapshot{}, insertionState{}, err
	}
	return snap, st, nil
}

// SortedOrder implements Engine.
func (e *InsertionEngine) SortedOrder(ctx context.Context, listID model.ListID) ([]model.CharacterID, error) {
	snap, st, err := e.state(ctx, listID)
	if err != nil {
		return nil, err
	}
	return st.sorted(snap), nil
}

// NextComparison implements Engine.
func (e *InsertionEngine) NextComparison(ctx context.Context, listID model.ListID) (model.Matchup, bool, error) {
	_, st, err := e.state(ctx, listID)
	if err != nil {
		return model.Matchup{}, false, err
	}
	return st.next, st.blocked, nil
}

// RegisterComparison implements Engine.
func (e *InsertionEngine) RegisterComparison(ctx context.Context, listID model.ListID, a, b model.CharacterID, value int) (model.ComparisonRecord, error) {
	return e.register(ctx, listID, a, b, value)
}

// Annotations implements Engine.
func (e *InsertionEngine) Annotations(ctx context.Context, listID model.ListID) (map[model.CharacterID]string, error) {
	snap, st, err := e.state(ctx, listID)
	if err != nil {
		return nil, err
	}
	return st.annotations(snap), nil
}

// ProgressInfo implements ProgressReporter.
func (e *InsertionEngine) ProgressInfo(ctx context.Context, listID model.ListID) (string, bool, error) {
	_, st, err := e.state(ctx, listID)
	if err != nil {
		return "", false, err
	}
	return st.progress(), true, nil
}

// Summarize implements Engine.
func (e *InsertionEngine) Summarize(ctx context.Context, listID model.ListID) (Summary, error) {
	snap, st, err := e.state(ctx, listID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		List:        snap.List,
		Characters:  snap.Characters,
		Order:       st.sorted(snap),
		Annotations: st.annotations(snap),
		Progress:    st.progress(),
	}
	if st.blocked {
		next := st.next
		sum.Next = &next
	}
	return sum, nil
}
