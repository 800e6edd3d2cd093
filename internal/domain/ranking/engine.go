// Package ranking implements the engines that order a character list from
// pairwise verdicts.
//
// Two engines satisfy Engine: a binary insertion sort that asks for the
// fewest comparisons and a Glicko-style rating engine that tolerates repeated
// and contradictory verdicts. Neither engine keeps state between calls. Each
// query reads one Snapshot from its Source and derives everything from it, so
// the comparison log stays the only source of truth.
package ranking

import (
	"context"
	"fmt"

	"github.com/okian/charsort/internal/domain/model"
)

// Source supplies consistent reads of a list and appends verdicts to its log.
// repository.Store satisfies it.
type Source interface {
	// Snapshot reads a list, its characters and its full log in one
	// consistent view. Snapshot.Now is filled in by the engine.
	Snapshot(ctx context.Context, listID model.ListID) (model.Snapshot, error)
	// Characters returns the members of a list in ascending id order.
	Characters(ctx context.Context, listID model.ListID) ([]model.Character, error)
	// Append adds a verdict to the list's log.
	Append(ctx context.Context, listID model.ListID, a, b model.CharacterID, value int) (model.ComparisonRecord, error)
}

// Engine is the capability set shared by every ranking algorithm.
type Engine interface {
	// Algorithm reports which algorithm the engine implements.
	Algorithm() model.Algorithm

	// SortedOrder returns every member exactly once, best to worst.
	SortedOrder(ctx context.Context, listID model.ListID) ([]model.CharacterID, error)

	// NextComparison returns the next pair worth asking about. ok is false
	// when no further comparison is needed or possible.
	NextComparison(ctx context.Context, listID model.ListID) (m model.Matchup, ok bool, err error)

	// RegisterComparison validates and appends a verdict. value > 0 prefers
	// a, value < 0 prefers b, zero is a tie.
	RegisterComparison(ctx context.Context, listID model.ListID, a, b model.CharacterID, value int) (model.ComparisonRecord, error)

	// Annotations returns an algorithm-specific label per character. Characters
	// without a label are absent from the map.
	Annotations(ctx context.Context, listID model.ListID) (map[model.CharacterID]string, error)

	// Summarize computes order, annotations, next matchup, progress and graph
	// from a single snapshot.
	Summarize(ctx context.Context, listID model.ListID) (Summary, error)
}

// ProgressReporter is implemented by engines that can describe how far the
// ranking has converged.
type ProgressReporter interface {
	ProgressInfo(ctx context.Context, listID model.ListID) (string, bool, error)
}

// GraphReporter is implemented by engines that expose a bar-chart payload.
type GraphReporter interface {
	GraphInfo(ctx context.Context, listID model.ListID) (Graph, bool, error)
}

// Graph is a bar chart with error bars: parallel slices sorted best first.
type Graph struct {
	IDs     []model.CharacterID `json:"ids"`
	Names   []string            `json:"names"`
	Ratings []float64           `json:"ratings"`
	Errors  []float64           `json:"errors"`
}

// Summary bundles everything a list view renders.
type Summary struct {
	List        model.CharacterList          `json:"list"`
	Characters  []model.Character            `json:"characters"`
	Order       []model.CharacterID          `json:"order"`
	Annotations map[model.CharacterID]string `json:"annotations"`
	Next        *model.Matchup               `json:"next,omitempty"`
	Progress    string                       `json:"progress,omitempty"`
	Graph       *Graph                       `json:"graph,omitempty"`
}

// New returns the engine for alg reading from src.
func New(alg model.Algorithm, src Source, opts ...Option) (Engine, error) {
	switch alg {
	case model.InsertionSort:
		return NewInsertionEngine(src, opts...), nil
	case model.Glicko:
		return NewGlickoEngine(src, opts...), nil
	default:
		return nil, fmt.Errorf("ranking: %w: %q", model.ErrUnknownAlgorithm, alg)
	}
}

// base holds the immutable dependencies shared by both engines.
type base struct {
	src      Source
	settings settings
}

func newBase(src Source, opts []Option) base {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return base{src: src, settings: s}
}

// load reads a fresh snapshot stamped with the engine's clock.
func (b *base) load(ctx context.Context, listID model.ListID) (model.Snapshot, error) {
	snap, err := b.src.Snapshot(ctx, listID)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap.Now = b.settings.clock()
	return snap, nil
}

// register validates a verdict against the list before appending it.
func (b *base) register(ctx context.Context, listID model.ListID, a, c model.CharacterID, value int) (model.ComparisonRecord, error) {
	if a == c {
		return model.ComparisonRecord{}, fmt.Errorf("%w: character %d compared with itself", ErrInvalidComparison, a)
	}
	if value < model.PreferB || value > model.PreferA {
		return model.ComparisonRecord{}, fmt.Errorf("%w: value %d out of range [-1, 1]", ErrInvalidComparison, value)
	}
	members, err := b.src.Characters(ctx, listID)
	if err != nil {
		return model.ComparisonRecord{}, err
	}
	for _, id := range []model.CharacterID{a, c} {
		if !containsCharacter(members, id) {
			return model.ComparisonRecord{}, fmt.Errorf("%w: character %d is not in list %d", ErrInvalidComparison, id, listID)
		}
	}
	return b.src.Append(ctx, listID, a, c, value)
}

func containsCharacter(members []model.Character, id model.CharacterID) bool {
	for _, m := range members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// lookupPair returns the latest record for {x, y} and checks that the index
// really returned that pair. Indexes need not come from the snapshot being
// sorted; Store.LastMatchPerPair builds them independently.
func lookupPair(idx model.PairIndex, x, y model.CharacterID) (model.ComparisonRecord, bool, error) {
	r, ok := idx.Get(x, y)
	if !ok {
		return r, false, nil
	}
	if !r.Involves(x) || !r.Involves(y) || r.CharA == r.CharB {
		return r, false, fmt.Errorf("%w: lookup of pair (%d, %d) returned record %d for (%d, %d)",
			ErrInvariant, x, y, r.ID, r.CharA, r.CharB)
	}
	return r, true, nil
}
