package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/okian/charsort/internal/domain/model"
)

// GlickoEngine ranks a list with a Glicko rating per character. Ratings are
// rebuilt from the whole log on every query; RD grows back toward DefaultRD
// while a character goes unplayed.
type GlickoEngine struct {
	base
	rngMu sync.Mutex
}

// NewGlickoEngine creates a Glicko engine reading from src.
func NewGlickoEngine(src Source, opts ...Option) *GlickoEngine {
	return &GlickoEngine{base: newBase(src, opts)}
}

// Algorithm implements Engine.
func (e *GlickoEngine) Algorithm() model.Algorithm { return model.Glicko }

// Ratings returns the live rating state of every character in the list.
func (e *GlickoEngine) Ratings(ctx context.Context, listID model.ListID) (RatingTable, error) {
	_, table, err := e.state(ctx, listID)
	return table, err
}

func (e *GlickoEngine) state(ctx context.Context, listID model.ListID) (model.Snapshot, RatingTable, error) {
	snap, err := e.load(ctx, listID)
	if err != nil {
		return model.Snapshot{}, nil, err
	}
	table, err := computeRatings(snap, e.settings.confidenceBoost)
	if err != nil {
		return model.Snapshot{}, nil, err
	}
	return snap, table, nil
}

// rankedIDs orders characters by descending score, ties by ascending id.
func rankedIDs(snap model.Snapshot, table RatingTable) []model.CharacterID {
	ids := snap.CharacterIDs()
	sort.SliceStable(ids, func(i, j int) bool {
		si, sj := table[ids[i]].Score(), table[ids[j]].Score()
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func scoreLabels(table RatingTable) map[model.CharacterID]string {
	labels := make(map[model.CharacterID]string, len(table))
	for id, r := range table {
		labels[id] = strconv.FormatInt(int64(math.Round(r.Score())), 10)
	}
	return labels
}

func buildGraph(snap model.Snapshot, table RatingTable) Graph {
	ids := rankedIDs(snap, table)
	names := snap.Names()
	gr := Graph{
		IDs:     ids,
		Names:   make([]string, len(ids)),
		Ratings: make([]float64, len(ids)),
		Errors:  make([]float64, len(ids)),
	}
	for i, id := range ids {
		gr.Names[i] = names[id]
		gr.Ratings[i] = table[id].Rating
		gr.Errors[i] = 2 * table[id].RD
	}
	return gr
}

// averageConfidence is the mean pairwise ordering confidence over distinct
// unordered pairs. ok is false with fewer than two characters.
func averageConfidence(snap model.Snapshot, table RatingTable) (float64, bool) {
	ids := snap.CharacterIDs()
	var sum float64
	var n int
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			sum += pairConfidence(table[ids[i]], table[ids[j]])
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func formatConfidence(c float64) string {
	return fmt.Sprintf("Average confidence: %.3f", c)
}

func (e *GlickoEngine) pick(snap model.Snapshot, table RatingTable) (model.Matchup, bool) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return newSelector(snap, table).pick(e.settings.rng)
}

// SortedOrder implements Engine.
func (e *GlickoEngine) SortedOrder(ctx context.Context, listID model.ListID) ([]model.CharacterID, error) {
	snap, table, err := e.state(ctx, listID)
	if err != nil {
		return nil, err
	}
	return rankedIDs(snap, table), nil
}

// NextComparison implements Engine. Lists with fewer than two characters
// have no next comparison.
func (e *GlickoEngine) NextComparison(ctx context.Context, listID model.ListID) (model.Matchup, bool, error) {
	snap, table, err := e.state(ctx, listID)
	if err != nil {
		return model.Matchup{}, false, err
	}
	m, ok := e.pick(snap, table)
	return m, ok, nil
}

// RegisterComparison implements Engine.
func (e *GlickoEngine) RegisterComparison(ctx context.Context, listID model.ListID, a, b model.CharacterID, value int) (model.ComparisonRecord, error) {
	return e.register(ctx, listID, a, b, value)
}

// Annotations implements Engine: each character is labelled with its rounded
// score.
func (e *GlickoEngine) Annotations(ctx context.Context, listID model.ListID) (map[model.CharacterID]string, error) {
	_, table, err := e.state(ctx, listID)
	if err != nil {
		return nil, err
	}
	return scoreLabels(table), nil
}

// ProgressInfo implements ProgressReporter.
func (e *GlickoEngine) ProgressInfo(ctx context.Context, listID model.ListID) (string, bool, error) {
	snap, table, err := e.state(ctx, listID)
	if err != nil {
		return "", false, err
	}
	c, ok := averageConfidence(snap, table)
	if !ok {
		return "", false, nil
	}
	return formatConfidence(c), true, nil
}

// GraphInfo implements GraphReporter.
func (e *GlickoEngine) GraphInfo(ctx context.Context, listID model.ListID) (Graph, bool, error) {
	snap, table, err := e.state(ctx, listID)
	if err != nil {
		return Graph{}, false, err
	}
	return buildGraph(snap, table), true, nil
}

// Summarize implements Engine.
func (e *GlickoEngine) Summarize(ctx context.Context, listID model.ListID) (Summary, error) {
	snap, table, err := e.state(ctx, listID)
	if err != nil {
		return Summary{}, err
	}
	gr := buildGraph(snap, table)
	sum := Summary{
		List:        snap.List,
		Characters:  snap.Characters,
		Order:       gr.IDs,
		Annotations: scoreLabels(table),
		Graph:       &gr,
	}
	if c, ok := averageConfidence(snap, table); ok {
		sum.Progress = formatConfidence(c)
	}
	if m, ok := e.pick(snap, table); ok {
		sum.Next = &m
	}
	return sum, nil
}
