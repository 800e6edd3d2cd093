// Package repository persists character lists and their append-only
// comparison logs.
package repository

import (
	"context"
	"time"

	"github.com/okian/charsort/internal/domain/model"
)

// Store provides read/write access to lists, characters and comparison logs.
// It satisfies ranking.Source.
type Store interface {
	// CreateList adds an empty list.
	CreateList(ctx context.Context, title string, alg model.Algorithm) (model.CharacterList, error)
	// GetList returns ErrNotFound for an unknown id.
	GetList(ctx context.Context, id model.ListID) (model.CharacterList, error)
	// Lists returns every list in ascending id order.
	Lists(ctx context.Context) ([]model.CharacterList, error)

	// AddCharacter adds a member to a list.
	AddCharacter(ctx context.Context, listID model.ListID, name, fandom string) (model.Character, error)
	// Characters returns the members of a list in ascending id order.
	Characters(ctx context.Context, listID model.ListID) ([]model.Character, error)

	// RecordsFor returns the log ascending by timestamp, then id.
	RecordsFor(ctx context.Context, listID model.ListID) ([]model.ComparisonRecord, error)
	// LastMatchPerPair indexes the most recent record of every pair.
	LastMatchPerPair(ctx context.Context, listID model.ListID) (model.PairIndex, error)
	// Snapshot reads list, members and log in one consistent view.
	Snapshot(ctx context.Context, listID model.ListID) (model.Snapshot, error)

	// Append adds a verdict stamped with a strictly increasing timestamp.
	Append(ctx context.Context, listID model.ListID, a, b model.CharacterID, value int) (model.ComparisonRecord, error)
	// DeleteMostRecent removes and returns the newest record. It returns
	// ErrEmptyLog when there is nothing to remove.
	DeleteMostRecent(ctx context.Context, listID model.ListID) (model.ComparisonRecord, error)

	// Stats counts what the store holds.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Stats are store-wide totals.
type Stats struct {
	Lists      int
	Characters int
	Records    int
}

// stamp returns now unless it does not come after last, in which case it
// returns last plus one nanosecond.
func stamp(last, now time.Time) time.Time {
	if !now.After(last) {
		return last.Add(time.Nanosecond)
	}
	return now
}

func checkVerdict(a, b model.CharacterID, value int) error {
	if a == b {
		return ErrSelfComparison
	}
	if value < model.PreferB || value > model.PreferA {
		return ErrInvalidValue
	}
	return nil
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
