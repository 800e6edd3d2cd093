// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownAlgorithm is returned by ParseAlgorithm for unrecognized tags.
var ErrUnknownAlgorithm = errors.New("unknown ranking algorithm")

// CharacterID identifies a character. IDs are stable and totally ordered;
// the insertion sort engine relies on that order.
type CharacterID int64

// ListID identifies a character list.
type ListID int64

// Algorithm selects the ranking engine bound to a list.
type Algorithm string

// Supported algorithms. The values are the short keys persisted with a list.
const (
	InsertionSort Algorithm = "IS"
	Glicko        Algorithm = "GL"
)

// Algorithms lists every selectable algorithm in display order.
var Algorithms = []Algorithm{InsertionSort, Glicko}

// Name returns the long, human readable name of the algorithm.
func (a Algorithm) Name() string {
	switch a {
	case InsertionSort:
		return "InsertionSort"
	case Glicko:
		return "Glicko"
	default:
		return string(a)
	}
}

func (a Algorithm) String() string { return a.Name() }

// ParseAlgorithm accepts a short key ("IS", "GL") or a long name
// ("InsertionSort", "Glicko"), case-insensitive.
func ParseAlgorithm(s string) (Algorithm, error) {
	s = strings.TrimSpace(s)
	for _, a := range Algorithms {
		if strings.EqualFold(s, string(a)) || strings.EqualFold(s, a.Name()) {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// CharacterList is a named collection of characters sharing one algorithm
// and one comparison log.
type CharacterList struct {
	ID        ListID    `json:"id"`
	Title     string    `json:"title"`
	Algorithm Algorithm `json:"algorithm"`
}

// Character is a rankable entity belonging to exactly one list.
type Character struct {
	ID     CharacterID `json:"id"`
	ListID ListID      `json:"list_id"`
	Name   string      `json:"name"`
	Fandom string      `json:"fandom"`
}

// Label renders the character the way lists display it.
func (c Character) Label() string {
	if c.Fandom == "" {
		return c.Name
	}
	return fmt.Sprintf("%s (%s)", c.Name, c.Fandom)
}

// Verdict values stored in a ComparisonRecord.
const (
	PreferA = 1
	Tie     = 0
	PreferB = -1
)

// ComparisonRecord is a timestamped verdict between two characters of a list.
// Value > 0 means CharA was preferred, < 0 means CharB, 0 is a tie.
type ComparisonRecord struct {
	ID        int64       `json:"id"`
	ListID    ListID      `json:"list_id"`
	CharA     CharacterID `json:"char_a"`
	CharB     CharacterID `json:"char_b"`
	Value     int         `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
}

// Involves reports whether the record compares id against anything.
func (r ComparisonRecord) Involves(id CharacterID) bool {
	return r.CharA == id || r.CharB == id
}

// Opponent returns the other side of the record.
func (r ComparisonRecord) Opponent(id CharacterID) CharacterID {
	if r.CharA == id {
		return r.CharB
	}
	return r.CharA
}

// ValueFor returns the verdict from id's point of view: positive when id was
// preferred. The stored orientation is A-relative, so the sign flips when id
// is the record's B side.
func (r ComparisonRecord) ValueFor(id CharacterID) int {
	v := sign(r.Value)
	if r.CharB == id {
		return -v
	}
	return v
}

// ScoreFor maps the verdict to a match score for id: 1 win, 0.5 tie, 0 loss.
func (r ComparisonRecord) ScoreFor(id CharacterID) float64 {
	switch v := r.ValueFor(id); {
	case v > 0:
		return 1
	case v < 0:
		return 0
	default:
		return 0.5
	}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Snapshot is one consistent read of a list and its log. Everything an engine
// derives for a single query is computed from one Snapshot.
type Snapshot struct {
	List       CharacterList
	Characters []Character        // ascending id
	Records    []ComparisonRecord // ascending timestamp, then id
	Now        time.Time
}

// Member reports whether id belongs to the snapshot's list.
func (s Snapshot) Member(id CharacterID) bool {
	for _, c := range s.Characters {
		if c.ID == id {
			return true
		}
	}
	return false
}

// CharacterIDs returns the member ids in ascending order.
func (s Snapshot) CharacterIDs() []CharacterID {
	ids := make([]CharacterID, len(s.Characters))
	for i, c := range s.Characters {
		ids[i] = c.ID
	}
	return ids
}

// Names maps character ids to display names.
func (s Snapshot) Names() map[CharacterID]string {
	names := make(map[CharacterID]string, len(s.Characters))
	for _, c := range s.Characters {
		names[c.ID] = c.Name
	}
	return names
}
