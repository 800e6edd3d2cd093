package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/charsort/internal/domain/model"
	"github.com/okian/charsort/pkg/metrics"
)

const backendMemory = "memory"

// memList is one list with its members and log.
type memList struct {
	list    model.CharacterList
	chars   []model.Character
	members map[model.CharacterID]struct{}
	records []model.ComparisonRecord
}

// MemoryStore keeps everything in process memory behind one mutex.
type MemoryStore struct {
	mu       sync.RWMutex
	opts     options
	lists    map[model.ListID]*memList
	nextList model.ListID
	nextChar model.CharacterID
	nextRec  int64
	lastTS   time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:  newOptions(opts),
		lists: make(map[model.ListID]*memList),
	}
}

func (s *MemoryStore) get(id model.ListID) (*memList, error) {
	l, ok := s.lists[id]
	if !ok {
		return nil, fmt.Errorf("list %d: %w", id, ErrNotFound)
	}
	return l, nil
}

// CreateList implements Store.
func (s *MemoryStore) CreateList(_ context.Context, title string, alg model.Algorithm) (model.CharacterList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextList++
	l := model.CharacterList{ID: s.nextList, Title: title, Algorithm: alg}
	s.lists[l.ID] = &memList{list: l, members: make(map[model.CharacterID]struct{})}
	return l, nil
}

// GetList implements Store.
func (s *MemoryStore) GetList(_ context.Context, id model.ListID) (model.CharacterList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, err := s.get(id)
	if err != nil {
		return model.CharacterList{}, err
	}
	return l.list, nil
}

// Lists implements Store.
func (s *MemoryStore) Lists(_ context.Context) ([]model.CharacterList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CharacterList, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l.list)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddCharacter implements Store.
func (s *MemoryStore) AddCharacter(_ context.Context, listID model.ListID, name, fandom string) (model.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(listID)
	if err != nil {
		return model.Character{}, err
	}
	s.nextChar++
	c := model.Character{ID: s.nextChar, ListID: listID, Name: name, Fandom: fandom}
	l.chars = append(l.chars, c)
	l.members[c.ID] = struct{}{}
	return c, nil
}

// Characters implements Store.
func (s *MemoryStore) Characters(_ context.Context, listID model.ListID) ([]model.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, err := s.get(listID)
	if err != nil {
		return nil, err
	}
	return append([]model.Character(nil), l.chars...), nil
}

// RecordsFor implements Store. Records are appended with increasing
// timestamps, so the slice is already ordered.
func (s *MemoryStore) RecordsFor(_ context.Context, listID model.ListID) ([]model.ComparisonRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, err := s.get(listID)
	if err != nil {
		return nil, err
	}
	return append([]model.ComparisonRecord(nil), l.records...), nil
}

// LastMatchPerPair implements Store.
func (s *MemoryStore) LastMatchPerPair(ctx context.Context, listID model.ListID) (model.PairIndex, error) {
	records, err := s.RecordsFor(ctx, listID)
	if err != nil {
		return nil, err
	}
	return model.NewPairIndex(records), nil
}

// Snapshot implements Store.
func (s *MemoryStore) Snapshot(_ context.Context, listID model.ListID) (model.Snapshot, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency(backendMemory, "snapshot", sinceMs(start)) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	l, err := s.get(listID)
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.Snapshot{
		List:       l.list,
		Characters: append([]model.Character(nil), l.chars...),
		Records:    append([]model.ComparisonRecord(nil), l.records...),
	}, nil
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, listID model.ListID, a, b model.CharacterID, value int) (model.ComparisonRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency(backendMemory, "append", sinceMs(start)) }()

	if err := checkVerdict(a, b, value); err != nil {
		return model.ComparisonRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(listID)
	if err != nil {
		return model.ComparisonRecord{}, err
	}
	for _, id := range []model.CharacterID{a, b} {
		if _, ok := l.members[id]; !ok {
			return model.ComparisonRecord{}, fmt.Errorf("character %d, list %d: %w", id, listID, ErrForeignCharacter)
		}
	}
	s.nextRec++
	s.lastTS = stamp(s.lastTS, s.opts.clock())
	r := model.ComparisonRecord{
		ID:        s.nextRec,
		ListID:    listID,
		CharA:     a,
		CharB:     b,
		Value:     value,
		Timestamp: s.lastTS,
	}
	l.records = append(l.records, r)
	return r, nil
}

// DeleteMostRecent implements Store.
func (s *MemoryStore) DeleteMostRecent(_ context.Context, listID model.ListID) (model.ComparisonRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.get(listID)
	if err != nil {
		return model.ComparisonRecord{}, err
	}
	if len(l.records) == 0 {
		return model.ComparisonRecord{}, fmt.Errorf("list %d: %w", listID, ErrEmptyLog)
	}
	r := l.records[len(l.records)-1]
	l.records = l.records[:len(l.records)-1]
	return r, nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Lists: len(s.lists)}
	for _, l := range s.lists {
		st.Characters += len(l.chars)
		st.Records += len(l.records)
	}
	return st, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
