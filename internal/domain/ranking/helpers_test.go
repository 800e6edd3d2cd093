package ranking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/charsort/internal/domain/model"
)

var errNoList = errors.New("list not found")

// fakeSource is an in-memory Source with a deterministic clock that advances
// one minute per appended record.
type fakeSource struct {
	mu      sync.Mutex
	list    model.CharacterList
	chars   []model.Character
	records []model.ComparisonRecord
	now     time.Time
	appends int
}

var testEpoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newFakeSource(alg model.Algorithm, n int) *fakeSource {
	src := &fakeSource{
		list: model.CharacterList{ID: 1, Title: "test", Algorithm: alg},
		now:  testEpoch,
	}
	for i := 1; i <= n; i++ {
		src.chars = append(src.chars, model.Character{ID: model.CharacterID(i), ListID: 1, Name: "char" + string(rune('0'+i))})
	}
	return src
}

func (f *fakeSource) Snapshot(_ context.Context, listID model.ListID) (model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if listID != f.list.ID {
		return model.Snapshot{}, errNoList
	}
	return model.Snapshot{
		List:       f.list,
		Characters: append([]model.Character(nil), f.chars...),
		Records:    append([]model.ComparisonRecord(nil), f.records...),
	}, nil
}

func (f *fakeSource) Characters(_ context.Context, listID model.ListID) ([]model.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if listID != f.list.ID {
		return nil, errNoList
	}
	return append([]model.Character(nil), f.chars...), nil
}

func (f *fakeSource) Append(_ context.Context, listID model.ListID, a, b model.CharacterID, value int) (model.ComparisonRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if listID != f.list.ID {
		return model.ComparisonRecord{}, errNoList
	}
	f.now = f.now.Add(time.Minute)
	f.appends++
	r := model.ComparisonRecord{
		ID:        int64(len(f.records) + 1),
		ListID:    listID,
		CharA:     a,
		CharB:     b,
		Value:     value,
		Timestamp: f.now,
	}
	f.records = append(f.records, r)
	return r, nil
}

func (f *fakeSource) undo() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) > 0 {
		f.records = f.records[:len(f.records)-1]
	}
}

func (f *fakeSource) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// rankOf returns the position of id in order.
func rankOf(order []model.CharacterID, id model.CharacterID) int {
	for i, o := range order {
		if o == id {
			return i
		}
	}
	return -1
}

func verdict(order []model.CharacterID, a, b model.CharacterID) int {
	if rankOf(order, a) < rankOf(order, b) {
		return model.PreferA
	}
	return model.PreferB
}

func ids(xs ...int) []model.CharacterID {
	out := make([]model.CharacterID, len(xs))
	for i, x := range xs {
		out[i] = model.CharacterID(x)
	}
	return out
}
