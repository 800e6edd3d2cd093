// Package dedupe tracks idempotency keys so a retried comparison submission
// is recorded at most once.
package dedupe

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// DefaultMaxKeys bounds the number of keys remembered per Deduper.
const DefaultMaxKeys = 10000

// Deduper remembers idempotency keys.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded and records it
	// if not. The check and the record happen atomically.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the request can be retried. Used when the
	// append that followed SeenAndRecord failed.
	Unrecord(ctx context.Context, key string)

	// Bind ties a recorded key to the record its request appended.
	Bind(ctx context.Context, key string, recordID int64)

	// UnrecordByID forgets the key bound to recordID, if any, so the
	// request can be replayed once that record has been removed.
	UnrecordByID(ctx context.Context, recordID int64)

	// Size is the number of keys currently remembered.
	Size() int
}

// Key scopes a client supplied idempotency key to one list.
func Key(listID int64, key string) string {
	return fmt.Sprintf("%d:%s", listID, key)
}

// Option configures the in-memory Deduper.
type Option func(*memoryDeduper)

// WithMaxKeys sets how many keys are remembered before the oldest is
// evicted. n <= 0 means unbounded.
func WithMaxKeys(n int) Option {
	return func(d *memoryDeduper) {
		d.maxKeys = n
	}
}

// entry is one remembered key; recordID is 0 until bound.
type entry struct {
	key      string
	recordID int64
}

// memoryDeduper keeps keys in insertion order and evicts the oldest first.
type memoryDeduper struct {
	mu      sync.Mutex
	keys    map[string]*list.Element
	byID    map[int64]*list.Element
	order   *list.List // front is newest
	maxKeys int
}

// NewInMemoryDeduper returns a Deduper bounded to DefaultMaxKeys unless
// configured otherwise.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &memoryDeduper{
		keys:    make(map[string]*list.Element),
		byID:    make(map[int64]*list.Element),
		order:   list.New(),
		maxKeys: DefaultMaxKeys,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *memoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.keys[key]; ok {
		return true
	}
	if d.maxKeys > 0 && d.order.Len() >= d.maxKeys {
		d.remove(d.order.Back())
	}
	d.keys[key] = d.order.PushFront(&entry{key: key})
	return false
}

func (d *memoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.keys[key]; ok {
		d.remove(el)
	}
}

func (d *memoryDeduper) Bind(_ context.Context, key string, recordID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.keys[key]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	if e.recordID != 0 {
		delete(d.byID, e.recordID)
	}
	e.recordID = recordID
	d.byID[recordID] = el
}

func (d *memoryDeduper) UnrecordByID(_ context.Context, recordID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.byID[recordID]; ok {
		d.remove(el)
	}
}

// remove drops el from every index. Callers hold mu.
func (d *memoryDeduper) remove(el *list.Element) {
	e := el.Value.(*entry)
	d.order.Remove(el)
	delete(d.keys, e.key)
	if e.recordID != 0 {
		delete(d.byID, e.recordID)
	}
}

func (d *memoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
