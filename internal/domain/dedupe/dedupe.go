// Package dedupe remembers which batches were already flushed so a
// replayed submission is not counted twice.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen batch IDs.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it
	// if not. The check and the write are atomic.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a failed flush can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int
}

// ringDeduper is a bounded FIFO set: once full, recording a new id evicts
// the oldest one.
type ringDeduper struct {
	mu      sync.Mutex
	maxSize int
	slots   []string
	next    int
	index   map[string]int
}

// NewInMemoryDeduper creates a bounded in-memory Deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &ringDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.slots = make([]string, d.maxSize)
	d.index = make(map[string]int, d.maxSize)
	return d
}

func (d *ringDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[id]; ok {
		return true
	}
	if old := d.slots[d.next]; old != "" {
		if slot, ok := d.index[old]; ok && slot == d.next {
			delete(d.index, old)
		}
	}
	d.slots[d.next] = id
	d.index[id] = d.next
	d.next = (d.next + 1) % d.maxSize
	return false
}

func (d *ringDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if slot, ok := d.index[id]; ok {
		delete(d.index, id)
		d.slots[slot] = ""
	}
}

func (d *ringDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}
