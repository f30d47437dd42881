// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

import (
	"fmt"
	"sync"

	"grimm.is/flowtrack/internal/errors"
)

// bucket is a capacity-bounded chain of records in arrival order.
// All methods assume the caller holds mu.
type bucket struct {
	mu       sync.Mutex
	records  []*Record
	capacity int
}

func (b *bucket) indexOf(key FlowKey) int {
	for i, r := range b.records {
		if r.Key == key {
			return i
		}
	}
	return -1
}

// insert appends a new record at the tail. A duplicate key is reported
// before capacity so a full bucket still rejects repeats as duplicates.
// On error the bucket is unchanged.
func (b *bucket) insert(key FlowKey, info FlowInfo, policy AllocPolicy, alloc Allocator) (*Record, error) {
	if b.indexOf(key) >= 0 {
		return nil, ErrDuplicateKey
	}
	if len(b.records) >= b.capacity {
		return nil, ErrCapacityExceeded
	}

	r, err := alloc.Alloc(policy)
	if err != nil {
		if !errors.Is(err, ErrAllocationFailed) {
			err = fmt.Errorf("%w: %w", ErrAllocationFailed, err)
		}
		return nil, err
	}
	if r == nil {
		return nil, ErrAllocationFailed
	}
	r.Key = key
	r.Info = info
	b.records = append(b.records, r)
	return r, nil
}

func (b *bucket) search(key FlowKey) *Record {
	if i := b.indexOf(key); i >= 0 {
		return b.records[i]
	}
	return nil
}

// remove unlinks the record for key and returns it with its classification
// taken before removal. The order of the remaining records is kept.
func (b *bucket) remove(key FlowKey) (r *Record, cat Category, magnitude uint32, ok bool) {
	i := b.indexOf(key)
	if i < 0 {
		return nil, 0, 0, false
	}

	r = b.records[i]
	cat, magnitude = r.Info.Classify()

	last := len(b.records) - 1
	copy(b.records[i:], b.records[i+1:])
	b.records[last] = nil
	b.records = b.records[:last]
	return r, cat, magnitude, true
}

// drain empties the bucket and hands every record to release.
func (b *bucket) drain(release func(*Record)) int {
	n := len(b.records)
	for i, r := range b.records {
		release(r)
		b.records[i] = nil
	}
	b.records = nil
	return n
}

func (b *bucket) walk(fn func(*Record) bool) bool {
	for _, r := range b.records {
		if !fn(r) {
			return false
		}
	}
	return true
}

func (b *bucket) len() int {
	return len(b.records)
}
