// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

import (
	"sync"
	"sync/atomic"
)

// AllocPolicy tells the allocator whether the caller may block.
type AllocPolicy uint8

const (
	// AllocMayBlock is for callers that can wait for memory, such as setup paths.
	AllocMayBlock AllocPolicy = iota
	// AllocNoBlock is for packet-path callers; allocation fails instead of waiting.
	AllocNoBlock
)

func (p AllocPolicy) String() string {
	if p == AllocNoBlock {
		return "no_block"
	}
	return "may_block"
}

// Allocator supplies and reclaims records. Alloc must return a zeroed record
// or an error; it must never block when policy is AllocNoBlock.
type Allocator interface {
	Alloc(policy AllocPolicy) (*Record, error)
	Free(r *Record)
}

// DefaultReserve is the number of records PoolAllocator keeps for AllocNoBlock.
const DefaultReserve = 4096

// PoolAllocator serves AllocNoBlock from a fixed reserve of pre-allocated
// records and AllocMayBlock from the reserve or, when it is empty, from a
// sync.Pool backed by the heap. Freed records refill the reserve first.
type PoolAllocator struct {
	reserve chan *Record
	pool    sync.Pool

	reserveHits   atomic.Uint64
	reserveMisses atomic.Uint64
}

// NewPoolAllocator creates an allocator with reserve pre-allocated records.
// A reserve of zero makes every AllocNoBlock call fail.
func NewPoolAllocator(reserve int) *PoolAllocator {
	if reserve < 0 {
		reserve = 0
	}
	a := &PoolAllocator{
		reserve: make(chan *Record, reserve),
		pool: sync.Pool{
			New: func() any { return new(Record) },
		},
	}
	for i := 0; i < reserve; i++ {
		a.reserve <- new(Record)
	}
	return a
}

func (a *PoolAllocator) Alloc(policy AllocPolicy) (*Record, error) {
	select {
	case r := <-a.reserve:
		a.reserveHits.Add(1)
		return r, nil
	default:
	}

	a.reserveMisses.Add(1)
	if policy == AllocNoBlock {
		return nil, ErrAllocationFailed
	}
	return a.pool.Get().(*Record), nil
}

func (a *PoolAllocator) Free(r *Record) {
	if r == nil {
		return
	}
	*r = Record{}
	select {
	case a.reserve <- r:
	default:
		a.pool.Put(r)
	}
}

// Available returns the number of records left in the reserve.
func (a *PoolAllocator) Available() int {
	return len(a.reserve)
}

// ReserveStats returns how often the reserve could and could not serve Alloc.
func (a *PoolAllocator) ReserveStats() (hits, misses uint64) {
	return a.reserveHits.Load(), a.reserveMisses.Load()
}

// TrackingAllocator wraps another allocator and keeps an exact account of
// live records. Freeing a record that is not live is counted as a double
// free and not forwarded.
type TrackingAllocator struct {
	next Allocator

	mu          sync.Mutex
	live        map[*Record]struct{}
	allocs      uint64
	frees       uint64
	failures    uint64
	doubleFrees uint64
}

// NewTrackingAllocator wraps next. A nil next uses a heap-only PoolAllocator.
func NewTrackingAllocator(next Allocator) *TrackingAllocator {
	if next == nil {
		next = NewPoolAllocator(0)
	}
	return &TrackingAllocator{
		next: next,
		live: make(map[*Record]struct{}),
	}
}

func (a *TrackingAllocator) Alloc(policy AllocPolicy) (*Record, error) {
	r, err := a.next.Alloc(policy)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.failures++
		return nil, err
	}
	a.allocs++
	a.live[r] = struct{}{}
	return r, nil
}

func (a *TrackingAllocator) Free(r *Record) {
	a.mu.Lock()
	if _, ok := a.live[r]; !ok {
		a.doubleFrees++
		a.mu.Unlock()
		return
	}
	delete(a.live, r)
	a.frees++
	a.mu.Unlock()

	a.next.Free(r)
}

// AllocStats is a snapshot of TrackingAllocator counters.
type AllocStats struct {
	Allocs      uint64
	Frees       uint64
	Failures    uint64
	DoubleFrees uint64
	Live        int
}

func (a *TrackingAllocator) Stats() AllocStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AllocStats{
		Allocs:      a.allocs,
		Frees:       a.frees,
		Failures:    a.failures,
		DoubleFrees: a.doubleFrees,
		Live:        len(a.live),
	}
}
