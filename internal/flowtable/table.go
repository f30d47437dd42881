// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flowtable implements the fixed-size flow table consulted by the
// flow scheduler on every packet event.
//
// A Table hashes each FlowKey to one of a fixed number of buckets. Each
// bucket holds at most BucketCapacity records in arrival order and has its
// own lock, so operations on different buckets never contend. The table
// never resizes, rehashes or expires entries; a full bucket rejects new
// flows even when other buckets have room.
package flowtable

import (
	"sync/atomic"

	"github.com/google/uuid"

	"grimm.is/flowtrack/internal/errors"
	"grimm.is/flowtrack/internal/logging"
)

const (
	DefaultBuckets        = 1024
	DefaultBucketCapacity = 16
)

// Config fixes the table geometry for its whole lifetime.
type Config struct {
	Buckets        int      // H
	BucketCapacity int      // L
	Hash           HashFunc // nil selects ReferenceHash
}

// DefaultConfig returns the default geometry with the reference hash.
func DefaultConfig() Config {
	return Config{
		Buckets:        DefaultBuckets,
		BucketCapacity: DefaultBucketCapacity,
		Hash:           ReferenceHash,
	}
}

func (c Config) validate() error {
	if c.Buckets <= 0 {
		return errors.Errorf(errors.KindValidation, "bucket count must be positive, got %d", c.Buckets)
	}
	if c.BucketCapacity <= 0 {
		return errors.Errorf(errors.KindValidation, "bucket capacity must be positive, got %d", c.BucketCapacity)
	}
	return nil
}

type options struct {
	alloc  Allocator
	logger *logging.Logger
}

// Option customizes a Table.
type Option func(*options)

// WithAllocator sets the record allocator. The default is a PoolAllocator
// with DefaultReserve records.
func WithAllocator(a Allocator) Option {
	return func(o *options) {
		o.alloc = a
	}
}

// WithLogger sets the logger used for per-flow debug lines and LogTable.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Table is a concurrent flow table. All methods are safe for concurrent use.
type Table struct {
	id       uuid.UUID
	buckets  []bucket
	capacity int
	hash     HashFunc
	alloc    Allocator
	logger   *logging.Logger

	// size is only changed while holding the lock of the bucket that changed.
	size   atomic.Int64
	closed atomic.Bool

	inserted    atomic.Uint64
	duplicates  atomic.Uint64
	overflows   atomic.Uint64
	allocFailed atomic.Uint64
	deleted     [NumCategories]atomic.Uint64
	released    atomic.Uint64
}

// New allocates a table with cfg.Buckets empty buckets.
func New(cfg Config, opts ...Option) (*Table, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.alloc == nil {
		o.alloc = NewPoolAllocator(DefaultReserve)
	}
	if o.logger == nil {
		o.logger = logging.WithComponent("flowtable")
	}
	if cfg.Hash == nil {
		cfg.Hash = ReferenceHash
	}

	t := &Table{
		id:       uuid.New(),
		buckets:  make([]bucket, cfg.Buckets),
		capacity: cfg.BucketCapacity,
		hash:     cfg.Hash,
		alloc:    o.alloc,
	}
	for i := range t.buckets {
		t.buckets[i].capacity = cfg.BucketCapacity
	}
	t.logger = o.logger.With("table", t.id.String())

	t.logger.Debug("Flow table initialized",
		"buckets", cfg.Buckets,
		"bucket_capacity", cfg.BucketCapacity)

	return t, nil
}

// ID identifies this table instance in logs and dumps.
func (t *Table) ID() uuid.UUID {
	return t.id
}

// Index returns the bucket a key maps to, in [0, Buckets()).
func (t *Table) Index(key FlowKey) int {
	return int(t.hash(key) % uint32(len(t.buckets)))
}

// Insert starts tracking key with the given initial info. It returns
// ErrDuplicateKey if the key is already tracked (the stored info is left
// alone), ErrCapacityExceeded if the key's bucket is full and
// ErrAllocationFailed if the allocator could not supply a record under policy.
func (t *Table) Insert(key FlowKey, info FlowInfo, policy AllocPolicy) error {
	idx := t.Index(key)
	b := &t.buckets[idx]

	b.mu.Lock()
	if t.closed.Load() {
		b.mu.Unlock()
		return ErrClosed
	}
	_, err := b.insert(key, info, policy, t.alloc)
	if err == nil {
		t.size.Add(1)
	}
	b.mu.Unlock()

	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateKey):
			t.duplicates.Add(1)
		case errors.Is(err, ErrCapacityExceeded):
			t.overflows.Add(1)
		default:
			t.allocFailed.Add(1)
		}
		t.logger.Debug("Flow insert rejected", "flow", key, "bucket", idx, "reason", err.Error())
		err = errors.Attr(err, "bucket", idx)
		return errors.Attr(err, "flow", key.String())
	}

	t.inserted.Add(1)
	t.logger.Debug("Inserted flow", "flow", key, "bucket", idx)
	return nil
}

// Search returns a handle to the live info of key. Writes through the handle
// are seen by later lookups without any write-back. The handle stays valid
// until the flow is deleted or the table is closed.
//
// The handle is not synchronized: callers that share a flow between
// goroutines must use Update for read-modify-write sequences.
func (t *Table) Search(key FlowKey) (*FlowInfo, bool) {
	b := &t.buckets[t.Index(key)]

	b.mu.Lock()
	defer b.mu.Unlock()
	if t.closed.Load() {
		return nil, false
	}
	r := b.search(key)
	if r == nil {
		return nil, false
	}
	return &r.Info, true
}

// Update runs fn on the live info of key while holding its bucket lock.
// fn must not call back into the table. It reports whether key was found.
func (t *Table) Update(key FlowKey, fn func(*FlowInfo)) bool {
	b := &t.buckets[t.Index(key)]

	b.mu.Lock()
	defer b.mu.Unlock()
	if t.closed.Load() {
		return false
	}
	r := b.search(key)
	if r == nil {
		return false
	}
	fn(&r.Info)
	return true
}

// Get returns a copy of the info of key.
func (t *Table) Get(key FlowKey) (FlowInfo, bool) {
	var info FlowInfo
	found := t.Update(key, func(fi *FlowInfo) {
		info = *fi
	})
	return info, found
}

// Delete stops tracking key and classifies it from its final state: a
// deadline flow reports magnitude 1, a size-known flow max(2, BytesTotal)
// and any other flow max(2, BytesSent). ok is false if key was not tracked.
func (t *Table) Delete(key FlowKey) (cat Category, magnitude uint32, ok bool) {
	idx := t.Index(key)
	b := &t.buckets[idx]

	b.mu.Lock()
	if t.closed.Load() {
		b.mu.Unlock()
		return 0, 0, false
	}
	r, cat, magnitude, ok := b.remove(key)
	if ok {
		t.size.Add(-1)
	}
	b.mu.Unlock()

	if !ok {
		return 0, 0, false
	}
	t.release(r)
	t.deleted[cat].Add(1)
	t.logger.Debug("Deleted flow",
		"flow", key,
		"bucket", idx,
		"category", cat.String(),
		"magnitude", magnitude)
	return cat, magnitude, true
}

// Walk calls fn with a copy of every tracked flow, bucket by bucket and in
// arrival order within a bucket, until fn returns false. Each bucket is
// locked while it is visited, so fn must not call back into the table.
func (t *Table) Walk(fn func(key FlowKey, info FlowInfo) bool) {
	for i := range t.buckets {
		if !t.walkBucket(i, func(r *Record) bool { return fn(r.Key, r.Info) }) {
			return
		}
	}
}

func (t *Table) walkBucket(i int, fn func(*Record) bool) bool {
	b := &t.buckets[i]
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.closed.Load() {
		return false
	}
	return b.walk(fn)
}

// Len returns the number of tracked flows.
func (t *Table) Len() int {
	return int(t.size.Load())
}

// Buckets returns the bucket count H.
func (t *Table) Buckets() int {
	return len(t.buckets)
}

// BucketCapacity returns the per-bucket capacity L.
func (t *Table) BucketCapacity() int {
	return t.capacity
}

// BucketLen returns the number of flows in bucket i.
func (t *Table) BucketLen(i int) int {
	b := &t.buckets[i]
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.len()
}

// Close releases every record back to the allocator. Later operations
// behave as if the table were empty and Insert returns ErrClosed.
// A second Close returns ErrClosed.
func (t *Table) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	total := 0
	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.Lock()
		n := b.drain(t.release)
		t.size.Add(int64(-n))
		b.mu.Unlock()
		total += n
	}

	t.logger.Debug("Flow table closed", "released", total)
	return nil
}

func (t *Table) release(r *Record) {
	t.alloc.Free(r)
	t.released.Add(1)
}
