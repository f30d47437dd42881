// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

// Stats is a point-in-time view of table counters.
type Stats struct {
	Flows          int `json:"flows"`
	Buckets        int `json:"buckets"`
	BucketCapacity int `json:"bucket_capacity"`
	MaxBucketLen   int `json:"max_bucket_len"`
	FullBuckets    int `json:"full_buckets"`

	Inserted           uint64                `json:"inserted"`
	DuplicateKeys      uint64                `json:"duplicate_keys"`
	CapacityExceeded   uint64                `json:"capacity_exceeded"`
	AllocationFailures uint64                `json:"allocation_failures"`
	Deleted            [NumCategories]uint64 `json:"deleted"`
	Released           uint64                `json:"released"`
}

// Stats scans every bucket for occupancy and reads the counters.
func (t *Table) Stats() Stats {
	s := Stats{
		Buckets:        len(t.buckets),
		BucketCapacity: t.capacity,
	}

	for i := range t.buckets {
		n := t.BucketLen(i)
		if n > s.MaxBucketLen {
			s.MaxBucketLen = n
		}
		if n >= t.capacity {
			s.FullBuckets++
		}
	}

	s.Flows = t.Len()
	s.Inserted = t.inserted.Load()
	s.DuplicateKeys = t.duplicates.Load()
	s.CapacityExceeded = t.overflows.Load()
	s.AllocationFailures = t.allocFailed.Load()
	for c := range s.Deleted {
		s.Deleted[c] = t.deleted[c].Load()
	}
	s.Released = t.released.Load()
	return s
}
