// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"grimm.is/flowtrack/internal/errors"
	"grimm.is/flowtrack/internal/flowtable"
	"grimm.is/flowtrack/internal/logging"
)

// workload describes a synthetic insert/update/delete mix.
type workload struct {
	Workers int
	Ops     int // per worker
	Flows   int // size of the key space
	Seed    uint64
	Policy  flowtable.AllocPolicy
}

// outcome sums what the workers did.
type outcome struct {
	Inserted  int64
	Rejected  int64
	Updated   int64
	Missed    int64
	Deleted   [flowtable.NumCategories]int64
	Magnitude [flowtable.NumCategories]uint64
}

type counters struct {
	inserted  atomic.Int64
	rejected  atomic.Int64
	updated   atomic.Int64
	missed    atomic.Int64
	deleted   [flowtable.NumCategories]atomic.Int64
	magnitude [flowtable.NumCategories]atomic.Uint64
}

func (c *counters) snapshot() outcome {
	o := outcome{
		Inserted: c.inserted.Load(),
		Rejected: c.rejected.Load(),
		Updated:  c.updated.Load(),
		Missed:   c.missed.Load(),
	}
	for i := range o.Deleted {
		o.Deleted[i] = c.deleted[i].Load()
		o.Magnitude[i] = c.magnitude[i].Load()
	}
	return o
}

// simKey maps an index in [0, flows) to a distinct IPv4 flow.
func simKey(i int) flowtable.FlowKey {
	return flowtable.FlowKey{
		LocalAddr:  0x0A000000 | uint32(i)&0x00FFFFFF,
		RemoteAddr: 0xC0A80001 + uint32(i%7),
		LocalPort:  uint16(1024 + i%50000),
		RemotePort: 443,
	}
}

func simInfo(rng *rand.Rand) flowtable.FlowInfo {
	now := time.Now()
	info := flowtable.FlowInfo{
		LatestUpdateTime: now,
		LatestSeq:        rng.Uint32(),
	}
	switch rng.IntN(3) {
	case 0:
		info.IsDeadlineKnown = true
		info.LatestTimeoutTime = now.Add(time.Duration(rng.IntN(500)) * time.Millisecond)
	case 1:
		info.IsSizeKnown = true
		info.BytesTotal = uint32(rng.IntN(1 << 20))
	}
	return info
}

// run drives the table with w until every worker finishes or ctx is done.
// Insert rejections are expected under load and only counted; any other
// error stops the run.
func run(ctx context.Context, table *flowtable.Table, w workload, logger *logging.Logger) (outcome, error) {
	var c counters
	g, ctx := errgroup.WithContext(ctx)

	for id := range w.Workers {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(w.Seed, uint64(id)))
			for n := 0; n < w.Ops; n++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				key := simKey(rng.IntN(w.Flows))

				switch op := rng.IntN(10); {
				case op < 4:
					err := table.Insert(key, simInfo(rng), w.Policy)
					switch {
					case err == nil:
						c.inserted.Add(1)
					case errors.Is(err, flowtable.ErrDuplicateKey),
						errors.Is(err, flowtable.ErrCapacityExceeded),
						errors.Is(err, flowtable.ErrAllocationFailed):
						c.rejected.Add(1)
					default:
						return err
					}
				case op < 8:
					sent := uint32(rng.IntN(1500))
					found := table.Update(key, func(fi *flowtable.FlowInfo) {
						fi.BytesSent += sent
						fi.LatestAck = fi.LatestSeq
						fi.LatestSeq += sent
						fi.LatestUpdateTime = time.Now()
					})
					if found {
						c.updated.Add(1)
					} else {
						c.missed.Add(1)
					}
				default:
					if cat, mag, ok := table.Delete(key); ok {
						c.deleted[cat].Add(1)
						c.magnitude[cat].Add(uint64(mag))
					} else {
						c.missed.Add(1)
					}
				}
			}
			logger.Debug("Worker finished", "worker", id, "ops", w.Ops)
			return nil
		})
	}

	err := g.Wait()
	return c.snapshot(), err
}
