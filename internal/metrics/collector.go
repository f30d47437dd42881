// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exports flow table counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/flowtrack/internal/flowtable"
)

// Insert outcomes used as the "result" label.
const (
	ResultInserted         = "inserted"
	ResultDuplicate        = "duplicate"
	ResultCapacityExceeded = "capacity_exceeded"
	ResultAllocFailed      = "allocation_failed"
)

// StatsSource is anything that can report flow table stats. *flowtable.Table
// satisfies it.
type StatsSource interface {
	Stats() flowtable.Stats
}

// Collector reads a StatsSource on every scrape and reports it as const
// metrics.
type Collector struct {
	src StatsSource

	flows          *prometheus.Desc
	buckets        *prometheus.Desc
	bucketCapacity *prometheus.Desc
	maxBucketLen   *prometheus.Desc
	fullBuckets    *prometheus.Desc
	inserts        *prometheus.Desc
	deletes        *prometheus.Desc
	released       *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector for src. constLabels are attached to every
// metric, typically to tell several tables apart.
func NewCollector(src StatsSource, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc("flowtrack_"+name, help, labels, constLabels)
	}

	return &Collector{
		src:            src,
		flows:          desc("flows", "Number of flows currently in the table"),
		buckets:        desc("buckets", "Number of hash buckets"),
		bucketCapacity: desc("bucket_capacity", "Maximum flows per bucket"),
		maxBucketLen:   desc("bucket_max_occupancy", "Flows in the fullest bucket"),
		fullBuckets:    desc("full_buckets", "Buckets at capacity"),
		inserts:        desc("inserts_total", "Insert attempts by outcome", "result"),
		deletes:        desc("deletes_total", "Deleted flows by category", "category"),
		released:       desc("records_released_total", "Records handed back to the allocator"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.flows
	ch <- c.buckets
	ch <- c.bucketCapacity
	ch <- c.maxBucketLen
	ch <- c.fullBuckets
	ch <- c.inserts
	ch <- c.deletes
	ch <- c.released
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	gauge(c.flows, s.Flows)
	gauge(c.buckets, s.Buckets)
	gauge(c.bucketCapacity, s.BucketCapacity)
	gauge(c.maxBucketLen, s.MaxBucketLen)
	gauge(c.fullBuckets, s.FullBuckets)

	for result, v := range map[string]uint64{
		ResultInserted:         s.Inserted,
		ResultDuplicate:        s.DuplicateKeys,
		ResultCapacityExceeded: s.CapacityExceeded,
		ResultAllocFailed:      s.AllocationFailures,
	} {
		ch <- prometheus.MustNewConstMetric(c.inserts, prometheus.CounterValue, float64(v), result)
	}

	for cat := flowtable.Category(0); cat < flowtable.NumCategories; cat++ {
		ch <- prometheus.MustNewConstMetric(c.deletes, prometheus.CounterValue, float64(s.Deleted[cat]), cat.String())
	}

	ch <- prometheus.MustNewConstMetric(c.released, prometheus.CounterValue, float64(s.Released))
}
