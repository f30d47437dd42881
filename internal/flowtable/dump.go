// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

import (
	"fmt"
	"io"
	"strings"

	"grimm.is/flowtrack/internal/logging"
)

// errWriter keeps the first write error so dump code can write unconditionally.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// DumpBucket writes the flows of bucket i in arrival order.
func (t *Table) DumpBucket(w io.Writer, i int) error {
	ew := &errWriter{w: w}
	t.dumpBucket(ew, i)
	return ew.err
}

func (t *Table) dumpBucket(ew *errWriter, i int) {
	b := &t.buckets[i]
	b.mu.Lock()
	defer b.mu.Unlock()

	ew.printf("bucket %d (%d/%d)\n", i, b.len(), b.capacity)
	b.walk(func(r *Record) bool {
		ew.printf("  %s\n", r)
		return ew.err == nil
	})
}

// Dump writes every non-empty bucket followed by the total flow count.
func (t *Table) Dump(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("flow table %s: %d buckets x %d\n", t.id, len(t.buckets), t.capacity)
	for i := range t.buckets {
		if t.BucketLen(i) == 0 {
			continue
		}
		t.dumpBucket(ew, i)
	}
	ew.printf("%d flows in total\n", t.Len())
	return ew.err
}

func (t *Table) String() string {
	var sb strings.Builder
	_ = t.Dump(&sb)
	return sb.String()
}

// LogTable writes the dump through logger, one line per non-empty bucket.
func (t *Table) LogTable(logger *logging.Logger) {
	if logger == nil {
		logger = t.logger
	}
	for i := range t.buckets {
		var flows []string
		t.walkBucket(i, func(r *Record) bool {
			flows = append(flows, r.String())
			return true
		})
		if len(flows) == 0 {
			continue
		}
		logger.Info("Flow bucket", "bucket", i, "len", len(flows), "flows", flows)
	}
	logger.Info("Flow table", "flows", t.Len(), "buckets", len(t.buckets))
}
