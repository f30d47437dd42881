// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowtable

import "grimm.is/flowtrack/internal/errors"

// Errors returned by Insert and Close. Match them with errors.Is; the
// returned values carry "bucket" and "flow" attributes.
var (
	ErrCapacityExceeded = errors.New(errors.KindCapacity, "flow bucket is full")
	ErrDuplicateKey     = errors.New(errors.KindConflict, "flow already tracked")
	ErrAllocationFailed = errors.New(errors.KindUnavailable, "flow record allocation failed")
	ErrClosed           = errors.New(errors.KindUnavailable, "flow table is closed")
)
