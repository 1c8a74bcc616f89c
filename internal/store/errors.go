package store

import "errors"

// ErrNotFound is returned when a lookup by ID or natural key finds
// nothing, mirroring pkg/index.ErrNotFound's role in the teacher.
var ErrNotFound = errors.New("store: not found")
