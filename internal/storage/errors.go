package storage

import "errors"

// ErrNotFound is returned when a requested row does not exist: a removed
// delegate or profile, an unknown setup entity, or a task recorded before
// metadata capture existed.
var ErrNotFound = errors.New("storage: not found")
