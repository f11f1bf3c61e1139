package repository

import "errors"

// Shared ledger errors. ErrVersionConflict means a version-guarded write found
// the aggregate at a different version than expected; callers retry from a
// fresh read.
var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("version conflict")
)
