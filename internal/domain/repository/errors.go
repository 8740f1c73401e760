// Package repository defines the storage-agnostic contracts every component
// depends on; concrete adapters live under internal/storage.
package repository

import "errors"

// Sentinel errors shared by every storage adapter. Adapters wrap
// technology-specific errors (pgx.ErrNoRows, redis.Nil, unique-violation
// pgerrcode) into these at the boundary so callers never import a storage
// package just to compare errors.
var (
	ErrNotFound         = errors.New("repository: not found")
	ErrDuplicateRecord  = errors.New("repository: duplicate record")
	ErrLockConflict     = errors.New("repository: lease lock conflict")
	ErrAlreadyProcessed = errors.New("repository: already processed")
)
