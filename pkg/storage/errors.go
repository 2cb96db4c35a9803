package storage

import "errors"

// Sentinel errors for trace store operations.
var (
	// ErrNotFound is returned when a request, or the plan of a request, does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a request, plan or step result already exists.
	// Plans and step results are write-once.
	ErrConflict = errors.New("already exists")

	// ErrFinalized is returned when finalizing a request that has already
	// reached a terminal status.
	ErrFinalized = errors.New("request already finalized")

	// ErrUnknownStep is returned when a step result names a step index that
	// is not part of the request's plan, or the request has no plan yet.
	ErrUnknownStep = errors.New("step not in plan")
)
