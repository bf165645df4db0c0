package domain

import "errors"

var (
	// ErrNotFound indicates that a requested queue item was not found.
	ErrNotFound = errors.New("queue item not found")
	// ErrNoDueItems indicates no queue items are currently due for draining.
	ErrNoDueItems = errors.New("no due queue items")
	// ErrDrainInProgress indicates another instance holds the drain lease.
	ErrDrainInProgress = errors.New("drain already in progress")
)
