package repository

import "errors"

// Sentinel kinds for event store errors.
var (
	ErrNotFound  = errors.New("event not found")
	ErrDuplicate = errors.New("event already recorded")
)
