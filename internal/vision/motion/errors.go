package motion

import "errors"

// Sentinel kinds for motion errors.
var (
	ErrEmptyFrame   = errors.New("empty crop")
	ErrSizeMismatch = errors.New("crop size changed")
)
