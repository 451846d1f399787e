package ball

import "errors"

// Sentinel kinds for localization errors.
var (
	ErrEmptyCrop        = errors.New("empty crop")
	ErrUnknownSelection = errors.New("unknown contour selection")
)
