package video

import "errors"

// Sentinel kinds for video adapter errors.
var (
	ErrFrameNotFound = errors.New("frame not buffered")
	ErrWriteFrame    = errors.New("frame write failed")
	ErrReadFrame     = errors.New("frame read failed")
	ErrStoreClosed   = errors.New("frame store closed")
	ErrUnknownBuffer = errors.New("unknown frame buffer kind")
)
