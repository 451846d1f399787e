package synth

import "errors"

var (
	ErrInvalidClip = errors.New("invalid synthetic clip")
	ErrVideoWriter = errors.New("video writer unavailable")
)
