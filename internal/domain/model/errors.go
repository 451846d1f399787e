package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds shared by every stage of a run. These allow errors.Is
// from callers regardless of which package produced the failure.
var (
	ErrDecode        = errors.New("decode error")
	ErrInvalidRegion = errors.New("invalid region")
	ErrConfigMissing = errors.New("scoring layout missing or malformed")
	ErrFrameLimit    = errors.New("frame limit exceeded")
)

// Stage names used in StageError.
const (
	StageOpen      = "open"
	StageDecode    = "decode"
	StageRegion    = "region"
	StageMotion    = "motion"
	StageStore     = "store"
	StageLocalize  = "localize"
	StageLayout    = "layout"
	StageArtifacts = "artifacts"
)

// StageError reports a fatal failure together with the stage and frame it
// happened in. Frame is -1 when the failure is not tied to a frame.
type StageError struct {
	Stage     string
	Frame     int
	Timestamp float64
	Kind      error // one of the sentinels above
	Err       error // underlying cause, may be nil
}

// NewStageError builds a StageError.
func NewStageError(stage string, frame int, ts float64, kind, err error) *StageError {
	return &StageError{Stage: stage, Frame: frame, Timestamp: ts, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	msg := e.Stage
	if e.Frame >= 0 {
		msg = fmt.Sprintf("%s: frame %d (%.3fs)", msg, e.Frame, e.Timestamp)
	}
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *StageError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
