package artifacts

import "errors"

// Sentinel kinds for artifact errors.
var (
	ErrOutputDir  = errors.New("output directory unavailable")
	ErrImageWrite = errors.New("image write failed")
	ErrNoScores   = errors.New("no motion scores to plot")
)
