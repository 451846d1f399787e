// Package segment turns a per-frame motion series into discrete impact
// frames using an adaptive threshold and a cooldown window.
package segment

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Defaults.
const (
	DefaultSensitivity = 1.5
	DefaultCooldown    = 1500 * time.Millisecond
	DefaultWarmup      = 500 * time.Millisecond
)

// Segmentation is the outcome of one pass over a motion series.
type Segmentation struct {
	Threshold float64
	Peaks     []int // representative impact frame indices, increasing
}

// Segmenter finds impact peaks in a complete motion series.
type Segmenter struct {
	sensitivity float64
	cooldown    time.Duration
	warmup      time.Duration
}

// New creates a segmenter.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		sensitivity: DefaultSensitivity,
		cooldown:    DefaultCooldown,
		warmup:      DefaultWarmup,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Segment computes the adaptive threshold over all scores and scans for
// peaks after the warm-up span. Fewer than two scores yield no peaks.
func (s *Segmenter) Segment(scores []float64, fps float64) Segmentation {
	if len(scores) < 2 || fps <= 0 {
		return Segmentation{}
	}
	mean, std := stat.PopMeanStdDev(scores, nil)
	threshold := mean + s.sensitivity*std

	return Segmentation{
		Threshold: threshold,
		Peaks:     FindPeaks(scores, threshold, s.WarmupFrames(fps), s.CooldownFrames(fps)),
	}
}

// CooldownFrames returns the window length in frames, at least one.
func (s *Segmenter) CooldownFrames(fps float64) int {
	return max(1, int(math.Round(fps*s.cooldown.Seconds())))
}

// WarmupFrames returns the number of leading frames skipped by the scan.
func (s *Segmenter) WarmupFrames(fps float64) int {
	return max(0, int(math.Round(fps*s.warmup.Seconds())))
}

// FindPeaks scans scores from start. The first index above threshold opens
// the window [i, i+cooldownFrames); its maximum (earliest on ties) is emitted
// and the scan resumes at i+cooldownFrames.
func FindPeaks(scores []float64, threshold float64, start, cooldownFrames int) []int {
	cooldownFrames = max(1, cooldownFrames)
	start = max(0, start)

	var peaks []int
	for i := start; i < len(scores); {
		if scores[i] <= threshold {
			i++
			continue
		}
		end := min(len(scores), i+cooldownFrames)
		peak := i
		for j := i + 1; j < end; j++ {
			if scores[j] > scores[peak] {
				peak = j
			}
		}
		peaks = append(peaks, peak)
		i += cooldownFrames
	}
	return peaks
}
