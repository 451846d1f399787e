package segment

import "time"

// Option applies a configuration option to the Segmenter.
type Option func(*Segmenter)

// WithSensitivity sets k in threshold = mean + k*std.
func WithSensitivity(k float64) Option {
	return func(s *Segmenter) {
		s.sensitivity = k
	}
}

// WithCooldown sets the refractory window opened by a trigger frame.
func WithCooldown(d time.Duration) Option {
	return func(s *Segmenter) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithWarmup sets the initial span ignored by the scan.
func WithWarmup(d time.Duration) Option {
	return func(s *Segmenter) {
		if d >= 0 {
			s.warmup = d
		}
	}
}
