package ball

import "fmt"

// Selection decides which qualifying contour becomes the ball.
type Selection string

// Contour selection strategies.
const (
	SelectFirst   Selection = "first"   // first qualifying contour in retrieval order
	SelectLargest Selection = "largest" // qualifying contour with the largest area
)

// ParseSelection validates a selection name.
func ParseSelection(s string) (Selection, error) {
	switch Selection(s) {
	case SelectFirst, SelectLargest:
		return Selection(s), nil
	case "":
		return SelectFirst, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSelection, s)
	}
}

// Option applies a configuration option to the Localizer.
type Option func(*Localizer)

// WithHSVRange sets the inclusive ball color bounds (OpenCV HSV, hue 0-180).
func WithHSVRange(lower, upper [3]float64) Option {
	return func(l *Localizer) {
		l.lower = lower
		l.upper = upper
	}
}

// WithDilateIterations sets how many times the mask is dilated.
func WithDilateIterations(n int) Option {
	return func(l *Localizer) {
		if n >= 0 {
			l.dilateIterations = n
		}
	}
}

// WithAreaRange sets the exclusive contour area bounds in square pixels.
func WithAreaRange(minArea, maxArea float64) Option {
	return func(l *Localizer) {
		if minArea >= 0 && maxArea > minArea {
			l.minArea = minArea
			l.maxArea = maxArea
		}
	}
}

// WithSelection sets the contour selection strategy.
func WithSelection(s Selection) Option {
	return func(l *Localizer) {
		if s == SelectFirst || s == SelectLargest {
			l.selection = s
		}
	}
}
