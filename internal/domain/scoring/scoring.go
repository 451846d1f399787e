// Package scoring maps a localized ball position to a point value using the
// calibrated ring layout.
package scoring

import (
	"context"
	"fmt"
	"image"

	"github.com/okian/hitscore/internal/domain/model"
)

// DefaultTolerance widens every ring by this many pixels to absorb
// localization and calibration error.
const DefaultTolerance = 15.0

// Option applies a configuration option to the RingEvaluator.
type Option func(*RingEvaluator)

// WithTolerance sets the hit tolerance in pixels. Negative values are ignored.
func WithTolerance(px float64) Option {
	return func(e *RingEvaluator) {
		if px >= 0 {
			e.tolerance = px
		}
	}
}

// Input abstracts the impact fields needed for scoring.
type Input struct {
	// Position is the ball centroid in source-frame coordinates, nil when
	// localization found nothing.
	Position *image.Point
}

// Result is the outcome of scoring one impact.
type Result struct {
	Scored bool
	Value  int
	Ring   *model.RingSpec // matched ring, nil on a miss
}

// Evaluator scores a single impact against a layout.
type Evaluator interface {
	// Evaluate scores in, honoring ctx for cancellation.
	Evaluate(ctx context.Context, in Input, layout model.ScoringLayout) (Result, error)
}

// RingEvaluator implements Evaluator with first-match ring precedence.
type RingEvaluator struct {
	tolerance float64
}

// NewEvaluator creates a ring evaluator.
func NewEvaluator(opts ...Option) *RingEvaluator {
	e := &RingEvaluator{tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tolerance returns the configured hit tolerance.
func (e *RingEvaluator) Tolerance() float64 { return e.tolerance }

// Evaluate returns the first ring in layout order whose widened disk contains
// the position. An absent position or no matching ring is a miss.
func (e *RingEvaluator) Evaluate(ctx context.Context, in Input, layout model.ScoringLayout) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context cancelled: %w", err)
	}
	if in.Position == nil {
		return Result{}, nil
	}
	for i := range layout.Rings {
		ring := layout.Rings[i]
		if ring.Contains(*in.Position, e.tolerance) {
			return Result{Scored: true, Value: ring.Value, Ring: &ring}, nil
		}
	}
	return Result{}, nil
}

// Total sums the point values of scored results.
func Total(results []Result) int {
	total := 0
	for _, r := range results {
		if r.Scored {
			total += r.Value
		}
	}
	return total
}
