// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"image"
	"math"
)

// RingSpec is one calibrated scoring ring in source-frame pixel coordinates.
type RingSpec struct {
	Value  int         // points awarded for a hit inside this ring
	Center image.Point // ring center
	Radius int         // ring radius in pixels
}

// Contains reports whether p lies within the ring disk widened by tolerance.
// The boundary is inclusive.
func (r RingSpec) Contains(p image.Point, tolerance float64) bool {
	return r.Distance(p) <= float64(r.Radius)+tolerance
}

// Distance returns the Euclidean distance from p to the ring center.
func (r RingSpec) Distance(p image.Point) float64 {
	return math.Hypot(float64(p.X-r.Center.X), float64(p.Y-r.Center.Y))
}

// ScoringLayout is the ordered set of rings evaluated for every impact.
// Ring order is the precedence order: the first ring containing a point wins.
type ScoringLayout struct {
	Rings []RingSpec
}

// Len returns the number of rings.
func (l ScoringLayout) Len() int { return len(l.Rings) }

// ROI is an axis-aligned rectangle in source-frame coordinates. X2/Y2 are
// exclusive, matching image.Rectangle.
type ROI struct {
	X1, Y1, X2, Y2 int
}

// Rect converts the ROI into an image.Rectangle.
func (r ROI) Rect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Origin returns the top-left corner of the ROI.
func (r ROI) Origin() image.Point {
	return image.Pt(r.X1, r.Y1)
}

// Empty reports whether the ROI has no area.
func (r ROI) Empty() bool {
	return r.X2 <= r.X1 || r.Y2 <= r.Y1
}

func (r ROI) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}

// FrameSample is the per-frame record produced by the decode pass. Pixel data
// is kept separately in a frame store keyed by Index.
type FrameSample struct {
	Index       int
	Timestamp   float64 // seconds, Index / fps
	MotionScore float64
}

// ImpactEvent is one scored impact. Events are immutable once built.
type ImpactEvent struct {
	Ordinal      int          // 1-based position in the output list
	FrameIndex   int          // index of the representative peak frame
	Timestamp    float64      // seconds
	MotionScore  float64      // motion magnitude of the peak frame
	BallPosition *image.Point // nil when the ball was not found
	Scored       bool
	PointValue   int // 0 when Scored is false
}

// Result is the output artifact of one detector run.
type Result struct {
	RunID      string
	Video      string
	FPS        float64
	FrameCount int
	Threshold  float64
	ROI        ROI
	Layout     ScoringLayout
	Events     []ImpactEvent
	TotalScore int
}

// Timestamp converts a frame index to seconds.
func Timestamp(index int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(index) / fps
}

// ImpactJob asks a worker to localize and score one impact frame.
type ImpactJob struct {
	Ordinal     int // 1-based, in timestamp order
	FrameIndex  int
	Timestamp   float64
	MotionScore float64
}
