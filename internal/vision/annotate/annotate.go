// Package annotate draws detector results onto frames for review.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/okian/hitscore/internal/domain/model"
)

// Drawing colors. gocv takes color.RGBA and converts to BGR.
var (
	White  = color.RGBA{R: 255, G: 255, B: 255}
	Green  = color.RGBA{G: 255}
	Yellow = color.RGBA{R: 255, G: 255}
	Orange = color.RGBA{R: 255, G: 165}
	Red    = color.RGBA{R: 255}
)

const (
	ballMarkerRadius = 15
	ringThickness    = 2
	markerThickness  = 3
	labelScale       = 0.7
	labelThickness   = 2
)

// RingColor returns the outline color used for a ring of the given value.
func RingColor(value int) color.RGBA {
	switch value {
	case 10:
		return Green
	case 20:
		return Yellow
	case 30:
		return Orange
	default:
		return White
	}
}

// Label returns the marker caption for an event.
func Label(e model.ImpactEvent) string {
	if e.Scored {
		return fmt.Sprintf("%.2fs +%d", e.Timestamp, e.PointValue)
	}
	return fmt.Sprintf("%.2fs MISS", e.Timestamp)
}

// Event returns a copy of frame with the ROI, every ring and, when the ball
// was found, a marker and caption. The caller closes the result.
func Event(frame gocv.Mat, roi model.ROI, layout model.ScoringLayout, e model.ImpactEvent) gocv.Mat {
	out := frame.Clone()

	gocv.Rectangle(&out, roi.Rect(), White, 1)
	for _, r := range layout.Rings {
		gocv.Circle(&out, r.Center, r.Radius, RingColor(r.Value), ringThickness)
	}

	if e.BallPosition != nil {
		c := Red
		if e.Scored {
			c = Green
		}
		p := *e.BallPosition
		gocv.Circle(&out, p, ballMarkerRadius, c, markerThickness)
		gocv.PutText(&out, Label(e), p.Add(image.Pt(-50, -25)), gocv.FontHersheySimplex, labelScale, c, labelThickness)
	}
	return out
}

// Layout returns a copy of frame with the ROI and rings drawn, used to check
// a calibration against the reference frame.
func Layout(frame gocv.Mat, roi model.ROI, layout model.ScoringLayout) gocv.Mat {
	out := frame.Clone()
	gocv.Rectangle(&out, roi.Rect(), White, 1)
	for _, r := range layout.Rings {
		gocv.Circle(&out, r.Center, r.Radius, RingColor(r.Value), ringThickness)
		gocv.PutText(&out, fmt.Sprint(r.Value), r.Center.Add(image.Pt(-8, 5)), gocv.FontHersheySimplex, 0.4, RingColor(r.Value), 1)
	}
	return out
}
