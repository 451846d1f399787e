// Package ball locates the ball in a cropped impact frame by color.
package ball

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Defaults for a yellow-green tennis ball under daylight.
var (
	DefaultLower = [3]float64{20, 80, 80}
	DefaultUpper = [3]float64{45, 255, 255}
)

// Default mask and contour filter parameters.
const (
	DefaultDilateIterations = 2
	DefaultMinArea          = 30.0
	DefaultMaxArea          = 2000.0
)

// Localizer finds the ball centroid with an HSV mask, dilation, external
// contours and an area filter. It holds no per-frame state and is safe for
// concurrent use.
type Localizer struct {
	lower, upper     [3]float64
	dilateIterations int
	minArea, maxArea float64
	selection        Selection
}

// NewLocalizer creates a localizer.
func NewLocalizer(opts ...Option) *Localizer {
	l := &Localizer{
		lower:            DefaultLower,
		upper:            DefaultUpper,
		dilateIterations: DefaultDilateIterations,
		minArea:          DefaultMinArea,
		maxArea:          DefaultMaxArea,
		selection:        SelectFirst,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate returns the ball centroid in source-frame coordinates (crop
// coordinates offset by origin). found is false when no contour qualifies.
func (l *Localizer) Locate(crop gocv.Mat, origin image.Point) (pos image.Point, found bool, err error) {
	if crop.Empty() {
		return image.Point{}, false, ErrEmptyCrop
	}

	mask := l.Mask(crop)
	defer mask.Close()

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	bestArea := -1.0
	var best image.Point
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area <= l.minArea || area >= l.maxArea {
			continue
		}
		c, ok := Centroid(contour.ToPoints())
		if !ok {
			continue
		}
		if l.selection == SelectFirst {
			return c.Add(origin), true, nil
		}
		if area > bestArea {
			bestArea, best = area, c
		}
	}
	if bestArea < 0 {
		return image.Point{}, false, nil
	}
	return best.Add(origin), true, nil
}

// Mask returns the dilated binary ball mask of crop. The caller closes it.
func (l *Localizer) Mask(crop gocv.Mat) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(crop, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(l.lower[0], l.lower[1], l.lower[2], 0),
		gocv.NewScalar(l.upper[0], l.upper[1], l.upper[2], 0),
		&mask)

	if l.dilateIterations > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
		defer kernel.Close()
		for i := 0; i < l.dilateIterations; i++ {
			gocv.Dilate(mask, &mask, kernel)
		}
	}
	return mask
}

// Centroid returns the rounded centroid m10/m00, m01/m00 of the polygon
// traced by pts, using the area moments of the closed contour. ok is false
// for a degenerate polygon with zero area.
func Centroid(pts []image.Point) (c image.Point, ok bool) {
	var m00, m10, m01 float64
	n := len(pts)
	for i := 0; i < n; i++ {
		p, q := pts[i], pts[(i+1)%n]
		xi, yi := float64(p.X), float64(p.Y)
		xj, yj := float64(q.X), float64(q.Y)
		a := xi*yj - xj*yi
		m00 += a
		m10 += (xi + xj) * a
		m01 += (yi + yj) * a
	}
	m00 /= 2
	if m00 == 0 {
		return image.Point{}, false
	}
	m10 /= 6
	m01 /= 6
	return image.Pt(int(math.Round(m10/m00)), int(math.Round(m01/m00))), true
}
