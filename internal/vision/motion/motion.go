// Package motion scores inter-frame change inside the region of interest.
package motion

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// DefaultBlurKernel is the Gaussian kernel size applied before differencing.
const DefaultBlurKernel = 5

// Option applies a configuration option to the Analyzer.
type Option func(*Analyzer)

// WithBlurKernel sets the Gaussian kernel size. Even sizes are rounded up to
// the next odd size; values below one are ignored.
func WithBlurKernel(size int) Option {
	return func(a *Analyzer) {
		if size < 1 {
			return
		}
		if size%2 == 0 {
			size++
		}
		a.kernel = size
	}
}

// Analyzer turns a sequence of crops into motion scores. It retains the
// previous smoothed crop and is not safe for concurrent use.
type Analyzer struct {
	kernel int
	prev   gocv.Mat
}

// NewAnalyzer creates an analyzer with no retained frame.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		kernel: DefaultBlurKernel,
		prev:   gocv.NewMat(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Feed scores crop against the previously fed crop as the sum of absolute
// differences of their blurred grayscale versions. The first crop after
// construction or Reset scores 0.
func (a *Analyzer) Feed(crop gocv.Mat) (float64, error) {
	if crop.Empty() {
		return 0, ErrEmptyFrame
	}

	smoothed := a.smooth(crop)

	if a.prev.Empty() {
		a.prev.Close()
		a.prev = smoothed
		return 0, nil
	}
	if a.prev.Rows() != smoothed.Rows() || a.prev.Cols() != smoothed.Cols() {
		err := fmt.Errorf("%w: %dx%d after %dx%d", ErrSizeMismatch,
			smoothed.Cols(), smoothed.Rows(), a.prev.Cols(), a.prev.Rows())
		smoothed.Close()
		return 0, err
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(a.prev, smoothed, &diff)
	score := diff.Sum().Val1

	a.prev.Close()
	a.prev = smoothed
	return score, nil
}

func (a *Analyzer) smooth(crop gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	if crop.Channels() == 1 {
		crop.CopyTo(&gray)
	} else {
		gocv.CvtColor(crop, &gray, gocv.ColorBGRToGray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Pt(a.kernel, a.kernel), 0, 0, gocv.BorderDefault)
	return blurred
}

// Reset drops the retained crop so the next Feed scores 0.
func (a *Analyzer) Reset() {
	a.prev.Close()
	a.prev = gocv.NewMat()
}

// Close releases the retained crop.
func (a *Analyzer) Close() error {
	return a.prev.Close()
}

// Scores runs a fresh analyzer over crops and returns one score per crop.
func Scores(crops []gocv.Mat, opts ...Option) ([]float64, error) {
	a := NewAnalyzer(opts...)
	defer a.Close()

	out := make([]float64, 0, len(crops))
	for i, c := range crops {
		s, err := a.Feed(c)
		if err != nil {
			return nil, fmt.Errorf("crop %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}
