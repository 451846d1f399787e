// Package region crops the analyzed region out of full frames.
package region

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/okian/hitscore/internal/domain/model"
)

// Extract returns the sub-image of frame covered by roi. The result shares
// pixel memory with frame and must be closed by the caller. The ROI must be
// non-empty and lie fully inside the frame.
func Extract(frame gocv.Mat, roi model.ROI) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: empty frame", model.ErrInvalidRegion)
	}
	if roi.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: empty roi %s", model.ErrInvalidRegion, roi)
	}
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	if !roi.Rect().In(bounds) {
		return gocv.NewMat(), fmt.Errorf("%w: roi %s outside %dx%d frame",
			model.ErrInvalidRegion, roi, frame.Cols(), frame.Rows())
	}
	return frame.Region(roi.Rect()), nil
}

// Clip intersects roi with a frame of the given size. It fails when nothing
// of the ROI remains.
func Clip(roi model.ROI, size image.Point) (model.ROI, error) {
	r := roi.Rect().Intersect(image.Rect(0, 0, size.X, size.Y))
	if r.Empty() {
		return model.ROI{}, fmt.Errorf("%w: roi %s does not overlap %dx%d frame",
			model.ErrInvalidRegion, roi, size.X, size.Y)
	}
	return model.ROI{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}, nil
}
