package region_test

import (
	"errors"
	"image"
	"testing"

	"gocv.io/x/gocv"

	"github.com/okian/hitscore/internal/domain/model"
	"github.com/okian/hitscore/internal/vision/region"
	. "github.com/smartystreets/goconvey/convey"
)

func TestExtract(t *testing.T) {
	Convey("Given a 640x480 frame", t, func() {
		frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 480, 640, gocv.MatTypeCV8UC3)
		defer frame.Close()

		Convey("When extracting an ROI inside the frame", func() {
			crop, err := region.Extract(frame, model.ROI{X1: 100, Y1: 50, X2: 300, Y2: 150})
			defer crop.Close()

			Convey("Then the crop has the ROI dimensions", func() {
				So(err, ShouldBeNil)
				So(crop.Cols(), ShouldEqual, 200)
				So(crop.Rows(), ShouldEqual, 100)
			})
		})

		Convey("When the ROI spans the whole frame", func() {
			crop, err := region.Extract(frame, model.ROI{X2: 640, Y2: 480})
			defer crop.Close()
			So(err, ShouldBeNil)
			So(crop.Cols(), ShouldEqual, 640)
		})

		Convey("When the ROI reaches past the frame", func() {
			crop, err := region.Extract(frame, model.ROI{X1: 600, Y1: 0, X2: 700, Y2: 100})
			defer crop.Close()
			So(errors.Is(err, model.ErrInvalidRegion), ShouldBeTrue)
		})

		Convey("When the ROI is empty", func() {
			crop, err := region.Extract(frame, model.ROI{X1: 10, Y1: 10, X2: 10, Y2: 50})
			defer crop.Close()
			So(errors.Is(err, model.ErrInvalidRegion), ShouldBeTrue)
		})

		Convey("When the frame is empty", func() {
			empty := gocv.NewMat()
			defer empty.Close()
			crop, err := region.Extract(empty, model.ROI{X2: 10, Y2: 10})
			defer crop.Close()
			So(errors.Is(err, model.ErrInvalidRegion), ShouldBeTrue)
		})
	})
}

func TestClip(t *testing.T) {
	Convey("Given an ROI hanging off the frame edge", t, func() {
		roi := model.ROI{X1: -20, Y1: 400, X2: 100, Y2: 520}

		Convey("Then it is clipped to the frame", func() {
			clipped, err := region.Clip(roi, image.Pt(640, 480))
			So(err, ShouldBeNil)
			So(clipped, ShouldResemble, model.ROI{X1: 0, Y1: 400, X2: 100, Y2: 480})
		})

		Convey("Then an ROI fully outside is rejected", func() {
			_, err := region.Clip(model.ROI{X1: 700, Y1: 0, X2: 800, Y2: 10}, image.Pt(640, 480))
			So(errors.Is(err, model.ErrInvalidRegion), ShouldBeTrue)
		})
	})
}
