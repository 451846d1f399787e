package scoring_test

import (
	"context"
	"image"
	"testing"

	"github.com/okian/hitscore/internal/domain/model"
	scoring "github.com/okian/hitscore/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func pt(x, y int) *image.Point {
	p := image.Pt(x, y)
	return &p
}

func TestRingEvaluator_Evaluate(t *testing.T) {
	Convey("Given a single ring of radius 20 at (100,100) and tolerance 15", t, func() {
		evaluator := scoring.NewEvaluator(scoring.WithTolerance(15))
		layout := model.ScoringLayout{Rings: []model.RingSpec{
			{Value: 20, Center: image.Pt(100, 100), Radius: 20},
		}}
		ctx := context.Background()

		Convey("When the ball is at the center", func() {
			res, err := evaluator.Evaluate(ctx, scoring.Input{Position: pt(100, 100)}, layout)

			Convey("Then it scores the ring value", func() {
				So(err, ShouldBeNil)
				So(res.Scored, ShouldBeTrue)
				So(res.Value, ShouldEqual, 20)
				So(res.Ring, ShouldNotBeNil)
				So(res.Ring.Center, ShouldResemble, image.Pt(100, 100))
			})
		})

		Convey("When the ball is exactly radius+tolerance away", func() {
			res, err := evaluator.Evaluate(ctx, scoring.Input{Position: pt(135, 100)}, layout)

			Convey("Then the boundary is inclusive", func() {
				So(err, ShouldBeNil)
				So(res.Scored, ShouldBeTrue)
			})
		})

		Convey("When the ball is one pixel beyond radius+tolerance", func() {
			res, err := evaluator.Evaluate(ctx, scoring.Input{Position: pt(136, 100)}, layout)

			Convey("Then it is a miss worth zero", func() {
				So(err, ShouldBeNil)
				So(res.Scored, ShouldBeFalse)
				So(res.Value, ShouldEqual, 0)
				So(res.Ring, ShouldBeNil)
			})
		})

		Convey("When the ball was not found", func() {
			res, err := evaluator.Evaluate(ctx, scoring.Input{}, layout)

			Convey("Then it is a miss", func() {
				So(err, ShouldBeNil)
				So(res.Scored, ShouldBeFalse)
				So(res.Value, ShouldEqual, 0)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := evaluator.Evaluate(cctx, scoring.Input{Position: pt(100, 100)}, layout)

			Convey("Then an error is returned", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given overlapping rings sorted by ascending radius", t, func() {
		evaluator := scoring.NewEvaluator(scoring.WithTolerance(0))
		layout := model.ScoringLayout{Rings: []model.RingSpec{
			{Value: 30, Center: image.Pt(50, 50), Radius: 15},
			{Value: 10, Center: image.Pt(50, 50), Radius: 27},
		}}

		Convey("When the ball lies inside both", func() {
			res, err := evaluator.Evaluate(context.Background(), scoring.Input{Position: pt(55, 50)}, layout)

			Convey("Then the first ring in layout order wins", func() {
				So(err, ShouldBeNil)
				So(res.Value, ShouldEqual, 30)
			})
		})

		Convey("When the ball lies only in the outer ring", func() {
			res, err := evaluator.Evaluate(context.Background(), scoring.Input{Position: pt(70, 50)}, layout)

			Convey("Then the outer ring scores", func() {
				So(err, ShouldBeNil)
				So(res.Value, ShouldEqual, 10)
			})
		})
	})

	Convey("Given a negative tolerance option", t, func() {
		evaluator := scoring.NewEvaluator(scoring.WithTolerance(-3))
		So(evaluator.Tolerance(), ShouldEqual, scoring.DefaultTolerance)
	})
}

func TestTotal(t *testing.T) {
	Convey("Given a mix of hits and misses", t, func() {
		results := []scoring.Result{
			{Scored: true, Value: 30},
			{Scored: false},
			{Scored: true, Value: 10},
			{Scored: false, Value: 20},
		}

		Convey("Then the total sums only scored values", func() {
			So(scoring.Total(results), ShouldEqual, 40)
			So(scoring.Total(nil), ShouldEqual, 0)
		})
	})
}
