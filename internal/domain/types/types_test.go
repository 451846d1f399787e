package types_test

import (
	"encoding/json"
	"image"
	"testing"
	"time"

	"github.com/okian/hitscore/internal/domain/model"
	types "github.com/okian/hitscore/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRingDecoding(t *testing.T) {
	Convey("Given layout ring JSON", t, func() {
		Convey("When the point value uses the value key", func() {
			var r types.Ring
			err := json.Unmarshal([]byte(`{"value": 30, "center": [880, 400], "radius": 15}`), &r)

			Convey("Then it decodes into a domain ring", func() {
				So(err, ShouldBeNil)
				So(r.Spec(), ShouldResemble, model.RingSpec{Value: 30, Center: image.Pt(880, 400), Radius: 15})
			})
		})

		Convey("When the point value uses the legacy score key", func() {
			var r types.Ring
			err := json.Unmarshal([]byte(`{"score": 10, "center": [700, 390], "radius": 27}`), &r)

			Convey("Then it is accepted", func() {
				So(err, ShouldBeNil)
				So(r.Value, ShouldEqual, 10)
			})
		})

		Convey("When the ring has no value", func() {
			var r types.Ring
			err := json.Unmarshal([]byte(`{"center": [1, 2], "radius": 3}`), &r)

			Convey("Then decoding fails", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When the ring has no center", func() {
			var r types.Ring
			err := json.Unmarshal([]byte(`{"value": 10, "radius": 3}`), &r)

			Convey("Then decoding fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestNewResult(t *testing.T) {
	Convey("Given a detector result with a hit and a miss", t, func() {
		pos := image.Pt(881, 402)
		res := &model.Result{
			RunID:      "run-1",
			Video:      "clip.mov",
			FPS:        30,
			FrameCount: 300,
			Threshold:  1234.5,
			ROI:        model.ROI{X1: 1, Y1: 2, X2: 3, Y2: 4},
			Layout: model.ScoringLayout{Rings: []model.RingSpec{
				{Value: 30, Center: image.Pt(880, 400), Radius: 15},
			}},
			Events: []model.ImpactEvent{
				{Ordinal: 1, FrameIndex: 40, Timestamp: 1.333, BallPosition: &pos, Scored: true, PointValue: 30},
				{Ordinal: 2, FrameIndex: 90, Timestamp: 3.0},
			},
			TotalScore: 30,
		}
		created := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

		Convey("When converting to the wire document", func() {
			doc := types.NewResult(res, created)
			data, err := json.Marshal(doc)

			Convey("Then absent ball positions encode as null", func() {
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, `"ball_position":null`)
				So(string(data), ShouldContainSubstring, `"ball_position":[881,402]`)
			})

			Convey("Then totals and layout are carried", func() {
				So(doc.TotalScore, ShouldEqual, 30)
				So(doc.Layout, ShouldHaveLength, 1)
				So(doc.Layout[0].Center, ShouldResemble, [2]int{880, 400})
				So(doc.CreatedAt, ShouldEqual, created)
			})
		})
	})
}
