package app_test

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gocv.io/x/gocv"

	"github.com/okian/hitscore/internal/adapters/artifacts"
	"github.com/okian/hitscore/internal/adapters/video"
	"github.com/okian/hitscore/internal/app"
	"github.com/okian/hitscore/internal/domain/layout"
	"github.com/okian/hitscore/internal/domain/model"
	"github.com/okian/hitscore/internal/domain/segment"
	"github.com/okian/hitscore/internal/synth"
	. "github.com/smartystreets/goconvey/convey"
)

func render(t *testing.T, clip synth.Clip) []gocv.Mat {
	t.Helper()
	frames, err := clip.Render()
	if err != nil {
		t.Fatalf("render clip: %v", err)
	}
	t.Cleanup(func() {
		for i := range frames {
			frames[i].Close()
		}
	})
	return frames
}

func process(d *app.Detector, clip synth.Clip, frames []gocv.Mat) (*model.Result, error) {
	return d.Process(context.Background(), video.NewSliceSource(clip.FPS, frames), clip.Layout)
}

func frameIndices(events []model.ImpactEvent) []int {
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = e.FrameIndex
	}
	return out
}

func TestDetector_DefaultClip(t *testing.T) {
	clip := synth.DefaultClip()
	frames := render(t, clip)

	Convey("Given the default synthetic clip", t, func() {
		d := app.New(app.WithWorkerCount(2), app.WithRunID(func() string { return "run-1" }))

		res, err := process(d, clip, frames)
		So(err, ShouldBeNil)

		Convey("Then one event is produced per hit, in order", func() {
			So(frameIndices(res.Events), ShouldResemble, clip.ExpectedPeaks())
			for i, e := range res.Events {
				So(e.Ordinal, ShouldEqual, i+1)
				So(e.Timestamp, ShouldAlmostEqual, float64(e.FrameIndex)/clip.FPS, 1e-9)
				So(e.MotionScore, ShouldBeGreaterThan, res.Threshold)
			}
		})

		Convey("Then balls on targets score and the decoy misses", func() {
			first, second, decoy := res.Events[0], res.Events[1], res.Events[2]

			So(first.Scored, ShouldBeTrue)
			So(first.PointValue, ShouldEqual, 30)
			So(first.BallPosition, ShouldNotBeNil)
			So(first.BallPosition.X, ShouldAlmostEqual, 200, 1)
			So(first.BallPosition.Y, ShouldAlmostEqual, 240, 1)

			So(second.Scored, ShouldBeTrue)
			So(second.PointValue, ShouldEqual, 20)
			So(second.BallPosition.X, ShouldAlmostEqual, 325, 1)
			So(second.BallPosition.Y, ShouldAlmostEqual, 243, 1)

			So(decoy.Scored, ShouldBeFalse)
			So(decoy.PointValue, ShouldEqual, 0)
			So(decoy.BallPosition, ShouldBeNil)
		})

		Convey("Then the total is the sum of scored values", func() {
			sum := 0
			for _, e := range res.Events {
				if e.Scored {
					sum += e.PointValue
				}
			}
			So(res.TotalScore, ShouldEqual, sum)
			So(res.TotalScore, ShouldEqual, 50)
		})

		Convey("Then the result describes the run", func() {
			So(res.RunID, ShouldEqual, "run-1")
			So(res.FrameCount, ShouldEqual, synth.DefaultFrames)
			So(res.FPS, ShouldEqual, synth.DefaultFPS)
			So(res.ROI, ShouldResemble, model.ROI{X1: 153, Y1: 193, X2: 487, Y2: 287})
			So(res.Layout, ShouldResemble, clip.Layout)
		})
	})
}

func TestDetector_Idempotent(t *testing.T) {
	clip := synth.DefaultClip()
	frames := render(t, clip)

	Convey("Given the same clip processed under different configurations", t, func() {
		base, err := process(app.New(app.WithWorkerCount(1)), clip, frames)
		So(err, ShouldBeNil)

		variants := map[string]*app.Detector{
			"repeat":       app.New(app.WithWorkerCount(1)),
			"four workers": app.New(app.WithWorkerCount(4), app.WithQueueSize(1)),
			"disk buffer":  app.New(app.WithFrameBuffer(video.BufferDisk, t.TempDir())),
		}
		for name, d := range variants {
			Convey("Then the "+name+" run yields identical events", func() {
				got, err := process(d, clip, frames)
				So(err, ShouldBeNil)
				So(cmp.Diff(base.Events, got.Events), ShouldBeEmpty)
				So(got.TotalScore, ShouldEqual, base.TotalScore)
				So(got.Threshold, ShouldEqual, base.Threshold)
			})
		}
	})
}

func TestDetector_Bursts(t *testing.T) {
	Convey("Given two hits closer together than the cooldown", t, func() {
		clip := synth.DefaultClip()
		clip.Hits = []synth.Hit{
			{Frame: 30, Duration: 4, Position: image.Pt(200, 240)},
			{Frame: 50, Duration: 4, Position: image.Pt(320, 240)},
		}
		frames := render(t, clip)

		res, err := process(app.New(), clip, frames)
		So(err, ShouldBeNil)

		Convey("Then they collapse into a single event", func() {
			So(frameIndices(res.Events), ShouldResemble, []int{30})
		})

		Convey("Then a shorter cooldown separates them", func() {
			d := app.New(app.WithSegmentOptions(segment.WithCooldown(500 * time.Millisecond)))
			res, err := process(d, clip, frames)
			So(err, ShouldBeNil)
			So(frameIndices(res.Events), ShouldResemble, []int{30, 50})
			So(res.TotalScore, ShouldEqual, 50)
		})
	})

	Convey("Given a clip without any hit", t, func() {
		clip := synth.DefaultClip()
		clip.Hits = nil
		frames := render(t, clip)

		res, err := process(app.New(), clip, frames)
		So(err, ShouldBeNil)

		Convey("Then no events are reported", func() {
			So(res.Events, ShouldNotBeNil)
			So(res.Events, ShouldBeEmpty)
			So(res.TotalScore, ShouldEqual, 0)
		})
	})
}

func TestDetector_Artifacts(t *testing.T) {
	clip := synth.DefaultClip()
	frames := render(t, clip)

	Convey("Given a detector writing every artifact", t, func() {
		dir := t.TempDir()
		w, err := artifacts.NewWriter(dir)
		So(err, ShouldBeNil)
		metricsFile := filepath.Join(dir, "hitscore.prom")

		d := app.New(app.WithArtifacts(w, true, true), app.WithMetricsFile(metricsFile))
		res, err := process(d, clip, frames)
		So(err, ShouldBeNil)
		So(res.Events, ShouldHaveLength, 3)

		Convey("Then the result, plot, metrics and one image per event exist", func() {
			for _, name := range []string{artifacts.ResultFile, artifacts.MotionPlotFile, "hitscore.prom"} {
				_, err := os.Stat(filepath.Join(dir, name))
				So(err, ShouldBeNil)
			}
			for i := range res.Events {
				_, err := os.Stat(w.EventImagePath(i + 1))
				So(err, ShouldBeNil)
			}
		})

		Convey("Then the metrics file carries detector metrics", func() {
			data, err := os.ReadFile(metricsFile)
			So(err, ShouldBeNil)
			So(strings.Contains(string(data), "hitscore_detector_frames_decoded_total"), ShouldBeTrue)
		})

		Convey("Then annotation does not change the events", func() {
			plain, err := process(app.New(), clip, frames)
			So(err, ShouldBeNil)
			So(cmp.Diff(plain.Events, res.Events), ShouldBeEmpty)
		})
	})
}

func TestDetector_Failures(t *testing.T) {
	clip := synth.DefaultClip()
	frames := render(t, clip)

	Convey("Given an invalid layout", t, func() {
		_, err := app.New().Process(context.Background(), video.NewSliceSource(clip.FPS, frames), model.ScoringLayout{})

		Convey("Then the run fails with a configuration error", func() {
			So(errors.Is(err, model.ErrConfigMissing), ShouldBeTrue)
			var se *model.StageError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Stage, ShouldEqual, model.StageLayout)
		})
	})

	Convey("Given a layout whose rings are not ordered by radius", t, func() {
		l := model.ScoringLayout{Rings: []model.RingSpec{
			{Value: 10, Center: image.Pt(440, 240), Radius: 27},
			{Value: 30, Center: image.Pt(200, 240), Radius: 15},
		}}
		_, err := app.New().Process(context.Background(), video.NewSliceSource(clip.FPS, frames), l)
		So(errors.Is(err, model.ErrConfigMissing), ShouldBeTrue)
	})

	Convey("Given a layout entirely outside the frame", t, func() {
		l := model.ScoringLayout{Rings: []model.RingSpec{{Value: 10, Center: image.Pt(5000, 5000), Radius: 27}}}
		_, err := app.New().Process(context.Background(), video.NewSliceSource(clip.FPS, frames), l)
		So(errors.Is(err, model.ErrInvalidRegion), ShouldBeTrue)
	})

	Convey("Given a layout whose ring crosses the right edge of the frame", t, func() {
		l := model.ScoringLayout{Rings: []model.RingSpec{{Value: 10, Center: image.Pt(630, 240), Radius: 27}}}

		Convey("When processing with default options", func() {
			_, err := app.New().Process(context.Background(), video.NewSliceSource(clip.FPS, frames), l)

			Convey("Then the run fails before decoding with an invalid region", func() {
				So(errors.Is(err, model.ErrInvalidRegion), ShouldBeTrue)
				var se *model.StageError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.Stage, ShouldEqual, model.StageRegion)
				So(se.Frame, ShouldEqual, -1)
			})
		})

		Convey("When clipping is enabled", func() {
			res, err := app.New(app.WithROIClipping(true)).
				Process(context.Background(), video.NewSliceSource(clip.FPS, frames), l)

			Convey("Then the run scores inside the frame", func() {
				So(err, ShouldBeNil)
				So(res.ROI, ShouldResemble, model.ROI{X1: 583, Y1: 193, X2: 640, Y2: 287})
			})
		})
	})

	Convey("Given a frame cap below the clip length", t, func() {
		_, err := process(app.New(app.WithMaxFrames(100)), clip, frames)

		Convey("Then the run fails at the first frame over the cap", func() {
			So(errors.Is(err, model.ErrFrameLimit), ShouldBeTrue)
			var se *model.StageError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Frame, ShouldEqual, 100)
		})
	})

	Convey("Given a clip with an undecodable frame", t, func() {
		broken := make([]gocv.Mat, 0, 41)
		broken = append(broken, frames[:40]...)
		empty := gocv.NewMat()
		defer empty.Close()
		broken = append(broken, empty)

		_, err := process(app.New(), clip, broken)

		Convey("Then the run reports the frame that failed", func() {
			So(errors.Is(err, model.ErrDecode), ShouldBeTrue)
			var se *model.StageError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Frame, ShouldEqual, 40)
		})
	})

	Convey("Given a clip with no frames", t, func() {
		res, err := app.New().Process(context.Background(), video.NewSliceSource(clip.FPS, nil), clip.Layout)

		Convey("Then the run succeeds with no events", func() {
			So(err, ShouldBeNil)
			So(res.FrameCount, ShouldEqual, 0)
			So(res.Events, ShouldBeEmpty)
			So(res.TotalScore, ShouldEqual, 0)
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := app.New().Process(ctx, video.NewSliceSource(clip.FPS, frames), clip.Layout)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

func TestDetector_Run(t *testing.T) {
	Convey("Given an encoded synthetic video and its layout file", t, func() {
		dir := t.TempDir()
		clip := synth.DefaultClip()
		videoPath := synth.TempVideoPath(dir)
		if err := synth.WriteVideo(context.Background(), videoPath, clip); errors.Is(err, synth.ErrVideoWriter) {
			t.Skipf("no MJPG encoder available: %v", err)
		} else {
			So(err, ShouldBeNil)
		}
		layoutPath := filepath.Join(dir, "layout.json")
		So(synth.WriteLayout(layoutPath, clip.Layout), ShouldBeNil)

		d := app.New()

		Convey("When calibrating from the layout file", func() {
			l, err := d.Calibrate(context.Background(), videoPath, layout.FileCalibrator{Path: layoutPath})
			So(err, ShouldBeNil)
			So(l, ShouldResemble, clip.Layout)

			Convey("Then running the video finds every hit", func() {
				res, err := d.Run(context.Background(), videoPath, l)
				So(err, ShouldBeNil)
				So(res.Video, ShouldEqual, videoPath)
				So(frameIndices(res.Events), ShouldResemble, clip.ExpectedPeaks())
				So(res.TotalScore, ShouldEqual, 50)
			})

			Convey("Then annotated runs decode the peak frames again at full size", func() {
				w, err := artifacts.NewWriter(filepath.Join(dir, "out"))
				So(err, ShouldBeNil)
				res, err := app.New(app.WithArtifacts(w, true, false)).Run(context.Background(), videoPath, l)
				So(err, ShouldBeNil)
				So(frameIndices(res.Events), ShouldResemble, clip.ExpectedPeaks())

				for i := range res.Events {
					img := gocv.IMRead(w.EventImagePath(i+1), gocv.IMReadColor)
					So(img.Empty(), ShouldBeFalse)
					So(img.Cols(), ShouldEqual, synth.DefaultWidth)
					So(img.Rows(), ShouldEqual, synth.DefaultHeight)
					img.Close()
				}
			})
		})
	})

	Convey("Given a path that does not exist", t, func() {
		_, err := app.New().Run(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), synth.DefaultLayout())
		So(errors.Is(err, model.ErrDecode), ShouldBeTrue)
	})
}
