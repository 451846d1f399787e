package video_test

import (
	"context"
	"errors"
	"image"
	"io"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/okian/hitscore/internal/adapters/video"
	"github.com/okian/hitscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func frames(n int) []gocv.Mat {
	out := make([]gocv.Mat, n)
	for i := range out {
		v := float64(i * 10)
		out[i] = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), 48, 64, gocv.MatTypeCV8UC3)
	}
	return out
}

func closeAll(ms []gocv.Mat) {
	for i := range ms {
		ms[i].Close()
	}
}

func TestSliceSource(t *testing.T) {
	Convey("Given a slice source of three frames", t, func() {
		fs := frames(3)
		defer closeAll(fs)
		src := video.NewSliceSource(30, fs)
		ctx := context.Background()

		So(src.FrameRate(), ShouldEqual, 30.0)
		So(src.Size(), ShouldResemble, image.Pt(64, 48))

		Convey("When reading to the end", func() {
			var got []float64
			var err error
			for {
				var m gocv.Mat
				m, err = src.Next(ctx)
				if err != nil {
					break
				}
				got = append(got, m.Mean().Val1)
				m.Close()
			}

			Convey("Then frames arrive in order followed by io.EOF", func() {
				So(got, ShouldResemble, []float64{0, 10, 20})
				So(errors.Is(err, io.EOF), ShouldBeTrue)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := src.Next(cctx)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})

	Convey("Given degenerate clips", t, func() {
		ctx := context.Background()

		Convey("Then an empty clip ends immediately", func() {
			_, err := video.NewSliceSource(30, nil).Next(ctx)
			So(err, ShouldEqual, io.EOF)
		})

		Convey("Then a clip without a frame rate is a decode error", func() {
			fs := frames(1)
			defer closeAll(fs)
			_, err := video.NewSliceSource(0, fs).Next(ctx)
			So(errors.Is(err, model.ErrDecode), ShouldBeTrue)
		})

		Convey("Then an empty frame mid-stream is a decode error naming the frame", func() {
			fs := frames(2)
			fs = append(fs, gocv.NewMat())
			defer closeAll(fs)
			src := video.NewSliceSource(10, fs)
			for i := 0; i < 2; i++ {
				m, err := src.Next(ctx)
				So(err, ShouldBeNil)
				m.Close()
			}
			_, err := src.Next(ctx)
			So(errors.Is(err, model.ErrDecode), ShouldBeTrue)

			var se *model.StageError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Frame, ShouldEqual, 2)
			So(se.Timestamp, ShouldAlmostEqual, 0.2, 1e-9)
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Given a path that is not a video", t, func() {
		_, err := video.Open(filepath.Join(t.TempDir(), "missing.mp4"))

		Convey("Then opening fails with a decode error", func() {
			So(errors.Is(err, model.ErrDecode), ShouldBeTrue)
		})
	})
}

func TestFrameStores(t *testing.T) {
	for _, kind := range []string{video.BufferMemory, video.BufferDisk} {
		Convey("Given a "+kind+" frame store", t, func() {
			store, err := video.NewFrameStore(kind, t.TempDir())
			So(err, ShouldBeNil)
			defer store.Close()

			fs := frames(3)
			for i := range fs {
				So(store.Put(i, fs[i]), ShouldBeNil)
			}

			Convey("Then stored frames read back intact", func() {
				So(store.Len(), ShouldEqual, 3)
				m, err := store.Get(2)
				So(err, ShouldBeNil)
				defer m.Close()
				So(m.Cols(), ShouldEqual, 64)
				So(m.Rows(), ShouldEqual, 48)
				So(m.Mean().Val1, ShouldEqual, 20.0)
			})

			Convey("Then missing frames are reported", func() {
				_, err := store.Get(7)
				So(errors.Is(err, video.ErrFrameNotFound), ShouldBeTrue)
			})

			Convey("Then a closed store rejects access", func() {
				So(store.Close(), ShouldBeNil)
				_, err := store.Get(0)
				So(errors.Is(err, video.ErrStoreClosed), ShouldBeTrue)
			})
		})
	}

	Convey("Given an unknown buffer kind", t, func() {
		_, err := video.NewFrameStore("tape", "")
		So(errors.Is(err, video.ErrUnknownBuffer), ShouldBeTrue)
	})

	Convey("Given a memory store trimmed to the peak frames", t, func() {
		store := video.NewMemoryStore()
		defer store.Close()
		for i, f := range frames(5) {
			So(store.Put(i, f), ShouldBeNil)
		}
		store.Retain([]int{1, 3})

		So(store.Len(), ShouldEqual, 2)
		_, err := store.Get(0)
		So(errors.Is(err, video.ErrFrameNotFound), ShouldBeTrue)
		m, err := store.Get(3)
		So(err, ShouldBeNil)
		m.Close()
	})
}
