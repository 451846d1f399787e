// Package video decodes frames from video containers and buffers them until
// impact peaks are known.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"gocv.io/x/gocv"

	"github.com/okian/hitscore/internal/domain/model"
)

// Source yields decoded frames in order. Sources are sequential and cannot be
// restarted. Next returns io.EOF after the last frame; every returned Mat is
// owned by the caller.
type Source interface {
	FrameRate() float64
	Size() image.Point
	Next(ctx context.Context) (gocv.Mat, error)
	Close() error
}

// FileSource reads a video file through OpenCV.
type FileSource struct {
	path    string
	capture *gocv.VideoCapture
	fps     float64
	size    image.Point
	count   int
	index   int
}

// Open opens path and probes its frame rate and size.
func Open(path string) (*FileSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, model.NewStageError(model.StageOpen, -1, 0, model.ErrDecode, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, model.NewStageError(model.StageOpen, -1, 0, model.ErrDecode,
			fmt.Errorf("cannot open %s", path))
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		capture.Close()
		return nil, model.NewStageError(model.StageOpen, -1, 0, model.ErrDecode,
			fmt.Errorf("%s reports no usable frame rate (%v)", path, fps))
	}

	return &FileSource{
		path:    path,
		capture: capture,
		fps:     fps,
		size: image.Pt(
			int(capture.Get(gocv.VideoCaptureFrameWidth)),
			int(capture.Get(gocv.VideoCaptureFrameHeight)),
		),
		count: int(capture.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

// FrameRate returns frames per second.
func (s *FileSource) FrameRate() float64 { return s.fps }

// Size returns the frame width and height.
func (s *FileSource) Size() image.Point { return s.size }

// FrameCountHint returns the container's frame count estimate, which may be
// zero or inaccurate.
func (s *FileSource) FrameCountHint() int { return s.count }

// Next decodes the next frame.
func (s *FileSource) Next(ctx context.Context) (gocv.Mat, error) {
	if err := ctx.Err(); err != nil {
		return gocv.NewMat(), err
	}

	frame := gocv.NewMat()
	if ok := s.capture.Read(&frame); !ok {
		frame.Close()
		// A container that reports frames but yields none is unreadable; one
		// that reports none is an empty clip.
		if s.index == 0 && s.count > 0 {
			return gocv.NewMat(), model.NewStageError(model.StageDecode, 0, 0, model.ErrDecode,
				fmt.Errorf("%s reports %d frames but none decode", s.path, s.count))
		}
		return gocv.NewMat(), io.EOF
	}
	if frame.Empty() {
		frame.Close()
		return gocv.NewMat(), model.NewStageError(model.StageDecode, s.index,
			model.Timestamp(s.index, s.fps), model.ErrDecode, fmt.Errorf("empty frame"))
	}
	s.index++
	return frame, nil
}

// Close releases the capture.
func (s *FileSource) Close() error {
	return s.capture.Close()
}

// SliceSource serves in-memory frames, for synthetic clips and tests.
type SliceSource struct {
	fps    float64
	frames []gocv.Mat
	index  int
}

// NewSliceSource wraps frames. The source does not take ownership of them.
func NewSliceSource(fps float64, frames []gocv.Mat) *SliceSource {
	return &SliceSource{fps: fps, frames: frames}
}

// FrameRate returns frames per second.
func (s *SliceSource) FrameRate() float64 { return s.fps }

// Size returns the size of the first frame.
func (s *SliceSource) Size() image.Point {
	if len(s.frames) == 0 {
		return image.Point{}
	}
	return image.Pt(s.frames[0].Cols(), s.frames[0].Rows())
}

// Next returns a copy of the next frame.
func (s *SliceSource) Next(ctx context.Context) (gocv.Mat, error) {
	if err := ctx.Err(); err != nil {
		return gocv.NewMat(), err
	}
	if s.fps <= 0 {
		return gocv.NewMat(), model.NewStageError(model.StageOpen, -1, 0, model.ErrDecode,
			fmt.Errorf("no usable frame rate (%v)", s.fps))
	}
	if s.index >= len(s.frames) {
		return gocv.NewMat(), io.EOF
	}
	f := s.frames[s.index]
	if f.Empty() {
		return gocv.NewMat(), model.NewStageError(model.StageDecode, s.index,
			model.Timestamp(s.index, s.fps), model.ErrDecode, fmt.Errorf("empty frame"))
	}
	s.index++
	return f.Clone(), nil
}

// Close is a no-op; the frames belong to the caller.
func (s *SliceSource) Close() error { return nil }

// FirstFrame decodes the first frame of path, the reference image used for
// ring calibration. The caller closes the result.
func FirstFrame(ctx context.Context, path string) (gocv.Mat, error) {
	src, err := Open(path)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer src.Close()
	frame, err := src.Next(ctx)
	if errors.Is(err, io.EOF) {
		return gocv.NewMat(), model.NewStageError(model.StageDecode, 0, 0, model.ErrDecode,
			fmt.Errorf("%s has no first frame", path))
	}
	return frame, err
}

// ExtractFirstFrame writes the first frame of videoPath to outPath. The image
// format follows the output extension.
func ExtractFirstFrame(ctx context.Context, videoPath, outPath string) error {
	frame, err := FirstFrame(ctx, videoPath)
	if err != nil {
		return err
	}
	defer frame.Close()

	if ok := gocv.IMWrite(outPath, frame); !ok {
		return fmt.Errorf("%w: %s", ErrWriteFrame, outPath)
	}
	return nil
}

var (
	_ Source = (*FileSource)(nil)
	_ Source = (*SliceSource)(nil)
)
