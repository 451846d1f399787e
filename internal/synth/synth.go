// Package synth renders deterministic target-practice clips: a static target
// board with a ball that appears at known frames and positions. The clips
// drive the detector end to end without recorded footage.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/okian/hitscore/internal/domain/model"
	"github.com/okian/hitscore/internal/domain/types"
)

// Rendering defaults.
const (
	DefaultWidth      = 640
	DefaultHeight     = 480
	DefaultFPS        = 30.0
	DefaultFrames     = 180
	DefaultBallRadius = 8
	DefaultHitFrames  = 10
	DefaultBackground = 128

	layoutPermissions = 0o644
)

var (
	ballColor  = color.RGBA{R: 255, G: 255, A: 255}
	decoyColor = color.RGBA{B: 255, A: 255}
	ringColor  = color.RGBA{R: 60, G: 60, B: 60, A: 255}
)

// Hit is one ball appearance. The ball is drawn on frames
// [Frame, Frame+Duration). A decoy draws a blue blob instead, which moves
// pixels without being recognizable as the ball.
type Hit struct {
	Frame    int
	Duration int
	Position image.Point
	Decoy    bool
}

// Clip describes a synthetic recording.
type Clip struct {
	Width      int
	Height     int
	FPS        float64
	Frames     int
	BallRadius int
	Background uint8
	Layout     model.ScoringLayout
	Hits       []Hit
}

// DefaultLayout returns three separate targets worth 30, 20 and 10 points,
// ordered by ascending radius.
func DefaultLayout() model.ScoringLayout {
	return model.ScoringLayout{Rings: []model.RingSpec{
		{Value: 30, Center: image.Pt(200, 240), Radius: 15},
		{Value: 20, Center: image.Pt(320, 240), Radius: 20},
		{Value: 10, Center: image.Pt(440, 240), Radius: 27},
	}}
}

// DefaultClip returns a 6 second clip with a hit on the 30 target, a hit on
// the 20 target and a decoy next to the 10 target. The expected total is 50.
func DefaultClip() Clip {
	return Clip{
		Width:      DefaultWidth,
		Height:     DefaultHeight,
		FPS:        DefaultFPS,
		Frames:     DefaultFrames,
		BallRadius: DefaultBallRadius,
		Background: DefaultBackground,
		Layout:     DefaultLayout(),
		Hits: []Hit{
			{Frame: 30, Duration: DefaultHitFrames, Position: image.Pt(200, 240)},
			{Frame: 80, Duration: DefaultHitFrames, Position: image.Pt(325, 243)},
			{Frame: 130, Duration: DefaultHitFrames, Position: image.Pt(440, 240), Decoy: true},
		},
	}
}

// Validate checks that the clip can be rendered.
func (c Clip) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidClip, c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps %v", ErrInvalidClip, c.FPS)
	}
	if c.Frames <= 0 {
		return fmt.Errorf("%w: %d frames", ErrInvalidClip, c.Frames)
	}
	for i, h := range c.Hits {
		if h.Frame < 0 || h.Frame >= c.Frames || h.Duration <= 0 {
			return fmt.Errorf("%w: hit %d spans frames %d+%d of %d",
				ErrInvalidClip, i, h.Frame, h.Duration, c.Frames)
		}
		if !h.Position.In(image.Rect(0, 0, c.Width, c.Height)) {
			return fmt.Errorf("%w: hit %d at %v is off screen", ErrInvalidClip, i, h.Position)
		}
	}
	return nil
}

// Frame renders frame i. The caller closes the result.
func (c Clip) Frame(i int) gocv.Mat {
	v := float64(c.Background)
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), c.Height, c.Width, gocv.MatTypeCV8UC3)
	for _, r := range c.Layout.Rings {
		gocv.Circle(&m, r.Center, r.Radius, ringColor, 1)
	}
	for _, h := range c.Hits {
		if i < h.Frame || i >= h.Frame+h.Duration {
			continue
		}
		col := ballColor
		if h.Decoy {
			col = decoyColor
		}
		gocv.Circle(&m, h.Position, c.BallRadius, col, -1)
	}
	return m
}

// Render renders every frame. The caller closes the results.
func (c Clip) Render() ([]gocv.Mat, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	frames := make([]gocv.Mat, c.Frames)
	for i := range frames {
		frames[i] = c.Frame(i)
	}
	return frames, nil
}

// ExpectedPeaks returns the first frame of every hit, which is where the
// detector should place each impact.
func (c Clip) ExpectedPeaks() []int {
	out := make([]int, len(c.Hits))
	for i, h := range c.Hits {
		out[i] = h.Frame
	}
	return out
}

// WriteVideo encodes the clip as Motion-JPEG into path.
func WriteVideo(ctx context.Context, path string, c Clip) error {
	if err := c.Validate(); err != nil {
		return err
	}
	w, err := gocv.VideoWriterFile(path, "MJPG", c.FPS, c.Width, c.Height, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVideoWriter, err)
	}
	defer w.Close()
	if !w.IsOpened() {
		return fmt.Errorf("%w: cannot open %s", ErrVideoWriter, path)
	}

	for i := 0; i < c.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame := c.Frame(i)
		err := w.Write(frame)
		frame.Close()
		if err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
	}
	return nil
}

// WriteLayout stores l in the layout file format.
func WriteLayout(path string, l model.ScoringLayout) error {
	rings := make([]types.Ring, len(l.Rings))
	for i, r := range l.Rings {
		rings[i] = types.RingFromSpec(r)
	}
	data, err := json.MarshalIndent(rings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), layoutPermissions); err != nil {
		return fmt.Errorf("write layout %s: %w", path, err)
	}
	return nil
}

// TempVideoPath returns a fresh .avi path under dir.
func TempVideoPath(dir string) string {
	return filepath.Join(dir, "synth-"+uuid.NewString()+".avi")
}
