// Package artifacts writes run outputs: the scoring result document, one
// annotated image per impact, and a motion plot.
package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/okian/hitscore/internal/domain/model"
	"github.com/okian/hitscore/internal/domain/types"
)

// Output file names.
const (
	ResultFile      = "scoring_result.json"
	MotionPlotFile  = "motion.png"
	eventImageFile  = "hit_event_%d.jpg"
	plotWidth       = 12 * vg.Inch
	plotHeight      = 4 * vg.Inch
	filePermissions = 0o644
)

// Writer writes artifacts into one output directory.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates dir if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: no output directory", ErrOutputDir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutputDir, err)
	}
	return &Writer{dir: dir, now: time.Now}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// EventImagePath returns the path of the annotated image for a 1-based ordinal.
func (w *Writer) EventImagePath(ordinal int) string {
	return filepath.Join(w.dir, fmt.Sprintf(eventImageFile, ordinal))
}

// WriteResult writes the result document and returns its path.
func (w *Writer) WriteResult(ctx context.Context, r *model.Result) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(types.NewResult(r, w.now()), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	p := filepath.Join(w.dir, ResultFile)
	if err := os.WriteFile(p, append(data, '\n'), filePermissions); err != nil {
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	return p, nil
}

// WriteEventImage writes an annotated frame as hit_event_<ordinal>.jpg.
func (w *Writer) WriteEventImage(ordinal int, img gocv.Mat) (string, error) {
	p := w.EventImagePath(ordinal)
	if ok := gocv.IMWrite(p, img); !ok {
		return "", fmt.Errorf("%w: %s", ErrImageWrite, p)
	}
	return p, nil
}

// WriteMotionPlot plots the motion series over time with the threshold line
// and the selected peaks, and returns the image path.
func (w *Writer) WriteMotionPlot(scores []float64, threshold float64, peaks []int, fps float64) (string, error) {
	if len(scores) == 0 {
		return "", ErrNoScores
	}

	p := plot.New()
	p.Title.Text = "Motion in region of interest"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Motion"

	series := make(plotter.XYs, len(scores))
	for i, s := range scores {
		series[i] = plotter.XY{X: model.Timestamp(i, fps), Y: s}
	}
	line, err := plotter.NewLine(series)
	if err != nil {
		return "", fmt.Errorf("motion line: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{B: 200, A: 255}
	p.Add(line)
	p.Legend.Add("motion", line)

	limit := plotter.NewFunction(func(float64) float64 { return threshold })
	limit.Color = color.RGBA{R: 220, A: 255}
	limit.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(limit)
	p.Legend.Add("threshold", limit)

	marks := make(plotter.XYs, 0, len(peaks))
	for _, i := range peaks {
		if i >= 0 && i < len(scores) {
			marks = append(marks, plotter.XY{X: model.Timestamp(i, fps), Y: scores[i]})
		}
	}
	if len(marks) > 0 {
		scatter, err := plotter.NewScatter(marks)
		if err != nil {
			return "", fmt.Errorf("peak markers: %w", err)
		}
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(3)
		scatter.GlyphStyle.Color = color.RGBA{G: 160, A: 255}
		p.Add(scatter)
		p.Legend.Add("impact", scatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false

	out := filepath.Join(w.dir, MotionPlotFile)
	if err := p.Save(plotWidth, plotHeight, out); err != nil {
		return "", fmt.Errorf("save motion plot: %w", err)
	}
	return out, nil
}
