// Package layout loads and validates scoring layouts and derives the region
// of interest analyzed by the detector.
package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"sort"

	"github.com/okian/hitscore/internal/domain/model"
	"github.com/okian/hitscore/internal/domain/types"
)

// DefaultROIMargin is the padding added around the rings' bounding extent.
const DefaultROIMargin = 20

// DefaultRadiusTable maps point values to the fixed ring radii used when a
// layout entry carries no radius (1920x1080 source frames).
func DefaultRadiusTable() map[int]int {
	return map[int]int{
		10: 27,
		20: 20,
		30: 15,
	}
}

// Option applies a configuration option to the loader.
type Option func(*loader)

type loader struct {
	radiusTable  map[int]int
	sortByRadius bool
}

// WithRadiusTable sets the value->radius table used to fill rings with a zero radius.
func WithRadiusTable(table map[int]int) Option {
	return func(l *loader) {
		if table != nil {
			l.radiusTable = table
		}
	}
}

// WithSortByRadius stably sorts rings by ascending radius instead of
// rejecting an unsorted layout.
func WithSortByRadius(enabled bool) Option {
	return func(l *loader) {
		l.sortByRadius = enabled
	}
}

func newLoader(opts []Option) *loader {
	l := &loader{radiusTable: DefaultRadiusTable()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads a layout file from disk.
func Load(ctx context.Context, path string, opts ...Option) (model.ScoringLayout, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoringLayout{}, err
	}
	if path == "" {
		return model.ScoringLayout{}, fmt.Errorf("%w: no layout path given", model.ErrConfigMissing)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ScoringLayout{}, fmt.Errorf("%w: %w", model.ErrConfigMissing, err)
	}
	return Parse(data, opts...)
}

// Parse decodes a JSON layout document and validates it.
func Parse(data []byte, opts ...Option) (model.ScoringLayout, error) {
	l := newLoader(opts)

	var rings []types.Ring
	if err := json.Unmarshal(data, &rings); err != nil {
		return model.ScoringLayout{}, fmt.Errorf("%w: %w", model.ErrConfigMissing, err)
	}

	out := model.ScoringLayout{Rings: make([]model.RingSpec, 0, len(rings))}
	for _, r := range rings {
		ring := r.Spec()
		if ring.Radius == 0 {
			ring.Radius = l.radiusTable[ring.Value]
		}
		out.Rings = append(out.Rings, ring)
	}

	if l.sortByRadius {
		SortByRadius(out)
	}
	if err := Validate(out); err != nil {
		return model.ScoringLayout{}, err
	}
	return out, nil
}

// SortByRadius orders rings by ascending radius in place, keeping the input
// order among rings of equal radius.
func SortByRadius(l model.ScoringLayout) {
	sort.SliceStable(l.Rings, func(i, j int) bool {
		return l.Rings[i].Radius < l.Rings[j].Radius
	})
}

// Validate checks the layout invariants: at least one ring, positive radii,
// and ascending radius order (smallest ring has precedence).
func Validate(l model.ScoringLayout) error {
	if len(l.Rings) == 0 {
		return fmt.Errorf("%w: layout has no rings", model.ErrConfigMissing)
	}
	for i, r := range l.Rings {
		if r.Radius <= 0 {
			return fmt.Errorf("%w: ring %d (value %d) has no radius", model.ErrConfigMissing, i, r.Value)
		}
		if i > 0 && r.Radius < l.Rings[i-1].Radius {
			return fmt.Errorf("%w: ring %d radius %d is smaller than ring %d radius %d; layout must be sorted by ascending radius",
				model.ErrConfigMissing, i, r.Radius, i-1, l.Rings[i-1].Radius)
		}
	}
	return nil
}

// ComputeROI returns the bounding extent of all ring centers padded by the
// largest radius plus margin on every side. The result contains every ring disk.
func ComputeROI(l model.ScoringLayout, margin int) (model.ROI, error) {
	if len(l.Rings) == 0 {
		return model.ROI{}, fmt.Errorf("%w: layout has no rings", model.ErrConfigMissing)
	}
	if margin < 0 {
		margin = 0
	}

	minX, minY := l.Rings[0].Center.X, l.Rings[0].Center.Y
	maxX, maxY := minX, minY
	maxR := 0
	for _, r := range l.Rings {
		minX = min(minX, r.Center.X)
		minY = min(minY, r.Center.Y)
		maxX = max(maxX, r.Center.X)
		maxY = max(maxY, r.Center.Y)
		maxR = max(maxR, r.Radius)
	}

	pad := maxR + margin
	return model.ROI{
		X1: minX - pad,
		Y1: minY - pad,
		X2: maxX + pad,
		Y2: maxY + pad,
	}, nil
}

// Calibrator produces a scoring layout from a single reference frame. Real
// implementations call an external vision service and may be slow or fail.
type Calibrator interface {
	Calibrate(ctx context.Context, reference image.Image) (model.ScoringLayout, error)
}

// FileCalibrator serves a layout previously produced by calibration and
// stored on disk. The reference image is ignored.
type FileCalibrator struct {
	Path    string
	Options []Option
}

// Calibrate loads the layout file.
func (c FileCalibrator) Calibrate(ctx context.Context, _ image.Image) (model.ScoringLayout, error) {
	return Load(ctx, c.Path, c.Options...)
}

var _ Calibrator = FileCalibrator{}
