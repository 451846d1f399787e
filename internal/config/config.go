// Package config defines detector configuration and its loading hooks.
//
// Conventions:
// - New returns a Config with defaults; Load layers file and env on top.
// - Command-line flags override loaded values in cmd.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/okian/hitscore/internal/adapters/video"
	"github.com/okian/hitscore/internal/domain/layout"
	"github.com/okian/hitscore/internal/domain/scoring"
	"github.com/okian/hitscore/internal/domain/segment"
	"github.com/okian/hitscore/internal/vision/ball"
	"github.com/okian/hitscore/internal/vision/motion"
	"github.com/okian/hitscore/pkg/logger"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// LayoutPath points at the calibrated scoring layout file.
	LayoutPath string `koanf:"layout_path"`

	// OutputDir receives the result document, images and the motion plot.
	OutputDir string `koanf:"output_dir"`

	// ROIMargin pads the ring extent, in pixels.
	ROIMargin int `koanf:"roi_margin"`

	// ClipROI shrinks a region that spills past the frame instead of failing.
	ClipROI bool `koanf:"clip_roi"`

	// Sensitivity is k in threshold = mean + k*std.
	Sensitivity float64 `koanf:"sensitivity"`

	// CooldownSeconds is the minimum spacing of two impacts.
	CooldownSeconds float64 `koanf:"cooldown_seconds"`

	// WarmupSeconds is skipped at the start of every clip.
	WarmupSeconds float64 `koanf:"warmup_seconds"`

	// BlurKernel is the Gaussian kernel size used before differencing.
	BlurKernel int `koanf:"blur_kernel"`

	// HitTolerance widens every ring, in pixels.
	HitTolerance float64 `koanf:"hit_tolerance"`

	// BallHSVLower and BallHSVUpper bound the ball color (OpenCV hue 0-180).
	BallHSVLower []float64 `koanf:"ball_hsv_lower"`
	BallHSVUpper []float64 `koanf:"ball_hsv_upper"`

	// DilateIterations grows the ball mask before contour search.
	DilateIterations int `koanf:"dilate_iterations"`

	// MinBallArea and MaxBallArea bound contour areas, exclusive.
	MinBallArea float64 `koanf:"min_ball_area"`
	MaxBallArea float64 `koanf:"max_ball_area"`

	// ContourSelection is "first" or "largest".
	ContourSelection string `koanf:"contour_selection"`

	// WorkerCount sets the number of localization workers; 0 uses all CPUs.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the impact job queue.
	QueueSize int `koanf:"queue_size"`

	// FrameBuffer is "memory" or "disk".
	FrameBuffer string `koanf:"frame_buffer"`

	// MaxFrames rejects longer clips; 0 disables the cap.
	MaxFrames int `koanf:"max_frames"`

	// Annotate writes one annotated image per impact.
	Annotate bool `koanf:"annotate"`

	// MotionPlot writes the motion plot.
	MotionPlot bool `koanf:"motion_plot"`

	// MetricsFile receives a Prometheus textfile dump after each run.
	MetricsFile string `koanf:"metrics_file"`

	// SortLayout sorts rings by radius instead of rejecting unordered files.
	SortLayout bool `koanf:"sort_layout"`

	// RadiusTable fills rings stored without a radius, keyed by point value.
	RadiusTable map[int]int `koanf:"radius_table"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        logger.FormatText,
		OutputDir:        "results",
		ROIMargin:        layout.DefaultROIMargin,
		Sensitivity:      segment.DefaultSensitivity,
		CooldownSeconds:  segment.DefaultCooldown.Seconds(),
		WarmupSeconds:    segment.DefaultWarmup.Seconds(),
		BlurKernel:       motion.DefaultBlurKernel,
		HitTolerance:     scoring.DefaultTolerance,
		BallHSVLower:     append([]float64(nil), ball.DefaultLower[:]...),
		BallHSVUpper:     append([]float64(nil), ball.DefaultUpper[:]...),
		DilateIterations: ball.DefaultDilateIterations,
		MinBallArea:      ball.DefaultMinArea,
		MaxBallArea:      ball.DefaultMaxArea,
		ContourSelection: string(ball.SelectFirst),
		QueueSize:        64,
		FrameBuffer:      video.BufferMemory,
		Annotate:         true,
		MotionPlot:       true,
		RadiusTable:      layout.DefaultRadiusTable(),
	}
}

// Validate checks value ranges. Every failure wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch strings.ToLower(c.LogFormat) {
	case "", logger.FormatText, logger.FormatJSON:
	default:
		add("log_format %q is not text or json", c.LogFormat)
	}
	if c.ROIMargin < 0 {
		add("roi_margin must be >= 0")
	}
	if math.IsNaN(c.Sensitivity) || math.IsInf(c.Sensitivity, 0) {
		add("sensitivity must be finite")
	}
	if c.CooldownSeconds <= 0 {
		add("cooldown_seconds must be > 0")
	}
	if c.WarmupSeconds < 0 {
		add("warmup_seconds must be >= 0")
	}
	if c.BlurKernel < 1 {
		add("blur_kernel must be >= 1")
	}
	if c.HitTolerance < 0 {
		add("hit_tolerance must be >= 0")
	}
	if _, _, err := c.HSVRange(); err != nil {
		add("%v", err)
	}
	if c.DilateIterations < 0 {
		add("dilate_iterations must be >= 0")
	}
	if c.MinBallArea < 0 || c.MinBallArea >= c.MaxBallArea {
		add("ball area range (%v, %v) is empty", c.MinBallArea, c.MaxBallArea)
	}
	if _, err := ball.ParseSelection(c.ContourSelection); err != nil {
		add("%v", err)
	}
	if c.WorkerCount < 0 {
		add("worker_count must be >= 0")
	}
	if c.QueueSize < 1 {
		add("queue_size must be >= 1")
	}
	switch c.FrameBuffer {
	case video.BufferMemory, video.BufferDisk:
	default:
		add("frame_buffer %q is not memory or disk", c.FrameBuffer)
	}
	if c.MaxFrames < 0 {
		add("max_frames must be >= 0")
	}
	for v, r := range c.RadiusTable {
		if r <= 0 {
			add("radius_table[%d] must be > 0", v)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// HSVRange returns the ball color bounds as fixed-size triples.
func (c *Config) HSVRange() (lower, upper [3]float64, err error) {
	if len(c.BallHSVLower) != 3 || len(c.BallHSVUpper) != 3 {
		return lower, upper, errors.New("ball_hsv_lower and ball_hsv_upper need three values each")
	}
	limits := [3]float64{180, 255, 255}
	for i := range limits {
		lower[i], upper[i] = c.BallHSVLower[i], c.BallHSVUpper[i]
		if lower[i] < 0 || upper[i] > limits[i] || lower[i] > upper[i] {
			return lower, upper, fmt.Errorf("ball hsv channel %d range [%v, %v] outside [0, %v]",
				i, lower[i], upper[i], limits[i])
		}
	}
	return lower, upper, nil
}
