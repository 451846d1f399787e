package app

import (
	"runtime"

	"github.com/google/uuid"

	"github.com/okian/hitscore/internal/adapters/artifacts"
	"github.com/okian/hitscore/internal/adapters/video"
	"github.com/okian/hitscore/internal/domain/layout"
	"github.com/okian/hitscore/internal/domain/scoring"
	"github.com/okian/hitscore/internal/domain/segment"
	"github.com/okian/hitscore/internal/vision/ball"
	"github.com/okian/hitscore/internal/vision/motion"
	"github.com/okian/hitscore/pkg/logger"
)

const defaultQueueSize = 64

// Option applies a configuration option to the Detector.
type Option func(*Detector)

// WithLogger sets a custom logger for the detector.
func WithLogger(l logger.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithROIMargin sets the padding added around the ring extent.
func WithROIMargin(px int) Option {
	return func(d *Detector) {
		if px >= 0 {
			d.roiMargin = px
		}
	}
}

// WithROIClipping lets a run continue on the part of the region inside the
// frame. By default a region that does not fit the frame fails the run.
func WithROIClipping(enabled bool) Option {
	return func(d *Detector) {
		d.clipROI = enabled
	}
}

// WithSegmentOptions configures impact segmentation.
func WithSegmentOptions(opts ...segment.Option) Option {
	return func(d *Detector) {
		d.segmenter = segment.New(opts...)
	}
}

// WithMotionOptions configures the motion analyzer created for every run.
func WithMotionOptions(opts ...motion.Option) Option {
	return func(d *Detector) {
		d.motionOpts = opts
	}
}

// WithBallOptions configures ball localization.
func WithBallOptions(opts ...ball.Option) Option {
	return func(d *Detector) {
		d.localizer = ball.NewLocalizer(opts...)
	}
}

// WithEvaluator replaces the ring evaluator.
func WithEvaluator(e scoring.Evaluator) Option {
	return func(d *Detector) {
		if e != nil {
			d.evaluator = e
		}
	}
}

// WithWorkerCount sets the number of localization workers.
func WithWorkerCount(count int) Option {
	return func(d *Detector) {
		if count > 0 {
			d.workerCount = count
		}
	}
}

// WithQueueSize sets the impact job queue capacity.
func WithQueueSize(size int) Option {
	return func(d *Detector) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// WithFrameBuffer selects where decoded frames wait for segmentation
// (video.BufferMemory or video.BufferDisk). dir is the parent of the disk
// spill directory.
func WithFrameBuffer(kind, dir string) Option {
	return func(d *Detector) {
		d.frameBuffer = kind
		d.spillDir = dir
	}
}

// WithMaxFrames caps the number of frames a run may decode. Zero disables
// the cap.
func WithMaxFrames(n int) Option {
	return func(d *Detector) {
		if n >= 0 {
			d.maxFrames = n
		}
	}
}

// WithArtifacts writes the result document into w's directory. annotate adds
// one image per impact; plot adds the motion plot.
func WithArtifacts(w *artifacts.Writer, annotate, plot bool) Option {
	return func(d *Detector) {
		d.writer = w
		d.annotate = annotate
		d.motionPlot = plot
	}
}

// WithMetricsFile dumps the metrics registry to path after every run.
func WithMetricsFile(path string) Option {
	return func(d *Detector) {
		d.metricsFile = path
	}
}

// WithRunID overrides run id generation.
func WithRunID(gen func() string) Option {
	return func(d *Detector) {
		if gen != nil {
			d.newRunID = gen
		}
	}
}

func defaults() *Detector {
	return &Detector{
		logger:      logger.Nop(),
		roiMargin:   layout.DefaultROIMargin,
		segmenter:   segment.New(),
		localizer:   ball.NewLocalizer(),
		evaluator:   scoring.NewEvaluator(),
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		frameBuffer: video.BufferMemory,
		newRunID:    uuid.NewString,
	}
}
