// Package app wires the detector pipeline: decode and motion scoring,
// impact segmentation, concurrent localization and scoring, and artifacts.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/okian/hitscore/internal/adapters/artifacts"
	"github.com/okian/hitscore/internal/adapters/mq/queue"
	"github.com/okian/hitscore/internal/adapters/mq/worker"
	"github.com/okian/hitscore/internal/adapters/repository"
	"github.com/okian/hitscore/internal/adapters/video"
	"github.com/okian/hitscore/internal/domain/layout"
	"github.com/okian/hitscore/internal/domain/model"
	"github.com/okian/hitscore/internal/domain/scoring"
	"github.com/okian/hitscore/internal/domain/segment"
	"github.com/okian/hitscore/internal/vision/ball"
	"github.com/okian/hitscore/internal/vision/motion"
	"github.com/okian/hitscore/internal/vision/region"
	"github.com/okian/hitscore/pkg/logger"
	"github.com/okian/hitscore/pkg/metrics"
)

// Detector turns a recording and a scoring layout into scored impacts. A
// Detector holds configuration only; concurrent runs do not share state.
type Detector struct {
	logger logger.Logger

	roiMargin  int
	clipROI    bool
	segmenter  *segment.Segmenter
	motionOpts []motion.Option
	localizer  *ball.Localizer
	evaluator  scoring.Evaluator

	workerCount int
	queueSize   int
	frameBuffer string
	spillDir    string
	maxFrames   int

	writer      *artifacts.Writer
	annotate    bool
	motionPlot  bool
	metricsFile string

	newRunID func() string
}

// New constructs a Detector.
func New(opts ...Option) *Detector {
	d := defaults()
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("detector")
	return d
}

// Calibrate produces the layout for videoPath by handing its first frame to
// cal.
func (d *Detector) Calibrate(ctx context.Context, videoPath string, cal layout.Calibrator) (model.ScoringLayout, error) {
	frame, err := video.FirstFrame(ctx, videoPath)
	if err != nil {
		return model.ScoringLayout{}, err
	}
	defer frame.Close()

	ref, err := frame.ToImage()
	if err != nil {
		return model.ScoringLayout{}, model.NewStageError(model.StageLayout, 0, 0, model.ErrDecode, err)
	}
	l, err := cal.Calibrate(ctx, ref)
	if err != nil {
		return model.ScoringLayout{}, model.NewStageError(model.StageLayout, -1, 0, model.ErrConfigMissing, err)
	}
	return l, nil
}

// Run opens videoPath and processes it.
func (d *Detector) Run(ctx context.Context, videoPath string, l model.ScoringLayout) (*model.Result, error) {
	src, err := video.Open(videoPath)
	if err != nil {
		metrics.RecordErrorByStage(model.StageOpen)
		return nil, err
	}
	defer src.Close()

	d.logger.Info(ctx, "processing video",
		logger.String("video", videoPath),
		logger.Float64("fps", src.FrameRate()),
		logger.Int("frames_hint", src.FrameCountHint()),
	)

	reopen := func() (video.Source, error) { return video.Open(videoPath) }
	return d.process(ctx, src, l, videoPath, reopen)
}

// Process runs the pipeline over src.
func (d *Detector) Process(ctx context.Context, src video.Source, l model.ScoringLayout) (*model.Result, error) {
	return d.process(ctx, src, l, "", nil)
}

// process runs one pass over src. When reopen is set and impacts are
// annotated, only crops are buffered and the full peak frames are decoded
// again afterwards; without it whole frames are kept.
func (d *Detector) process(
	ctx context.Context,
	src video.Source,
	l model.ScoringLayout,
	name string,
	reopen func() (video.Source, error),
) (res *model.Result, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			return
		}
		var se *model.StageError
		if errors.As(err, &se) {
			metrics.RecordErrorByStage(se.Stage)
		}
		d.logger.Error(ctx, "run failed", logger.Error(err))
	}()

	if err := layout.Validate(l); err != nil {
		return nil, model.NewStageError(model.StageLayout, -1, 0, model.ErrConfigMissing, err)
	}
	roi, err := layout.ComputeROI(l, d.roiMargin)
	if err != nil {
		return nil, model.NewStageError(model.StageLayout, -1, 0, model.ErrConfigMissing, err)
	}
	fps := src.FrameRate()
	if fps <= 0 {
		return nil, model.NewStageError(model.StageOpen, -1, 0, model.ErrDecode,
			fmt.Errorf("no usable frame rate (%v)", fps))
	}
	if size := src.Size(); size.X > 0 && size.Y > 0 {
		clipped, err := region.Clip(roi, size)
		if err != nil {
			return nil, model.NewStageError(model.StageRegion, -1, 0, model.ErrInvalidRegion, err)
		}
		if clipped != roi {
			if !d.clipROI {
				return nil, model.NewStageError(model.StageRegion, -1, 0, model.ErrInvalidRegion,
					fmt.Errorf("roi %s does not fit the %dx%d frame", roi, size.X, size.Y))
			}
			d.logger.Warn(ctx, "roi clipped to frame",
				logger.String("roi", roi.String()),
				logger.String("clipped", clipped.String()),
			)
		}
		roi = clipped
	}

	store, err := video.NewFrameStore(d.frameBuffer, d.spillDir)
	if err != nil {
		return nil, model.NewStageError(model.StageStore, -1, 0, nil, err)
	}
	defer store.Close()

	whole := d.annotating() && reopen == nil
	scores, err := d.scan(ctx, src, roi, store, whole)
	if err != nil {
		return nil, err
	}

	seg := d.segmenter.Segment(scores, fps)
	metrics.UpdateMotionThreshold(seg.Threshold)
	metrics.RecordImpactDetected(len(seg.Peaks))
	if ms, ok := store.(*video.MemoryStore); ok {
		ms.Retain(seg.Peaks)
	}
	d.logger.Info(ctx, "motion pass complete",
		logger.Int("frames", len(scores)),
		logger.Float64("threshold", seg.Threshold),
		logger.Int("impacts", len(seg.Peaks)),
	)

	var frames video.FrameStore
	if d.annotating() && !whole && len(seg.Peaks) > 0 {
		peakFrames, err := d.replayPeaks(ctx, reopen, seg.Peaks)
		if err != nil {
			return nil, err
		}
		defer peakFrames.Close()
		frames = peakFrames
	}

	events, err := d.localize(ctx, localizeInput{
		store:  store,
		whole:  whole,
		frames: frames,
		roi:    roi,
		layout: l,
		scores: scores,
		peaks:  seg.Peaks,
		fps:    fps,
	})
	if err != nil {
		return nil, err
	}

	res = &model.Result{
		RunID:      d.newRunID(),
		Video:      name,
		FPS:        fps,
		FrameCount: len(scores),
		Threshold:  seg.Threshold,
		ROI:        roi,
		Layout:     l,
		Events:     events,
	}
	for _, e := range events {
		res.TotalScore += e.PointValue
	}
	metrics.UpdateTotalScore(res.TotalScore)

	if err := d.writeArtifacts(ctx, res, scores, seg); err != nil {
		return nil, err
	}

	metrics.RecordRunDuration(time.Since(start).Seconds())
	if err := metrics.WriteTextfile(d.metricsFile); err != nil {
		return nil, model.NewStageError(model.StageArtifacts, -1, 0, nil, err)
	}

	d.logger.Info(ctx, "run complete",
		logger.String("run_id", res.RunID),
		logger.Int("events", len(res.Events)),
		logger.Int("total_score", res.TotalScore),
		logger.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// scan is the sequential decode and motion pass. Frames needed later are
// moved into store: whole frames when whole is set, crops otherwise.
func (d *Detector) scan(ctx context.Context, src video.Source, roi model.ROI, store video.FrameStore, whole bool) ([]float64, error) {
	analyzer := motion.NewAnalyzer(d.motionOpts...)
	defer analyzer.Close()

	fps := src.FrameRate()
	var scores []float64
	for index := 0; ; index++ {
		frameStart := time.Now()
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return scores, nil
		}
		if err != nil {
			var se *model.StageError
			if errors.As(err, &se) || ctx.Err() != nil {
				return nil, err
			}
			return nil, model.NewStageError(model.StageDecode, index, model.Timestamp(index, fps), model.ErrDecode, err)
		}
		ts := model.Timestamp(index, fps)

		if d.maxFrames > 0 && index >= d.maxFrames {
			frame.Close()
			return nil, model.NewStageError(model.StageDecode, index, ts, model.ErrFrameLimit,
				fmt.Errorf("clip is longer than %d frames", d.maxFrames))
		}

		crop, err := region.Extract(frame, roi)
		if err != nil {
			frame.Close()
			return nil, model.NewStageError(model.StageRegion, index, ts, model.ErrInvalidRegion, err)
		}

		score, err := analyzer.Feed(crop)
		if err != nil {
			crop.Close()
			frame.Close()
			return nil, model.NewStageError(model.StageMotion, index, ts, model.ErrInvalidRegion, err)
		}

		if whole {
			crop.Close()
			err = store.Put(index, frame)
		} else {
			kept := crop.Clone()
			crop.Close()
			frame.Close()
			err = store.Put(index, kept)
		}
		if err != nil {
			return nil, model.NewStageError(model.StageStore, index, ts, nil, err)
		}

		scores = append(scores, score)
		metrics.RecordFrameDecoded()
		metrics.RecordFrameLatency(float64(time.Since(frameStart).Microseconds()) / 1000)
	}
}

func (d *Detector) annotating() bool {
	return d.writer != nil && d.annotate
}

// replayPeaks decodes the clip again and keeps the full frames at peaks.
func (d *Detector) replayPeaks(ctx context.Context, reopen func() (video.Source, error), peaks []int) (*video.MemoryStore, error) {
	src, err := reopen()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	fps := src.FrameRate()
	store := video.NewMemoryStore()
	next := 0
	for index := 0; next < len(peaks); index++ {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			store.Close()
			var se *model.StageError
			if errors.As(err, &se) || ctx.Err() != nil {
				return nil, err
			}
			return nil, model.NewStageError(model.StageDecode, index, model.Timestamp(index, fps), model.ErrDecode, err)
		}
		if index != peaks[next] {
			frame.Close()
			continue
		}
		if err := store.Put(index, frame); err != nil {
			frame.Close()
			store.Close()
			return nil, model.NewStageError(model.StageStore, index, model.Timestamp(index, fps), nil, err)
		}
		next++
	}
	if next < len(peaks) {
		store.Close()
		p := peaks[next]
		return nil, model.NewStageError(model.StageDecode, p, model.Timestamp(p, fps), model.ErrDecode,
			fmt.Errorf("frame %d not found when decoding again", p))
	}
	return store, nil
}

type localizeInput struct {
	store  video.FrameStore // crops, or whole frames when whole is set
	whole  bool
	frames video.FrameStore // whole peak frames for annotation when store holds crops
	roi    model.ROI
	layout model.ScoringLayout
	scores []float64
	peaks  []int
	fps    float64
}

// localize fans the peaks out to the worker pool and collects one event per
// peak in frame order.
func (d *Detector) localize(ctx context.Context, in localizeInput) ([]model.ImpactEvent, error) {
	peaks, scores, fps := in.peaks, in.scores, in.fps
	if len(peaks) == 0 {
		return []model.ImpactEvent{}, nil
	}

	q := queue.NewInMemoryQueue(queue.WithCapacity(d.queueSize))
	sink := repository.NewEventStore()
	proc := &impactProcessor{
		store:     in.store,
		whole:     in.whole,
		frames:    in.frames,
		roi:       in.roi,
		layout:    in.layout,
		localizer: d.localizer,
		evaluator: d.evaluator,
		logger:    d.logger,
	}
	if d.annotating() {
		proc.writer = d.writer
	}

	pool := worker.NewPool(min(d.workerCount, len(peaks)), q, proc, sink, worker.WithPoolLogger(d.logger))
	poolCtx := pool.Start(ctx)

	var enqueueErr error
	for i, p := range peaks {
		job := model.ImpactJob{
			Ordinal:     i + 1,
			FrameIndex:  p,
			Timestamp:   model.Timestamp(p, fps),
			MotionScore: scores[p],
		}
		if err := q.EnqueueWait(poolCtx, job); err != nil {
			enqueueErr = err
			break
		}
	}
	_ = q.Close()

	if err := pool.Wait(ctx); err != nil {
		return nil, err
	}
	if enqueueErr != nil {
		return nil, fmt.Errorf("enqueue impact: %w", enqueueErr)
	}

	events := sink.Events(ctx)
	if len(events) != len(peaks) {
		return nil, model.NewStageError(model.StageLocalize, -1, 0, nil,
			fmt.Errorf("collected %d events for %d impacts", len(events), len(peaks)))
	}
	return events, nil
}

func (d *Detector) writeArtifacts(ctx context.Context, res *model.Result, scores []float64, seg segment.Segmentation) error {
	if d.writer == nil {
		return nil
	}
	if _, err := d.writer.WriteResult(ctx, res); err != nil {
		return model.NewStageError(model.StageArtifacts, -1, 0, nil, err)
	}
	if d.motionPlot && len(scores) > 0 {
		if _, err := d.writer.WriteMotionPlot(scores, seg.Threshold, seg.Peaks, res.FPS); err != nil {
			return model.NewStageError(model.StageArtifacts, -1, 0, nil, err)
		}
	}
	return nil
}
