package app

import (
	"context"
	"image"

	"gocv.io/x/gocv"

	"github.com/okian/hitscore/internal/adapters/artifacts"
	"github.com/okian/hitscore/internal/adapters/mq/worker"
	"github.com/okian/hitscore/internal/adapters/video"
	"github.com/okian/hitscore/internal/domain/model"
	"github.com/okian/hitscore/internal/domain/scoring"
	"github.com/okian/hitscore/internal/vision/annotate"
	"github.com/okian/hitscore/internal/vision/ball"
	"github.com/okian/hitscore/internal/vision/region"
	"github.com/okian/hitscore/pkg/logger"
	"github.com/okian/hitscore/pkg/metrics"
)

// impactProcessor localizes the ball in one peak frame and scores it.
// Everything it holds is read-only during a run.
type impactProcessor struct {
	store     video.FrameStore
	whole     bool             // store holds full frames rather than crops
	frames    video.FrameStore // full frames for annotation when store holds crops
	roi       model.ROI
	layout    model.ScoringLayout
	localizer *ball.Localizer
	evaluator scoring.Evaluator
	writer    *artifacts.Writer // nil skips annotated images
	logger    logger.Logger
}

func (p *impactProcessor) Process(ctx context.Context, job worker.Job) (model.ImpactEvent, error) {
	frame, err := p.store.Get(job.FrameIndex)
	if err != nil {
		return model.ImpactEvent{}, model.NewStageError(model.StageStore, job.FrameIndex, job.Timestamp, nil, err)
	}
	defer frame.Close()

	crop := frame
	if p.whole {
		view, err := region.Extract(frame, p.roi)
		if err != nil {
			return model.ImpactEvent{}, model.NewStageError(model.StageRegion, job.FrameIndex, job.Timestamp,
				model.ErrInvalidRegion, err)
		}
		defer view.Close()
		crop = view
	}

	var pos *image.Point
	at, ok, err := p.localizer.Locate(crop, p.roi.Origin())
	if err != nil {
		return model.ImpactEvent{}, model.NewStageError(model.StageLocalize, job.FrameIndex, job.Timestamp, nil, err)
	}
	if ok {
		pos = &at
	} else {
		metrics.RecordBallNotFound()
		p.logger.Debug(ctx, "ball not found", logger.Int("frame", job.FrameIndex))
	}

	res, err := p.evaluator.Evaluate(ctx, scoring.Input{Position: pos}, p.layout)
	if err != nil {
		return model.ImpactEvent{}, err
	}

	event := model.ImpactEvent{
		Ordinal:      job.Ordinal,
		FrameIndex:   job.FrameIndex,
		Timestamp:    job.Timestamp,
		MotionScore:  job.MotionScore,
		BallPosition: pos,
		Scored:       res.Scored,
	}
	if res.Scored {
		event.PointValue = res.Value
		metrics.RecordEventScored(res.Value)
	} else {
		metrics.RecordEventMissed()
	}

	if p.writer != nil {
		if err := p.writeImage(job, event, frame); err != nil {
			return model.ImpactEvent{}, err
		}
	}
	return event, nil
}

func (p *impactProcessor) writeImage(job worker.Job, event model.ImpactEvent, stored gocv.Mat) error {
	full := stored
	if !p.whole {
		if p.frames == nil {
			return nil
		}
		f, err := p.frames.Get(job.FrameIndex)
		if err != nil {
			return model.NewStageError(model.StageStore, job.FrameIndex, job.Timestamp, nil, err)
		}
		defer f.Close()
		full = f
	}

	img := annotate.Event(full, p.roi, p.layout, event)
	defer img.Close()
	if _, err := p.writer.WriteEventImage(job.Ordinal, img); err != nil {
		return model.NewStageError(model.StageArtifacts, job.FrameIndex, job.Timestamp, nil, err)
	}
	return nil
}

var _ worker.Processor = (*impactProcessor)(nil)
