// Package types contains the JSON shapes exchanged with the outside world:
// the scoring layout file and the scoring result document.
package types

import (
	"encoding/json"
	"errors"
	"image"
	"time"

	"github.com/okian/hitscore/internal/domain/model"
)

// Ring is one entry of a scoring layout file. Calibration output historically
// used "score" for the point value; both keys are accepted on input.
type Ring struct {
	Value  int    `json:"value"`
	Center [2]int `json:"center"`
	Radius int    `json:"radius"`
}

// UnmarshalJSON accepts either "value" or "score" for the point value.
func (r *Ring) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value  *int    `json:"value"`
		Score  *int    `json:"score"`
		Center *[2]int `json:"center"`
		Radius int     `json:"radius"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Value != nil:
		r.Value = *raw.Value
	case raw.Score != nil:
		r.Value = *raw.Score
	default:
		return errors.New("ring has no value")
	}
	if raw.Center == nil {
		return errors.New("ring has no center")
	}
	r.Center = *raw.Center
	r.Radius = raw.Radius
	return nil
}

// Spec converts the wire ring into the domain type.
func (r Ring) Spec() model.RingSpec {
	return model.RingSpec{
		Value:  r.Value,
		Center: image.Pt(r.Center[0], r.Center[1]),
		Radius: r.Radius,
	}
}

// RingFromSpec converts a domain ring into its wire form.
func RingFromSpec(s model.RingSpec) Ring {
	return Ring{Value: s.Value, Center: [2]int{s.Center.X, s.Center.Y}, Radius: s.Radius}
}

// Event is one scored impact in the result document.
type Event struct {
	Timestamp    float64 `json:"timestamp"`
	FrameIndex   int     `json:"frame_index"`
	BallPosition *[2]int `json:"ball_position"`
	Scored       bool    `json:"scored"`
	PointValue   int     `json:"point_value"`
}

// ROI is the analyzed region in the result document.
type ROI struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Result is the scoring result document.
type Result struct {
	RunID      string    `json:"run_id"`
	Video      string    `json:"video"`
	CreatedAt  time.Time `json:"created_at"`
	FPS        float64   `json:"fps"`
	FrameCount int       `json:"frame_count"`
	Threshold  float64   `json:"threshold"`
	ROI        ROI       `json:"roi"`
	TotalScore int       `json:"total_score"`
	Events     []Event   `json:"events"`
	Layout     []Ring    `json:"layout"`
}

// NewResult builds the wire document for a detector result.
func NewResult(r *model.Result, createdAt time.Time) Result {
	out := Result{
		RunID:      r.RunID,
		Video:      r.Video,
		CreatedAt:  createdAt.UTC(),
		FPS:        r.FPS,
		FrameCount: r.FrameCount,
		Threshold:  r.Threshold,
		ROI:        ROI{X1: r.ROI.X1, Y1: r.ROI.Y1, X2: r.ROI.X2, Y2: r.ROI.Y2},
		TotalScore: r.TotalScore,
		Events:     make([]Event, len(r.Events)),
		Layout:     make([]Ring, len(r.Layout.Rings)),
	}
	for i, e := range r.Events {
		ev := Event{
			Timestamp:  e.Timestamp,
			FrameIndex: e.FrameIndex,
			Scored:     e.Scored,
			PointValue: e.PointValue,
		}
		if e.BallPosition != nil {
			ev.BallPosition = &[2]int{e.BallPosition.X, e.BallPosition.Y}
		}
		out.Events[i] = ev
	}
	for i, ring := range r.Layout.Rings {
		out.Layout[i] = RingFromSpec(ring)
	}
	return out
}
