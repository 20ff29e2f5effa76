package engage

import (
	"errors"
	"fmt"

	"github.com/classlens-data/classlens/internal/monitoring"
)

// Class-wide engagement banding thresholds applied to per-student scores.
const (
	// HighlyEngagedThreshold: scores strictly above count as highly engaged.
	HighlyEngagedThreshold = 0.7
	// DisengagedThreshold: scores strictly below count as disengaged.
	// Scores in [DisengagedThreshold, HighlyEngagedThreshold] are moderate.
	DisengagedThreshold = 0.4
)

// ProcessorConfig holds the orchestration parameters that vary per
// deployment. Buffering thresholds are fixed constants (see buffer.go).
type ProcessorConfig struct {
	GridRows int
	GridCols int
}

// DefaultProcessorConfig returns the standard classroom layout.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		GridRows: DefaultGridRows,
		GridCols: DefaultGridCols,
	}
}

// HistoryEntry is one prediction appended to a student's engagement log.
type HistoryEntry struct {
	Frame       int                `json:"frame"`
	Predictions map[string]float64 `json:"predictions"`
	Score       float64            `json:"engagement_score"`
}

// StudentResult is the per-student outcome of one processed frame.
// Predictions is nil while the student's buffer is cold or no trained
// classifier is available; Score is then 0.
type StudentResult struct {
	ID          string             `json:"id"`
	Box         BoundingBox        `json:"box"`
	Seat        Seat               `json:"seat"`
	Predictions map[string]float64 `json:"predictions,omitempty"`
	Score       float64            `json:"engagement_score"`
	Features    FeatureMap         `json:"-"`
}

// FrameResult is the outcome of one processed classroom frame, including
// class-wide engagement metrics over the students present.
type FrameResult struct {
	FrameNumber       int             `json:"frame_number"`
	TotalStudents     int             `json:"total_students"`
	Students          []StudentResult `json:"students"`
	ClassEngagement   float64         `json:"class_engagement"`
	HighlyEngaged     int             `json:"highly_engaged"`
	ModeratelyEngaged int             `json:"moderately_engaged"`
	Disengaged        int             `json:"disengaged"`
}

// EngagementProcessor orchestrates per-frame detection, buffering, feature
// aggregation and prediction across every simultaneously tracked student.
// Processing is frame-synchronous: one frame completes before the next is
// accepted, and instances must not share per-student state. The classifier
// may be shared across processors; it is read-only here.
type EngagementProcessor struct {
	cfg        ProcessorConfig
	tracker    StudentTracker
	aggregator *Aggregator
	classifier *EngagementClassifier

	buffers    map[string]*regionBuffer
	history    map[string][]HistoryEntry
	frameCount int
}

// NewEngagementProcessor wires a processor from its collaborators. The
// classifier may be nil or untrained; frames then carry features but no
// predictions.
func NewEngagementProcessor(cfg ProcessorConfig, tracker StudentTracker, aggregator *Aggregator, classifier *EngagementClassifier) *EngagementProcessor {
	return &EngagementProcessor{
		cfg:        cfg,
		tracker:    tracker,
		aggregator: aggregator,
		classifier: classifier,
		buffers:    make(map[string]*regionBuffer),
		history:    make(map[string][]HistoryEntry),
	}
}

// ProcessFrame runs the full per-frame pipeline: track, assign seats,
// buffer, aggregate, predict, and fold per-student scores into class-wide
// metrics. A single student's failure is logged and isolated; it never
// aborts the remaining students in the frame.
func (p *EngagementProcessor) ProcessFrame(frame Region) (*FrameResult, error) {
	p.frameCount++

	detections, err := p.tracker.DetectAndTrack(frame)
	if err != nil {
		return nil, fmt.Errorf("process frame %d: %w", p.frameCount, err)
	}

	seats := AssignSeats(detections, p.cfg.GridRows, p.cfg.GridCols)

	result := &FrameResult{
		FrameNumber:   p.frameCount,
		TotalStudents: len(detections),
	}

	for _, det := range detections {
		if len(det.Region) == 0 {
			continue
		}
		student := p.processStudent(det, seats[det.ID])
		result.Students = append(result.Students, student)
	}

	scores := make([]float64, len(result.Students))
	for i, s := range result.Students {
		scores[i] = s.Score
	}
	result.ClassEngagement, result.HighlyEngaged, result.ModeratelyEngaged, result.Disengaged = classMetrics(scores)

	return result, nil
}

// processStudent buffers the student's region and produces its result for
// this frame. Cold students get single-frame features only; warm students
// get aggregated features and, when a trained classifier is present, a
// prediction set and engagement score.
func (p *EngagementProcessor) processStudent(det StudentDetection, seat Seat) StudentResult {
	buffer, ok := p.buffers[det.ID]
	if !ok {
		buffer = newRegionBuffer()
		p.buffers[det.ID] = buffer
	}
	buffer.Push(det.Region)

	result := StudentResult{
		ID:   det.ID,
		Box:  det.Box,
		Seat: seat,
	}

	if !buffer.Warm() {
		// Not enough history yet: extract single-frame features for
		// diagnostics, but no prediction and score 0.
		result.Features = p.aggregator.ExtractFrameFeatures(det.Region)
		return result
	}

	features := p.aggregator.ExtractAggregatedFeatures(buffer.Regions())
	result.Features = features

	if p.classifier == nil || !p.classifier.IsTrained() {
		return result
	}

	names := p.classifier.FeatureNames()
	if len(names) == 0 {
		names = p.aggregator.FeatureNames(features)
	}
	vector := ToVector(features, names)

	predictions, err := p.classifier.PredictSingle(vector)
	if err != nil {
		// Never let one student's prediction failure abort the frame;
		// degrade to no predictions for this student.
		if !errors.Is(err, ErrNotTrained) {
			monitoring.Logf("engage: prediction failed for %s: %v", det.ID, err)
		}
		return result
	}

	result.Predictions = predictions
	result.Score = EngagementScore(predictions)

	p.history[det.ID] = append(p.history[det.ID], HistoryEntry{
		Frame:       p.frameCount,
		Predictions: predictions,
		Score:       result.Score,
	})

	return result
}

// classMetrics folds per-student scores into class-wide aggregates. All
// metrics are zero when no students are present.
func classMetrics(scores []float64) (mean float64, high, moderate, low int) {
	if len(scores) == 0 {
		return 0, 0, 0, 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
		switch {
		case s > HighlyEngagedThreshold:
			high++
		case s < DisengagedThreshold:
			low++
		default:
			moderate++
		}
	}
	return sum / float64(len(scores)), high, moderate, low
}

// History returns the engagement log recorded for one student identity.
func (p *EngagementProcessor) History(id string) []HistoryEntry {
	return append([]HistoryEntry(nil), p.history[id]...)
}

// FrameCount returns the number of frames processed since the last Reset.
func (p *EngagementProcessor) FrameCount() int {
	return p.frameCount
}

// BufferedFrames reports how many regions are buffered for a student.
// Stale identities persist until Reset; tracking loss alone never evicts.
func (p *EngagementProcessor) BufferedFrames(id string) int {
	if b, ok := p.buffers[id]; ok {
		return b.Len()
	}
	return 0
}

// Reset clears tracker state, every per-student buffer and history, and the
// frame counter, returning all identities to cold. The classifier model is
// untouched; reuse it across independent video jobs.
func (p *EngagementProcessor) Reset() {
	p.tracker.Reset()
	p.buffers = make(map[string]*regionBuffer)
	p.history = make(map[string][]HistoryEntry)
	p.frameCount = 0
}
