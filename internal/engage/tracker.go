package engage

import (
	"sync"

	"github.com/google/uuid"
)

// BoundingBox is a pixel-space box in the full classroom frame.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// StudentDetection is one tracked student instance in a frame. IDs are
// stable across frames for the same physical subject for as long as the
// tracker keeps hold of them.
type StudentDetection struct {
	ID         string      `json:"id"`
	Box        BoundingBox `json:"box"`
	Region     Region      `json:"-"`
	Confidence float64     `json:"confidence"`

	// CenterX and CenterY are the detection's centre normalised to [0,1]
	// within the full frame, used for seat-grid assignment.
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
}

// StudentTracker is the consumed tracking collaborator: it detects students
// in a full classroom frame and assigns stable identities.
type StudentTracker interface {
	DetectAndTrack(frame Region) ([]StudentDetection, error)
	Reset()
}

// NewStudentID mints a fresh tracking identity.
func NewStudentID() string {
	return "student-" + uuid.NewString()
}

// ScriptedTracker replays a fixed per-frame detection script. It backs tests
// and the ingest API, where detections arrive pre-tracked from an external
// pipeline. Frames past the end of the script yield no detections.
type ScriptedTracker struct {
	mu     sync.Mutex
	frames [][]StudentDetection
	cursor int
}

// NewScriptedTracker creates a tracker that replays the given frames in
// order.
func NewScriptedTracker(frames ...[]StudentDetection) *ScriptedTracker {
	return &ScriptedTracker{frames: frames}
}

// Append queues another frame of detections onto the script.
func (t *ScriptedTracker) Append(dets []StudentDetection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames = append(t.frames, dets)
}

// DetectAndTrack returns the next scripted frame of detections. Detections
// without an ID are assigned a fresh one.
func (t *ScriptedTracker) DetectAndTrack(frame Region) ([]StudentDetection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cursor >= len(t.frames) {
		return nil, nil
	}
	dets := t.frames[t.cursor]
	t.cursor++

	for i := range dets {
		if dets[i].ID == "" {
			dets[i].ID = NewStudentID()
		}
	}
	return dets, nil
}

// Reset rewinds the script to the first frame.
func (t *ScriptedTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor = 0
}
