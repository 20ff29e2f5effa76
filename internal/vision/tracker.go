package vision

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/classlens-data/classlens/internal/engage"
)

const (
	// Maximum normalized centre distance for associating a detection with
	// an existing track.
	trackGatingDistance = 0.08

	// Tracks older than this many frames without a match are dropped.
	trackMaxMisses = 30

	// Face boxes are expanded by this factor to capture head and upper
	// torso in the cropped region.
	regionExpansion = 1.8
)

// faceTrack is one student's persistent identity across frames.
type faceTrack struct {
	id      string
	centerX float64
	centerY float64
	misses  int
}

// FaceTracker detects faces per frame with YuNet and keeps stable student
// IDs through greedy nearest-centre association with gating. It implements
// engage.StudentTracker for live video.
type FaceTracker struct {
	mu       sync.Mutex
	detector gocv.FaceDetectorYN
	tracks   []*faceTrack
}

// NewFaceTracker loads the YuNet ONNX model at modelPath.
func NewFaceTracker(modelPath string) (*FaceTracker, error) {
	cfg := DefaultFacialConfig(modelPath)
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("face model not found: %s", cfg.ModelPath)
	}
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath, "", image.Pt(cfg.InputWidth, cfg.InputHeight),
		cfg.ScoreThreshold, cfg.NMSThreshold, 5000,
		int(gocv.NetBackendDefault), int(gocv.NetTargetCPU),
	)
	return &FaceTracker{detector: detector}, nil
}

func (t *FaceTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detector.Close()
	return nil
}

// Reset drops all track state so the next frame starts fresh identities.
func (t *FaceTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = nil
}

// DetectAndTrack finds every face in the frame, associates each with an
// existing track or starts a new one, and returns per-student detections
// with JPEG-encoded region crops.
func (t *FaceTracker) DetectAndTrack(frame engage.Region) ([]engage.StudentDetection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	img, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("empty frame image")
	}
	imgW, imgH := float64(img.Cols()), float64(img.Rows())

	t.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	faces := gocv.NewMat()
	defer faces.Close()
	t.detector.Detect(img, &faces)

	detections := make([]engage.StudentDetection, 0, faces.Rows())
	matched := make(map[*faceTrack]bool)
	for r := 0; r < faces.Rows(); r++ {
		x := float64(faces.GetFloatAt(r, 0))
		y := float64(faces.GetFloatAt(r, 1))
		w := float64(faces.GetFloatAt(r, 2))
		h := float64(faces.GetFloatAt(r, 3))
		score := float64(faces.GetFloatAt(r, 14))

		cx := (x + w/2) / imgW
		cy := (y + h/2) / imgH

		track := t.associate(cx, cy, matched)
		if track == nil {
			track = &faceTrack{id: engage.NewStudentID()}
			t.tracks = append(t.tracks, track)
		}
		track.centerX, track.centerY = cx, cy
		track.misses = 0
		matched[track] = true

		region, box, err := cropRegion(img, x, y, w, h)
		if err != nil {
			return nil, err
		}
		detections = append(detections, engage.StudentDetection{
			ID:         track.id,
			Box:        box,
			Region:     region,
			Confidence: score,
			CenterX:    cx,
			CenterY:    cy,
		})
	}

	t.age(matched)
	return detections, nil
}

// associate finds the nearest unmatched track within the gating distance.
func (t *FaceTracker) associate(cx, cy float64, matched map[*faceTrack]bool) *faceTrack {
	var best *faceTrack
	bestDist := trackGatingDistance * trackGatingDistance
	for _, tr := range t.tracks {
		if matched[tr] {
			continue
		}
		dx, dy := tr.centerX-cx, tr.centerY-cy
		d := dx*dx + dy*dy
		if d < bestDist {
			best, bestDist = tr, d
		}
	}
	return best
}

// age increments misses on unmatched tracks and drops stale ones.
func (t *FaceTracker) age(matched map[*faceTrack]bool) {
	kept := t.tracks[:0]
	for _, tr := range t.tracks {
		if !matched[tr] {
			tr.misses++
		}
		if tr.misses <= trackMaxMisses {
			kept = append(kept, tr)
		}
	}
	t.tracks = kept
}

// cropRegion expands the face box, clamps it to the frame, and encodes the
// crop as JPEG.
func cropRegion(img gocv.Mat, x, y, w, h float64) (engage.Region, engage.BoundingBox, error) {
	cx, cy := x+w/2, y+h/2
	ew, eh := w*regionExpansion, h*regionExpansion

	x1 := clampPixel(cx-ew/2, img.Cols())
	y1 := clampPixel(cy-eh/2, img.Rows())
	x2 := clampPixel(cx+ew/2, img.Cols())
	y2 := clampPixel(cy+eh/2, img.Rows())
	if x2 <= x1 || y2 <= y1 {
		return nil, engage.BoundingBox{}, fmt.Errorf("degenerate face box at (%f,%f)", x, y)
	}

	crop := img.Region(image.Rect(x1, y1, x2, y2))
	defer crop.Close()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, crop)
	if err != nil {
		return nil, engage.BoundingBox{}, fmt.Errorf("encode region: %w", err)
	}
	defer buf.Close()

	region := make(engage.Region, buf.Len())
	copy(region, buf.GetBytes())
	box := engage.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
	return region, box, nil
}

func clampPixel(v float64, max int) int {
	if v < 0 {
		return 0
	}
	if v > float64(max) {
		return max
	}
	return int(v)
}
