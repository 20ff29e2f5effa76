// Package vision provides OpenCV-backed detectors and a face tracker for
// live video. Everything here decodes JPEG regions and emits the same
// feature keys the engagement models are trained on, so the stored feature
// layout does not depend on which detectors are installed.
package vision

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/classlens-data/classlens/internal/engage"
)

// Thresholds for the drowsiness and yawn flags derived from landmark
// geometry.
const (
	drowsyEARThreshold = 0.21
	yawnMARThreshold   = 0.65
)

// FacialConfig configures the YuNet-based facial detector.
type FacialConfig struct {
	ModelPath      string
	ScoreThreshold float32
	NMSThreshold   float32
	InputWidth     int
	InputHeight    int
}

// DefaultFacialConfig returns sensible defaults for the YuNet face model.
func DefaultFacialConfig(modelPath string) FacialConfig {
	return FacialConfig{
		ModelPath:      modelPath,
		ScoreThreshold: 0.6,
		NMSThreshold:   0.3,
		InputWidth:     320,
		InputHeight:    320,
	}
}

// FacialDetector extracts facial features from a student region using
// OpenCV's FaceDetectorYN. The five YuNet landmarks (eyes, nose, mouth
// corners) drive coarse proxies for eye openness, mouth openness and
// eyebrow height.
type FacialDetector struct {
	mu       sync.Mutex
	detector gocv.FaceDetectorYN
}

// NewFacialDetector loads the YuNet ONNX model at cfg.ModelPath.
func NewFacialDetector(cfg FacialConfig) (*FacialDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("face model not found: %s", cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		cfg.ScoreThreshold,
		cfg.NMSThreshold,
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &FacialDetector{detector: detector}, nil
}

func (d *FacialDetector) Namespace() string { return engage.NamespaceFacial }

func (d *FacialDetector) Defaults() engage.FeatureMap { return engage.FacialDefaults() }

func (d *FacialDetector) Reset() {}

// Close releases the underlying OpenCV detector.
func (d *FacialDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

// Detect decodes the region and runs YuNet over it. Returns
// engage.ErrNoDetection when no face clears the score threshold.
func (d *FacialDetector) Detect(region engage.Region) (engage.FeatureMap, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(region, gocv.IMReadColor)
	if err != nil {
		return engage.FeatureMap{}, fmt.Errorf("decode region: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return engage.FeatureMap{}, fmt.Errorf("empty region image")
	}

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	if faces.Rows() == 0 {
		return engage.FeatureMap{}, engage.ErrNoDetection
	}

	// Largest face wins when a crop contains more than one.
	row := largestFaceRow(faces)
	lm := faceLandmarks(faces, row, float64(img.Cols()), float64(img.Rows()))
	return facialFeatures(lm), nil
}

// faceGeometry is the YuNet row decoded into normalized coordinates.
// Landmarks: 0 right eye, 1 left eye, 2 nose tip, 3 right mouth corner,
// 4 left mouth corner.
type faceGeometry struct {
	X, Y, W, H float64
	Points     [5][2]float64
}

func largestFaceRow(faces gocv.Mat) int {
	best, bestArea := 0, -1.0
	for r := 0; r < faces.Rows(); r++ {
		area := float64(faces.GetFloatAt(r, 2)) * float64(faces.GetFloatAt(r, 3))
		if area > bestArea {
			best, bestArea = r, area
		}
	}
	return best
}

func faceLandmarks(faces gocv.Mat, row int, imgW, imgH float64) faceGeometry {
	var g faceGeometry
	g.X = float64(faces.GetFloatAt(row, 0)) / imgW
	g.Y = float64(faces.GetFloatAt(row, 1)) / imgH
	g.W = float64(faces.GetFloatAt(row, 2)) / imgW
	g.H = float64(faces.GetFloatAt(row, 3)) / imgH
	for i := 0; i < 5; i++ {
		g.Points[i][0] = float64(faces.GetFloatAt(row, 4+i*2)) / imgW
		g.Points[i][1] = float64(faces.GetFloatAt(row, 5+i*2)) / imgH
	}
	return g
}

// facialFeatures derives the facial feature set from face geometry. The
// five-point landmark set cannot express true eye or mouth contours, so the
// aspect ratios are geometric proxies scaled to match the ranges the models
// were trained on.
func facialFeatures(g faceGeometry) engage.FeatureMap {
	fm := engage.NewFeatureMap()
	fm.SetBool("face_detected", true)

	rightEye, leftEye := g.Points[0], g.Points[1]
	nose := g.Points[2]
	rightMouth, leftMouth := g.Points[3], g.Points[4]

	faceH := g.H
	if faceH <= 0 {
		faceH = 1e-6
	}
	faceW := g.W
	if faceW <= 0 {
		faceW = 1e-6
	}

	// Eye openness proxy: vertical eye-to-nose gap against face height.
	// A closed or narrowed eye sits measurably lower relative to the nose.
	earLeft := math.Abs(nose[1]-leftEye[1]) / faceH
	earRight := math.Abs(nose[1]-rightEye[1]) / faceH
	earAvg := (earLeft + earRight) / 2
	fm.SetNum("ear_left", earLeft)
	fm.SetNum("ear_right", earRight)
	fm.SetNum("ear_avg", earAvg)

	// Mouth openness proxy: mouth-corner drop below the nose against mouth
	// width.
	mouthW := math.Hypot(leftMouth[0]-rightMouth[0], leftMouth[1]-rightMouth[1])
	if mouthW <= 0 {
		mouthW = 1e-6
	}
	mouthDrop := (leftMouth[1]+rightMouth[1])/2 - nose[1]
	mar := math.Max(0, mouthDrop) / mouthW
	fm.SetNum("mar", mar)

	// Eyebrow height proxy: eye line offset from the top of the face box.
	eyeLine := (leftEye[1] + rightEye[1]) / 2
	fm.SetNum("eyebrow_height", math.Max(0, eyeLine-g.Y)/faceH)

	fm.SetBool("is_drowsy", earAvg < drowsyEARThreshold)
	fm.SetBool("is_yawning", mar > yawnMARThreshold)

	var sumX, sumY float64
	for _, p := range g.Points {
		sumX += p[0]
		sumY += p[1]
	}
	meanX, meanY := sumX/5, sumY/5
	var varX, varY float64
	for _, p := range g.Points {
		varX += (p[0] - meanX) * (p[0] - meanX)
		varY += (p[1] - meanY) * (p[1] - meanY)
	}
	fm.SetNum("landmark_mean_x", meanX)
	fm.SetNum("landmark_mean_y", meanY)
	fm.SetNum("landmark_std_x", math.Sqrt(varX/5))
	fm.SetNum("landmark_std_y", math.Sqrt(varY/5))

	return fm
}
