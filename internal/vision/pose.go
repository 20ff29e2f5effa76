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

// Gaze angle thresholds in degrees for the directional flags.
const (
	yawLookThreshold   = 20.0
	pitchLookThreshold = 15.0
	engagedAttention   = 0.5
)

// canonicalFacePoints is a rough metric 3D model of the five YuNet
// landmarks (right eye, left eye, nose tip, right mouth corner, left mouth
// corner) centred on the nose, in millimetres.
var canonicalFacePoints = []gocv.Point3f{
	{X: 30.0, Y: -30.0, Z: -30.0},
	{X: -30.0, Y: -30.0, Z: -30.0},
	{X: 0.0, Y: 0.0, Z: 0.0},
	{X: 25.0, Y: 30.0, Z: -30.0},
	{X: -25.0, Y: 30.0, Z: -30.0},
}

// PoseDetector estimates head orientation from the same YuNet landmarks the
// facial detector uses, solving a perspective-n-point problem against a
// canonical face model.
type PoseDetector struct {
	mu       sync.Mutex
	detector gocv.FaceDetectorYN
}

// NewPoseDetector loads the YuNet ONNX model at modelPath.
func NewPoseDetector(modelPath string) (*PoseDetector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("face model not found: %s", modelPath)
	}
	detector := gocv.NewFaceDetectorYNWithParams(
		modelPath, "", image.Pt(320, 320), 0.6, 0.3, 5000,
		int(gocv.NetBackendDefault), int(gocv.NetTargetCPU),
	)
	return &PoseDetector{detector: detector}, nil
}

func (d *PoseDetector) Namespace() string { return engage.NamespacePose }

func (d *PoseDetector) Defaults() engage.FeatureMap { return engage.PoseDefaults() }

func (d *PoseDetector) Reset() {}

func (d *PoseDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}

// Detect estimates pitch, yaw and roll for the largest face in the region
// and derives the attention features from them.
func (d *PoseDetector) Detect(region engage.Region) (engage.FeatureMap, error) {
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

	row := largestFaceRow(faces)
	imagePoints := make([]gocv.Point2f, 5)
	for i := 0; i < 5; i++ {
		imagePoints[i] = gocv.Point2f{
			X: faces.GetFloatAt(row, 4+i*2),
			Y: faces.GetFloatAt(row, 5+i*2),
		}
	}

	pitch, yaw, roll, err := solveHeadPose(imagePoints, img.Cols(), img.Rows())
	if err != nil {
		return engage.FeatureMap{}, err
	}
	return poseFeatures(pitch, yaw, roll), nil
}

// solveHeadPose runs solvePnP against the canonical face model using a
// pinhole camera approximated from the image size.
func solveHeadPose(imagePoints []gocv.Point2f, imgW, imgH int) (pitch, yaw, roll float64, err error) {
	objPts := gocv.NewPoint3fVectorFromPoints(canonicalFacePoints)
	defer objPts.Close()
	imgPts := gocv.NewPoint2fVectorFromPoints(imagePoints)
	defer imgPts.Close()

	focal := float64(imgW)
	cx, cy := float64(imgW)/2, float64(imgH)/2
	camera := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer camera.Close()
	camera.SetDoubleAt(0, 0, focal)
	camera.SetDoubleAt(0, 2, cx)
	camera.SetDoubleAt(1, 1, focal)
	camera.SetDoubleAt(1, 2, cy)
	camera.SetDoubleAt(2, 2, 1)

	dist := gocv.NewMat()
	defer dist.Close()
	rvec := gocv.NewMat()
	defer rvec.Close()
	tvec := gocv.NewMat()
	defer tvec.Close()

	if ok := gocv.SolvePnP(objPts, imgPts, camera, dist, &rvec, &tvec, false, 0); !ok {
		return 0, 0, 0, fmt.Errorf("head pose estimation failed")
	}

	rot := gocv.NewMat()
	defer rot.Close()
	gocv.Rodrigues(rvec, &rot)

	// Euler angles from the rotation matrix, in degrees.
	r00 := rot.GetDoubleAt(0, 0)
	r10 := rot.GetDoubleAt(1, 0)
	r20 := rot.GetDoubleAt(2, 0)
	r21 := rot.GetDoubleAt(2, 1)
	r22 := rot.GetDoubleAt(2, 2)

	sy := math.Hypot(r00, r10)
	pitch = math.Atan2(r21, r22) * 180 / math.Pi
	yaw = math.Atan2(-r20, sy) * 180 / math.Pi
	roll = math.Atan2(r10, r00) * 180 / math.Pi
	return pitch, yaw, roll, nil
}

// poseFeatures maps head angles into the pose feature set. Attention decays
// linearly with gaze deviation from the camera axis.
func poseFeatures(pitch, yaw, roll float64) engage.FeatureMap {
	fm := engage.NewFeatureMap()
	fm.SetNum("pitch", pitch)
	fm.SetNum("yaw", yaw)
	fm.SetNum("roll", roll)

	deviation := math.Hypot(yaw/90, pitch/90)
	attention := math.Max(0, 1-deviation)
	fm.SetNum("attention_score", attention)
	fm.SetBool("is_engaged", attention > engagedAttention)
	fm.SetBool("looking_left", yaw < -yawLookThreshold)
	fm.SetBool("looking_right", yaw > yawLookThreshold)
	fm.SetBool("looking_up", pitch < -pitchLookThreshold)
	fm.SetBool("looking_down", pitch > pitchLookThreshold)
	return fm
}
