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
	// COCO class index for "cell phone" in YOLO models.
	cellPhoneClass = 67

	phoneScoreThreshold = 0.35
	phoneInputSize      = 640
)

// PhoneDetector finds cell phones in student regions with a YOLO ONNX model
// through OpenCV's DNN module.
type PhoneDetector struct {
	mu  sync.Mutex
	net gocv.Net
}

// NewPhoneDetector loads the YOLO ONNX model at modelPath.
func NewPhoneDetector(modelPath string) (*PhoneDetector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("phone model not found: %s", modelPath)
	}
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load phone model: %s", modelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &PhoneDetector{net: net}, nil
}

func (d *PhoneDetector) Namespace() string { return engage.NamespacePhone }

func (d *PhoneDetector) Defaults() engage.FeatureMap { return engage.PhoneDefaults() }

func (d *PhoneDetector) Reset() {}

func (d *PhoneDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// Detect runs the model over the region and folds every cell-phone hit into
// the phone feature set. A region with no phone is a valid result, not
// ErrNoDetection: absence of a phone is a signal the models use.
func (d *PhoneDetector) Detect(region engage.Region) (engage.FeatureMap, error) {
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

	blob := gocv.BlobFromImage(img, 1.0/255.0,
		image.Pt(phoneInputSize, phoneInputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	// Box sizes come back in blob coordinates, so the area ratio is taken
	// against the blob, not the source region.
	hits := parsePhoneHits(out)
	return phoneFeatures(hits, float64(phoneInputSize*phoneInputSize)), nil
}

// phoneHit is one cell-phone detection scaled back to region pixels.
type phoneHit struct {
	Confidence float64
	Area       float64
}

// parsePhoneHits walks YOLO output rows of the form
// [cx, cy, w, h, objectness, class scores...].
func parsePhoneHits(out gocv.Mat) []phoneHit {
	// Outputs arrive as 1xNxC; flatten to NxC for row access.
	rows := out.Total() / out.Size()[len(out.Size())-1]
	cols := out.Size()[len(out.Size())-1]
	flat := out.Reshape(1, rows)
	defer flat.Close()

	var hits []phoneHit
	for r := 0; r < rows; r++ {
		objectness := float64(flat.GetFloatAt(r, 4))
		if objectness < phoneScoreThreshold {
			continue
		}
		classCol := 5 + cellPhoneClass
		if classCol >= cols {
			continue
		}
		score := objectness * float64(flat.GetFloatAt(r, classCol))
		if score < phoneScoreThreshold {
			continue
		}
		w := float64(flat.GetFloatAt(r, 2))
		h := float64(flat.GetFloatAt(r, 3))
		hits = append(hits, phoneHit{Confidence: score, Area: w * h})
	}
	return hits
}

func phoneFeatures(hits []phoneHit, regionArea float64) engage.FeatureMap {
	fm := engage.NewFeatureMap()
	if len(hits) == 0 {
		fm.SetBool("phone_detected", false)
		fm.SetNum("phone_confidence", 0)
		fm.SetNum("phone_count", 0)
		fm.SetNum("phone_area_ratio", 0)
		return fm
	}

	var maxConf, totalArea float64
	for _, h := range hits {
		if h.Confidence > maxConf {
			maxConf = h.Confidence
		}
		totalArea += h.Area
	}
	if regionArea <= 0 {
		regionArea = 1
	}

	fm.SetBool("phone_detected", true)
	fm.SetNum("phone_confidence", maxConf)
	fm.SetNum("phone_count", float64(len(hits)))
	fm.SetNum("phone_area_ratio", totalArea/regionArea)
	return fm
}
