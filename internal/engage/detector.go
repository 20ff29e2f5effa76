package engage

import "errors"

// Region is an encoded image crop of one student, as produced by the
// tracker. The core never decodes pixels itself; detector adapters own
// whatever decoding their backing model needs.
type Region []byte

// ErrNoDetection is returned by a detector adapter when the frame contains
// nothing for it to measure. This is a normal per-frame condition, not a
// failure: the aggregator substitutes the adapter's default sub-map.
var ErrNoDetection = errors.New("no detection in frame")

// Detector is the adapter interface for a single feature extraction backend
// (facial metrics, head pose, hand activity, phone usage). Implementations
// may wrap heavyweight vision models or be entirely scripted for tests.
type Detector interface {
	// Namespace returns the feature key prefix for this adapter
	// (e.g. "facial"); keys are stored as "<namespace>_<key>".
	Namespace() string

	// Detect extracts features from one region. Returns ErrNoDetection
	// when the region holds nothing to measure; any other error means the
	// adapter itself is degraded (e.g. its backing model failed to load).
	// Either way the caller falls back to Defaults().
	Detect(region Region) (FeatureMap, error)

	// Defaults returns the adapter's fixed default sub-map. It must cover
	// the complete key set a successful Detect emits, so the frame-level
	// key set is stable whether or not the adapter fired.
	Defaults() FeatureMap

	// Reset clears any internal temporal state (e.g. hand movement
	// history). Adapters without state implement it as a no-op.
	Reset()
}

// FacialDefaults is the facial namespace sub-map used when no face is
// detected or the facial model is unavailable.
func FacialDefaults() FeatureMap {
	f := NewFeatureMap()
	f.SetBool("face_detected", false)
	f.SetNum("ear_left", 0)
	f.SetNum("ear_right", 0)
	f.SetNum("ear_avg", 0)
	f.SetNum("mar", 0)
	f.SetNum("eyebrow_height", 0)
	f.SetBool("is_drowsy", false)
	f.SetBool("is_yawning", false)
	f.SetNum("landmark_mean_x", 0)
	f.SetNum("landmark_mean_y", 0)
	f.SetNum("landmark_std_x", 0)
	f.SetNum("landmark_std_y", 0)
	return f
}

// PoseDefaults is the head-pose namespace sub-map used when pose estimation
// produced nothing for the frame.
func PoseDefaults() FeatureMap {
	f := NewFeatureMap()
	f.SetNum("pitch", 0)
	f.SetNum("yaw", 0)
	f.SetNum("roll", 0)
	f.SetNum("attention_score", 0)
	f.SetBool("is_engaged", false)
	f.SetBool("looking_left", false)
	f.SetBool("looking_right", false)
	f.SetBool("looking_up", false)
	f.SetBool("looking_down", false)
	return f
}

// HandDefaults is the hand namespace sub-map. No visible hands reads as
// resting, matching the behaviour of the hand detector itself.
func HandDefaults() FeatureMap {
	f := NewFeatureMap()
	f.SetNum("hands_detected", 0)
	f.SetBool("left_hand_detected", false)
	f.SetBool("right_hand_detected", false)
	f.SetBool("is_writing", false)
	f.SetBool("is_hand_raised", false)
	f.SetBool("is_fidgeting", false)
	f.SetBool("is_resting", true)
	f.SetNum("movement_velocity", 0)
	f.SetNum("hand_height", 0)
	return f
}

// PhoneDefaults is the phone namespace sub-map used when no phone is
// detected. The phone bounding box is deliberately not a feature.
func PhoneDefaults() FeatureMap {
	f := NewFeatureMap()
	f.SetBool("phone_detected", false)
	f.SetNum("phone_confidence", 0)
	f.SetNum("phone_count", 0)
	f.SetNum("phone_area_ratio", 0)
	return f
}

// StaticDetector is a Detector that returns a fixed FeatureMap for every
// region. It backs tests and dev-mode pipelines where no vision models are
// available, and doubles as the "unavailable adapter" stand-in.
type StaticDetector struct {
	NS       string
	Features FeatureMap
	Fallback FeatureMap
	Err      error // returned by Detect when set
}

// NewStaticDetector returns a StaticDetector emitting the given features.
func NewStaticDetector(namespace string, features, defaults FeatureMap) *StaticDetector {
	return &StaticDetector{NS: namespace, Features: features, Fallback: defaults}
}

func (d *StaticDetector) Namespace() string { return d.NS }

func (d *StaticDetector) Detect(region Region) (FeatureMap, error) {
	if d.Err != nil {
		return FeatureMap{}, d.Err
	}
	return d.Features, nil
}

func (d *StaticDetector) Defaults() FeatureMap { return d.Fallback }

func (d *StaticDetector) Reset() {}
