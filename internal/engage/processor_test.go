package engage

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// engagedFeatures is a detected facial sub-map used by scripted frames.
func engagedFeatures() FeatureMap {
	fm := FacialDefaults()
	fm.SetBool("face_detected", true)
	fm.SetNum("ear_avg", 0.3)
	return fm
}

// scriptFrames repeats one student detection for n frames.
func scriptFrames(id string, n int) [][]StudentDetection {
	frames := make([][]StudentDetection, n)
	for i := range frames {
		frames[i] = []StudentDetection{{
			ID:      id,
			Region:  Region{0x01},
			CenterX: 0.25,
			CenterY: 0.75,
		}}
	}
	return frames
}

func newTestProcessor(frames [][]StudentDetection, classifier *EngagementClassifier) *EngagementProcessor {
	tracker := NewScriptedTracker(frames...)
	aggregator := NewAggregator(NewStaticDetector(NamespaceFacial, engagedFeatures(), FacialDefaults()))
	return NewEngagementProcessor(DefaultProcessorConfig(), tracker, aggregator, classifier)
}

func TestProcessor_ColdStudentHasNoPredictions(t *testing.T) {
	frames := scriptFrames("s1", WarmFrameCount-1)
	p := newTestProcessor(frames, trainedClassifier(t))

	for i := 0; i < len(frames); i++ {
		res, err := p.ProcessFrame(nil)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if len(res.Students) != 1 {
			t.Fatalf("frame %d: %d students, want 1", i, len(res.Students))
		}
		st := res.Students[0]
		if st.Predictions != nil {
			t.Errorf("frame %d: cold student has predictions", i+1)
		}
		if st.Score != 0 {
			t.Errorf("frame %d: cold student score = %v, want 0", i+1, st.Score)
		}
	}
}

func TestProcessor_WarmsAtThreshold(t *testing.T) {
	frames := scriptFrames("s1", WarmFrameCount+1)
	p := newTestProcessor(frames, trainedClassifier(t))

	var results []*FrameResult
	for range frames {
		res, err := p.ProcessFrame(nil)
		if err != nil {
			t.Fatal(err)
		}
		results = append(results, res)
	}

	cold := results[WarmFrameCount-2].Students[0]
	if cold.Predictions != nil {
		t.Errorf("frame %d should still be cold", WarmFrameCount-1)
	}

	for i := WarmFrameCount - 1; i < len(results); i++ {
		st := results[i].Students[0]
		if st.Predictions == nil {
			t.Fatalf("frame %d: warm student missing predictions", i+1)
		}
		if st.Score < 0 || st.Score > 1 {
			t.Errorf("frame %d: score %v outside [0,1]", i+1, st.Score)
		}
		if st.Seat.Number == 0 {
			t.Errorf("frame %d: seat not assigned", i+1)
		}
	}

	history := p.History("s1")
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2 (one per warm frame)", len(history))
	}
}

func TestProcessor_NoClassifierStillProducesMetrics(t *testing.T) {
	frames := scriptFrames("s1", WarmFrameCount)
	p := newTestProcessor(frames, nil)

	var last *FrameResult
	for range frames {
		res, err := p.ProcessFrame(nil)
		if err != nil {
			t.Fatal(err)
		}
		last = res
	}
	st := last.Students[0]
	if st.Predictions != nil {
		t.Error("predictions present without a classifier")
	}
	if st.Features.Len() == 0 {
		t.Error("warm student should still carry aggregated features")
	}
}

func TestProcessor_Reset(t *testing.T) {
	frames := append(scriptFrames("s1", WarmFrameCount), scriptFrames("s1", WarmFrameCount)...)
	p := newTestProcessor(frames, trainedClassifier(t))

	for i := 0; i < WarmFrameCount; i++ {
		if _, err := p.ProcessFrame(nil); err != nil {
			t.Fatal(err)
		}
	}
	if p.FrameCount() != WarmFrameCount {
		t.Fatalf("FrameCount = %d, want %d", p.FrameCount(), WarmFrameCount)
	}

	p.Reset()
	if p.FrameCount() != 0 {
		t.Errorf("FrameCount after reset = %d, want 0", p.FrameCount())
	}
	if len(p.History("s1")) != 0 {
		t.Errorf("history survived reset")
	}
	if p.BufferedFrames("s1") != 0 {
		t.Errorf("buffer survived reset")
	}

	// The scripted tracker rewinds on reset, so the student must go cold
	// again and re-warm from scratch.
	res, err := p.ProcessFrame(nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Students[0].Predictions != nil {
		t.Error("student still warm after reset")
	}
}

func TestClassMetrics(t *testing.T) {
	tests := []struct {
		name       string
		scores     []float64
		wantMean   float64
		wantCounts [3]int // high, moderate, low
	}{
		{"empty", nil, 0, [3]int{0, 0, 0}},
		{"bands", []float64{0.9, 0.5, 0.1}, 0.5, [3]int{1, 1, 1}},
		{"boundaries are moderate", []float64{0.7, 0.4}, 0.55, [3]int{0, 2, 0}},
		{"all high", []float64{0.8, 0.95}, 0.875, [3]int{2, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mean, high, moderate, low := classMetrics(tt.scores)
			if math.Abs(mean-tt.wantMean) > 1e-9 {
				t.Errorf("mean = %v, want %v", mean, tt.wantMean)
			}
			if high != tt.wantCounts[0] || moderate != tt.wantCounts[1] || low != tt.wantCounts[2] {
				t.Errorf("bands = %d/%d/%d, want %d/%d/%d",
					high, moderate, low, tt.wantCounts[0], tt.wantCounts[1], tt.wantCounts[2])
			}
		})
	}
}

// trainedClassifier fits a small model over the aggregated feature layout
// the static facial detector produces.
func trainedClassifier(t *testing.T) *EngagementClassifier {
	t.Helper()

	agg := NewAggregator(NewStaticDetector(NamespaceFacial, engagedFeatures(), FacialDefaults()))
	frames := make([]FeatureMap, WarmFrameCount)
	for i := range frames {
		frames[i] = agg.ExtractFrameFeatures(nil)
	}
	names := AggregateTemporal(frames).Names()

	rng := rand.New(rand.NewSource(1))
	n := 80
	data := make([]float64, 0, n*len(names))
	labels := map[string][]float64{
		"boredom":     make([]float64, n),
		"engagement":  make([]float64, n),
		"confusion":   make([]float64, n),
		"frustration": make([]float64, n),
	}
	for i := 0; i < n; i++ {
		for range names {
			data = append(data, rng.Float64())
		}
		labels["boredom"][i] = rng.Float64() * 3
		labels["engagement"][i] = rng.Float64() * 3
		labels["confusion"][i] = rng.Float64() * 3
		labels["frustration"][i] = rng.Float64() * 3
	}

	cfg := DefaultBoosterConfig()
	cfg.MaxDepth = 2
	cfg.Rounds = 10

	c := NewEngagementClassifier(cfg)
	table := FeatureTable{Names: names, X: mat.NewDense(n, len(names), data)}
	if _, err := c.Train(table, labels, 0.2); err != nil {
		t.Fatalf("train helper classifier: %v", err)
	}
	return c
}
