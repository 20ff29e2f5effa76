package engage

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// synthTable builds a feature table where each affective state is a known
// function of the features, clipped into the [0,3] label range.
func synthTable(n int, seed int64) (FeatureTable, map[string][]float64) {
	rng := rand.New(rand.NewSource(seed))
	names := []string{"facial_ear_avg_mean", "pose_attention_score_mean", "phone_phone_detected_ratio"}
	data := make([]float64, 0, n*len(names))
	labels := map[string][]float64{
		"boredom":     make([]float64, n),
		"engagement":  make([]float64, n),
		"confusion":   make([]float64, n),
		"frustration": make([]float64, n),
	}
	for i := 0; i < n; i++ {
		ear := rng.Float64()
		attn := rng.Float64()
		phone := rng.Float64()
		data = append(data, ear, attn, phone)

		labels["engagement"][i] = 3 * attn
		labels["boredom"][i] = 3 * phone
		labels["confusion"][i] = 3 * (1 - ear)
		labels["frustration"][i] = 1.5 * phone
	}
	return FeatureTable{Names: names, X: mat.NewDense(n, len(names), data)}, labels
}

func TestEngagementClassifier_UntrainedPredictFails(t *testing.T) {
	c := NewEngagementClassifier(DefaultBoosterConfig())
	_, err := c.PredictSingle([]float64{1, 2, 3})
	if !errors.Is(err, ErrNotTrained) {
		t.Errorf("err = %v, want ErrNotTrained", err)
	}
}

func TestEngagementClassifier_TrainAndPredict(t *testing.T) {
	table, labels := synthTable(250, 9)

	cfg := DefaultBoosterConfig()
	cfg.MaxDepth = 4
	cfg.Rounds = 60

	c := NewEngagementClassifier(cfg)
	metrics, err := c.Train(table, labels, 0.2)
	require.NoError(t, err)
	require.True(t, c.IsTrained())

	for _, state := range AffectiveStates {
		m, ok := metrics[state]
		require.True(t, ok, "missing metrics for %s", state)
		assert.Less(t, m.ValidationRMSE, 1.0, "validation RMSE too high for %s", state)
		assert.Equal(t, 200, m.TrainSamples)
		assert.Equal(t, 50, m.ValSamples)
	}

	// A high-attention, no-phone sample must score above a distracted one.
	engaged, err := c.PredictSingle([]float64{0.9, 0.95, 0.0})
	require.NoError(t, err)
	distracted, err := c.PredictSingle([]float64{0.2, 0.1, 0.9})
	require.NoError(t, err)

	assert.Greater(t, EngagementScore(engaged), EngagementScore(distracted))
	for state, v := range engaged {
		assert.GreaterOrEqual(t, v, PredictionMin, "%s below range", state)
		assert.LessOrEqual(t, v, PredictionMax, "%s above range", state)
	}
}

func TestEngagementClassifier_PartialStates(t *testing.T) {
	table, labels := synthTable(120, 4)
	delete(labels, "frustration")

	c := NewEngagementClassifier(DefaultBoosterConfig())
	metrics, err := c.Train(table, labels, 0.2)
	require.NoError(t, err)

	if _, ok := metrics["frustration"]; ok {
		t.Error("metrics present for state with no labels")
	}

	preds, err := c.PredictSingle([]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	if _, ok := preds["frustration"]; ok {
		t.Error("prediction present for untrained state")
	}
	assert.Len(t, preds, 3)
}

func TestEngagementScore(t *testing.T) {
	tests := []struct {
		name        string
		predictions map[string]float64
		want        float64
	}{
		{"empty set scores neutral", map[string]float64{}, 0.6},
		{
			"fully engaged",
			map[string]float64{"engagement": 3, "boredom": 0, "confusion": 0, "frustration": 0},
			1.0,
		},
		{
			"fully disengaged",
			map[string]float64{"engagement": 0, "boredom": 3, "confusion": 3, "frustration": 3},
			0.0,
		},
		{
			"mixed",
			map[string]float64{"engagement": 1.5, "boredom": 1.5, "confusion": 1.5, "frustration": 1.5},
			0.5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EngagementScore(tt.predictions)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EngagementScore = %v, want %v", got, tt.want)
			}
		})
	}
}

// Sweeping one state while the others stay fixed: the score must rise with
// engagement and fall with each negative state.
func TestEngagementScoreMonotonic(t *testing.T) {
	for _, state := range AffectiveStates {
		t.Run(state, func(t *testing.T) {
			prev := math.Inf(-1)
			if state != "engagement" {
				prev = math.Inf(1)
			}
			for v := 0.0; v <= PredictionMax+1e-9; v += 0.25 {
				preds := map[string]float64{
					"boredom":     1.5,
					"engagement":  1.5,
					"confusion":   1.5,
					"frustration": 1.5,
				}
				preds[state] = v
				got := EngagementScore(preds)
				if got < 0 || got > 1 {
					t.Fatalf("%s=%.2f: score %v outside [0,1]", state, v, got)
				}
				if state == "engagement" {
					if got < prev {
						t.Fatalf("engagement=%.2f: score %v < previous %v", v, got, prev)
					}
				} else if got > prev {
					t.Fatalf("%s=%.2f: score %v > previous %v", state, v, got, prev)
				}
				prev = got
			}
		})
	}
}

func TestEngagementClassifier_SaveLoadRoundtrip(t *testing.T) {
	table, labels := synthTable(150, 21)

	cfg := DefaultBoosterConfig()
	cfg.MaxDepth = 3
	cfg.Rounds = 30

	c := NewEngagementClassifier(cfg)
	_, err := c.Train(table, labels, 0.2)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, c.Save(dir))

	loaded := NewEngagementClassifier(DefaultBoosterConfig())
	require.NoError(t, loaded.Load(dir))
	require.True(t, loaded.IsTrained())
	assert.Equal(t, c.FeatureNames(), loaded.FeatureNames())

	sample := []float64{0.3, 0.8, 0.1}
	want, err := c.PredictSingle(sample)
	require.NoError(t, err)
	got, err := loaded.PredictSingle(sample)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for state := range want {
		assert.InDelta(t, want[state], got[state], 1e-12, "state %s", state)
	}
}

func TestEngagementClassifier_LoadMissingDir(t *testing.T) {
	c := NewEngagementClassifier(DefaultBoosterConfig())
	err := c.Load(t.TempDir() + "/does-not-exist")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("err = %v, want ErrModelNotFound", err)
	}
}

func TestEngagementClassifier_FeatureImportance(t *testing.T) {
	table, labels := synthTable(150, 33)
	c := NewEngagementClassifier(DefaultBoosterConfig())
	_, err := c.Train(table, labels, 0.2)
	require.NoError(t, err)

	importance, err := c.FeatureImportance("engagement")
	require.NoError(t, err)
	require.NotEmpty(t, importance)

	// Engagement is a pure function of attention, so attention must lead.
	assert.Equal(t, "pose_attention_score_mean", importance[0].Name)
	for i := 1; i < len(importance); i++ {
		assert.GreaterOrEqual(t, importance[i-1].Gain, importance[i].Gain)
	}

	_, err = c.FeatureImportance("nonsense")
	assert.Error(t, err)
}
