package engage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/classlens-data/classlens/internal/monitoring"
)

// AffectiveStates lists the predicted dimensions in canonical order. Each is
// an ordinal 0-3 label in the training data.
var AffectiveStates = []string{"boredom", "engagement", "confusion", "frustration"}

// Engagement score weights. High engagement plus low boredom, confusion and
// frustration reads as a good score.
const (
	weightEngagement  = 0.4
	weightBoredom     = 0.3
	weightConfusion   = 0.15
	weightFrustration = 0.15

	// PredictionMin and PredictionMax bound every per-state prediction.
	PredictionMin = 0.0
	PredictionMax = 3.0
)

// ErrNotTrained is returned when prediction is requested before the
// classifier has been trained or loaded.
var ErrNotTrained = errors.New("classifier not trained")

// ErrModelNotFound is returned by Load when the model directory or its
// required metadata is missing.
var ErrModelNotFound = errors.New("model directory not found")

// FeatureTable pairs an ordered feature-name list with the sample matrix
// whose columns follow that order. Produced by the CSV feature reader and
// consumed by Train.
type FeatureTable struct {
	Names []string
	X     *mat.Dense
}

// StateMetrics reports the training outcome for one affective state.
type StateMetrics struct {
	ValidationRMSE float64 `json:"validation_rmse"`
	Rounds         int     `json:"rounds"`
	TrainSamples   int     `json:"train_samples"`
	ValSamples     int     `json:"val_samples"`
}

// FeatureImportance is one entry of a gain-ordered importance report.
type FeatureImportance struct {
	Name string  `json:"name"`
	Gain float64 `json:"gain"`
}

// EngagementClassifier predicts boredom, engagement, confusion and
// frustration with one independently trained regressor per state, sharing a
// single feature scaler and a frozen feature-name ordering. The model set is
// immutable once trained or loaded; Train and Load must not run concurrently
// with Predict on the same instance (the internal lock serialises them, but
// callers should still treat mutation as exclusive).
type EngagementClassifier struct {
	mu           sync.RWMutex
	cfg          BoosterConfig
	models       map[string]*Booster
	scaler       *StandardScaler
	featureNames []string
	trained      bool
}

// NewEngagementClassifier creates an untrained classifier with the given
// training configuration.
func NewEngagementClassifier(cfg BoosterConfig) *EngagementClassifier {
	return &EngagementClassifier{
		cfg:    cfg,
		models: make(map[string]*Booster),
		scaler: NewStandardScaler(),
	}
}

// IsTrained reports whether the classifier can predict.
func (c *EngagementClassifier) IsTrained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trained
}

// FeatureNames returns the column ordering frozen at train or load time.
func (c *EngagementClassifier) FeatureNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.featureNames...)
}

// Train fits one regressor per affective state present in labels, plus the
// shared scaler. States absent from labels are skipped with a warning and
// stay unavailable (predictions for them are simply omitted). Each state
// draws its own validation split from the same seeded source, so the splits
// are re-derived per state rather than shared; downstream consumers depend
// on the exact numbers this produces, so do not consolidate the splits.
func (c *EngagementClassifier) Train(table FeatureTable, labels map[string][]float64, validationSplit float64) (map[string]StateMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, cols := table.X.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("train: empty feature matrix (%dx%d)", rows, cols)
	}
	if len(table.Names) != cols {
		return nil, fmt.Errorf("train: %d feature names for %d columns", len(table.Names), cols)
	}
	if validationSplit < 0 || validationSplit >= 1 {
		return nil, fmt.Errorf("train: validation split %v out of range [0,1)", validationSplit)
	}

	c.featureNames = append([]string(nil), table.Names...)

	// One scaler fit on the full matrix, shared across every state.
	c.scaler.Fit(table.X)
	scaled, err := c.scaler.Transform(table.X)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	samples := denseRows(scaled)

	metrics := make(map[string]StateMetrics)
	c.models = make(map[string]*Booster)

	for _, state := range AffectiveStates {
		y, ok := labels[state]
		if !ok {
			monitoring.Logf("engage: no labels for %s, skipping", state)
			continue
		}
		if len(y) != rows {
			return nil, fmt.Errorf("train: %d labels for %s, want %d", len(y), state, rows)
		}

		trainIdx, valIdx := splitIndices(rows, validationSplit, c.cfg.Seed)
		Xtrain, ytrain := gather(samples, y, trainIdx)
		Xval, yval := gather(samples, y, valIdx)

		model, err := TrainBooster(Xtrain, ytrain, Xval, yval, c.cfg)
		if err != nil {
			return nil, fmt.Errorf("train %s: %w", state, err)
		}
		c.models[state] = model

		m := StateMetrics{
			Rounds:       len(model.Trees),
			TrainSamples: len(trainIdx),
			ValSamples:   len(valIdx),
		}
		if len(valIdx) > 0 {
			preds := make([]float64, len(valIdx))
			for i, x := range Xval {
				preds[i] = clip(model.Predict(x), PredictionMin, PredictionMax)
			}
			m.ValidationRMSE = RMSE(yval, preds)
		}
		metrics[state] = m
	}

	c.trained = true
	return metrics, nil
}

// Predict applies the shared scaler and every trained regressor to the
// sample matrix. Predictions are clipped to [0,3]. States with no trained
// model are omitted from the result. Returns ErrNotTrained before the first
// successful Train or Load.
func (c *EngagementClassifier) Predict(X *mat.Dense) (map[string][]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.trained {
		return nil, ErrNotTrained
	}

	scaled, err := c.scaler.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	samples := denseRows(scaled)

	predictions := make(map[string][]float64, len(c.models))
	for state, model := range c.models {
		out := make([]float64, len(samples))
		for i, x := range samples {
			out[i] = clip(model.Predict(x), PredictionMin, PredictionMax)
		}
		predictions[state] = out
	}
	return predictions, nil
}

// PredictSingle predicts every available state for one feature vector.
func (c *EngagementClassifier) PredictSingle(vector []float64) (map[string]float64, error) {
	X := mat.NewDense(1, len(vector), append([]float64(nil), vector...))
	preds, err := c.Predict(X)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(preds))
	for state, p := range preds {
		out[state] = p[0]
	}
	return out, nil
}

// EngagementScore reduces a prediction set to a single [0,1] score.
// A state absent from predictions reads as 0 (its neutral value), so an
// empty set scores 0.6: full credit for the three inverted dimensions,
// none for engagement.
func EngagementScore(predictions map[string]float64) float64 {
	engagement := predictions["engagement"] / PredictionMax
	boredomInv := 1 - predictions["boredom"]/PredictionMax
	confusionInv := 1 - predictions["confusion"]/PredictionMax
	frustrationInv := 1 - predictions["frustration"]/PredictionMax

	return weightEngagement*engagement +
		weightBoredom*boredomInv +
		weightConfusion*confusionInv +
		weightFrustration*frustrationInv
}

// FeatureImportance returns the gain-ordered feature importances for one
// state's regressor. Fails when that state has no trained model.
func (c *EngagementClassifier) FeatureImportance(state string) ([]FeatureImportance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	model, ok := c.models[state]
	if !ok {
		return nil, fmt.Errorf("no model trained for %s", state)
	}

	out := make([]FeatureImportance, 0, len(model.Gain))
	for feat, gain := range model.Gain {
		name := fmt.Sprintf("f%d", feat)
		if feat >= 0 && feat < len(c.featureNames) {
			name = c.featureNames[feat]
		}
		out = append(out, FeatureImportance{Name: name, Gain: gain})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Gain != out[j].Gain {
			return out[i].Gain > out[j].Gain
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// denseRows copies a gonum matrix into row slices for the tree code.
func denseRows(X *mat.Dense) [][]float64 {
	rows, cols := X.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		mat.Row(row, i, X)
		out[i] = row
	}
	return out
}

// splitIndices shuffles 0..n-1 with the given seed and carves off the
// validation fraction from the front.
func splitIndices(n int, validationSplit float64, seed int64) (train, val []int) {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	nVal := int(float64(n) * validationSplit)
	if validationSplit > 0 && nVal == 0 && n > 1 {
		nVal = 1
	}
	val = append([]int(nil), perm[:nVal]...)
	train = append([]int(nil), perm[nVal:]...)
	sort.Ints(val)
	sort.Ints(train)
	return train, val
}

func gather(samples [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	X := make([][]float64, len(idx))
	labels := make([]float64, len(idx))
	for i, j := range idx {
		X[i] = samples[j]
		labels[i] = y[j]
	}
	return X, labels
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// --- Persistence ---

// modelMetadata is the metadata.json document persisted with a model set.
type modelMetadata struct {
	FeatureNames []string      `json:"feature_names"`
	Config       BoosterConfig `json:"config"`
	IsTrained    bool          `json:"is_trained"`
}

const (
	metadataFile = "metadata.json"
	scalerFile   = "scaler.json"
)

func stateModelFile(state string) string {
	return state + "_model.json"
}

// Save persists the trained regressors, the shared scaler and the metadata
// (feature ordering, training config, trained flag) into dir as one unit.
func (c *EngagementClassifier) Save(dir string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	for state, model := range c.models {
		if err := writeJSON(filepath.Join(dir, stateModelFile(state)), model); err != nil {
			return fmt.Errorf("save %s model: %w", state, err)
		}
	}
	if err := writeJSON(filepath.Join(dir, scalerFile), c.scaler); err != nil {
		return fmt.Errorf("save scaler: %w", err)
	}
	meta := modelMetadata{
		FeatureNames: c.featureNames,
		Config:       c.cfg,
		IsTrained:    c.trained,
	}
	if err := writeJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// Load restores a model set from dir. Fails with ErrModelNotFound when the
// directory, metadata or scaler is missing; tolerates missing per-state
// model files (those states stay unavailable). The feature-name ordering is
// restored exactly as saved so vectorisation stays consistent.
func (c *EngagementClassifier) Load(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", ErrModelNotFound, dir)
	}

	var meta modelMetadata
	if err := readJSON(filepath.Join(dir, metadataFile), &meta); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: missing %s in %s", ErrModelNotFound, metadataFile, dir)
		}
		return fmt.Errorf("load metadata: %w", err)
	}

	scaler := NewStandardScaler()
	if err := readJSON(filepath.Join(dir, scalerFile), scaler); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: missing %s in %s", ErrModelNotFound, scalerFile, dir)
		}
		return fmt.Errorf("load scaler: %w", err)
	}

	models := make(map[string]*Booster)
	for _, state := range AffectiveStates {
		path := filepath.Join(dir, stateModelFile(state))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		model := &Booster{}
		if err := readJSON(path, model); err != nil {
			return fmt.Errorf("load %s model: %w", state, err)
		}
		models[state] = model
	}

	c.featureNames = meta.FeatureNames
	c.cfg = meta.Config
	c.trained = meta.IsTrained
	c.scaler = scaler
	c.models = models
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
