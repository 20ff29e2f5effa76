package engage

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// BoosterConfig holds training hyperparameters for a gradient-boosted
// regression tree ensemble. The zero value is not usable; start from
// DefaultBoosterConfig.
type BoosterConfig struct {
	MaxDepth            int     `json:"max_depth"`
	LearningRate        float64 `json:"learning_rate"`
	Rounds              int     `json:"n_estimators"`
	Subsample           float64 `json:"subsample"`
	ColsampleByTree     float64 `json:"colsample_bytree"`
	MinSamplesLeaf      int     `json:"min_samples_leaf"`
	EarlyStoppingRounds int     `json:"early_stopping_rounds"`
	Seed                int64   `json:"random_state"`
}

// DefaultBoosterConfig returns the production training configuration.
func DefaultBoosterConfig() BoosterConfig {
	return BoosterConfig{
		MaxDepth:            8,
		LearningRate:        0.05,
		Rounds:              300,
		Subsample:           0.8,
		ColsampleByTree:     0.8,
		MinSamplesLeaf:      1,
		EarlyStoppingRounds: 20,
		Seed:                42,
	}
}

// treeNode is one node of a regression tree. Leaves have Feature == -1 and
// carry the (shrinkage-scaled) prediction in Value.
type treeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

// eval walks the tree for one sample. Samples with x[Feature] <= Threshold
// descend left.
func (n *treeNode) eval(x []float64) float64 {
	node := n
	for node.Feature >= 0 {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

// Booster is a trained gradient-boosted regression tree ensemble for one
// affective state. Immutable once trained; safe for concurrent Predict.
type Booster struct {
	Base  float64         `json:"base_score"`
	Trees []*treeNode     `json:"trees"`
	Gain  map[int]float64 `json:"feature_gain"`
	Rows  int             `json:"trained_rows"`
	Cfg   BoosterConfig   `json:"config"`
}

// Predict returns the ensemble output for one sample.
func (b *Booster) Predict(x []float64) float64 {
	out := b.Base
	for _, t := range b.Trees {
		out += t.eval(x)
	}
	return out
}

// TrainBooster fits an ensemble to (X, y) with squared-error loss, using
// (Xval, yval) for early stopping when non-empty. Rows and columns are
// subsampled per round from the seeded source, so training is deterministic
// for a given config.
func TrainBooster(X [][]float64, y []float64, Xval [][]float64, yval []float64, cfg BoosterConfig) (*Booster, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("booster: need matching non-empty X and y, got %d and %d rows", len(X), len(y))
	}
	cols := len(X[0])
	if cols == 0 {
		return nil, fmt.Errorf("booster: zero-width feature matrix")
	}

	b := &Booster{
		Base: mean(y),
		Gain: make(map[int]float64),
		Rows: len(X),
		Cfg:  cfg,
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	pred := constants(len(y), b.Base)
	valPred := constants(len(yval), b.Base)

	bestRMSE := math.Inf(1)
	bestRound := 0
	sinceBest := 0

	residuals := make([]float64, len(y))
	for round := 0; round < cfg.Rounds; round++ {
		for i := range y {
			residuals[i] = y[i] - pred[i]
		}

		rows := sampleIndices(rng, len(y), cfg.Subsample)
		feats := sampleIndices(rng, cols, cfg.ColsampleByTree)

		root := buildTree(X, residuals, rows, feats, cfg, 0, b.Gain)
		scaleLeaves(root, cfg.LearningRate)
		b.Trees = append(b.Trees, root)

		for i := range pred {
			pred[i] += root.eval(X[i])
		}
		for i := range valPred {
			valPred[i] += root.eval(Xval[i])
		}

		if len(yval) == 0 {
			continue
		}
		rmse := RMSE(yval, valPred)
		if rmse < bestRMSE {
			bestRMSE = rmse
			bestRound = round
			sinceBest = 0
		} else {
			sinceBest++
			if cfg.EarlyStoppingRounds > 0 && sinceBest >= cfg.EarlyStoppingRounds {
				break
			}
		}
	}

	// Keep only the rounds up to the validation optimum.
	if len(yval) > 0 && bestRound+1 < len(b.Trees) {
		b.Trees = b.Trees[:bestRound+1]
	}
	return b, nil
}

// buildTree grows one regression tree on the residuals, greedily choosing
// the split that most reduces squared error among the sampled features.
// Split gains are accumulated into gain for feature importance reporting.
func buildTree(X [][]float64, residuals []float64, rows, feats []int, cfg BoosterConfig, depth int, gain map[int]float64) *treeNode {
	if depth >= cfg.MaxDepth || len(rows) < 2*cfg.MinSamplesLeaf {
		return leaf(residuals, rows)
	}

	sumT, sumSqT := moments(residuals, rows)
	parentSSE := sumSqT - sumT*sumT/float64(len(rows))

	bestGain := 0.0
	bestFeat := -1
	bestThreshold := 0.0
	var bestLeft, bestRight []int

	order := make([]int, len(rows))
	for _, f := range feats {
		copy(order, rows)
		sort.Slice(order, func(i, j int) bool { return X[order[i]][f] < X[order[j]][f] })

		// Prefix scan: try every boundary between distinct values.
		var sumL, sumSqL float64
		for i := 0; i < len(order)-1; i++ {
			r := residuals[order[i]]
			sumL += r
			sumSqL += r * r
			if X[order[i]][f] == X[order[i+1]][f] {
				continue
			}
			nL := i + 1
			nR := len(order) - nL
			if nL < cfg.MinSamplesLeaf || nR < cfg.MinSamplesLeaf {
				continue
			}
			sseL := sumSqL - sumL*sumL/float64(nL)
			sumR := sumT - sumL
			sseR := (sumSqT - sumSqL) - sumR*sumR/float64(nR)
			g := parentSSE - sseL - sseR
			if g > bestGain {
				bestGain = g
				bestFeat = f
				bestThreshold = X[order[i]][f]
				bestLeft = append(bestLeft[:0], order[:nL]...)
				bestRight = append(bestRight[:0], order[nL:]...)
			}
		}
	}

	if bestFeat < 0 || bestGain <= 0 {
		return leaf(residuals, rows)
	}

	gain[bestFeat] += bestGain

	// Copy the partitions: the shared scratch slices are reused per level.
	left := append([]int(nil), bestLeft...)
	right := append([]int(nil), bestRight...)

	return &treeNode{
		Feature:   bestFeat,
		Threshold: bestThreshold,
		Left:      buildTree(X, residuals, left, feats, cfg, depth+1, gain),
		Right:     buildTree(X, residuals, right, feats, cfg, depth+1, gain),
	}
}

func leaf(residuals []float64, rows []int) *treeNode {
	var sum float64
	for _, i := range rows {
		sum += residuals[i]
	}
	v := 0.0
	if len(rows) > 0 {
		v = sum / float64(len(rows))
	}
	return &treeNode{Feature: -1, Value: v}
}

// scaleLeaves bakes the learning rate into leaf values so prediction is a
// plain sum over trees.
func scaleLeaves(n *treeNode, lr float64) {
	if n == nil {
		return
	}
	if n.Feature < 0 {
		n.Value *= lr
		return
	}
	scaleLeaves(n.Left, lr)
	scaleLeaves(n.Right, lr)
}

// sampleIndices draws ceil(fraction*n) distinct indices without replacement.
// A fraction >= 1 returns all indices in order.
func sampleIndices(rng *rand.Rand, n int, fraction float64) []int {
	if fraction >= 1 || n <= 1 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	k := int(math.Ceil(fraction * float64(n)))
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(n)
	idx := perm[:k]
	sort.Ints(idx)
	return idx
}

func moments(residuals []float64, rows []int) (sum, sumSq float64) {
	for _, i := range rows {
		r := residuals[i]
		sum += r
		sumSq += r * r
	}
	return sum, sumSq
}

func constants(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// RMSE computes the root mean squared error between labels and predictions.
func RMSE(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var sum float64
	for i := range y {
		d := y[i] - pred[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(y)))
}
