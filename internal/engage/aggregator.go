package engage

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/classlens-data/classlens/internal/monitoring"
)

// Aggregation suffixes applied to numeric and boolean source keys.
const (
	suffixMean  = "_mean"
	suffixStd   = "_std"
	suffixMax   = "_max"
	suffixMin   = "_min"
	suffixRatio = "_ratio"

	// FrameCountKey is the aggregated feature recording how many frames
	// contributed to the window.
	FrameCountKey = "frame_count"
)

// Aggregator merges per-frame detector outputs into flat namespaced
// FeatureMaps and aggregates them over time into fixed-order numeric
// vectors. It is stateless per call; only the constituent detectors may
// hold temporal state, which Reset propagates to.
type Aggregator struct {
	detectors []Detector
}

// NewAggregator builds an aggregator over the given detector adapters.
// Detectors are invoked in the order given; feature key namespacing makes
// the order irrelevant to the output.
func NewAggregator(detectors ...Detector) *Aggregator {
	return &Aggregator{detectors: detectors}
}

// ExtractFrameFeatures runs every detector adapter on the region and
// concatenates the namespaced sub-maps into one flat FeatureMap. An adapter
// that fails or detects nothing contributes its fixed default sub-map, so
// the key set of the result is identical for every frame of a run.
func (a *Aggregator) ExtractFrameFeatures(region Region) FeatureMap {
	features := NewFeatureMap()
	for _, d := range a.detectors {
		sub, err := d.Detect(region)
		if err != nil {
			if err != ErrNoDetection {
				monitoring.Logf("engage: %s detector degraded, using defaults: %v", d.Namespace(), err)
			}
			features.Merge(d.Namespace(), d.Defaults())
			continue
		}
		features.Merge(d.Namespace(), sub)
	}
	return features
}

// ExtractVideoFeatures extracts the raw per-frame FeatureMap sequence for a
// clip, one map per region in order. Used when the caller wants unaggregated
// samples; bulk dataset extraction aggregates afterwards via
// ExtractAggregatedFeatures.
func (a *Aggregator) ExtractVideoFeatures(regions []Region) []FeatureMap {
	frames := make([]FeatureMap, len(regions))
	for i, r := range regions {
		frames[i] = a.ExtractFrameFeatures(r)
	}
	return frames
}

// ExtractAggregatedFeatures extracts per-frame features for the clip and
// aggregates them over time. This is the form the classifier consumes and
// must match between training-time and inference-time construction.
func (a *Aggregator) ExtractAggregatedFeatures(regions []Region) FeatureMap {
	return AggregateTemporal(a.ExtractVideoFeatures(regions))
}

// AggregateTemporal reduces a frame sequence to temporal statistics: for
// every numeric key the mean, sample standard deviation, max and min
// (std is 0 for the single-frame degenerate case); for every boolean key
// the fraction of frames where it was true; plus a frame_count field.
// Empty numeric or boolean key subsets are fine; an empty frame sequence
// yields an empty map.
func AggregateTemporal(frames []FeatureMap) FeatureMap {
	aggregated := NewFeatureMap()
	if len(frames) == 0 {
		return aggregated
	}

	for _, key := range numericKeys(frames) {
		values := make([]float64, 0, len(frames))
		for _, f := range frames {
			if v, ok := f.Nums[key]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		aggregated.SetNum(key+suffixMean, stat.Mean(values, nil))
		if len(values) > 1 {
			aggregated.SetNum(key+suffixStd, stat.StdDev(values, nil))
		} else {
			aggregated.SetNum(key+suffixStd, 0)
		}
		aggregated.SetNum(key+suffixMax, floats.Max(values))
		aggregated.SetNum(key+suffixMin, floats.Min(values))
	}

	for _, key := range booleanKeys(frames) {
		trueCount := 0
		for _, f := range frames {
			if f.Bools[key] {
				trueCount++
			}
		}
		aggregated.SetNum(key+suffixRatio, float64(trueCount)/float64(len(frames)))
	}

	aggregated.SetNum(FrameCountKey, float64(len(frames)))
	return aggregated
}

// FeatureNames returns the ordered feature name list for a sample map.
// Train-time and inference-time callers must pass the same sample shape to
// obtain matching vector layouts; the order is purely lexicographic.
func (a *Aggregator) FeatureNames(sample FeatureMap) []string {
	return sample.Names()
}

// ToVector converts features to a numeric vector in the given name order,
// substituting 0.0 for any absent name.
func (a *Aggregator) ToVector(features FeatureMap, names []string) []float64 {
	return ToVector(features, names)
}

// Reset clears temporal state held by any constituent detector.
func (a *Aggregator) Reset() {
	for _, d := range a.detectors {
		d.Reset()
	}
}

// numericKeys collects the union of numeric keys across frames, sorted.
func numericKeys(frames []FeatureMap) []string {
	seen := make(map[string]struct{})
	for _, f := range frames {
		for k := range f.Nums {
			seen[k] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// booleanKeys collects the union of boolean keys across frames, sorted.
func booleanKeys(frames []FeatureMap) []string {
	seen := make(map[string]struct{})
	for _, f := range frames {
		for k := range f.Bools {
			seen[k] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
