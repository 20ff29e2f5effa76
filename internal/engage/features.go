package engage

import "sort"

// Feature namespaces. Every key emitted by a detector adapter is prefixed
// with its namespace so keys from different adapters never collide.
const (
	NamespaceFacial = "facial"
	NamespacePose   = "pose"
	NamespaceHand   = "hand"
	NamespacePhone  = "phone"
)

// FeatureMap holds the per-frame behavioural signals for one student region.
// Numeric and boolean features live in separate key spaces because they
// aggregate differently over time: numerics get mean/std/max/min, booleans
// get a true-ratio. Within one pipeline run a detector always emits the same
// key set for its namespace (missing detections produce default-valued keys,
// never absent keys) so downstream vectorisation stays positional.
type FeatureMap struct {
	Nums  map[string]float64
	Bools map[string]bool
}

// NewFeatureMap returns an empty FeatureMap with both key spaces allocated.
func NewFeatureMap() FeatureMap {
	return FeatureMap{
		Nums:  make(map[string]float64),
		Bools: make(map[string]bool),
	}
}

// SetNum records a numeric feature.
func (f FeatureMap) SetNum(key string, v float64) {
	f.Nums[key] = v
}

// SetBool records a boolean feature.
func (f FeatureMap) SetBool(key string, v bool) {
	f.Bools[key] = v
}

// Len returns the total number of features across both key spaces.
func (f FeatureMap) Len() int {
	return len(f.Nums) + len(f.Bools)
}

// Merge copies every feature from other into f, prefixing each key with
// "<namespace>_". Used by the aggregator to flatten per-detector sub-maps
// into one namespaced map.
func (f FeatureMap) Merge(namespace string, other FeatureMap) {
	for k, v := range other.Nums {
		f.Nums[namespace+"_"+k] = v
	}
	for k, v := range other.Bools {
		f.Bools[namespace+"_"+k] = v
	}
}

// Names returns every feature key (numeric and boolean) sorted
// lexicographically. The ordering is derived purely from key names, never
// from insertion order: two FeatureMaps with identical key sets always
// produce identical name sequences.
func (f FeatureMap) Names() []string {
	names := make([]string, 0, f.Len())
	for k := range f.Nums {
		names = append(names, k)
	}
	for k := range f.Bools {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the numeric value of a feature by name, with booleans
// mapped to 0/1. The second return reports whether the name was present.
func (f FeatureMap) Lookup(name string) (float64, bool) {
	if v, ok := f.Nums[name]; ok {
		return v, true
	}
	if v, ok := f.Bools[name]; ok {
		if v {
			return 1.0, true
		}
		return 0.0, true
	}
	return 0, false
}

// ToVector maps features into a numeric vector in the exact order of names.
// Names absent from the map read as 0.0 so a degraded single-frame feature
// set can still be vectorised against the full aggregated column layout.
func ToVector(features FeatureMap, names []string) []float64 {
	vec := make([]float64, len(names))
	for i, name := range names {
		if v, ok := features.Lookup(name); ok {
			vec[i] = v
		}
	}
	return vec
}
