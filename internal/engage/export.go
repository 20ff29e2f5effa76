package engage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/classlens-data/classlens/internal/security"
)

// Dataset split names used for exported CSV file prefixes.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// FeaturesFilename returns the feature CSV filename for a split.
func FeaturesFilename(split string) string {
	return security.SanitizeFilename(split) + "_features.csv"
}

// LabelsFilename returns the label CSV filename for a split.
func LabelsFilename(split string) string {
	return security.SanitizeFilename(split) + "_labels.csv"
}

// validateOutputDir checks that dir is an allowed export location and
// creates it if needed.
func validateOutputDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("empty output directory")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("cannot resolve output directory: %w", err)
	}
	abs = filepath.Clean(abs)
	if err := security.ValidateExportPath(abs); err != nil {
		return "", fmt.Errorf("invalid output directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("cannot create output directory: %w", err)
	}
	return abs, nil
}

// WriteFeaturesCSV writes aggregated feature maps to <split>_features.csv in
// dir. The column order is the sorted union of feature names across all
// samples, so files written from the same detector set line up column for
// column. It returns the ordered feature names it wrote.
func WriteFeaturesCSV(dir, split string, samples []FeatureMap) ([]string, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no feature samples to export")
	}
	abs, err := validateOutputDir(dir)
	if err != nil {
		return nil, err
	}

	union := make(map[string]struct{})
	for _, fm := range samples {
		for _, name := range fm.Names() {
			union[name] = struct{}{}
		}
	}
	names := sortedKeys(union)
	path := filepath.Join(abs, FeaturesFilename(split))

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(names); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(names))
	for i, fm := range samples {
		for j, v := range ToVector(fm, names) {
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush %s: %w", path, err)
	}
	return names, nil
}

// WriteLabelsCSV writes per-state labels to <split>_labels.csv in dir, one
// column per affective state in canonical order. All label slices must have
// the same length.
func WriteLabelsCSV(dir, split string, labels map[string][]float64) error {
	n := -1
	for _, state := range AffectiveStates {
		vals, ok := labels[state]
		if !ok {
			return fmt.Errorf("missing labels for state %s", state)
		}
		if n == -1 {
			n = len(vals)
		} else if len(vals) != n {
			return fmt.Errorf("label length mismatch for state %s: got %d, want %d", state, len(vals), n)
		}
	}
	if n <= 0 {
		return fmt.Errorf("no labels to export")
	}
	abs, err := validateOutputDir(dir)
	if err != nil {
		return err
	}
	path := filepath.Join(abs, LabelsFilename(split))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(AffectiveStates); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(AffectiveStates))
	for i := 0; i < n; i++ {
		for j, state := range AffectiveStates {
			row[j] = strconv.FormatFloat(labels[state][i], 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

// ReadFeaturesCSV reads a feature CSV produced by WriteFeaturesCSV and
// returns a FeatureTable with the file's column order preserved.
func ReadFeaturesCSV(path string) (*FeatureTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: need a header and at least one row", path)
	}
	names := records[0]
	rows := len(records) - 1
	data := make([]float64, 0, rows*len(names))
	for i, rec := range records[1:] {
		if len(rec) != len(names) {
			return nil, fmt.Errorf("%s row %d: got %d columns, want %d", path, i+1, len(rec), len(names))
		}
		for _, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
			}
			data = append(data, v)
		}
	}
	return &FeatureTable{
		Names: names,
		X:     mat.NewDense(rows, len(names), data),
	}, nil
}

// ReadLabelsCSV reads a label CSV produced by WriteLabelsCSV and returns one
// label slice per header column.
func ReadLabelsCSV(path string) (map[string][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: need a header and at least one row", path)
	}
	states := records[0]
	labels := make(map[string][]float64, len(states))
	for _, s := range states {
		labels[s] = make([]float64, 0, len(records)-1)
	}
	for i, rec := range records[1:] {
		if len(rec) != len(states) {
			return nil, fmt.Errorf("%s row %d: got %d columns, want %d", path, i+1, len(rec), len(states))
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
			}
			labels[states[j]] = append(labels[states[j]], v)
		}
	}
	return labels, nil
}
