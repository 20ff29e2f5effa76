package engage

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFeatureCSVRoundtrip(t *testing.T) {
	dir := t.TempDir()

	a := NewFeatureMap()
	a.SetNum("pose_yaw_mean", 12.5)
	a.SetNum("frame_count", 10)
	b := NewFeatureMap()
	b.SetNum("pose_yaw_mean", -3)
	b.SetNum("facial_mar_mean", 0.4) // key absent from a

	names, err := WriteFeaturesCSV(dir, SplitTrain, []FeatureMap{a, b})
	if err != nil {
		t.Fatalf("WriteFeaturesCSV: %v", err)
	}
	wantNames := []string{"facial_mar_mean", "frame_count", "pose_yaw_mean"}
	if diff := cmp.Diff(wantNames, names); diff != "" {
		t.Fatalf("column order mismatch (-want +got):\n%s", diff)
	}

	table, err := ReadFeaturesCSV(filepath.Join(dir, FeaturesFilename(SplitTrain)))
	if err != nil {
		t.Fatalf("ReadFeaturesCSV: %v", err)
	}
	if diff := cmp.Diff(wantNames, table.Names); diff != "" {
		t.Fatalf("read-back names mismatch (-want +got):\n%s", diff)
	}
	rows, cols := table.X.Dims()
	if rows != 2 || cols != 3 {
		t.Fatalf("dims = %dx%d, want 2x3", rows, cols)
	}
	// Keys absent from a sample read back as zero.
	if got := table.X.At(0, 0); got != 0 {
		t.Errorf("a.facial_mar_mean = %v, want 0", got)
	}
	if got := table.X.At(1, 2); got != -3 {
		t.Errorf("b.pose_yaw_mean = %v, want -3", got)
	}
}

func TestLabelCSVRoundtrip(t *testing.T) {
	dir := t.TempDir()

	labels := map[string][]float64{
		"boredom":     {0, 1.5},
		"engagement":  {3, 2},
		"confusion":   {1, 0},
		"frustration": {0.5, 2.5},
	}
	if err := WriteLabelsCSV(dir, SplitVal, labels); err != nil {
		t.Fatalf("WriteLabelsCSV: %v", err)
	}

	got, err := ReadLabelsCSV(filepath.Join(dir, LabelsFilename(SplitVal)))
	if err != nil {
		t.Fatalf("ReadLabelsCSV: %v", err)
	}
	if diff := cmp.Diff(labels, got); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteLabelsCSV_Validation(t *testing.T) {
	dir := t.TempDir()

	missing := map[string][]float64{
		"boredom": {1}, "engagement": {1}, "confusion": {1},
	}
	if err := WriteLabelsCSV(dir, SplitTest, missing); err == nil {
		t.Error("expected error for missing state")
	}

	ragged := map[string][]float64{
		"boredom": {1}, "engagement": {1, 2}, "confusion": {1}, "frustration": {1},
	}
	if err := WriteLabelsCSV(dir, SplitTest, ragged); err == nil {
		t.Error("expected error for mismatched label lengths")
	}
}

func TestWriteFeaturesCSV_RejectsEmpty(t *testing.T) {
	if _, err := WriteFeaturesCSV(t.TempDir(), SplitTrain, nil); err == nil {
		t.Error("expected error for empty sample set")
	}
}
