package engage

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestStandardScaler_FitTransform(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
	})

	s := NewStandardScaler()
	if s.Fitted() {
		t.Fatal("new scaler must not report fitted")
	}
	s.Fit(X)
	if !s.Fitted() {
		t.Fatal("scaler must report fitted after Fit")
	}

	if s.Mean[0] != 2 {
		t.Errorf("Mean[0] = %v, want 2", s.Mean[0])
	}
	// Constant column keeps unit scale.
	if s.Std[1] != 1 {
		t.Errorf("Std[1] = %v, want 1 for zero-variance column", s.Std[1])
	}

	out, err := s.Transform(X)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	// Scaled first column must have mean 0.
	sum := out.At(0, 0) + out.At(1, 0) + out.At(2, 0)
	if math.Abs(sum) > 1e-12 {
		t.Errorf("scaled column sum = %v, want 0", sum)
	}
	// Constant column maps to zero everywhere.
	for i := 0; i < 3; i++ {
		if out.At(i, 1) != 0 {
			t.Errorf("constant column row %d = %v, want 0", i, out.At(i, 1))
		}
	}
}

func TestStandardScaler_TransformVectorDimensionCheck(t *testing.T) {
	s := NewStandardScaler()
	s.Fit(mat.NewDense(2, 2, []float64{0, 0, 2, 2}))

	if _, err := s.TransformVector([]float64{1}); err == nil {
		t.Error("expected dimension mismatch error")
	}
	out, err := s.TransformVector([]float64{1, 1})
	if err != nil {
		t.Fatalf("TransformVector: %v", err)
	}
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("TransformVector = %v, want zeros at the mean", out)
	}
}
