package interpolation

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"boldpost/internal/models"
)

// TestFillOutliersIdentityWithoutOutliers verifies that an all-valid mask
// produces an unchanged, independent copy
func TestFillOutliersIdentityWithoutOutliers(t *testing.T) {
	data := mat.NewDense(5, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
		5, 50,
	})
	mask := models.NewTemporalMask(5)

	out, err := FillOutliers(data, mask, 2.0)
	if err != nil {
		t.Fatalf("FillOutliers failed: %v", err)
	}
	if !mat.Equal(data, out) {
		t.Error("Expected identity with no outliers")
	}

	out.Set(0, 0, 99)
	if data.At(0, 0) != 1 {
		t.Error("Output must copy, not alias, the input")
	}
}

// TestFillOutliersKeepsValidFrames verifies that interpolation never touches
// valid frames
func TestFillOutliersKeepsValidFrames(t *testing.T) {
	n := 30
	data := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		data.Set(i, 0, math.Sin(float64(i)*0.4))
	}
	mask := models.NewTemporalMask(n)
	for _, i := range []int{5, 12, 20} {
		if err := mask.MarkOutlier(i); err != nil {
			t.Fatalf("MarkOutlier failed: %v", err)
		}
	}

	out, err := FillOutliers(data, mask, 1.5)
	if err != nil {
		t.Fatalf("FillOutliers failed: %v", err)
	}
	for _, i := range mask.ValidIndices() {
		if out.At(i, 0) != data.At(i, 0) {
			t.Fatalf("Valid frame %d changed: %g -> %g", i, data.At(i, 0), out.At(i, 0))
		}
	}
	for _, i := range mask.OutlierIndices() {
		if out.At(i, 0) == data.At(i, 0) {
			t.Errorf("Outlier frame %d was not replaced", i)
		}
	}
}

// TestFillOutliersRecoversCubicPolynomial verifies interior interpolation
// accuracy: a cubic spline through samples of a cubic reproduces it exactly
func TestFillOutliersRecoversCubicPolynomial(t *testing.T) {
	n := 30
	tr := 0.8
	poly := func(x float64) float64 {
		return 0.5 + 0.3*x - 0.02*x*x + 0.001*x*x*x
	}
	data := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		data.Set(i, 0, poly(float64(i)*tr))
	}

	mask := models.NewTemporalMask(n)
	for _, i := range []int{7, 15, 22} {
		if err := mask.MarkOutlier(i); err != nil {
			t.Fatalf("MarkOutlier failed: %v", err)
		}
	}

	out, err := FillOutliers(data, mask, tr)
	if err != nil {
		t.Fatalf("FillOutliers failed: %v", err)
	}
	for _, i := range mask.OutlierIndices() {
		want := poly(float64(i) * tr)
		if d := math.Abs(out.At(i, 0) - want); d > 1e-6 {
			t.Errorf("Frame %d: expected %g, got %g (error %g)", i, want, out.At(i, 0), d)
		}
	}
}

// TestFillOutliersClampsBoundaries verifies that leading and trailing outlier
// blocks take the nearest valid frame's value instead of extrapolating
func TestFillOutliersClampsBoundaries(t *testing.T) {
	n := 12
	data := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		data.Set(i, 0, float64(i*i))
	}

	mask := models.NewTemporalMask(n)
	for _, i := range []int{0, 1, 11} {
		if err := mask.MarkOutlier(i); err != nil {
			t.Fatalf("MarkOutlier failed: %v", err)
		}
	}

	out, err := FillOutliers(data, mask, 2.0)
	if err != nil {
		t.Fatalf("FillOutliers failed: %v", err)
	}

	// first valid frame is 2, last valid frame is 10
	if out.At(0, 0) != data.At(2, 0) || out.At(1, 0) != data.At(2, 0) {
		t.Errorf("Leading outliers should clamp to frame 2's value %g, got %g and %g",
			data.At(2, 0), out.At(0, 0), out.At(1, 0))
	}
	if out.At(11, 0) != data.At(10, 0) {
		t.Errorf("Trailing outlier should clamp to frame 10's value %g, got %g",
			data.At(10, 0), out.At(11, 0))
	}
}

// TestFillOutliersLinearFallback verifies the piecewise-linear fallback when
// too few valid frames remain for a cubic fit
func TestFillOutliersLinearFallback(t *testing.T) {
	// 5 frames, 2 outliers leave 3 valid knots on the line y = 2x
	data := mat.NewDense(5, 1, []float64{0, 99, 4, 99, 8})
	mask := models.NewTemporalMask(5)
	for _, i := range []int{1, 3} {
		if err := mask.MarkOutlier(i); err != nil {
			t.Fatalf("MarkOutlier failed: %v", err)
		}
	}

	out, err := FillOutliers(data, mask, 1.0)
	if err != nil {
		t.Fatalf("FillOutliers failed: %v", err)
	}
	if math.Abs(out.At(1, 0)-2) > 1e-12 {
		t.Errorf("Expected linear fill 2 at frame 1, got %g", out.At(1, 0))
	}
	if math.Abs(out.At(3, 0)-6) > 1e-12 {
		t.Errorf("Expected linear fill 6 at frame 3, got %g", out.At(3, 0))
	}
}

// TestFillOutliersErrors verifies guard conditions
func TestFillOutliersErrors(t *testing.T) {
	data := mat.NewDense(5, 1, nil)

	if _, err := FillOutliers(data, models.NewTemporalMask(4), 2.0); err == nil {
		t.Error("Expected error for misaligned mask")
	}
	if _, err := FillOutliers(data, models.NewTemporalMask(5), 0); err == nil {
		t.Error("Expected error for non-positive repetition time")
	}

	allOut := models.NewTemporalMask(5)
	for i := 0; i < 5; i++ {
		if err := allOut.MarkOutlier(i); err != nil {
			t.Fatalf("MarkOutlier failed: %v", err)
		}
	}
	if _, err := FillOutliers(data, allOut, 2.0); err == nil {
		t.Error("Expected error when no valid frames remain")
	}
}
