package filter

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func columnRMS(m *mat.Dense, col, start, end int) float64 {
	sum := 0.0
	for i := start; i < end; i++ {
		v := m.At(i, col)
		sum += v * v
	}
	return math.Sqrt(sum / float64(end-start))
}

// TestBandpassPassThrough verifies that zero cutoffs copy the input unchanged
func TestBandpassPassThrough(t *testing.T) {
	in := mat.NewDense(4, 2, []float64{1, 2, 3, 4, 5, 6, 7, 8})

	out, err := Bandpass(in, 0, 0, 2, 2.0)
	if err != nil {
		t.Fatalf("Bandpass pass-through failed: %v", err)
	}
	if !mat.Equal(in, out) {
		t.Error("Expected unchanged copy with both cutoffs zero")
	}

	out.Set(0, 0, 99)
	if in.At(0, 0) != 1 {
		t.Error("Pass-through must copy, not alias, the input")
	}
}

// TestBandpassHighPassRemovesOffset verifies that a pure offset vanishes
// under high-pass filtering
func TestBandpassHighPassRemovesOffset(t *testing.T) {
	n := 600
	in := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		in.Set(i, 0, 5.0)
	}

	out, err := Bandpass(in, 0, 0.01, 2, 1.0)
	if err != nil {
		t.Fatalf("High-pass filtering failed: %v", err)
	}

	for i := n / 4; i < 3*n/4; i++ {
		if v := math.Abs(out.At(i, 0)); v > 0.05 {
			t.Fatalf("Sample %d: expected offset removed, got %g", i, v)
		}
	}
}

// TestBandpassSelectivity verifies that in-band content survives while
// out-of-band content is suppressed
func TestBandpassSelectivity(t *testing.T) {
	n := 1024
	tr := 0.5 // fs 2 Hz, Nyquist 1 Hz
	inBand := mat.NewDense(n, 1, nil)
	outBand := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		tm := float64(i) * tr
		inBand.Set(i, 0, math.Sin(2*math.Pi*0.05*tm))
		outBand.Set(i, 0, math.Sin(2*math.Pi*0.8*tm))
	}

	filteredIn, err := Bandpass(inBand, 0.1, 0.01, 2, tr)
	if err != nil {
		t.Fatalf("Bandpass failed: %v", err)
	}
	filteredOut, err := Bandpass(outBand, 0.1, 0.01, 2, tr)
	if err != nil {
		t.Fatalf("Bandpass failed: %v", err)
	}

	start, end := n/4, 3*n/4
	if rms := columnRMS(filteredIn, 0, start, end); rms < 0.5 {
		t.Errorf("Expected 0.05 Hz component inside [0.01, 0.1] Hz to survive, RMS %g", rms)
	}
	if rms := columnRMS(filteredOut, 0, start, end); rms > 0.05 {
		t.Errorf("Expected 0.8 Hz component above 0.1 Hz cutoff suppressed, RMS %g", rms)
	}
}

// TestBandpassFiltersColumnsIndependently verifies per-column application
func TestBandpassFiltersColumnsIndependently(t *testing.T) {
	n := 512
	tr := 0.5
	in := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		tm := float64(i) * tr
		in.Set(i, 0, math.Sin(2*math.Pi*0.05*tm))
		in.Set(i, 1, math.Sin(2*math.Pi*0.8*tm))
	}

	out, err := Bandpass(in, 0.1, 0.01, 2, tr)
	if err != nil {
		t.Fatalf("Bandpass failed: %v", err)
	}

	start, end := n/4, 3*n/4
	if rms := columnRMS(out, 0, start, end); rms < 0.5 {
		t.Errorf("In-band column attenuated, RMS %g", rms)
	}
	if rms := columnRMS(out, 1, start, end); rms > 0.05 {
		t.Errorf("Out-of-band column survived, RMS %g", rms)
	}
}

// TestBandpassRejectsBadParameters verifies cutoff and TR guards
func TestBandpassRejectsBadParameters(t *testing.T) {
	in := mat.NewDense(50, 1, nil)

	// TR 2.0 -> Nyquist 0.25 Hz
	if _, err := Bandpass(in, 0.3, 0.01, 2, 2.0); err == nil {
		t.Error("Expected error for low-pass cutoff above Nyquist")
	}
	if _, err := Bandpass(in, 0.1, 0.25, 2, 2.0); err == nil {
		t.Error("Expected error for high-pass cutoff at Nyquist")
	}
	if _, err := Bandpass(in, 0.1, 0.01, 2, 0); err == nil {
		t.Error("Expected error for non-positive repetition time")
	}
}
