package filter

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design/pass"
	"gonum.org/v1/gonum/mat"
)

// Bandpass applies a zero-phase Butterworth filter to every column of m and
// returns the filtered copy.
//
// Both cutoffs set: band-pass (high-pass at highPass, low-pass at lowPass).
// One cutoff set: the corresponding single-sided filter. Both zero:
// pass-through copy. Callers must filter BOLD and confounds with the same
// cutoffs in the same pipeline pass, before confound regression, so that the
// regression cannot reintroduce variance the filter removed.
func Bandpass(m *mat.Dense, lowPass, highPass float64, order int, tr float64) (*mat.Dense, error) {
	if lowPass == 0 && highPass == 0 {
		return mat.DenseCopyOf(m), nil
	}

	sections, err := bandpassSections(lowPass, highPass, order, tr)
	if err != nil {
		return nil, err
	}

	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		out.SetCol(j, zeroPhase(sections, col))
	}
	return out, nil
}

// bandpassSections designs the biquad cascade for the requested cutoffs.
// A band-pass is realized as a high-pass cascade followed by a low-pass
// cascade, each of the configured order.
func bandpassSections(lowPass, highPass float64, order int, tr float64) ([]biquad.Coefficients, error) {
	if tr <= 0 {
		return nil, fmt.Errorf("repetition time must be positive, got %g", tr)
	}
	fs := 1.0 / tr
	nyquist := fs / 2.0

	var sections []biquad.Coefficients
	if highPass > 0 {
		if err := checkCutoff(highPass, nyquist); err != nil {
			return nil, err
		}
		sections = append(sections, pass.ButterworthHP(highPass, order, fs)...)
	}
	if lowPass > 0 {
		if err := checkCutoff(lowPass, nyquist); err != nil {
			return nil, err
		}
		sections = append(sections, pass.ButterworthLP(lowPass, order, fs)...)
	}
	return sections, nil
}
