package filter

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/cwbudde/algo-dsp/dsp/filter/design/pass"
	"gonum.org/v1/gonum/mat"

	"boldpost/internal/models"
)

// Motion filters the six raw motion parameter traces according to spec and
// returns a new trace of identical shape. The filtered trace supersedes the
// raw one: every downstream computation (framewise displacement, nuisance
// design) uses only the returned representation.
//
// Cutoffs arrive in breaths per minute and are converted to Hz. A cutoff at
// or above the Nyquist frequency for the sampling interval is a
// configuration error surfaced to the caller; the filter is never silently
// skipped or misapplied.
func Motion(trace *models.MotionTrace, spec models.FilterSpec) (*models.MotionTrace, error) {
	switch spec.Kind {
	case models.FilterNone:
		return trace.Clone(), nil
	case models.FilterNotch:
		return notchMotion(trace, spec)
	case models.FilterLowPass:
		return lowPassMotion(trace, spec)
	default:
		return nil, fmt.Errorf("unknown motion filter kind %q", spec.Kind)
	}
}

// notchMotion removes the respiratory band with a band-stop biquad.
// The notch is centered on the band midpoint with quality factor
// center/bandwidth, and is applied order/2 times to sharpen the stop band,
// mirroring how an order-N band-stop is conventionally realized from a
// second-order notch section.
func notchMotion(trace *models.MotionTrace, spec models.FilterSpec) (*models.MotionTrace, error) {
	fs := 1.0 / spec.TR
	loHz := spec.BandStopMin / 60.0
	hiHz := spec.BandStopMax / 60.0
	if err := checkCutoff(hiHz, spec.Nyquist()); err != nil {
		return nil, err
	}
	if loHz >= hiHz {
		return nil, fmt.Errorf("band-stop edges out of order: %g >= %g breaths/min", spec.BandStopMin, spec.BandStopMax)
	}

	center := (loHz + hiHz) / 2.0
	bandwidth := hiHz - loHz
	q := center / bandwidth
	section := design.Notch(center, q, fs)

	applications := spec.Order / 2
	if applications < 1 {
		applications = 1
	}

	sections := []biquad.Coefficients{section}
	return filterColumns(trace, func(col []float64) []float64 {
		out := col
		for i := 0; i < applications; i++ {
			out = zeroPhase(sections, out)
		}
		return out
	}), nil
}

// lowPassMotion retains content below the single cutoff with a Butterworth
// low-pass cascade.
func lowPassMotion(trace *models.MotionTrace, spec models.FilterSpec) (*models.MotionTrace, error) {
	fs := 1.0 / spec.TR
	cutoffHz := spec.BandStopMin / 60.0
	if err := checkCutoff(cutoffHz, spec.Nyquist()); err != nil {
		return nil, err
	}

	sections := pass.ButterworthLP(cutoffHz, spec.Order, fs)
	return filterColumns(trace, func(col []float64) []float64 {
		return zeroPhase(sections, col)
	}), nil
}

// filterColumns applies fn independently to each of the six parameter traces.
func filterColumns(trace *models.MotionTrace, fn func([]float64) []float64) *models.MotionTrace {
	t := trace.Frames()
	out := mat.NewDense(t, models.MotionParams, nil)
	col := make([]float64, t)
	for j := 0; j < models.MotionParams; j++ {
		mat.Col(col, j, trace.Data)
		out.SetCol(j, fn(col))
	}
	return &models.MotionTrace{Data: out}
}

func checkCutoff(cutoffHz, nyquistHz float64) error {
	if cutoffHz >= nyquistHz {
		return fmt.Errorf("filter cutoff %g Hz is at or above Nyquist frequency %g Hz", cutoffHz, nyquistHz)
	}
	return nil
}
