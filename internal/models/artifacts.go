package models

import "gonum.org/v1/gonum/mat"

// FilterKind selects the motion-parameter filter applied before framewise
// displacement is computed.
type FilterKind string

const (
	// FilterNone passes motion parameters through unfiltered.
	FilterNone FilterKind = "none"

	// FilterNotch removes content in a band-stop range, typically the
	// expected respiratory band.
	FilterNotch FilterKind = "notch"

	// FilterLowPass retains content below a single cutoff.
	FilterLowPass FilterKind = "lp"
)

// FilterSpec is the declarative configuration of the motion-parameter filter.
// Cutoffs are expressed in breaths per minute, matching how respiratory rates
// are reported; they are converted to Hz at application time.
type FilterSpec struct {
	Kind FilterKind

	// BandStopMin is the lower band-stop edge for notch filtering, or the
	// low-pass cutoff for lp filtering, in breaths per minute.
	BandStopMin float64

	// BandStopMax is the upper band-stop edge for notch filtering, in
	// breaths per minute. Ignored for lp filtering.
	BandStopMax float64

	// Order is the filter order.
	Order int

	// TR is the sampling interval (repetition time), in seconds.
	TR float64
}

// Nyquist returns the Nyquist frequency in Hz for the configured sampling
// interval.
func (s FilterSpec) Nyquist() float64 {
	return 1.0 / (2.0 * s.TR)
}

// SpectralMethod identifies which power-spectrum estimator produced a
// SpectralEstimate.
type SpectralMethod string

const (
	// SpectralPeriodogram is the regular-grid FFT periodogram, used when no
	// frames were interpolated.
	SpectralPeriodogram SpectralMethod = "periodogram"

	// SpectralLombScargle is the irregular-grid estimator, used when
	// censored frames were interpolated and the practical sampling is no
	// longer regular.
	SpectralLombScargle SpectralMethod = "lomb-scargle"
)

// SpectralEstimate is the intermediate power-spectrum estimate behind an ALFF
// value. The frequency vector is strictly increasing and aligned by index
// with the power vector. Method records which estimator was chosen for the
// run, for auditability.
type SpectralEstimate struct {
	Frequencies []float64
	Power       []float64
	Method      SpectralMethod
}

// RegressionResult is the output of confound regression. Betas are fit only
// on valid frames; the residuals are defined both on valid frames only
// (censored) and on every frame (interpolated).
type RegressionResult struct {
	// Betas holds the parameter estimates, one column per BOLD series and
	// one row per design column (intercept last).
	Betas *mat.Dense

	// DenoisedCensored is the residual restricted to valid frames.
	DenoisedCensored *mat.Dense

	// DenoisedInterpolated is the residual over all frames, including
	// interpolated outlier frames.
	DenoisedInterpolated *mat.Dense

	// Rank is the effective rank of the fit-stage design matrix.
	Rank int
}

// CensorSummary captures the quality measures reported for a run's censoring
// decisions.
type CensorSummary struct {
	// MeanFD is the mean framewise displacement over all frames.
	MeanFD float64

	// MeanFDRetained is the mean framewise displacement over valid frames.
	MeanFDRetained float64

	// FramesTotal, FramesRetained and FramesRemoved count frames after
	// dummy-scan removal.
	FramesTotal    int
	FramesRetained int
	FramesRemoved  int

	// DummyRemoved counts the leading frames dropped before censoring.
	DummyRemoved int

	// MeanDVARS is the mean root-mean-square signal change of the denoised
	// output.
	MeanDVARS float64
}

// RunArtifacts is everything a fully processed run exposes to downstream
// packaging. A run either produces the complete set or nothing.
type RunArtifacts struct {
	// Name identifies the run (e.g. task and run entities).
	Name string

	// TaskGroup identifies the concatenation group the run belongs to.
	TaskGroup string

	// TR is the sampling interval in seconds.
	TR float64

	// Denoised is the canonical output: denoised and censored, with only
	// valid frames present.
	Denoised *mat.Dense

	// DenoisedInterpolated retains every frame, including interpolated
	// outliers. Nil unless the QC flag requesting it is set.
	DenoisedInterpolated *mat.Dense

	// Mask is the final temporal mask over post-trim frames.
	Mask *TemporalMask

	// FilteredMotion is the single motion representation used downstream.
	FilteredMotion *MotionTrace

	// FD is the framewise displacement series, aligned with Mask.
	FD []float64

	// ALFF and ALFFSpectra are nil when bandpass filtering is disabled.
	ALFF        []float64
	ALFFSpectra *SpectralEstimate

	// ReHo is nil when no spatial neighborhood was supplied.
	ReHo []float64

	// Betas holds regression parameter estimates for QC, nil when nuisance
	// regression was skipped.
	Betas *mat.Dense

	// Summary reports censoring quality measures.
	Summary CensorSummary
}

// ConcatenatedRuns holds the artifacts produced by merging a group of
// same-task runs along the time axis. Per-run originals are never mutated.
type ConcatenatedRuns struct {
	TaskGroup            string
	Denoised             *mat.Dense
	DenoisedInterpolated *mat.Dense
	Mask                 *TemporalMask
	FilteredMotion       *MotionTrace
	FD                   []float64

	// RunNames lists the member runs in concatenation order.
	RunNames []string
}
