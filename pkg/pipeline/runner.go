// Package pipeline orchestrates the per-run denoising sequence: dummy-scan
// trimming, motion filtering, censoring, interpolation, detrending, bandpass
// filtering, confound regression, re-censoring, and the derived ALFF/ReHo
// metrics. Runs share no mutable state and execute independently; the run's
// matrices and temporal mask are owned exclusively by its invocation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"boldpost/internal/models"
	"boldpost/pkg/censor"
	"boldpost/pkg/config"
	"boldpost/pkg/filter"
	"boldpost/pkg/interpolation"
	"boldpost/pkg/metrics"
	"boldpost/pkg/regression"
)

// RunInput carries one run's already-validated inputs from the upstream
// preprocessing derivatives.
type RunInput struct {
	// Name identifies the run; TaskGroup identifies the set of same-task
	// runs it may be concatenated with.
	Name      string
	TaskGroup string

	// BOLD is the preprocessed T x V time series.
	BOLD *models.TimeSeriesMatrix

	// Confounds is the full confound table, row-aligned with BOLD.
	Confounds *models.ConfoundMatrix

	// Custom optionally supplies user confound columns for the "custom"
	// strategy, or extra columns appended to a named strategy.
	Custom *models.ConfoundMatrix

	// TR is the repetition time in seconds.
	TR float64

	// BrainMaskVoxels and VoxelVolumeMM3 describe the preprocessing brain
	// mask, used only for automatic head-radius estimation.
	BrainMaskVoxels int
	VoxelVolumeMM3  float64

	// Volume and Include describe the voxel grid for volumetric ReHo;
	// Neighbors selects its adjacency (default 26). SurfaceAdjacency is the
	// mesh adjacency for surface runs. ReHo is skipped when neither spatial
	// description is present.
	Volume           *metrics.VolumeShape
	Include          []bool
	Neighbors        int
	SurfaceAdjacency [][]int
}

// Runner processes runs under one immutable configuration.
type Runner struct {
	cfg *config.Config
	log *slog.Logger
}

// NewRunner creates a runner. The configuration must already be validated.
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, log: logger}
}

// Process runs the complete denoising sequence for a single run and returns
// its artifacts. A run either produces the full artifact set or an error;
// never partial output.
func (r *Runner) Process(ctx context.Context, in *RunInput) (*models.RunArtifacts, error) {
	log := r.log.With("run", in.Name)

	if in.TR <= 0 {
		return nil, &config.ConfigError{Field: "tr", Reason: fmt.Sprintf("repetition time must be positive, got %g", in.TR)}
	}
	if in.BOLD.Frames() != in.Confounds.Frames() {
		return nil, &DegeneracyError{Stage: "input validation", Err: fmt.Errorf(
			"BOLD has %d frames but confounds have %d", in.BOLD.Frames(), in.Confounds.Frames())}
	}

	// Step 1: Remove dummy scans before anything else, so FD is never
	// computed from discarded frames.
	nDummy, auto := r.cfg.DummyScansValue()
	if auto {
		nDummy = censor.InferDummyScans(in.Confounds)
	}
	log.Info("step 1: trimming dummy scans", "count", nDummy, "auto", auto)

	rawMotion, err := models.MotionFromConfounds(in.Confounds)
	if err != nil {
		return nil, fmt.Errorf("extracting motion parameters: %w", err)
	}
	bold, confounds, motion, mask, err := censor.TrimDummyScans(in.BOLD, in.Confounds, rawMotion, nDummy)
	if err != nil {
		return nil, fmt.Errorf("trimming dummy scans: %w", err)
	}
	custom := in.Custom
	if custom != nil && nDummy > 0 {
		// custom confounds arrive aligned with the untrimmed run
		trimmed := make([]int, bold.Frames())
		for i := range trimmed {
			trimmed[i] = nDummy + i
		}
		custom = &models.ConfoundMatrix{Data: models.SelectRows(in.Custom.Data, trimmed), Names: in.Custom.Names}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 2: Filter the motion parameters. The filtered trace is the only
	// motion representation used from here on.
	spec := models.FilterSpec{
		Kind:        models.FilterKind(r.cfg.MotionFilter.Type),
		BandStopMin: r.cfg.MotionFilter.BandStopMin,
		BandStopMax: r.cfg.MotionFilter.BandStopMax,
		Order:       r.cfg.MotionFilter.Order,
		TR:          in.TR,
	}
	log.Info("step 2: filtering motion parameters", "kind", spec.Kind)
	filteredMotion, err := filter.Motion(motion, spec)
	if err != nil {
		return nil, fmt.Errorf("filtering motion parameters: %w", err)
	}

	// Step 3: Framewise displacement and outlier marking.
	radius, autoRadius := r.cfg.HeadRadiusValue()
	if autoRadius {
		if in.BrainMaskVoxels <= 0 || in.VoxelVolumeMM3 <= 0 {
			return nil, &config.ConfigError{
				Field:  "censor.headRadius",
				Reason: "auto estimation requires a brain mask volume",
			}
		}
		radius = censor.EstimateHeadRadius(in.BrainMaskVoxels, in.VoxelVolumeMM3)
		log.Info("estimated head radius from brain mask", "radius_mm", radius)
	}

	fd := censor.FramewiseDisplacement(filteredMotion, radius)
	fdMask := censor.Censor(fd, r.cfg.Censor.FDThreshold)
	fdMask.DummyRemoved = mask.DummyRemoved
	mask = fdMask
	log.Info("step 3: censoring high-motion frames",
		"fd_threshold", r.cfg.Censor.FDThreshold,
		"outliers", mask.NumOutliers(),
		"valid", mask.NumValid())

	if mask.NumValid() < r.cfg.Censor.MinValidFrames {
		return nil, &InsufficientDataError{Valid: mask.NumValid(), Required: r.cfg.Censor.MinValidFrames}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 4: Build the nuisance design from the filtered motion trace.
	design, err := regression.BuildDesign(confounds, filteredMotion, r.cfg.Denoise.Strategy, custom)
	if err != nil {
		return nil, fmt.Errorf("building nuisance design: %w", err)
	}
	denoise := design != nil
	if denoise {
		log.Info("step 4: built nuisance design", "strategy", r.cfg.Denoise.Strategy, "columns", design.Columns())
	} else {
		log.Info("step 4: nuisance regression disabled")
	}

	// Step 5: Interpolate censored frames in BOLD and design identically,
	// keeping them frame-aligned.
	boldProcessed := mat.DenseCopyOf(bold.Data)
	if mask.HasOutliers() {
		log.Info("step 5: interpolating censored frames", "frames", mask.NumOutliers())
		boldProcessed, err = interpolation.FillOutliers(bold.Data, mask, in.TR)
		if err != nil {
			return nil, &DegeneracyError{Stage: "interpolation", Err: err}
		}
		if denoise {
			interpDesign, err := interpolation.FillOutliers(design.Data, mask, in.TR)
			if err != nil {
				return nil, &DegeneracyError{Stage: "interpolation", Err: err}
			}
			design = &models.ConfoundMatrix{Data: interpDesign, Names: design.Names}
		}
	} else {
		log.Info("step 5: no censored frames to interpolate")
	}

	// Step 6: Detrend. Only meaningful ahead of regression.
	if denoise {
		log.Info("step 6: detrending")
		boldProcessed = regression.Detrend(boldProcessed)
		design = &models.ConfoundMatrix{Data: regression.Detrend(design.Data), Names: design.Names}
	}

	// Step 7: Bandpass filter BOLD and design in the same pass, before
	// regression, so regression cannot reintroduce removed variance.
	if r.cfg.BandpassEnabled() {
		log.Info("step 7: bandpass filtering",
			"low_pass_hz", r.cfg.Bandpass.LowPass, "high_pass_hz", r.cfg.Bandpass.HighPass)
		boldProcessed, err = filter.Bandpass(boldProcessed, r.cfg.Bandpass.LowPass, r.cfg.Bandpass.HighPass, r.cfg.Bandpass.Order, in.TR)
		if err != nil {
			return nil, fmt.Errorf("bandpass filtering BOLD: %w", err)
		}
		if denoise {
			filtered, err := filter.Bandpass(design.Data, r.cfg.Bandpass.LowPass, r.cfg.Bandpass.HighPass, r.cfg.Bandpass.Order, in.TR)
			if err != nil {
				return nil, fmt.Errorf("bandpass filtering confounds: %w", err)
			}
			design = &models.ConfoundMatrix{Data: filtered, Names: design.Names}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 8: Two-stage confound regression with signal/noise
	// orthogonalization, then re-censoring.
	var denoisedCensored, denoisedInterp *mat.Dense
	var betas *mat.Dense
	if denoise {
		log.Info("step 8: regressing nuisance design")
		orthoDesign, err := regression.Orthogonalize(design)
		if err != nil {
			return nil, &DegeneracyError{Stage: "orthogonalization", Err: err}
		}
		result, err := regression.Regress(boldProcessed, orthoDesign, mask)
		if err != nil {
			return nil, &DegeneracyError{Stage: "confound regression", Err: err}
		}
		if result.Rank < orthoDesign.Columns()+1 {
			log.Warn("nuisance design is rank deficient",
				"rank", result.Rank, "columns", orthoDesign.Columns()+1)
		}
		denoisedCensored = result.DenoisedCensored
		denoisedInterp = result.DenoisedInterpolated
		betas = result.Betas
	} else {
		log.Info("step 8: regression skipped, re-censoring pass-through signal")
		denoisedInterp = boldProcessed
		denoisedCensored, err = censor.ReCensor(boldProcessed, mask)
		if err != nil {
			return nil, &DegeneracyError{Stage: "re-censoring", Err: err}
		}
	}

	if err := mask.CheckAligned(rowCount(denoisedInterp), "denoised interpolated matrix"); err != nil {
		return nil, &DegeneracyError{Stage: "re-censoring", Err: err}
	}

	// Step 9: Resting-state metrics on the denoised signal.
	var alff []float64
	var spectra *models.SpectralEstimate
	if r.cfg.BandpassEnabled() && r.cfg.Bandpass.LowPass > 0 && r.cfg.Bandpass.HighPass > 0 {
		log.Info("step 9: computing ALFF")
		alff, spectra, err = metrics.ALFF(denoisedInterp, mask, r.cfg.Bandpass.LowPass, r.cfg.Bandpass.HighPass, in.TR)
		if err != nil {
			return nil, &DegeneracyError{Stage: "ALFF", Err: err}
		}
	} else {
		log.Info("step 9: ALFF skipped, bandpass filtering disabled")
	}

	var reho []float64
	switch {
	case in.Volume != nil:
		neighbors := in.Neighbors
		if neighbors == 0 {
			neighbors = 26
		}
		log.Info("step 9: computing volumetric ReHo", "neighbors", neighbors)
		reho, err = metrics.ReHoVolume(denoisedCensored, *in.Volume, in.Include, neighbors)
		if err != nil {
			return nil, &DegeneracyError{Stage: "ReHo", Err: err}
		}
	case in.SurfaceAdjacency != nil:
		log.Info("step 9: computing surface ReHo")
		reho, err = metrics.ReHoSurface(denoisedCensored, in.SurfaceAdjacency)
		if err != nil {
			return nil, &DegeneracyError{Stage: "ReHo", Err: err}
		}
	}

	artifacts := &models.RunArtifacts{
		Name:           in.Name,
		TaskGroup:      in.TaskGroup,
		TR:             in.TR,
		Denoised:       denoisedCensored,
		Mask:           mask,
		FilteredMotion: filteredMotion,
		FD:             fd,
		ALFF:           alff,
		ALFFSpectra:    spectra,
		ReHo:           reho,
		Betas:          betas,
		Summary:        censor.Summarize(fd, mask, denoisedCensored),
	}
	if !r.cfg.Output.SkipQCInterpolated {
		artifacts.DenoisedInterpolated = denoisedInterp
	}

	log.Info("run complete",
		"frames_retained", artifacts.Summary.FramesRetained,
		"mean_fd", artifacts.Summary.MeanFD)
	return artifacts, nil
}

func rowCount(m *mat.Dense) int {
	r, _ := m.Dims()
	return r
}
