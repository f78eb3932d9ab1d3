// Package censor implements the temporal bookkeeping of the pipeline:
// dummy-scan trimming, framewise displacement, outlier marking, and the
// final re-censoring of denoised output. Every decision about which frames
// are valid is recorded in the run's TemporalMask; no stage drops frames
// silently.
package censor

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"boldpost/internal/models"
)

// degToMM converts a rotational excursion in degrees to millimeters of arc
// at the given head radius.
func degToMM(deg, radiusMM float64) float64 {
	return deg * math.Pi / 180.0 * radiusMM
}

// EstimateHeadRadius returns the radius in mm of a sphere whose volume
// equals the brain mask volume: nVoxels voxels of voxelVolumeMM3 mm^3 each.
func EstimateHeadRadius(nVoxels int, voxelVolumeMM3 float64) float64 {
	volume := float64(nVoxels) * voxelVolumeMM3
	return math.Cbrt(3.0 * volume / (4.0 * math.Pi))
}

// FramewiseDisplacement computes per-frame FD from a (filtered) motion
// trace: the sum of absolute frame-to-frame differences of the six
// parameters, with rotations converted from degrees to millimeters via the
// head radius. Frame 0 has no prior frame and is defined as 0.
func FramewiseDisplacement(motion *models.MotionTrace, headRadiusMM float64) []float64 {
	t := motion.Frames()
	fd := make([]float64, t)
	for i := 1; i < t; i++ {
		sum := 0.0
		for j := 0; j < models.MotionParams; j++ {
			d := motion.Data.At(i, j) - motion.Data.At(i-1, j)
			if j >= models.MotionRotX {
				d = degToMM(d, headRadiusMM)
			}
			sum += math.Abs(d)
		}
		fd[i] = sum
	}
	return fd
}

// Censor builds a temporal mask marking every frame whose FD exceeds the
// threshold as a motion outlier. A threshold of 0 disables outlier marking
// entirely, so downstream censoring and interpolation become no-ops.
func Censor(fd []float64, threshold float64) *models.TemporalMask {
	mask := models.NewTemporalMask(len(fd))
	if threshold <= 0 {
		return mask
	}
	for i, v := range fd {
		if v > threshold {
			mask.Labels[i] = models.FrameMotionOutlier
		}
	}
	return mask
}

// nonSteadyStatePrefix marks the confound columns the preprocessing pipeline
// uses to flag its own non-steady-state detections.
const nonSteadyStatePrefix = "non_steady_state_outlier"

// InferDummyScans derives the dummy-scan count from the preprocessing
// pipeline's non-steady-state columns. The flagged volumes are assumed to be
// contiguous from frame 0, so the count is the last flagged index plus one.
// Zero is returned when no such columns exist.
func InferDummyScans(conf *models.ConfoundMatrix) int {
	last := -1
	for j, name := range conf.Names {
		if !strings.HasPrefix(name, nonSteadyStatePrefix) {
			continue
		}
		for i := 0; i < conf.Frames(); i++ {
			if conf.Data.At(i, j) != 0 && i > last {
				last = i
			}
		}
	}
	return last + 1
}

// TrimDummyScans removes the first n frames from the BOLD matrix, confound
// matrix and motion trace together, returning the trimmed copies and a fresh
// temporal mask recording the removal. The trim is irreversible and happens
// before FD computation so FD is never derived from discarded frames.
func TrimDummyScans(
	bold *models.TimeSeriesMatrix,
	conf *models.ConfoundMatrix,
	motion *models.MotionTrace,
	n int,
) (*models.TimeSeriesMatrix, *models.ConfoundMatrix, *models.MotionTrace, *models.TemporalMask, error) {
	t := bold.Frames()
	if n < 0 {
		return nil, nil, nil, nil, fmt.Errorf("dummy scan count must be non-negative, got %d", n)
	}
	if n >= t {
		return nil, nil, nil, nil, fmt.Errorf("dummy scan count %d leaves no frames in a %d-frame run", n, t)
	}
	if conf.Frames() != t || motion.Frames() != t {
		return nil, nil, nil, nil, fmt.Errorf(
			"misaligned inputs: bold has %d frames, confounds %d, motion %d",
			t, conf.Frames(), motion.Frames())
	}

	keep := make([]int, t-n)
	for i := range keep {
		keep[i] = n + i
	}

	trimmedBold := models.NewTimeSeriesMatrix(models.SelectRows(bold.Data, keep))
	trimmedConf := &models.ConfoundMatrix{Data: models.SelectRows(conf.Data, keep), Names: conf.Names}
	trimmedMotion := &models.MotionTrace{Data: models.SelectRows(motion.Data, keep)}

	mask := models.NewTemporalMask(t - n)
	mask.DummyRemoved = n
	return trimmedBold, trimmedConf, trimmedMotion, mask, nil
}

// ReCensor removes the outlier frames from data, keeping valid frames
// unchanged and in order. This produces the canonical denoised output from
// the denoised-interpolated signal.
func ReCensor(data *mat.Dense, mask *models.TemporalMask) (*mat.Dense, error) {
	r, _ := data.Dims()
	if err := mask.CheckAligned(r, "data matrix"); err != nil {
		return nil, err
	}
	return models.SelectRows(data, mask.ValidIndices()), nil
}

// DVARS computes the root-mean-square signal change between consecutive
// frames of a T x V matrix. Frame 0 is 0 by definition.
func DVARS(data *mat.Dense) []float64 {
	t, v := data.Dims()
	out := make([]float64, t)
	for i := 1; i < t; i++ {
		sum := 0.0
		for j := 0; j < v; j++ {
			d := data.At(i, j) - data.At(i-1, j)
			sum += d * d
		}
		out[i] = math.Sqrt(sum / float64(v))
	}
	return out
}

// Summarize reports the censoring quality measures for a run.
func Summarize(fd []float64, mask *models.TemporalMask, denoised *mat.Dense) models.CensorSummary {
	s := models.CensorSummary{
		FramesTotal:    mask.Len(),
		FramesRetained: mask.NumValid(),
		FramesRemoved:  mask.NumOutliers(),
		DummyRemoved:   mask.DummyRemoved,
	}
	if len(fd) > 0 {
		s.MeanFD = stat.Mean(fd, nil)
	}
	valid := mask.ValidIndices()
	if len(valid) > 0 {
		kept := make([]float64, len(valid))
		for i, idx := range valid {
			kept[i] = fd[idx]
		}
		s.MeanFDRetained = stat.Mean(kept, nil)
	}
	if denoised != nil {
		if dv := DVARS(denoised); len(dv) > 1 {
			s.MeanDVARS = stat.Mean(dv[1:], nil)
		}
	}
	return s
}
