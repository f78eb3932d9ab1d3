// Package interpolation fills censored frames of time-aligned matrices by
// cubic-spline interpolation over the valid frames, keeping the time axis
// regular for the stages that follow.
package interpolation

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	"boldpost/internal/models"
)

// minSplineKnots is the smallest number of valid frames for which a cubic
// fit is attempted; below it the gap filler falls back to piecewise-linear
// interpolation.
const minSplineKnots = 4

// FillOutliers replaces each motion-outlier frame of data, per column
// independently, with a value interpolated from the valid frames. Valid
// frames are the spline knots, placed at their acquisition times (frame
// index times tr).
//
// Outlier frames at the very start or end of the run have no valid frame on
// one side and are clamped to the nearest valid frame's value instead; the
// spline is never extrapolated past the first or last knot.
//
// When the mask contains no outliers the input is returned as an unchanged
// copy, so interpolation at a zero FD threshold is the identity.
func FillOutliers(data *mat.Dense, mask *models.TemporalMask, tr float64) (*mat.Dense, error) {
	t, v := data.Dims()
	if err := mask.CheckAligned(t, "data matrix"); err != nil {
		return nil, err
	}
	if tr <= 0 {
		return nil, fmt.Errorf("repetition time must be positive, got %g", tr)
	}

	out := mat.DenseCopyOf(data)
	outliers := mask.OutlierIndices()
	if len(outliers) == 0 {
		return out, nil
	}

	valid := mask.ValidIndices()
	if len(valid) == 0 {
		return nil, fmt.Errorf("cannot interpolate a run with no valid frames")
	}
	first, last := valid[0], valid[len(valid)-1]

	// Knot positions are shared across columns.
	xs := make([]float64, len(valid))
	for i, idx := range valid {
		xs[i] = float64(idx) * tr
	}

	ys := make([]float64, len(valid))
	col := make([]float64, t)
	for j := 0; j < v; j++ {
		mat.Col(col, j, data)
		for i, idx := range valid {
			ys[i] = col[idx]
		}

		predictor, err := fitPredictor(xs, ys)
		if err != nil {
			return nil, fmt.Errorf("fitting spline for column %d: %w", j, err)
		}

		for _, idx := range outliers {
			switch {
			case idx < first:
				// leading outlier block: clamp, never extrapolate
				out.Set(idx, j, col[first])
			case idx > last:
				// trailing outlier block: clamp, never extrapolate
				out.Set(idx, j, col[last])
			default:
				out.Set(idx, j, predictor.Predict(float64(idx)*tr))
			}
		}
	}

	return out, nil
}

// fitPredictor fits a cubic spline over the knots, falling back to
// piecewise-linear interpolation when too few valid frames remain for a
// stable cubic fit.
func fitPredictor(xs, ys []float64) (interp.Predictor, error) {
	if len(xs) >= minSplineKnots {
		var spline interp.NotAKnotCubic
		if err := spline.Fit(xs, ys); err != nil {
			return nil, err
		}
		return &spline, nil
	}
	var linear interp.PiecewiseLinear
	if err := linear.Fit(xs, ys); err != nil {
		return nil, err
	}
	return &linear, nil
}
