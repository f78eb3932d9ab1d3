package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"boldpost/internal/models"
)

// Orthogonalize projects the signal subspace out of every noise column of
// the design and drops the signal columns from the regressor set. Noise
// regressors that happen to correlate with signal components would otherwise
// remove signal variance during the fit.
//
// With no signal-marked columns this is a no-op copy.
func Orthogonalize(design *models.ConfoundMatrix) (*models.ConfoundMatrix, error) {
	classes := ClassifyColumns(design.Names)

	var signalIdx, noiseIdx []int
	for j, name := range design.Names {
		if classes[name] == ClassSignal {
			signalIdx = append(signalIdx, j)
		} else {
			noiseIdx = append(noiseIdx, j)
		}
	}
	if len(signalIdx) == 0 {
		return &models.ConfoundMatrix{
			Data:  mat.DenseCopyOf(design.Data),
			Names: append([]string(nil), design.Names...),
		}, nil
	}
	if len(noiseIdx) == 0 {
		return nil, fmt.Errorf("design contains only signal columns, nothing to regress")
	}

	signal := selectColumns(design.Data, signalIdx)
	noise := selectColumns(design.Data, noiseIdx)

	// Project each noise column onto the signal subspace and subtract.
	betas, _, err := lstsqSVD(signal, noise)
	if err != nil {
		return nil, fmt.Errorf("orthogonalizing noise regressors: %w", err)
	}
	var projected mat.Dense
	projected.Mul(signal, betas)
	noise.Sub(noise, &projected)

	names := make([]string, len(noiseIdx))
	for i, j := range noiseIdx {
		names[i] = design.Names[j]
	}
	return models.NewConfoundMatrix(noise, names)
}

// Regress performs the two-stage fit. Betas are estimated on valid frames
// only (with an intercept column); they are then applied to the full
// interpolated BOLD and design so the residual is defined for every frame,
// including interpolated outliers. The censored residual is the valid-frame
// restriction of the interpolated residual, so valid-frame values agree
// between the two outputs exactly.
//
// The solver is an SVD pseudoinverse with tolerance-thresholded singular
// values, so rank-deficient designs still yield valid coefficients.
func Regress(boldInterp *mat.Dense, design *models.ConfoundMatrix, mask *models.TemporalMask) (*models.RegressionResult, error) {
	t, _ := boldInterp.Dims()
	if err := mask.CheckAligned(t, "interpolated BOLD"); err != nil {
		return nil, err
	}
	if design.Frames() != t {
		return nil, fmt.Errorf("design has %d frames but BOLD has %d", design.Frames(), t)
	}
	if hasNonFinite(boldInterp) {
		return nil, fmt.Errorf("interpolated BOLD contains NaN or Inf values")
	}
	if hasNonFinite(design.Data) {
		return nil, fmt.Errorf("nuisance design contains NaN or Inf values")
	}

	x := withIntercept(design.Data)

	valid := mask.ValidIndices()
	if len(valid) == 0 {
		return nil, fmt.Errorf("cannot fit regression with no valid frames")
	}
	xFit := models.SelectRows(x, valid)
	yFit := models.SelectRows(boldInterp, valid)

	betas, rank, err := lstsqSVD(xFit, yFit)
	if err != nil {
		return nil, fmt.Errorf("solving least squares: %w", err)
	}
	if hasNonFinite(betas) {
		return nil, fmt.Errorf("regression produced non-finite parameter estimates")
	}

	var fitted mat.Dense
	fitted.Mul(x, betas)
	denoisedInterp := mat.DenseCopyOf(boldInterp)
	denoisedInterp.Sub(denoisedInterp, &fitted)

	return &models.RegressionResult{
		Betas:                betas,
		DenoisedCensored:     models.SelectRows(denoisedInterp, valid),
		DenoisedInterpolated: denoisedInterp,
		Rank:                 rank,
	}, nil
}

// lstsqSVD solves min ||X*B - Y|| via the thin SVD pseudoinverse of X.
// Singular values below max(dims) * eps * s_max are treated as zero; the
// count of retained singular values is returned as the effective rank.
func lstsqSVD(x, y mat.Matrix) (*mat.Dense, int, error) {
	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, 0, fmt.Errorf("SVD factorization failed")
	}

	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	m, n := x.Dims()
	maxDim := m
	if n > maxDim {
		maxDim = n
	}
	tol := 0.0
	if len(s) > 0 {
		tol = float64(maxDim) * eps * s[0]
	}

	// B = V * diag(1/s) * U^T * Y, zeroing reciprocals of negligible
	// singular values.
	var uty mat.Dense
	uty.Mul(u.T(), y)
	rank := 0
	for i, sv := range s {
		if sv > tol {
			rank++
			row := uty.RawRowView(i)
			for j := range row {
				row[j] /= sv
			}
		} else {
			row := uty.RawRowView(i)
			for j := range row {
				row[j] = 0
			}
		}
	}

	var betas mat.Dense
	betas.Mul(&v, &uty)
	return &betas, rank, nil
}

const eps = 2.220446049250313e-16

// withIntercept returns a copy of m with a trailing column of ones.
func withIntercept(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c+1, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(i, j))
		}
		out.Set(i, c, 1)
	}
	return out
}

// selectColumns returns a copy of the given columns of m, in order.
func selectColumns(m *mat.Dense, cols []int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, len(cols), nil)
	buf := make([]float64, r)
	for i, j := range cols {
		mat.Col(buf, j, m)
		out.SetCol(i, buf)
	}
	return out
}

func hasNonFinite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}
