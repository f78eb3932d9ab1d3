package regression

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Detrend fits a linear trend (frame index as regressor) to each column and
// subtracts it, which also removes the column mean. It is only meaningful
// ahead of confound regression; the pipeline skips it when regression is
// disabled.
func Detrend(data *mat.Dense) *mat.Dense {
	t, v := data.Dims()
	out := mat.NewDense(t, v, nil)

	xs := make([]float64, t)
	for i := range xs {
		xs[i] = float64(i)
	}

	col := make([]float64, t)
	for j := 0; j < v; j++ {
		mat.Col(col, j, data)
		alpha, beta := stat.LinearRegression(xs, col, nil, false)
		for i := 0; i < t; i++ {
			out.Set(i, j, col[i]-(alpha+beta*xs[i]))
		}
	}
	return out
}
