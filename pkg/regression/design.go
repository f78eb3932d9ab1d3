// Package regression builds the nuisance design matrix and removes it from
// the BOLD signal with a two-stage least-squares fit: parameter estimates
// come from valid frames only, and are then applied to every frame of the
// interpolated data so the residual is defined at interpolated positions
// too.
package regression

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"boldpost/internal/models"
)

// SignalPrefix marks confound columns that carry signal of interest rather
// than noise. Such columns are excluded from the noise-regressor set, and
// the noise columns are orthogonalized against them before fitting.
const SignalPrefix = "signal__"

// ColumnClass labels a confound column as signal or noise.
type ColumnClass int

const (
	// ClassNoise marks an ordinary nuisance column.
	ClassNoise ColumnClass = iota

	// ClassSignal marks a column carrying signal of interest.
	ClassSignal
)

// ClassifyColumns builds the column-classification map once per run, keyed
// by column name. Classification happens here and nowhere else; the
// regression code consults the map rather than re-matching names.
func ClassifyColumns(names []string) map[string]ColumnClass {
	classes := make(map[string]ColumnClass, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, SignalPrefix) {
			classes[name] = ClassSignal
		} else {
			classes[name] = ClassNoise
		}
	}
	return classes
}

// Tissue and global signal confound column names expected from the upstream
// confound table.
const (
	columnCSF          = "csf"
	columnWhiteMatter  = "white_matter"
	columnGlobalSignal = "global_signal"
)

// Column-name prefixes of component-based regressor families produced by the
// upstream preprocessing pipeline.
const (
	prefixACompCor    = "a_comp_cor_"
	prefixCosine      = "cosine"
	prefixAROMAMotion = "aroma_motion_"
)

// BuildDesign assembles the nuisance design for the named strategy.
//
// 24P: the six (filtered) motion parameters, their temporal derivatives, and
// the squares of those twelve. 27P: 24P plus CSF, white matter and global
// signal. 36P: the nine base regressors (motion plus tissue/global), their
// derivatives, and the squares of all eighteen. "acompcor" uses motion plus
// derivatives alongside the anatomical CompCor components and cosine drift
// columns from the confound table. "aroma" uses the AROMA motion components
// plus CSF and white matter. "custom" uses only the caller-supplied columns;
// "none" disables regression and returns nil.
//
// When custom columns are supplied alongside a named strategy they are
// appended to the built-in set. Motion columns always come from the filtered
// trace, never the raw confound table, so exactly one motion representation
// exists downstream of the motion filter.
func BuildDesign(
	conf *models.ConfoundMatrix,
	motion *models.MotionTrace,
	strategy string,
	custom *models.ConfoundMatrix,
) (*models.ConfoundMatrix, error) {
	if strategy == "none" {
		return nil, nil
	}
	if strategy == "custom" {
		if custom == nil {
			return nil, fmt.Errorf("strategy custom requires user-supplied confound columns")
		}
		return &models.ConfoundMatrix{Data: mat.DenseCopyOf(custom.Data), Names: append([]string(nil), custom.Names...)}, nil
	}

	t := motion.Frames()
	b := newDesignBuilder(t)

	motionCols := make([][]float64, models.MotionParams)
	for j := 0; j < models.MotionParams; j++ {
		col := make([]float64, t)
		mat.Col(col, j, motion.Data)
		motionCols[j] = col
	}

	switch strategy {
	case "24P":
		// motion, derivatives, then squares of both
		for j, col := range motionCols {
			b.add(models.MotionColumnNames[j], col)
		}
		for j, col := range motionCols {
			b.add(models.MotionColumnNames[j]+"_derivative1", derivative(col))
		}
		b.squareAll()

	case "27P":
		for j, col := range motionCols {
			b.add(models.MotionColumnNames[j], col)
		}
		for j, col := range motionCols {
			b.add(models.MotionColumnNames[j]+"_derivative1", derivative(col))
		}
		b.squareAll()
		if err := b.addFromConfounds(conf, columnCSF, columnWhiteMatter, columnGlobalSignal); err != nil {
			return nil, err
		}

	case "36P":
		for j, col := range motionCols {
			b.add(models.MotionColumnNames[j], col)
		}
		if err := b.addFromConfounds(conf, columnCSF, columnWhiteMatter, columnGlobalSignal); err != nil {
			return nil, err
		}
		b.derivativeAll()
		b.squareAll()

	case "acompcor":
		for j, col := range motionCols {
			b.add(models.MotionColumnNames[j], col)
		}
		b.derivativeAll()
		if err := b.addByPrefix(conf, prefixACompCor, true); err != nil {
			return nil, err
		}
		// cosine drift columns are optional; short runs may have none
		if err := b.addByPrefix(conf, prefixCosine, false); err != nil {
			return nil, err
		}

	case "aroma":
		if err := b.addByPrefix(conf, prefixAROMAMotion, true); err != nil {
			return nil, err
		}
		if err := b.addFromConfounds(conf, columnCSF, columnWhiteMatter); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown nuisance-regressor strategy %q", strategy)
	}

	if custom != nil {
		for j, name := range custom.Names {
			col := make([]float64, t)
			mat.Col(col, j, custom.Data)
			b.add(name, col)
		}
	}

	return b.build()
}

// designBuilder accumulates named columns of a fixed frame count.
type designBuilder struct {
	frames int
	names  []string
	cols   [][]float64
}

func newDesignBuilder(frames int) *designBuilder {
	return &designBuilder{frames: frames}
}

func (b *designBuilder) add(name string, col []float64) {
	b.names = append(b.names, name)
	b.cols = append(b.cols, col)
}

func (b *designBuilder) addFromConfounds(conf *models.ConfoundMatrix, names ...string) error {
	for _, name := range names {
		col, err := conf.Column(name)
		if err != nil {
			return fmt.Errorf("strategy requires confound column %q: %w", name, err)
		}
		b.add(name, col)
	}
	return nil
}

// addByPrefix appends every confound column whose name starts with prefix,
// in table order. When required is set, at least one match must exist.
func (b *designBuilder) addByPrefix(conf *models.ConfoundMatrix, prefix string, required bool) error {
	found := false
	for _, name := range conf.Names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		col, err := conf.Column(name)
		if err != nil {
			return err
		}
		b.add(name, col)
		found = true
	}
	if required && !found {
		return fmt.Errorf("strategy requires confound columns with prefix %q", prefix)
	}
	return nil
}

// derivativeAll appends the temporal derivative of every column added so far.
func (b *designBuilder) derivativeAll() {
	n := len(b.cols)
	for i := 0; i < n; i++ {
		b.add(b.names[i]+"_derivative1", derivative(b.cols[i]))
	}
}

// squareAll appends the element-wise square of every column added so far.
func (b *designBuilder) squareAll() {
	n := len(b.cols)
	for i := 0; i < n; i++ {
		sq := make([]float64, len(b.cols[i]))
		for k, v := range b.cols[i] {
			sq[k] = v * v
		}
		b.add(b.names[i]+"_power2", sq)
	}
}

func (b *designBuilder) build() (*models.ConfoundMatrix, error) {
	data := mat.NewDense(b.frames, len(b.cols), nil)
	for j, col := range b.cols {
		data.SetCol(j, col)
	}
	return models.NewConfoundMatrix(data, b.names)
}

// derivative returns the backward temporal difference of col, with the first
// frame set to 0.
func derivative(col []float64) []float64 {
	out := make([]float64, len(col))
	for i := 1; i < len(col); i++ {
		out[i] = col[i] - col[i-1]
	}
	return out
}
