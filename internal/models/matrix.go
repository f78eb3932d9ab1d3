// Package models defines the core data entities shared by every stage of the
// post-processing pipeline: the BOLD time-series matrix, the confound matrix,
// the rigid-body motion trace, and the per-frame temporal mask.
package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Motion parameter column order used throughout the pipeline.
// Translations are in millimeters, rotations in degrees.
const (
	MotionTransX = iota
	MotionTransY
	MotionTransZ
	MotionRotX
	MotionRotY
	MotionRotZ
	MotionParams // number of motion parameters
)

// MotionColumnNames are the canonical confound-table column names for the six
// rigid-body motion parameters, in MotionTrace column order.
var MotionColumnNames = []string{
	"trans_x", "trans_y", "trans_z",
	"rot_x", "rot_y", "rot_z",
}

// TimeSeriesMatrix holds one run's BOLD signal as frames (rows) by
// voxels/vertices/parcels (columns). Rows are time ordered and are never
// reordered after creation; the only permitted row-count change is the
// one-time removal of dummy scans at trim time.
type TimeSeriesMatrix struct {
	Data *mat.Dense
}

// NewTimeSeriesMatrix wraps a T x V data matrix.
func NewTimeSeriesMatrix(data *mat.Dense) *TimeSeriesMatrix {
	return &TimeSeriesMatrix{Data: data}
}

// Frames returns the number of time points T.
func (m *TimeSeriesMatrix) Frames() int {
	r, _ := m.Data.Dims()
	return r
}

// Series returns the number of columns V.
func (m *TimeSeriesMatrix) Series() int {
	_, c := m.Data.Dims()
	return c
}

// ConfoundMatrix holds the named nuisance regressors for one run. Rows are
// aligned one-to-one with the rows of the run's TimeSeriesMatrix at every
// pipeline stage.
type ConfoundMatrix struct {
	Data  *mat.Dense
	Names []string
}

// NewConfoundMatrix wraps a T x C data matrix with its column names.
func NewConfoundMatrix(data *mat.Dense, names []string) (*ConfoundMatrix, error) {
	_, c := data.Dims()
	if c != len(names) {
		return nil, fmt.Errorf("confound matrix has %d columns but %d names", c, len(names))
	}
	return &ConfoundMatrix{Data: data, Names: names}, nil
}

// Frames returns the number of time points T.
func (m *ConfoundMatrix) Frames() int {
	r, _ := m.Data.Dims()
	return r
}

// Columns returns the number of confound columns C.
func (m *ConfoundMatrix) Columns() int {
	_, c := m.Data.Dims()
	return c
}

// ColumnIndex returns the index of the named column, or -1 if absent.
func (m *ConfoundMatrix) ColumnIndex(name string) int {
	for i, n := range m.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's values.
func (m *ConfoundMatrix) Column(name string) ([]float64, error) {
	i := m.ColumnIndex(name)
	if i < 0 {
		return nil, fmt.Errorf("confound column %q not found", name)
	}
	col := make([]float64, m.Frames())
	mat.Col(col, i, m.Data)
	return col, nil
}

// MotionTrace holds the six rigid-body motion parameters per frame as a
// T x 6 matrix in MotionTransX..MotionRotZ column order.
type MotionTrace struct {
	Data *mat.Dense
}

// NewMotionTrace wraps a T x 6 motion parameter matrix.
func NewMotionTrace(data *mat.Dense) (*MotionTrace, error) {
	_, c := data.Dims()
	if c != MotionParams {
		return nil, fmt.Errorf("motion trace must have %d columns, got %d", MotionParams, c)
	}
	return &MotionTrace{Data: data}, nil
}

// Frames returns the number of time points T.
func (m *MotionTrace) Frames() int {
	r, _ := m.Data.Dims()
	return r
}

// Clone returns a deep copy of the trace.
func (m *MotionTrace) Clone() *MotionTrace {
	return &MotionTrace{Data: mat.DenseCopyOf(m.Data)}
}

// MotionFromConfounds extracts the six motion parameter columns from a
// confound matrix, in canonical order.
func MotionFromConfounds(conf *ConfoundMatrix) (*MotionTrace, error) {
	t := conf.Frames()
	data := mat.NewDense(t, MotionParams, nil)
	for j, name := range MotionColumnNames {
		col, err := conf.Column(name)
		if err != nil {
			return nil, err
		}
		data.SetCol(j, col)
	}
	return &MotionTrace{Data: data}, nil
}

// SelectRows returns a new matrix containing only the given rows of src,
// in the given order.
func SelectRows(src *mat.Dense, rows []int) *mat.Dense {
	_, c := src.Dims()
	dst := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		dst.SetRow(i, src.RawRowView(r))
	}
	return dst
}
