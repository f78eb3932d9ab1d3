package models

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Tab-separated serialization of the artifacts consumed by downstream
// packaging. The temporal mask is written as a single 0/1 column named
// "framewise_displacement", matching the convention of the upstream
// derivatives these files sit next to.

// WriteMaskTSV writes the temporal mask as an outlier indicator column.
func WriteMaskTSV(w io.Writer, mask *TemporalMask) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, "framewise_displacement"); err != nil {
		return err
	}
	for _, l := range mask.Labels {
		v := 0
		if l == FrameMotionOutlier {
			v = 1
		}
		if _, err := fmt.Fprintln(bw, v); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadMaskTSV reads a temporal mask written by WriteMaskTSV.
func ReadMaskTSV(r io.Reader) (*TemporalMask, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return nil, fmt.Errorf("empty temporal mask file")
	}
	if got := strings.TrimSpace(sc.Text()); got != "framewise_displacement" {
		return nil, fmt.Errorf("unexpected temporal mask header %q", got)
	}
	mask := &TemporalMask{}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("parsing temporal mask row %d: %w", mask.Len(), err)
		}
		label := FrameValid
		if v != 0 {
			label = FrameMotionOutlier
		}
		mask.Labels = append(mask.Labels, label)
	}
	return mask, sc.Err()
}

// WriteMotionTSV writes a motion trace with canonical column names, with an
// optional framewise_displacement column appended when fd is non-nil.
func WriteMotionTSV(w io.Writer, motion *MotionTrace, fd []float64) error {
	if fd != nil && len(fd) != motion.Frames() {
		return fmt.Errorf("fd has %d values but motion has %d frames", len(fd), motion.Frames())
	}
	bw := bufio.NewWriter(w)
	header := strings.Join(MotionColumnNames, "\t")
	if fd != nil {
		header += "\tframewise_displacement"
	}
	if _, err := fmt.Fprintln(bw, header); err != nil {
		return err
	}
	for i := 0; i < motion.Frames(); i++ {
		fields := make([]string, 0, MotionParams+1)
		for j := 0; j < MotionParams; j++ {
			fields = append(fields, formatFloat(motion.Data.At(i, j)))
		}
		if fd != nil {
			fields = append(fields, formatFloat(fd[i]))
		}
		if _, err := fmt.Fprintln(bw, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteMatrixTSV writes a dense matrix with the given column names.
func WriteMatrixTSV(w io.Writer, m *mat.Dense, names []string) error {
	r, c := m.Dims()
	if len(names) != c {
		return fmt.Errorf("matrix has %d columns but %d names", c, len(names))
	}
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, strings.Join(names, "\t")); err != nil {
		return err
	}
	fields := make([]string, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			fields[j] = formatFloat(m.At(i, j))
		}
		if _, err := fmt.Fprintln(bw, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadMatrixTSV reads a matrix with a header row of column names.
func ReadMatrixTSV(r io.Reader) (*mat.Dense, []string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<26)
	if !sc.Scan() {
		return nil, nil, fmt.Errorf("empty matrix file")
	}
	names := strings.Split(strings.TrimSpace(sc.Text()), "\t")
	var values []float64
	rows := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(names) {
			return nil, nil, fmt.Errorf("row %d has %d fields, expected %d", rows, len(fields), len(names))
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("parsing row %d: %w", rows, err)
			}
			values = append(values, v)
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if rows == 0 {
		return nil, nil, fmt.Errorf("matrix file has no data rows")
	}
	return mat.NewDense(rows, len(names), values), names, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
