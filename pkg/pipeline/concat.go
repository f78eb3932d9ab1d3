package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"boldpost/internal/models"
)

// ConcatenateRuns merges a group of same-task runs that each completed the
// full pipeline, joining their denoised matrices, temporal masks, motion
// parameters and FD series along the time axis in run order. Per-run
// artifacts are read-only inputs; new concatenated artifacts are produced.
//
// The denoised-interpolated variant is concatenated only when every member
// run carries it.
func ConcatenateRuns(taskGroup string, runs []*models.RunArtifacts) (*models.ConcatenatedRuns, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("concatenation group %q is empty", taskGroup)
	}
	for _, run := range runs {
		if run == nil {
			return nil, fmt.Errorf("group %q: %w", taskGroup, ErrIncompleteGroup)
		}
	}

	_, v := runs[0].Denoised.Dims()
	haveInterp := true
	for _, run := range runs {
		_, c := run.Denoised.Dims()
		if c != v {
			return nil, fmt.Errorf("group %q: run %q has %d series, expected %d", taskGroup, run.Name, c, v)
		}
		if run.DenoisedInterpolated == nil {
			haveInterp = false
		}
	}

	out := &models.ConcatenatedRuns{
		TaskGroup: taskGroup,
		Mask:      &models.TemporalMask{},
	}

	var denoisedParts, interpParts, motionParts []*mat.Dense
	for _, run := range runs {
		out.RunNames = append(out.RunNames, run.Name)
		denoisedParts = append(denoisedParts, run.Denoised)
		if haveInterp {
			interpParts = append(interpParts, run.DenoisedInterpolated)
		}
		motionParts = append(motionParts, run.FilteredMotion.Data)
		out.Mask.Labels = append(out.Mask.Labels, run.Mask.Labels...)
		out.Mask.DummyRemoved += run.Mask.DummyRemoved
		out.FD = append(out.FD, run.FD...)
	}

	out.Denoised = stackRows(denoisedParts)
	if haveInterp {
		out.DenoisedInterpolated = stackRows(interpParts)
	}
	out.FilteredMotion = &models.MotionTrace{Data: stackRows(motionParts)}

	return out, nil
}

// ConcatenateGroups concatenates each task group of completed outcomes.
// A group containing any incomplete run (early stop or failure) is skipped
// entirely; no partial concatenation across an incomplete set is ever
// produced. A group whose own concatenation fails is likewise skipped, with
// the cause recorded under its name in the returned failure map; one bad
// group never discards or aborts its siblings. Skipped group names are
// returned alongside the results.
func ConcatenateGroups(outcomes []RunOutcome) (map[string]*models.ConcatenatedRuns, []string, map[string]error) {
	groups := make(map[string][]*models.RunArtifacts)
	incomplete := make(map[string]bool)
	var order []string

	for _, o := range outcomes {
		if o.TaskGroup == "" {
			continue
		}
		if _, seen := groups[o.TaskGroup]; !seen && !incomplete[o.TaskGroup] {
			order = append(order, o.TaskGroup)
		}
		if o.Err != nil || o.Artifacts == nil {
			incomplete[o.TaskGroup] = true
			continue
		}
		groups[o.TaskGroup] = append(groups[o.TaskGroup], o.Artifacts)
	}

	results := make(map[string]*models.ConcatenatedRuns)
	failed := make(map[string]error)
	var skipped []string
	for _, group := range order {
		if incomplete[group] {
			skipped = append(skipped, group)
			continue
		}
		concat, err := ConcatenateRuns(group, groups[group])
		if err != nil {
			skipped = append(skipped, group)
			failed[group] = err
			continue
		}
		results[group] = concat
	}
	return results, skipped, failed
}

// stackRows concatenates matrices with equal column counts along the row
// axis.
func stackRows(parts []*mat.Dense) *mat.Dense {
	total := 0
	_, c := parts[0].Dims()
	for _, p := range parts {
		r, _ := p.Dims()
		total += r
	}
	out := mat.NewDense(total, c, nil)
	row := 0
	for _, p := range parts {
		r, _ := p.Dims()
		for i := 0; i < r; i++ {
			out.SetRow(row, p.RawRowView(i))
			row++
		}
	}
	return out
}
