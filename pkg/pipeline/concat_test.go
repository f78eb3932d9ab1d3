package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"boldpost/internal/models"
)

// completedRun builds a minimal finished artifact set with the given frame
// counts.
func completedRun(name string, valid, total int, withInterp bool) *models.RunArtifacts {
	mask := models.NewTemporalMask(total)
	for i := valid; i < total; i++ {
		mask.Labels[i] = models.FrameMotionOutlier
	}

	a := &models.RunArtifacts{
		Name:           name,
		TaskGroup:      "task-rest",
		TR:             2.0,
		Denoised:       mat.NewDense(valid, 2, nil),
		Mask:           mask,
		FilteredMotion: &models.MotionTrace{Data: mat.NewDense(total, models.MotionParams, nil)},
		FD:             make([]float64, total),
	}
	for i := 0; i < valid; i++ {
		a.Denoised.Set(i, 0, float64(i))
	}
	if withInterp {
		a.DenoisedInterpolated = mat.NewDense(total, 2, nil)
	}
	return a
}

func TestConcatenateRuns(t *testing.T) {
	runs := []*models.RunArtifacts{
		completedRun("run-1", 95, 100, true),
		completedRun("run-2", 88, 90, true),
	}

	out, err := ConcatenateRuns("task-rest", runs)
	require.NoError(t, err)

	assert.Equal(t, "task-rest", out.TaskGroup)
	assert.Equal(t, []string{"run-1", "run-2"}, out.RunNames)

	r, c := out.Denoised.Dims()
	assert.Equal(t, 95+88, r)
	assert.Equal(t, 2, c)

	ri, _ := out.DenoisedInterpolated.Dims()
	assert.Equal(t, 100+90, ri)

	assert.Equal(t, 190, out.Mask.Len())
	assert.Equal(t, 190, len(out.FD))
	assert.Equal(t, 190, out.FilteredMotion.Frames())

	// run order is preserved along the time axis
	assert.Equal(t, 94.0, out.Denoised.At(94, 0))
	assert.Equal(t, 0.0, out.Denoised.At(95, 0))
}

func TestConcatenateRunsInterpolatedRequiresAllMembers(t *testing.T) {
	runs := []*models.RunArtifacts{
		completedRun("run-1", 50, 50, true),
		completedRun("run-2", 48, 50, false),
	}

	out, err := ConcatenateRuns("task-rest", runs)
	require.NoError(t, err)
	assert.Nil(t, out.DenoisedInterpolated,
		"the interpolated variant is joined only when every member carries it")
}

func TestConcatenateRunsRejectsIncompleteMember(t *testing.T) {
	runs := []*models.RunArtifacts{
		completedRun("run-1", 50, 50, true),
		nil,
	}

	_, err := ConcatenateRuns("task-rest", runs)
	require.ErrorIs(t, err, ErrIncompleteGroup)
}

func TestConcatenateRunsRejectsMismatchedSeries(t *testing.T) {
	a := completedRun("run-1", 50, 50, true)
	b := completedRun("run-2", 50, 50, true)
	b.Denoised = mat.NewDense(50, 3, nil)

	_, err := ConcatenateRuns("task-rest", []*models.RunArtifacts{a, b})
	require.Error(t, err)
}

func TestConcatenateRunsEmptyGroup(t *testing.T) {
	_, err := ConcatenateRuns("task-rest", nil)
	require.Error(t, err)
}

func TestConcatenateGroups(t *testing.T) {
	outcomes := []RunOutcome{
		{Name: "run-1", TaskGroup: "task-rest", Artifacts: completedRun("run-1", 95, 100, true)},
		{Name: "run-2", TaskGroup: "task-rest", Artifacts: completedRun("run-2", 90, 100, true)},
		{Name: "run-3", TaskGroup: "task-motor", Artifacts: completedRun("run-3", 80, 80, true)},
	}

	results, skipped, failed := ConcatenateGroups(outcomes)
	assert.Empty(t, skipped)
	assert.Empty(t, failed)
	require.Len(t, results, 2)

	rest := results["task-rest"]
	require.NotNil(t, rest)
	r, _ := rest.Denoised.Dims()
	assert.Equal(t, 185, r)

	motor := results["task-motor"]
	require.NotNil(t, motor)
	assert.Equal(t, []string{"run-3"}, motor.RunNames)
}

func TestConcatenateGroupsSkipsIncompleteGroup(t *testing.T) {
	outcomes := []RunOutcome{
		{Name: "run-1", TaskGroup: "task-rest", Artifacts: completedRun("run-1", 95, 100, true)},
		{Name: "run-2", TaskGroup: "task-rest", Err: &InsufficientDataError{Valid: 5, Required: 10}},
		{Name: "run-3", TaskGroup: "task-motor", Artifacts: completedRun("run-3", 80, 80, true)},
	}

	results, skipped, failed := ConcatenateGroups(outcomes)
	assert.Empty(t, failed)

	assert.Equal(t, []string{"task-rest"}, skipped,
		"a group with any incomplete run produces no concatenated output")
	assert.NotContains(t, results, "task-rest")
	assert.Contains(t, results, "task-motor")
}

func TestConcatenateGroupsIsolatesFailedGroup(t *testing.T) {
	bad := completedRun("run-bad", 50, 50, true)
	bad.Denoised = mat.NewDense(50, 3, nil)

	outcomes := []RunOutcome{
		{Name: "run-1", TaskGroup: "task-bad", Artifacts: completedRun("run-1", 50, 50, true)},
		{Name: "run-bad", TaskGroup: "task-bad", Artifacts: bad},
		{Name: "run-2", TaskGroup: "task-good", Artifacts: completedRun("run-2", 40, 40, true)},
	}

	results, skipped, failed := ConcatenateGroups(outcomes)

	assert.Contains(t, results, "task-good",
		"a group that fails to concatenate must not discard its siblings")
	assert.NotContains(t, results, "task-bad")
	assert.Equal(t, []string{"task-bad"}, skipped)
	require.Contains(t, failed, "task-bad")
	assert.ErrorContains(t, failed["task-bad"], "series")
}

func TestConcatenateGroupsIgnoresUngroupedRuns(t *testing.T) {
	outcomes := []RunOutcome{
		{Name: "run-1", TaskGroup: "", Artifacts: completedRun("run-1", 50, 50, true)},
	}

	results, skipped, failed := ConcatenateGroups(outcomes)
	assert.Empty(t, results)
	assert.Empty(t, skipped)
	assert.Empty(t, failed)
}
