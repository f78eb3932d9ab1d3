package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessAll(t *testing.T) {
	cfg := passthroughConfig()
	runner := NewRunner(cfg, quietLogger())

	inputs := []*RunInput{
		syntheticInput(t, "run-1", 100, []int{20, 35}),
		syntheticInput(t, "run-2", 90, nil),
		syntheticInput(t, "run-3", 110, []int{50}),
	}

	outcomes, err := runner.ProcessAll(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	// outcomes stay in input order regardless of completion order
	for i, in := range inputs {
		assert.Equal(t, in.Name, outcomes[i].Name)
		assert.NoError(t, outcomes[i].Err)
		require.NotNil(t, outcomes[i].Artifacts)
	}

	r1, _ := outcomes[0].Artifacts.Denoised.Dims()
	assert.Equal(t, 98, r1)
	r2, _ := outcomes[1].Artifacts.Denoised.Dims()
	assert.Equal(t, 90, r2)
}

func TestProcessAllIsolatesRunFailures(t *testing.T) {
	cfg := passthroughConfig()
	cfg.Censor.MinValidFrames = 95
	runner := NewRunner(cfg, quietLogger())

	inputs := []*RunInput{
		syntheticInput(t, "run-clean", 100, nil),
		// 10 outliers leave 90 valid frames, below the 95 required
		syntheticInput(t, "run-motion", 100, []int{5, 15, 25, 35, 45, 55, 65, 75, 85, 95}),
	}

	outcomes, err := runner.ProcessAll(context.Background(), inputs)
	require.NoError(t, err, "a run-level failure must not abort the batch")

	require.NotNil(t, outcomes[0].Artifacts)
	assert.NoError(t, outcomes[0].Err)

	assert.Nil(t, outcomes[1].Artifacts)
	require.Error(t, outcomes[1].Err)
	assert.True(t, IsInsufficientData(outcomes[1].Err))

	// the incomplete run poisons its whole concatenation group
	results, skipped, failed := ConcatenateGroups(outcomes)
	assert.Empty(t, results)
	assert.Empty(t, failed)
	assert.Equal(t, []string{"task-rest"}, skipped)
}

func TestProcessAllHonorsCancellation(t *testing.T) {
	runner := NewRunner(passthroughConfig(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := []*RunInput{
		syntheticInput(t, "run-1", 100, nil),
		syntheticInput(t, "run-2", 100, nil),
	}

	outcomes, err := runner.ProcessAll(ctx, inputs)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, 2)
}

func TestProcessAllZeroWorkersRunsSerially(t *testing.T) {
	cfg := passthroughConfig()
	// an unvalidated config may carry a zero worker count; the batch must
	// still make progress instead of blocking on the concurrency limit
	cfg.Output.Workers = 0
	runner := NewRunner(cfg, quietLogger())

	inputs := []*RunInput{
		syntheticInput(t, "run-1", 60, nil),
		syntheticInput(t, "run-2", 60, nil),
	}

	outcomes, err := runner.ProcessAll(context.Background(), inputs)
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
		assert.NotNil(t, o.Artifacts)
	}
}

func TestProcessAllWorkerBound(t *testing.T) {
	cfg := passthroughConfig()
	cfg.Output.Workers = 1
	runner := NewRunner(cfg, quietLogger())

	inputs := []*RunInput{
		syntheticInput(t, "run-1", 60, nil),
		syntheticInput(t, "run-2", 60, nil),
		syntheticInput(t, "run-3", 60, nil),
		syntheticInput(t, "run-4", 60, nil),
	}

	outcomes, err := runner.ProcessAll(context.Background(), inputs)
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
		assert.NotNil(t, o.Artifacts)
	}
}
