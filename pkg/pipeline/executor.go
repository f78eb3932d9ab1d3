package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"boldpost/internal/models"
)

// RunOutcome records one run's result. Exactly one of Artifacts and Err is
// set. An early stop from insufficient low-motion data is reported through
// Err and identified with IsInsufficientData.
type RunOutcome struct {
	Name      string
	TaskGroup string
	Artifacts *models.RunArtifacts

	// Err is non-nil when the run produced no artifacts.
	Err error
}

// ProcessAll executes independent runs concurrently, bounded by the
// configured worker count. Runs share no mutable state; a run-level failure
// is recorded in its outcome and never aborts sibling runs. The only way the
// whole call fails is context cancellation.
func (r *Runner) ProcessAll(ctx context.Context, inputs []*RunInput) ([]RunOutcome, error) {
	outcomes := make([]RunOutcome, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	// a non-positive limit would make every Go call block forever, so an
	// unvalidated worker count falls back to serial execution
	workers := r.cfg.Output.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, in := range inputs {
		g.Go(func() error {
			artifacts, err := r.Process(gctx, in)
			outcomes[i] = RunOutcome{
				Name:      in.Name,
				TaskGroup: in.TaskGroup,
				Artifacts: artifacts,
				Err:       err,
			}
			// Cancellation is the only error that stops the group; run
			// failures stay local to their outcome.
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
