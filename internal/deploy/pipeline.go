package deploy

import (
	"context"
	"fmt"

	"github.com/bchexplorer/deployctl/internal/core/pipeline"
	"github.com/google/uuid"
)

// DeploySequence is the fixed order of the deploy workflow. Code is synced
// and built before the old containers stop so the gap between down and up
// stays short; caches are cleared while the stack is down.
var DeploySequence = []string{
	OpSync,
	OpBuild,
	OpDown,
	OpClearCacheData,
	OpClearAppCache,
	OpUp,
}

// Deploy selects the default environment when none is selected, then runs
// DeploySequence. The first failing lifecycle step aborts the run and its
// error is returned. Nothing is rolled back: a failure after down leaves
// the stack stopped.
func (o *Operations) Deploy(ctx context.Context) error {
	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID)

	selected, err := o.selector.SelectDefault()
	if err != nil {
		return fmt.Errorf("%s: %w", OpDeploy, err)
	}
	if selected {
		logger.Info("no environment selected, using default", "environment", o.cfg.Name)
	}

	steps, err := o.steps(DeploySequence...)
	if err != nil {
		return err
	}

	o.reporter.Stage(fmt.Sprintf("Starting deployment of %s to %s", o.environmentLabel(), o.cfg.Target()))
	logger.Info("deploy started",
		"environment", o.cfg.Name,
		"host", o.cfg.Host,
		"remote_path", o.cfg.RemotePath,
		"steps", len(steps),
	)

	if err := pipeline.Run(ctx, logger, steps); err != nil {
		o.reporter.Fail(fmt.Sprintf("Deployment failed: %v", err))
		return err
	}

	o.reporter.Success("Deployment complete")
	logger.Info("deploy finished")
	return nil
}

func (o *Operations) environmentLabel() string {
	if o.cfg.Name == "" {
		return "default configuration"
	}
	return o.cfg.Name
}
