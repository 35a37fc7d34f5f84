// Package pipeline runs an ordered list of steps with a failure policy per step.
//
// A step with the Propagate policy aborts the run on failure and its error is
// returned. A step with the Suppress policy is best-effort: a failure its
// Tolerance accepts is logged and the run continues, any other failure aborts
// like Propagate. Nothing is rolled back after an abort.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// =============================================================================
// Policy
// =============================================================================

// Policy decides what a step failure does to the run.
type Policy int

const (
	// Propagate aborts the run and returns the step's error.
	Propagate Policy = iota
	// Suppress logs the step's error and continues.
	Suppress
)

func (p Policy) String() string {
	switch p {
	case Propagate:
		return "propagate"
	case Suppress:
		return "suppress"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Tolerance reports whether a Suppress step may swallow err.
// A nil Tolerance swallows every error.
type Tolerance func(err error) bool

func (t Tolerance) accepts(err error) bool {
	return t == nil || t(err)
}

// Apply enforces policy on the outcome of a named operation.
// Suppressed errors are logged at warn level and nil is returned. Errors
// outside tolerate are returned whatever the policy.
func Apply(policy Policy, tolerate Tolerance, name string, err error, logger *slog.Logger) error {
	if err == nil {
		return nil
	}
	if policy == Suppress && tolerate.accepts(err) {
		if logger != nil {
			logger.Warn("best-effort step failed, continuing",
				"step", name,
				"error", err,
			)
		}
		return nil
	}
	return err
}

// =============================================================================
// Steps
// =============================================================================

// Step is one unit of a pipeline.
type Step struct {
	Name     string
	Policy   Policy
	Tolerate Tolerance // consulted for Suppress only
	Run      func(ctx context.Context) error
}

// StepError reports which step aborted a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ErrNilStep is returned for a step without a Run function.
var ErrNilStep = errors.New("step has no run function")

// Run executes steps in order. It stops at the first Propagate failure and
// returns it wrapped in a *StepError. A cancelled context stops the run
// before the next step starts.
func Run(ctx context.Context, logger *slog.Logger, steps []Step) error {
	if logger == nil {
		logger = slog.Default()
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: step.Name, Err: err}
		}
		if step.Run == nil {
			return &StepError{Step: step.Name, Err: ErrNilStep}
		}

		logger.Debug("running step",
			"step", step.Name,
			"index", i+1,
			"total", len(steps),
			"policy", step.Policy.String(),
		)

		err := Apply(step.Policy, step.Tolerate, step.Name, step.Run(ctx), logger)
		if err != nil {
			logger.Error("step failed, aborting",
				"step", step.Name,
				"error", err,
			)
			return &StepError{Step: step.Name, Err: err}
		}
	}

	return nil
}
