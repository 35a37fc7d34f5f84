package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder builds steps that append their name when run.
type recorder struct {
	ran []string
}

func (r *recorder) step(name string, policy Policy, err error) Step {
	return Step{
		Name:   name,
		Policy: policy,
		Run: func(context.Context) error {
			r.ran = append(r.ran, name)
			return err
		},
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRun_AllSucceed(t *testing.T) {
	r := &recorder{}
	err := Run(context.Background(), setupTestLogger(), []Step{
		r.step("a", Propagate, nil),
		r.step("b", Suppress, nil),
		r.step("c", Propagate, nil),
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, r.ran)
}

func TestRun_PropagateFailureAborts(t *testing.T) {
	boom := errors.New("boom")
	r := &recorder{}
	err := Run(context.Background(), setupTestLogger(), []Step{
		r.step("sync", Propagate, nil),
		r.step("build", Propagate, boom),
		r.step("down", Propagate, nil),
		r.step("up", Propagate, nil),
	})

	require.Error(t, err)
	assert.Equal(t, []string{"sync", "build"}, r.ran)
	assert.ErrorIs(t, err, boom)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "build", stepErr.Step)
	assert.Equal(t, "step build: boom", err.Error())
}

func TestRun_SuppressFailureContinues(t *testing.T) {
	r := &recorder{}
	err := Run(context.Background(), setupTestLogger(), []Step{
		r.step("clear-cache-data", Suppress, errors.New("no such service")),
		r.step("clear-app-cache", Suppress, errors.New("exit status 1")),
		r.step("up", Propagate, nil),
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"clear-cache-data", "clear-app-cache", "up"}, r.ran)
}

func TestRun_CancelledContextStopsBeforeNextStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &recorder{}
	steps := []Step{
		{Name: "first", Run: func(context.Context) error {
			r.ran = append(r.ran, "first")
			cancel()
			return nil
		}},
		r.step("second", Propagate, nil),
	}

	err := Run(ctx, setupTestLogger(), steps)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, r.ran)
}

func TestRun_NilRun(t *testing.T) {
	err := Run(context.Background(), nil, []Step{{Name: "empty"}})
	assert.ErrorIs(t, err, ErrNilStep)
}

// =============================================================================
// Apply Tests
// =============================================================================

func TestApply(t *testing.T) {
	boom := errors.New("boom")

	assert.NoError(t, Apply(Propagate, nil, "x", nil, nil))
	assert.ErrorIs(t, Apply(Propagate, nil, "x", boom, setupTestLogger()), boom)
	assert.NoError(t, Apply(Suppress, nil, "x", boom, setupTestLogger()))
	assert.NoError(t, Apply(Suppress, nil, "x", boom, nil))
}

func TestApply_ToleranceLimitsSuppress(t *testing.T) {
	commandFailed := errors.New("remote command failed")
	onlyCommandFailures := Tolerance(func(err error) bool {
		return errors.Is(err, commandFailed)
	})

	wrapped := fmt.Errorf("clear-cache-data: %w", commandFailed)
	assert.NoError(t, Apply(Suppress, onlyCommandFailures, "x", wrapped, setupTestLogger()))

	cfgErr := errors.New("missing required .env/env vars: SERVER_USER")
	assert.ErrorIs(t, Apply(Suppress, onlyCommandFailures, "x", cfgErr, setupTestLogger()), cfgErr)
	assert.ErrorIs(t, Apply(Suppress, onlyCommandFailures, "x", context.Canceled, setupTestLogger()), context.Canceled)

	// Propagate ignores the tolerance.
	assert.ErrorIs(t, Apply(Propagate, onlyCommandFailures, "x", wrapped, setupTestLogger()), commandFailed)
}

func TestRun_SuppressStepAbortsOnUntoleratedError(t *testing.T) {
	notConfigured := errors.New("not configured")
	r := &recorder{}
	clearData := r.step("clear-cache-data", Suppress, notConfigured)
	clearData.Tolerate = func(error) bool { return false }

	err := Run(context.Background(), setupTestLogger(), []Step{
		clearData,
		r.step("up", Propagate, nil),
	})

	assert.ErrorIs(t, err, notConfigured)
	assert.Equal(t, []string{"clear-cache-data"}, r.ran)
}

func TestPolicy_String(t *testing.T) {
	assert.Equal(t, "propagate", Propagate.String())
	assert.Equal(t, "suppress", Suppress.String())
	assert.Equal(t, "policy(7)", Policy(7).String())
}
