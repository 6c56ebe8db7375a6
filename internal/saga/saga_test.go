package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct{ entries []string }

func (j *journal) step(name string, fail error) Step {
	return NewStep(name,
		func(ctx context.Context) error {
			j.entries = append(j.entries, "exec "+name)
			return fail
		},
		func(ctx context.Context) error {
			j.entries = append(j.entries, "undo "+name)
			return nil
		})
}

func fast(o *Orchestrator) *Orchestrator {
	o.CompensationBackoff = time.Millisecond
	return o
}

func TestRunAllStepsSucceed(t *testing.T) {
	j := &journal{}
	err := fast(NewOrchestrator("checkout", j.step("a", nil), j.step("b", nil))).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"exec a", "exec b"}, j.entries)
}

func TestRunCompensatesAppliedStepsInReverse(t *testing.T) {
	j := &journal{}
	boom := errors.New("out of stock")

	err := fast(NewOrchestrator("checkout",
		j.step("a", nil),
		j.step("b", nil),
		j.step("c", boom),
		j.step("d", nil),
	)).Run(context.Background())

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"exec a", "exec b", "exec c", "undo b", "undo a"}, j.entries)
}

func TestCompensationIsRetried(t *testing.T) {
	attempts := 0
	flaky := NewStep("flaky",
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})
	fail := NewStep("fail", func(ctx context.Context) error { return errors.New("no") }, nil)

	err := fast(NewOrchestrator("checkout", flaky, fail)).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestCompensationGivesUpAndContinues(t *testing.T) {
	j := &journal{}
	attempts := 0
	stuck := NewStep("stuck",
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error {
			attempts++
			return errors.New("still down")
		})

	o := fast(NewOrchestrator("checkout", j.step("first", nil), stuck, j.step("last", errors.New("no"))))
	o.CompensationRetries = 2
	require.Error(t, o.Run(context.Background()))

	assert.Equal(t, 3, attempts, "one try plus two retries")
	assert.Equal(t, []string{"exec first", "exec last", "undo first"}, j.entries)
}

func TestCompensationSurvivesCancelledCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var undoErr error
	undone := false

	first := NewStep("reserve",
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error {
			undone = true
			undoErr = ctx.Err()
			return nil
		})
	second := NewStep("timeout", func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}, nil)

	err := fast(NewOrchestrator("checkout", first, second)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, undone)
	assert.NoError(t, undoErr)
}
