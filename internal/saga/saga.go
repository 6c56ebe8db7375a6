// Package saga runs a sequence of steps where each applied step can be undone.
package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Step is a single unit of work in a saga. Compensate must undo exactly what
// a successful Execute applied.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

type funcStep struct {
	name       string
	execute    func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// NewStep builds a Step from two funcs. A nil compensate means nothing to undo.
func NewStep(name string, execute, compensate func(ctx context.Context) error) Step {
	return &funcStep{name: name, execute: execute, compensate: compensate}
}

func (s *funcStep) Name() string                      { return s.name }
func (s *funcStep) Execute(ctx context.Context) error { return s.execute(ctx) }
func (s *funcStep) Compensate(ctx context.Context) error {
	if s.compensate == nil {
		return nil
	}
	return s.compensate(ctx)
}

const (
	DefaultCompensationTimeout = 5 * time.Second
	DefaultCompensationRetries = 3
	DefaultCompensationBackoff = 50 * time.Millisecond
)

type Orchestrator struct {
	name  string
	steps []Step

	CompensationTimeout time.Duration
	CompensationRetries uint64
	CompensationBackoff time.Duration

	tracer trace.Tracer
}

func NewOrchestrator(name string, steps ...Step) *Orchestrator {
	return &Orchestrator{
		name:                name,
		steps:               steps,
		CompensationTimeout: DefaultCompensationTimeout,
		CompensationRetries: DefaultCompensationRetries,
		CompensationBackoff: DefaultCompensationBackoff,
		tracer:              otel.Tracer("storefront/saga"),
	}
}

// Run executes the steps in order. When one fails, every step that already
// succeeded is compensated in reverse order and the failing step's error is
// returned unchanged.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, o.name)
	defer span.End()

	done := make([]Step, 0, len(o.steps))
	for _, step := range o.steps {
		if err := o.execute(ctx, step); err != nil {
			slog.InfoContext(ctx, "saga step failed, rolling back",
				"saga", o.name, "step", step.Name(), "applied", len(done), "err", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, step.Name())
			o.rollback(ctx, done)
			return err
		}
		done = append(done, step)
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, step Step) error {
	ctx, span := o.tracer.Start(ctx, step.Name(), trace.WithAttributes(attribute.String("saga", o.name)))
	defer span.End()
	if err := step.Execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// rollback runs detached from the caller's cancellation: a request that timed
// out must still release what it took.
func (o *Orchestrator) rollback(ctx context.Context, done []Step) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.CompensationTimeout)
	defer cancel()

	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if err := o.compensate(ctx, step); err != nil {
			slog.ErrorContext(ctx, "CRITICAL: failed to compensate saga step",
				"saga", o.name, "step", step.Name(), "err", err)
		}
	}
}

func (o *Orchestrator) compensate(ctx context.Context, step Step) error {
	ctx, span := o.tracer.Start(ctx, "compensate "+step.Name())
	defer span.End()

	backoff := retry.WithMaxRetries(o.CompensationRetries, retry.NewExponential(o.CompensationBackoff))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := step.Compensate(ctx); err != nil {
			slog.WarnContext(ctx, "compensation attempt failed",
				"saga", o.name, "step", step.Name(), "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compensation failed")
		return fmt.Errorf("compensate %s after %d attempts: %w", step.Name(), attempt, err)
	}
	return nil
}
