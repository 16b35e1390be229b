package rotator

import (
	"context"
	"log/slog"
)

// Step is one stage of a start-up pipeline.
type Step interface {
	// Do executes the step against the runner it prepares.
	Do(ctx context.Context, r *Runner) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order and stops at the first failure.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// NewPipeline creates a Pipeline that runs steps in the given order.
func NewPipeline(logger *slog.Logger, steps ...Step) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{steps: steps, logger: logger}
}

// Execute runs all steps in sequence. Cancellation is checked before each
// step; steps handle their own timeouts.
func (p *Pipeline) Execute(ctx context.Context, r *Runner) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("start-up cancelled", "step", step.Name(), "reason", ctx.Err())
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step", "step", step.Name())
		if err := step.Do(ctx, r); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "error", err)
			return err
		}
		p.logger.Debug("step completed", "step", step.Name())
	}
	return nil
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
