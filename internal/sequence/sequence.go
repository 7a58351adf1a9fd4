// internal/sequence/sequence.go

// Package sequence chains conditional UI operations into a single ordered,
// fail-fast execution. Steps whose guard is false are omitted entirely, so
// the executed chain length is data-dependent.
package sequence

import (
	"context"

	"go.uber.org/zap"
)

// Step is one guarded operation in a chain. A nil Guard always runs. A false
// Guard contributes nothing to the chain: no operation, no delay, no log
// beyond a debug trace.
type Step struct {
	Name  string
	Guard func() bool
	Run   func(ctx context.Context) error
}

// Sequence executes steps strictly in order, one at a time.
type Sequence struct {
	logger *zap.Logger
	steps  []Step
}

// New returns an empty sequence. A nil logger is replaced with a no-op one.
func New(logger *zap.Logger) *Sequence {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequence{logger: logger.Named("sequence")}
}

// Append adds steps to the end of the chain and returns the sequence for
// call-site assembly.
func (s *Sequence) Append(steps ...Step) *Sequence {
	s.steps = append(s.steps, steps...)
	return s
}

// Len reports how many steps the chain holds, counting guarded ones.
func (s *Sequence) Len() int { return len(s.steps) }

// Run executes the selected steps in order. The first failing step aborts the
// remainder and its error is returned exactly as produced, so the root cause
// reaches the caller without wrapping. Context cancellation between steps
// stops the chain with ctx.Err().
func (s *Sequence) Run(ctx context.Context) error {
	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if step.Guard != nil && !step.Guard() {
			s.logger.Debug("Step skipped by guard.", zap.String("step", step.Name))
			continue
		}
		if err := step.Run(ctx); err != nil {
			s.logger.Debug("Step failed, aborting chain.", zap.String("step", step.Name), zap.Error(err))
			return err
		}
	}
	return nil
}

// Run is a convenience for one-off chains built at the call site.
func Run(ctx context.Context, logger *zap.Logger, steps ...Step) error {
	return New(logger).Append(steps...).Run(ctx)
}
