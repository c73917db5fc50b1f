package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alexisbeaulieu97/bootstrap/internal/logger"
	"github.com/alexisbeaulieu97/bootstrap/internal/model"
)

// Step is the idempotency primitive: a read-only Evaluate deciding whether
// anything needs doing, and an Apply that does it. Apply only runs when
// Evaluate reported action required, and never under dry-run.
type Step interface {
	// ID is the stable step identifier used in results and logs.
	ID() string

	// Name is the human-readable label shown in the progress UI.
	Name() string

	// Advisory steps log their failure and let the run continue; all other
	// step failures abort the pipeline.
	Advisory() bool

	// Evaluate assesses live machine state. It must not mutate anything.
	Evaluate(ctx context.Context) (*model.EvaluationResult, error)

	// Apply mutates the machine toward the desired state.
	Apply(ctx context.Context, eval *model.EvaluationResult) (*model.StepResult, error)
}

// CriticalEvaluator marks steps whose evaluation errors must abort the run
// instead of being retried through Apply. The secret-import gate is the one
// case where guessing "not satisfied" is unsafe: it would re-run the
// decrypt path against an unknown trust-store state. Detected by type
// assertion, same as optional interfaces elsewhere.
type CriticalEvaluator interface {
	CriticalEvaluation()
}

// EventPhase tags pipeline progress events.
type EventPhase string

const (
	// PhaseRunning is emitted right before a step's evaluation starts.
	PhaseRunning EventPhase = "running"
	// PhaseDone is emitted once the step's result is recorded.
	PhaseDone EventPhase = "done"
)

// Event is a progress notification consumed by the UI. The UI only reads;
// the pipeline is the sole writer.
type Event struct {
	StepID string
	Name   string
	Phase  EventPhase
	Result *model.StepResult
}

// Pipeline drives steps strictly in sequence with fail-fast semantics.
// Under DryRun no Apply ever runs; evaluation results are projected into
// would-apply outcomes instead.
type Pipeline struct {
	DryRun bool
	Log    *logger.Logger
	Events chan<- Event
}

// Run executes the steps in order and returns their results. The error is
// the first fatal step failure, returned with the step's own error type
// intact so callers can map it to an exit code. Results for steps after an
// abort are simply absent: they never started.
func (p *Pipeline) Run(ctx context.Context, steps []Step) ([]model.StepResult, error) {
	results := make([]model.StepResult, 0, len(steps))

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("interrupted before step %s: %w", step.ID(), err)
		}

		p.emit(Event{StepID: step.ID(), Name: step.Name(), Phase: PhaseRunning})

		result, err := p.runStep(ctx, step)
		results = append(results, result)
		p.emit(Event{StepID: step.ID(), Name: step.Name(), Phase: PhaseDone, Result: &result})

		if err != nil {
			if step.Advisory() {
				p.Log.WithStep(step.ID()).Error(err, "advisory step failed, continuing")
				continue
			}
			return results, err
		}
	}

	return results, nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step) (model.StepResult, error) {
	start := time.Now()
	log := p.Log.WithStep(step.ID())

	finish := func(status, message string, err error) (model.StepResult, error) {
		return model.StepResult{
			StepID:    step.ID(),
			Status:    status,
			Message:   message,
			Error:     err,
			Advisory:  step.Advisory(),
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		}, err
	}

	eval, evalErr := step.Evaluate(ctx)
	if evalErr != nil {
		if _, critical := step.(CriticalEvaluator); critical {
			log.Error(evalErr, "evaluation failed on a gate-critical step")
			return finish(model.StatusFailed, fmt.Sprintf("evaluation failed: %v", evalErr), evalErr)
		}
		// Evaluation trouble on ordinary steps biases toward re-applying:
		// the action is idempotent, a stale "satisfied" guess is not.
		log.Warn(fmt.Sprintf("evaluation failed (%v), attempting apply", evalErr))
		eval = &model.EvaluationResult{
			StepID:         step.ID(),
			CurrentState:   model.StatusUnknown,
			RequiresAction: true,
			Message:        fmt.Sprintf("state unknown: %v", evalErr),
		}
	}

	if !eval.RequiresAction {
		log.Debug("already satisfied")
		return finish(model.StatusSkipped, eval.Message, nil)
	}

	if p.DryRun {
		message := eval.Diff
		if message == "" {
			message = eval.Message
		}
		log.Info(fmt.Sprintf("dry-run: %s", message))
		return finish(model.StatusWouldApply, message, nil)
	}

	applied, err := step.Apply(ctx, eval)
	if err != nil {
		message := err.Error()
		if applied != nil && applied.Message != "" {
			message = applied.Message
		}
		return finish(model.StatusFailed, message, err)
	}

	result, _ := finish(model.StatusSuccess, "completed", nil)
	if applied != nil {
		if applied.Status != "" {
			result.Status = applied.Status
		}
		if applied.Message != "" {
			result.Message = applied.Message
		}
	}
	log.Info(result.Message)
	return result, nil
}

func (p *Pipeline) emit(event Event) {
	if p.Events == nil {
		return
	}
	p.Events <- event
}
