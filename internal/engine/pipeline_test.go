package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/bootstrap/internal/model"
)

type fakeStep struct {
	id        string
	advisory  bool
	satisfied bool
	evalErr   error
	applyErr  error

	evaluations int
	applies     int
}

func (s *fakeStep) ID() string     { return s.id }
func (s *fakeStep) Name() string   { return s.id }
func (s *fakeStep) Advisory() bool { return s.advisory }

func (s *fakeStep) Evaluate(ctx context.Context) (*model.EvaluationResult, error) {
	s.evaluations++
	if s.evalErr != nil {
		return nil, s.evalErr
	}
	if s.satisfied {
		return &model.EvaluationResult{
			StepID:         s.id,
			CurrentState:   model.StatusSatisfied,
			RequiresAction: false,
			Message:        "already satisfied",
		}, nil
	}
	return &model.EvaluationResult{
		StepID:         s.id,
		CurrentState:   model.StatusMissing,
		RequiresAction: true,
		Message:        "needs work",
		Diff:           "would do the thing",
	}, nil
}

func (s *fakeStep) Apply(ctx context.Context, eval *model.EvaluationResult) (*model.StepResult, error) {
	s.applies++
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	s.satisfied = true
	return &model.StepResult{StepID: s.id, Status: model.StatusSuccess, Message: "done"}, nil
}

type criticalStep struct {
	fakeStep
}

func (s *criticalStep) CriticalEvaluation() {}

func TestRunAppliesUnsatisfiedAndSkipsSatisfied(t *testing.T) {
	t.Parallel()

	done := &fakeStep{id: "packages", satisfied: true}
	todo := &fakeStep{id: "dotfiles"}

	results, err := (&Pipeline{}).Run(context.Background(), []Step{done, todo})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, model.StatusSkipped, results[0].Status)
	assert.Equal(t, 0, done.applies)
	assert.Equal(t, model.StatusSuccess, results[1].Status)
	assert.Equal(t, 1, todo.applies)
}

func TestRunIsIdempotentAcrossInvocations(t *testing.T) {
	t.Parallel()

	step := &fakeStep{id: "packages"}
	pipeline := &Pipeline{}

	first, err := pipeline.Run(context.Background(), []Step{step})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, first[0].Status)

	second, err := pipeline.Run(context.Background(), []Step{step})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, second[0].Status)
	assert.Equal(t, 1, step.applies, "a satisfied step must not re-apply")
}

func TestRunFailFastStopsLaterSteps(t *testing.T) {
	t.Parallel()

	boom := fmt.Errorf("install failed")
	failing := &fakeStep{id: "packages", applyErr: boom}
	never := &fakeStep{id: "dotfiles"}

	results, err := (&Pipeline{}).Run(context.Background(), []Step{failing, never})
	require.ErrorIs(t, err, boom)
	require.Len(t, results, 1)

	assert.Equal(t, model.StatusFailed, results[0].Status)
	assert.Equal(t, 0, never.evaluations, "steps after a fatal failure must not run")
}

func TestRunAdvisoryFailureContinues(t *testing.T) {
	t.Parallel()

	optional := &fakeStep{id: "tpm", advisory: true, applyErr: fmt.Errorf("network down")}
	after := &fakeStep{id: "dotfiles"}

	results, err := (&Pipeline{}).Run(context.Background(), []Step{optional, after})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, model.StatusFailed, results[0].Status)
	assert.True(t, results[0].Advisory)
	assert.Equal(t, model.StatusSuccess, results[1].Status)
}

func TestRunDryRunNeverApplies(t *testing.T) {
	t.Parallel()

	step := &fakeStep{id: "dotfiles"}
	results, err := (&Pipeline{DryRun: true}).Run(context.Background(), []Step{step})
	require.NoError(t, err)

	assert.Equal(t, model.StatusWouldApply, results[0].Status)
	assert.Equal(t, "would do the thing", results[0].Message)
	assert.Equal(t, 0, step.applies)
}

func TestRunEvaluationErrorBiasesTowardApply(t *testing.T) {
	t.Parallel()

	step := &fakeStep{id: "packages", evalErr: fmt.Errorf("query tool missing")}
	step.applyErr = nil

	results, err := (&Pipeline{}).Run(context.Background(), []Step{step})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, results[0].Status)
	assert.Equal(t, 1, step.applies, "an unreadable predicate re-attempts the idempotent action")
}

func TestRunEvaluationErrorOnGateCriticalStepAborts(t *testing.T) {
	t.Parallel()

	probeErr := fmt.Errorf("trust store unreachable")
	gate := &criticalStep{fakeStep{id: "identity", evalErr: probeErr}}
	after := &fakeStep{id: "dotfiles"}

	results, err := (&Pipeline{}).Run(context.Background(), []Step{gate, after})
	require.ErrorIs(t, err, probeErr)
	require.Len(t, results, 1)

	assert.Equal(t, model.StatusFailed, results[0].Status)
	assert.Equal(t, 0, gate.applies, "never apply past an unreadable gate")
	assert.Equal(t, 0, after.evaluations)
}

func TestRunDryRunEvaluationErrorStillProjects(t *testing.T) {
	t.Parallel()

	step := &fakeStep{id: "packages", evalErr: fmt.Errorf("query tool missing")}
	results, err := (&Pipeline{DryRun: true}).Run(context.Background(), []Step{step})
	require.NoError(t, err)

	assert.Equal(t, model.StatusWouldApply, results[0].Status)
	assert.Equal(t, 0, step.applies)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	step := &fakeStep{id: "packages"}
	results, err := (&Pipeline{}).Run(ctx, []Step{step})
	require.Error(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, step.evaluations)
}

func TestRunEmitsProgressEvents(t *testing.T) {
	t.Parallel()

	events := make(chan Event, 8)
	step := &fakeStep{id: "dotfiles"}

	_, err := (&Pipeline{Events: events}).Run(context.Background(), []Step{step})
	require.NoError(t, err)
	close(events)

	var phases []EventPhase
	for event := range events {
		assert.Equal(t, "dotfiles", event.StepID)
		phases = append(phases, event.Phase)
	}
	assert.Equal(t, []EventPhase{PhaseRunning, PhaseDone}, phases)
}
