package model

// EvaluationStatus describes the observed state of a resource relative to
// its desired state.
type EvaluationStatus string

const (
	// StatusSatisfied means the desired state already holds.
	StatusSatisfied EvaluationStatus = "satisfied"
	// StatusMissing means the resource does not exist yet.
	StatusMissing EvaluationStatus = "missing"
	// StatusDrifted means the resource exists but differs from the desired state.
	StatusDrifted EvaluationStatus = "drifted"
	// StatusUnknown means the state could not be determined.
	StatusUnknown EvaluationStatus = "unknown"
)

// EvaluationResult is the outcome of a step's read-only state assessment.
// It is produced by Step.Evaluate and, when action is required, handed back
// to Step.Apply so the apply path can reuse what evaluation already learned.
type EvaluationResult struct {
	// StepID is the unique identifier of the evaluated step.
	StepID string

	// CurrentState is the observed state relative to the desired state.
	CurrentState EvaluationStatus

	// RequiresAction indicates whether Apply should run.
	RequiresAction bool

	// Message is a human-readable description of what was found.
	Message string

	// Diff describes what would change, for dry-run previews.
	Diff string

	// InternalData is opaque data passed from Evaluate to Apply to avoid
	// recomputation.
	InternalData any
}
