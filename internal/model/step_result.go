package model

import (
	"time"
)

const (
	// StatusSkipped indicates the step was already satisfied and no action ran.
	StatusSkipped = "skipped"
	// StatusSuccess marks a successfully applied step.
	StatusSuccess = "success"
	// StatusFailed marks a failure during step execution.
	StatusFailed = "failed"
	// StatusWouldApply indicates dry-run determined the step would mutate state.
	StatusWouldApply = "would_apply"
)

// StepResult captures the outcome of executing a single pipeline step.
type StepResult struct {
	StepID    string
	Status    string
	Message   string
	Error     error
	Advisory  bool
	Duration  time.Duration
	Timestamp time.Time
}

// Changed reports whether the step mutated (or would mutate) machine state.
func (r StepResult) Changed() bool {
	return r.Status == StatusSuccess || r.Status == StatusWouldApply
}
