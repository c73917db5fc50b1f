package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/bootstrap/internal/engine"
	"github.com/alexisbeaulieu97/bootstrap/internal/linker"
	"github.com/alexisbeaulieu97/bootstrap/internal/model"
)

// LinksStep reconciles home-directory symlinks against the dotfiles tree.
type LinksStep struct {
	Reconciler *linker.Reconciler
}

var _ engine.Step = (*LinksStep)(nil)

func (s *LinksStep) ID() string     { return "dotfiles-link" }
func (s *LinksStep) Name() string   { return "Link dotfiles" }
func (s *LinksStep) Advisory() bool { return false }

func (s *LinksStep) Evaluate(ctx context.Context) (*model.EvaluationResult, error) {
	entries, err := s.Reconciler.Plan()
	if err != nil {
		return nil, err
	}

	var pending []string
	for _, entry := range entries {
		switch entry.Classification {
		case linker.ClassMissing:
			pending = append(pending, fmt.Sprintf("link %s", entry.Dest))
		case linker.ClassForeignExisting:
			pending = append(pending, fmt.Sprintf("back up and link %s", entry.Dest))
		}
	}

	if len(pending) == 0 {
		return &model.EvaluationResult{
			StepID:         s.ID(),
			CurrentState:   model.StatusSatisfied,
			RequiresAction: false,
			Message:        fmt.Sprintf("all %d links correct", len(entries)),
		}, nil
	}

	return &model.EvaluationResult{
		StepID:         s.ID(),
		CurrentState:   model.StatusDrifted,
		RequiresAction: true,
		Message:        fmt.Sprintf("%d of %d links need work", len(pending), len(entries)),
		Diff:           "Would " + strings.Join(pending, "; "),
	}, nil
}

func (s *LinksStep) Apply(ctx context.Context, eval *model.EvaluationResult) (*model.StepResult, error) {
	entries, err := s.Reconciler.Reconcile()
	if err != nil {
		return nil, err
	}

	linked, backedUp := 0, 0
	for _, entry := range entries {
		switch entry.Classification {
		case linker.ClassMissing:
			linked++
		case linker.ClassForeignExisting:
			linked++
			backedUp++
		}
	}

	message := fmt.Sprintf("created %d links", linked)
	if backedUp > 0 {
		message = fmt.Sprintf("%s, moved %d foreign entries to backups", message, backedUp)
	}

	return &model.StepResult{
		StepID:  s.ID(),
		Status:  model.StatusSuccess,
		Message: message,
	}, nil
}
