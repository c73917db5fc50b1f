package steps

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/bootstrap/internal/capability"
	"github.com/alexisbeaulieu97/bootstrap/internal/engine"
	"github.com/alexisbeaulieu97/bootstrap/internal/model"
	"github.com/alexisbeaulieu97/bootstrap/internal/profile"
	bootstraperrors "github.com/alexisbeaulieu97/bootstrap/pkg/errors"
)

// RepoStep keeps one local clone current. The primary dotfiles repo is
// fatal on failure; plugin repos are advisory per the profile.
type RepoStep struct {
	Client capability.VCSClient
	Repo   profile.Repo
}

var _ engine.Step = (*RepoStep)(nil)

func (s *RepoStep) ID() string     { return "repo-" + s.Repo.Name }
func (s *RepoStep) Name() string   { return "Clone " + s.Repo.Name }
func (s *RepoStep) Advisory() bool { return s.Repo.Advisory }

func (s *RepoStep) Evaluate(ctx context.Context) (*model.EvaluationResult, error) {
	cloned, err := s.Client.IsCloned(ctx, s.Repo.URL, s.Repo.Dest)
	if err != nil {
		// A foreign directory at the destination is not something this
		// tool works around on its own.
		return nil, err
	}

	if cloned {
		return &model.EvaluationResult{
			StepID:         s.ID(),
			CurrentState:   model.StatusSatisfied,
			RequiresAction: false,
			Message:        fmt.Sprintf("%s already cloned at %s", s.Repo.Name, s.Repo.Dest),
		}, nil
	}

	return &model.EvaluationResult{
		StepID:         s.ID(),
		CurrentState:   model.StatusMissing,
		RequiresAction: true,
		Message:        fmt.Sprintf("%s not cloned yet", s.Repo.Name),
		Diff:           fmt.Sprintf("Would clone %s into %s", s.Repo.URL, s.Repo.Dest),
	}, nil
}

func (s *RepoStep) Apply(ctx context.Context, eval *model.EvaluationResult) (*model.StepResult, error) {
	outcome, err := s.Client.CloneOrUpdate(ctx, s.Repo.URL, s.Repo.Dest)
	if err != nil {
		return nil, bootstraperrors.NewCapabilityError(s.ID(), err)
	}

	return &model.StepResult{
		StepID:  s.ID(),
		Status:  model.StatusSuccess,
		Message: fmt.Sprintf("%s %s", s.Repo.Name, outcome),
	}, nil
}
