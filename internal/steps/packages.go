package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/bootstrap/internal/capability"
	"github.com/alexisbeaulieu97/bootstrap/internal/engine"
	"github.com/alexisbeaulieu97/bootstrap/internal/model"
	bootstraperrors "github.com/alexisbeaulieu97/bootstrap/pkg/errors"
)

// PackagesStep ensures every profile package is installed through the
// detected package manager.
type PackagesStep struct {
	Manager  capability.PackageManager
	Packages []string
}

var _ engine.Step = (*PackagesStep)(nil)

func (s *PackagesStep) ID() string   { return "packages" }
func (s *PackagesStep) Name() string { return "Install packages" }

// Advisory is false: a machine without its base tooling cannot continue.
func (s *PackagesStep) Advisory() bool { return false }

func (s *PackagesStep) Evaluate(ctx context.Context) (*model.EvaluationResult, error) {
	var missing []string
	for _, pkg := range s.Packages {
		installed, err := s.Manager.IsInstalled(ctx, pkg)
		if err != nil {
			return nil, fmt.Errorf("query package %s: %w", pkg, err)
		}
		if !installed {
			missing = append(missing, pkg)
		}
	}

	if len(missing) == 0 {
		return &model.EvaluationResult{
			StepID:         s.ID(),
			CurrentState:   model.StatusSatisfied,
			RequiresAction: false,
			Message:        fmt.Sprintf("all %d packages installed", len(s.Packages)),
		}, nil
	}

	return &model.EvaluationResult{
		StepID:         s.ID(),
		CurrentState:   model.StatusMissing,
		RequiresAction: true,
		Message:        fmt.Sprintf("packages not installed: %s", strings.Join(missing, ", ")),
		Diff:           fmt.Sprintf("Would install via %s: %s", s.Manager.Name(), strings.Join(missing, ", ")),
		InternalData:   missing,
	}, nil
}

func (s *PackagesStep) Apply(ctx context.Context, eval *model.EvaluationResult) (*model.StepResult, error) {
	missing, ok := eval.InternalData.([]string)
	if !ok || len(missing) == 0 {
		// Evaluation data got lost (unknown-state retry); install the full
		// set, installs are idempotent at the manager level.
		missing = s.Packages
	}

	if err := s.Manager.Install(ctx, missing); err != nil {
		return nil, bootstraperrors.NewCapabilityError(s.ID(), err)
	}

	return &model.StepResult{
		StepID:  s.ID(),
		Status:  model.StatusSuccess,
		Message: fmt.Sprintf("installed: %s", strings.Join(missing, ", ")),
	}, nil
}
