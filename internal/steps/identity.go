package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexisbeaulieu97/bootstrap/internal/engine"
	"github.com/alexisbeaulieu97/bootstrap/internal/model"
	"github.com/alexisbeaulieu97/bootstrap/internal/secret"
	bootstraperrors "github.com/alexisbeaulieu97/bootstrap/pkg/errors"
)

// IdentityStep runs the one-time secret provisioning flow: prompt for the
// passphrase, decrypt the key blob, import the key into the trust store and
// restore credential files. Gated on the trust store so a converged machine
// never re-prompts.
type IdentityStep struct {
	Lifecycle *secret.Lifecycle
	Prompt    secret.PromptSource
	Spec      secret.ImportSpec
}

var (
	_ engine.Step              = (*IdentityStep)(nil)
	_ engine.CriticalEvaluator = (*IdentityStep)(nil)
)

func (s *IdentityStep) ID() string     { return "identity" }
func (s *IdentityStep) Name() string   { return "Import signing key" }
func (s *IdentityStep) Advisory() bool { return false }

// CriticalEvaluation marks the trust-store probe as fatal on error: a blind
// re-run of the decrypt path against an unknown store is the one retry this
// tool refuses to make.
func (s *IdentityStep) CriticalEvaluation() {}

func (s *IdentityStep) Evaluate(ctx context.Context) (*model.EvaluationResult, error) {
	satisfied, err := s.Lifecycle.Satisfied(ctx, s.Spec)
	if err != nil {
		return nil, err
	}

	if satisfied {
		return &model.EvaluationResult{
			StepID:         s.ID(),
			CurrentState:   model.StatusSatisfied,
			RequiresAction: false,
			Message:        fmt.Sprintf("key %s already in trust store", s.Spec.KeyID),
		}, nil
	}

	return &model.EvaluationResult{
		StepID:         s.ID(),
		CurrentState:   model.StatusMissing,
		RequiresAction: true,
		Message:        fmt.Sprintf("key %s not yet imported", s.Spec.KeyID),
		Diff:           fmt.Sprintf("Would prompt for passphrase, decrypt %s and import key %s", s.Spec.BlobPath, s.Spec.KeyID),
	}, nil
}

func (s *IdentityStep) Apply(ctx context.Context, eval *model.EvaluationResult) (*model.StepResult, error) {
	passphrase, err := s.Prompt.ReadPassphrase("Passphrase for identity key: ")
	if err != nil {
		if errors.Is(err, secret.ErrEmptyPassphrase) {
			return nil, bootstraperrors.NewAuthError(s.Spec.KeyID, err)
		}
		return nil, fmt.Errorf("acquire passphrase: %w", err)
	}
	defer secret.Zeroize(passphrase)

	if err := s.Lifecycle.DecryptAndImport(ctx, passphrase, s.Spec); err != nil {
		return nil, err
	}

	return &model.StepResult{
		StepID:  s.ID(),
		Status:  model.StatusSuccess,
		Message: fmt.Sprintf("imported key %s and restored %d credential files", s.Spec.KeyID, len(s.Spec.CredentialFiles)),
	}, nil
}
