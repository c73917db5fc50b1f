package steps

import (
	"github.com/alexisbeaulieu97/bootstrap/internal/capability"
	"github.com/alexisbeaulieu97/bootstrap/internal/engine"
	"github.com/alexisbeaulieu97/bootstrap/internal/linker"
	"github.com/alexisbeaulieu97/bootstrap/internal/logger"
	"github.com/alexisbeaulieu97/bootstrap/internal/profile"
	"github.com/alexisbeaulieu97/bootstrap/internal/secret"
)

// Deps are the external capabilities the pipeline consumes. The core holds
// no knowledge of their implementations; main wires the real ones, tests
// wire fakes.
type Deps struct {
	Manager capability.PackageManager
	Client  capability.VCSClient
	Oracle  capability.DecryptOracle
	Trust   capability.TrustImporter
	Prompt  secret.PromptSource
	Log     *logger.Logger
	Home    string
}

// KeyFileName is the archive member the identity step imports. The backup
// tooling that produces the encrypted blob uses the same name.
const KeyFileName = "identity.asc"

// Build assembles the fixed step sequence: packages, then the identity
// import (which needs gnupg on the machine), then repository clones (which
// may authenticate with the restored credentials), then link
// reconciliation over the cloned dotfiles tree.
func Build(p *profile.Profile, deps Deps) []engine.Step {
	steps := []engine.Step{
		&PackagesStep{Manager: deps.Manager, Packages: p.Packages},
		&IdentityStep{
			Lifecycle: &secret.Lifecycle{Oracle: deps.Oracle, Trust: deps.Trust, Log: deps.Log},
			Prompt:    deps.Prompt,
			Spec: secret.ImportSpec{
				BlobPath:        p.Key.Blob,
				KeyID:           p.Key.ID,
				KeyFileName:     KeyFileName,
				CredentialDir:   p.Key.Dir,
				CredentialFiles: p.Key.Files,
			},
		},
	}

	for _, repo := range p.Repos {
		steps = append(steps, &RepoStep{Client: deps.Client, Repo: repo})
	}

	steps = append(steps, &LinksStep{
		Reconciler: &linker.Reconciler{
			SourceRoot: p.Links.Source,
			DestRoot:   deps.Home,
			NestedZone: p.Links.NestedZone,
			Exclude:    p.Links.Exclude,
			Log:        deps.Log,
		},
	})

	return steps
}
