package profile

import (
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	bootstraperrors "github.com/alexisbeaulieu97/bootstrap/pkg/errors"
)

// The profile is compiled into the binary on purpose: this tool provisions
// exactly one identity's machines, so there is nothing to parameterize at
// runtime beyond --dry-run.
//
//go:embed profile.yaml
var embedded []byte

// Profile is the declared target state for the machine.
type Profile struct {
	Packages []string `yaml:"packages" validate:"required,min=1,dive,min=1"`
	Key      Key      `yaml:"key" validate:"required"`
	Repos    []Repo   `yaml:"repos" validate:"required,min=1,dive"`
	Links    Links    `yaml:"links" validate:"required"`
}

// Key describes the encrypted identity blob and the key material extracted
// from it.
type Key struct {
	// ID is the trust-store identifier of the signing/identity key.
	ID string `yaml:"id" validate:"required"`
	// Blob is the home-relative path of the encrypted key blob. Its absence
	// at runtime is a fatal precondition.
	Blob string `yaml:"blob" validate:"required"`
	// Dir is the home-relative key-material directory. A non-empty file per
	// name below is the signal that extraction already happened.
	Dir string `yaml:"dir" validate:"required"`
	// Files are the named credential files restored into Dir.
	Files []string `yaml:"files" validate:"required,min=1,dive,min=1"`
}

// Repo is a repository the machine should carry a clone of.
type Repo struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
	Dest string `yaml:"dest" validate:"required"`
	// Advisory repos log a warning on failure instead of aborting the run.
	Advisory bool `yaml:"advisory"`
}

// Links configures home-directory symlink reconciliation.
type Links struct {
	// Source is the home-relative dotfiles tree (the reconciliation source).
	Source string `yaml:"source" validate:"required"`
	// NestedZone is the subdirectory of Source whose children are linked
	// one level deep under ~/.<NestedZone>/.
	NestedZone string `yaml:"nested_zone" validate:"required"`
	// Exclude lists entry names skipped in both zones, in addition to VCS
	// metadata which is always skipped.
	Exclude []string `yaml:"exclude"`
}

// Load decodes and validates the embedded profile, expanding home-relative
// paths against the supplied home directory.
func Load(home string) (*Profile, error) {
	return parse(embedded, home)
}

func parse(data []byte, home string) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, bootstraperrors.NewValidationError("", "profile document is not valid YAML", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&p); err != nil {
		var invalid validator.ValidationErrors
		if ok := asValidationErrors(err, &invalid); ok && len(invalid) > 0 {
			first := invalid[0]
			field := strings.ToLower(first.Namespace())
			return nil, bootstraperrors.NewValidationError(field, fmt.Sprintf("failed %q constraint", first.Tag()), err)
		}
		return nil, bootstraperrors.NewValidationError("", "profile validation failed", err)
	}

	p.Key.Blob = expandHome(home, p.Key.Blob)
	p.Key.Dir = expandHome(home, p.Key.Dir)
	for i := range p.Repos {
		p.Repos[i].Dest = expandHome(home, p.Repos[i].Dest)
	}
	p.Links.Source = expandHome(home, p.Links.Source)

	return &p, nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = ve
	return true
}

// expandHome resolves home-relative profile paths. Absolute paths pass
// through untouched so tests can point at temp directories.
func expandHome(home, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return filepath.Join(home, path)
}
