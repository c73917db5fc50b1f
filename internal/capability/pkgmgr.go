package capability

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/alexisbeaulieu97/bootstrap/internal/execx"
	bootstraperrors "github.com/alexisbeaulieu97/bootstrap/pkg/errors"
)

// PackageManager ensures packages are present on the machine. Implementations
// wrap one system package manager; the probe in Detect selects exactly one at
// startup and it is never re-probed per step.
type PackageManager interface {
	Name() string
	IsInstalled(ctx context.Context, pkg string) (bool, error)
	Install(ctx context.Context, pkgs []string) error
}

// LookPathFunc resolves a binary name to a path, or errors when absent.
// Injectable so the probe is testable without the real PATH.
type LookPathFunc func(name string) (string, error)

// Detect probes for a supported package manager and returns its adapter.
// Returns UnsupportedError when none of the known managers is on PATH.
func Detect(lookPath LookPathFunc) (PackageManager, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	probes := []struct {
		binary string
		build  func() PackageManager
	}{
		{"apt-get", func() PackageManager { return &aptManager{} }},
		{"brew", func() PackageManager { return &brewManager{} }},
		{"pacman", func() PackageManager { return &pacmanManager{} }},
	}

	for _, probe := range probes {
		if _, err := lookPath(probe.binary); err == nil {
			return probe.build(), nil
		}
	}

	return nil, bootstraperrors.NewUnsupportedError(runtime.GOOS, "no supported package manager found (apt-get, brew, pacman)")
}

type aptManager struct{}

func (m *aptManager) Name() string { return "apt" }

func (m *aptManager) IsInstalled(ctx context.Context, pkg string) (bool, error) {
	_, err := execx.Run(ctx, "dpkg-query", "-W", "-f=${Status}", pkg)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, fmt.Errorf("query package %s: %w", pkg, err)
	}
	return true, nil
}

func (m *aptManager) Install(ctx context.Context, pkgs []string) error {
	args := append([]string{"apt-get", "install", "-y"}, pkgs...)
	res, err := execx.RunStreaming(ctx, "sudo", args...)
	if err != nil {
		return installError("apt-get", res, err)
	}
	return nil
}

type brewManager struct{}

func (m *brewManager) Name() string { return "homebrew" }

func (m *brewManager) IsInstalled(ctx context.Context, pkg string) (bool, error) {
	_, err := execx.Run(ctx, "brew", "list", "--formula", pkg)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, fmt.Errorf("query package %s: %w", pkg, err)
	}
	return true, nil
}

func (m *brewManager) Install(ctx context.Context, pkgs []string) error {
	args := append([]string{"install"}, pkgs...)
	res, err := execx.RunStreaming(ctx, "brew", args...)
	if err != nil {
		return installError("brew", res, err)
	}
	return nil
}

type pacmanManager struct{}

func (m *pacmanManager) Name() string { return "pacman" }

func (m *pacmanManager) IsInstalled(ctx context.Context, pkg string) (bool, error) {
	_, err := execx.Run(ctx, "pacman", "-Qi", pkg)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, fmt.Errorf("query package %s: %w", pkg, err)
	}
	return true, nil
}

func (m *pacmanManager) Install(ctx context.Context, pkgs []string) error {
	args := append([]string{"pacman", "-S", "--noconfirm", "--needed"}, pkgs...)
	res, err := execx.RunStreaming(ctx, "sudo", args...)
	if err != nil {
		return installError("pacman", res, err)
	}
	return nil
}

func installError(manager string, res execx.Result, err error) error {
	if out := execx.PrimaryOutput(res); out != "" {
		return fmt.Errorf("%s install failed: %w: %s", manager, err, out)
	}
	return fmt.Errorf("%s install failed: %w", manager, err)
}
