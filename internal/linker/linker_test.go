package linker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bootstraperrors "github.com/alexisbeaulieu97/bootstrap/pkg/errors"
)

// fixture lays out a dotfiles tree:
//
//	source/zshrc
//	source/tmux.conf
//	source/config/nvim/init.lua
//	source/README.md   (excluded)
//	source/.git/HEAD   (always excluded)
func fixture(t *testing.T) (source, home string, r *Reconciler) {
	t.Helper()

	home = t.TempDir()
	source = filepath.Join(home, ".dotfiles")

	require.NoError(t, os.MkdirAll(filepath.Join(source, "config", "nvim"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(source, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "zshrc"), []byte("export EDITOR=nvim"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(source, "tmux.conf"), []byte("set -g mouse on"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(source, "config", "nvim", "init.lua"), []byte("-- init"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(source, "README.md"), []byte("# dotfiles"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(source, ".git", "HEAD"), []byte("ref: refs/heads/main"), 0o644))

	r = &Reconciler{
		SourceRoot: source,
		DestRoot:   home,
		NestedZone: "config",
		Exclude:    []string{"README.md"},
		now:        func() time.Time { return time.Unix(1756000000, 0) },
	}
	return source, home, r
}

func classifications(entries []Entry) map[string]Classification {
	out := make(map[string]Classification, len(entries))
	for _, e := range entries {
		out[filepath.Base(e.Dest)] = e.Classification
	}
	return out
}

func TestPlanClassifiesBothZones(t *testing.T) {
	t.Parallel()

	_, _, r := fixture(t)
	entries, err := r.Plan()
	require.NoError(t, err)

	got := classifications(entries)
	assert.Equal(t, map[string]Classification{
		".zshrc":     ClassMissing,
		".tmux.conf": ClassMissing,
		"nvim":       ClassMissing,
	}, got)
}

func TestPlanSkipsExclusionsAndNestedZoneInFlatPass(t *testing.T) {
	t.Parallel()

	_, _, r := fixture(t)
	entries, err := r.Plan()
	require.NoError(t, err)

	for _, e := range entries {
		base := filepath.Base(e.Source)
		assert.NotEqual(t, "README.md", base)
		assert.NotEqual(t, ".git", base)
		assert.NotEqual(t, ".config", filepath.Base(e.Dest), "the nested zone dir itself must not be linked flat")
	}
}

func TestPlanIsReadOnly(t *testing.T) {
	t.Parallel()

	_, home, r := fixture(t)
	before := snapshot(t, home)

	_, err := r.Plan()
	require.NoError(t, err)

	assert.Equal(t, before, snapshot(t, home))
}

func TestReconcileFirstRunCreatesLinks(t *testing.T) {
	t.Parallel()

	source, home, r := fixture(t)
	entries, err := r.Reconcile()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	target, err := os.Readlink(filepath.Join(home, ".zshrc"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(source, "zshrc"), target)

	content, err := os.ReadFile(filepath.Join(home, ".config", "nvim", "init.lua"))
	require.NoError(t, err)
	assert.Equal(t, "-- init", string(content))
}

func TestReconcileSecondRunIsNoOp(t *testing.T) {
	t.Parallel()

	_, home, r := fixture(t)
	_, err := r.Reconcile()
	require.NoError(t, err)

	before := snapshot(t, home)

	entries, err := r.Reconcile()
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, ClassCorrectLink, e.Classification)
		assert.Empty(t, e.Backup)
	}

	assert.Equal(t, before, snapshot(t, home), "a converged tree must not be touched again")
}

func TestReconcileBacksUpForeignFile(t *testing.T) {
	t.Parallel()

	source, home, r := fixture(t)
	foreign := filepath.Join(home, ".zshrc")
	require.NoError(t, os.WriteFile(foreign, []byte("X"), 0o644))

	entries, err := r.Reconcile()
	require.NoError(t, err)

	var zshrc Entry
	for _, e := range entries {
		if filepath.Base(e.Dest) == ".zshrc" {
			zshrc = e
		}
	}
	require.Equal(t, ClassForeignExisting, zshrc.Classification)
	require.Equal(t, foreign+".backup.1756000000", zshrc.Backup)

	rescued, err := os.ReadFile(zshrc.Backup)
	require.NoError(t, err)
	assert.Equal(t, "X", string(rescued), "original content must be recoverable from the backup")

	target, err := os.Readlink(foreign)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(source, "zshrc"), target)
}

func TestReconcileBacksUpForeignDirectory(t *testing.T) {
	t.Parallel()

	_, home, r := fixture(t)
	foreignDir := filepath.Join(home, ".config", "nvim")
	require.NoError(t, os.MkdirAll(foreignDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(foreignDir, "old.vim"), []byte("old config"), 0o644))

	_, err := r.Reconcile()
	require.NoError(t, err)

	rescued, err := os.ReadFile(filepath.Join(foreignDir+".backup.1756000000", "old.vim"))
	require.NoError(t, err)
	assert.Equal(t, "old config", string(rescued))

	info, err := os.Lstat(foreignDir)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
}

func TestReconcileReplacesWrongSymlink(t *testing.T) {
	t.Parallel()

	source, home, r := fixture(t)
	elsewhere := filepath.Join(home, "elsewhere")
	require.NoError(t, os.WriteFile(elsewhere, []byte("other"), 0o644))
	require.NoError(t, os.Symlink(elsewhere, filepath.Join(home, ".zshrc")))

	entries, err := r.Reconcile()
	require.NoError(t, err)

	got := classifications(entries)
	assert.Equal(t, ClassForeignExisting, got[".zshrc"])

	target, err := os.Readlink(filepath.Join(home, ".zshrc"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(source, "zshrc"), target)
}

func TestReconcileMissingSourceTreeIsFatal(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	r := &Reconciler{
		SourceRoot: filepath.Join(home, "absent"),
		DestRoot:   home,
		NestedZone: "config",
	}

	_, err := r.Reconcile()
	require.Error(t, err)

	var precondErr *bootstraperrors.PreconditionError
	require.ErrorAs(t, err, &precondErr)
}

// snapshot captures every path under root with its link target or content
// so tests can assert zero filesystem mutation.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()

	out := make(map[string]string)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			out[path] = "link:" + target
		case info.IsDir():
			out[path] = "dir"
		default:
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			out[path] = "file:" + string(content)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}
