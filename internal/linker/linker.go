package linker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/bootstrap/internal/logger"
	bootstraperrors "github.com/alexisbeaulieu97/bootstrap/pkg/errors"
)

// Classification describes what was found at a link destination.
type Classification string

const (
	// ClassCorrectLink means the destination is already a symlink resolving
	// into the source tree. Nothing to do.
	ClassCorrectLink Classification = "correct-link"
	// ClassMissing means nothing exists at the destination yet.
	ClassMissing Classification = "missing"
	// ClassForeignExisting means a real file, directory, or unrelated
	// symlink occupies the destination. It is renamed aside, never deleted.
	ClassForeignExisting Classification = "foreign-existing"
)

// Entry is one source→destination pair with its classification and, after
// Reconcile, the backup path of any displaced foreign file.
type Entry struct {
	Source         string
	Dest           string
	Classification Classification
	Backup         string
}

// Reconciler links a source-of-truth configuration tree onto a destination
// directory. Two zones are covered: top-level entries of the source tree
// become dotted entries of the destination ("zshrc" → ".zshrc"), and the
// children of one nested zone are linked one level deep ("config/nvim" →
// ".config/nvim").
type Reconciler struct {
	// SourceRoot is the configuration tree. Its absence is fatal.
	SourceRoot string
	// DestRoot is the directory receiving the links, normally $HOME.
	DestRoot string
	// NestedZone is the name of the nested source subdirectory.
	NestedZone string
	// Exclude lists entry names skipped in both zones. VCS and OS metadata
	// are always skipped.
	Exclude []string

	Log *logger.Logger

	// now stamps backup names; overridable in tests.
	now func() time.Time
}

// alwaysExcluded are entry names never linked regardless of configuration.
var alwaysExcluded = []string{".git", ".gitignore", ".gitmodules", ".gitattributes", ".DS_Store"}

// Plan enumerates both zones and classifies every entry without touching
// the filesystem. Entries come back in deterministic order: flat zone
// first, nested zone second, each sorted by name.
func (r *Reconciler) Plan() ([]Entry, error) {
	if _, err := os.Stat(r.SourceRoot); err != nil {
		return nil, bootstraperrors.NewPreconditionError(r.SourceRoot, "configuration source tree not found", err)
	}

	excluded := r.excludedNames()

	var entries []Entry

	flat, err := r.zoneEntries(r.SourceRoot, excluded, func(name string) string {
		return filepath.Join(r.DestRoot, dotted(name))
	}, r.NestedZone)
	if err != nil {
		return nil, err
	}
	entries = append(entries, flat...)

	if r.NestedZone != "" {
		nestedRoot := filepath.Join(r.SourceRoot, r.NestedZone)
		if _, err := os.Stat(nestedRoot); err == nil {
			nestedDest := filepath.Join(r.DestRoot, dotted(r.NestedZone))
			nested, err := r.zoneEntries(nestedRoot, excluded, func(name string) string {
				return filepath.Join(nestedDest, name)
			}, "")
			if err != nil {
				return nil, err
			}
			entries = append(entries, nested...)
		}
	}

	return entries, nil
}

// Reconcile classifies every entry and applies the minimal safe mutation:
// nothing for correct links, a fresh symlink for missing destinations, and
// a rename to <name>.backup.<unix-ts> before linking over foreign entries.
// Backups are never deleted. Running twice over unchanged state yields all
// correct links and zero mutations the second time.
func (r *Reconciler) Reconcile() ([]Entry, error) {
	entries, err := r.Plan()
	if err != nil {
		return nil, err
	}

	for i := range entries {
		entry := &entries[i]
		switch entry.Classification {
		case ClassCorrectLink:
			continue
		case ClassForeignExisting:
			backup := fmt.Sprintf("%s.backup.%s", entry.Dest, strconv.FormatInt(r.timestamp().Unix(), 10))
			if err := os.Rename(entry.Dest, backup); err != nil {
				return entries, fmt.Errorf("back up %s: %w", entry.Dest, err)
			}
			entry.Backup = backup
			r.Log.WithStep("dotfiles-link").Warn(fmt.Sprintf("moved %s aside to %s", entry.Dest, backup))
			fallthrough
		case ClassMissing:
			if err := os.MkdirAll(filepath.Dir(entry.Dest), 0o755); err != nil {
				return entries, fmt.Errorf("create parent of %s: %w", entry.Dest, err)
			}
			if err := os.Symlink(entry.Source, entry.Dest); err != nil {
				return entries, fmt.Errorf("link %s -> %s: %w", entry.Dest, entry.Source, err)
			}
		}
	}

	return entries, nil
}

func (r *Reconciler) zoneEntries(root string, excluded map[string]bool, destFor func(name string) string, skipName string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", root, err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if excluded[name] || name == skipName {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		source := filepath.Join(root, name)
		dest := destFor(name)
		entries = append(entries, Entry{
			Source:         source,
			Dest:           dest,
			Classification: r.classify(source, dest),
		})
	}
	return entries, nil
}

// classify inspects the destination. Link-target canonicalization differs
// across operating systems (macOS mounts /var under /private), so both
// sides go through EvalSymlinks before comparison.
func (r *Reconciler) classify(source, dest string) Classification {
	info, err := os.Lstat(dest)
	if err != nil {
		return ClassMissing
	}

	if info.Mode()&os.ModeSymlink == 0 {
		return ClassForeignExisting
	}

	resolvedDest, err := filepath.EvalSymlinks(dest)
	if err != nil {
		// Dangling symlink. Still moved aside rather than deleted.
		return ClassForeignExisting
	}
	resolvedSource, err := filepath.EvalSymlinks(source)
	if err != nil {
		resolvedSource = source
	}

	if resolvedDest == resolvedSource {
		return ClassCorrectLink
	}
	return ClassForeignExisting
}

func (r *Reconciler) excludedNames() map[string]bool {
	excluded := make(map[string]bool, len(alwaysExcluded)+len(r.Exclude))
	for _, name := range alwaysExcluded {
		excluded[name] = true
	}
	for _, name := range r.Exclude {
		excluded[name] = true
	}
	return excluded
}

func (r *Reconciler) timestamp() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// dotted prefixes a name with a dot unless it already has one.
func dotted(name string) string {
	if strings.HasPrefix(name, ".") {
		return name
	}
	return "." + name
}
