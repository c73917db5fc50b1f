package secret

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alexisbeaulieu97/bootstrap/internal/capability"
	"github.com/alexisbeaulieu97/bootstrap/internal/logger"
	bootstraperrors "github.com/alexisbeaulieu97/bootstrap/pkg/errors"
)

// ImportSpec names everything the one-time provisioning flow needs: where
// the encrypted blob lives, which key it contains, and which credential
// files to restore from it.
type ImportSpec struct {
	// BlobPath is the encrypted archive. Its absence is a fatal
	// precondition: the user has to restore it from a backup first.
	BlobPath string

	// KeyID identifies the signing/identity key in the trust store.
	KeyID string

	// KeyFileName is the archive member holding the exported private key.
	KeyFileName string

	// CredentialDir receives the restored credential files (0600, dir 0700).
	CredentialDir string

	// CredentialFiles are the archive members restored into CredentialDir.
	// A non-empty file already in place is left untouched.
	CredentialFiles []string
}

// Lifecycle owns every in-memory and on-disk representation of the
// passphrase and decrypted key material for the duration of one import.
// Nothing it touches survives the call: transient files are destroyed on
// every path out, success or failure.
type Lifecycle struct {
	Oracle capability.DecryptOracle
	Trust  capability.TrustImporter
	Log    *logger.Logger
}

// Satisfied reports whether the import already happened: the key is in the
// trust store and every credential file is present and non-empty. A probe
// error here is fatal for the caller; guessing around it would re-run the
// decrypt path against an unknown trust-store state.
func (l *Lifecycle) Satisfied(ctx context.Context, spec ImportSpec) (bool, error) {
	present, err := l.Trust.IsPresent(ctx, spec.KeyID)
	if err != nil {
		return false, fmt.Errorf("trust store probe: %w", err)
	}
	if !present {
		return false, nil
	}
	return l.credentialsRestored(spec), nil
}

func (l *Lifecycle) credentialsRestored(spec ImportSpec) bool {
	for _, name := range spec.CredentialFiles {
		info, err := os.Stat(filepath.Join(spec.CredentialDir, name))
		if err != nil || info.Size() == 0 {
			return false
		}
	}
	return true
}

// DecryptAndImport runs the one-time flow: decrypt the blob with the
// passphrase, import the contained key into the trust store, elevate its
// trust, and restore the named credential files. The passphrase file is
// destroyed the moment decryption succeeds; the decrypted archive and the
// extracted key file are destroyed before returning, on every path.
func (l *Lifecycle) DecryptAndImport(ctx context.Context, passphrase []byte, spec ImportSpec) (err error) {
	if _, statErr := os.Stat(spec.BlobPath); statErr != nil {
		return bootstraperrors.NewPreconditionError(spec.BlobPath, "encrypted key blob not found; restore it from backup", statErr)
	}

	passFile, err := writeTransient(passphrase)
	if err != nil {
		return fmt.Errorf("stage passphrase: %w", err)
	}
	defer Shred(passFile)

	plainFile, err := transientPath("bootstrap-archive")
	if err != nil {
		return fmt.Errorf("stage plaintext: %w", err)
	}
	defer Shred(plainFile)

	if decErr := l.Oracle.Decrypt(ctx, passFile, spec.BlobPath, plainFile); decErr != nil {
		if errors.Is(decErr, capability.ErrBadPassphrase) {
			return bootstraperrors.NewAuthError(spec.KeyID, decErr)
		}
		return fmt.Errorf("decrypt key blob: %w", decErr)
	}

	// The passphrase has served its purpose; do not keep it on disk while
	// the import runs.
	Shred(passFile)

	if err := l.importArchive(ctx, plainFile, spec); err != nil {
		return err
	}

	l.Log.WithStep("identity").Info("key imported and credentials restored")
	return nil
}

// importArchive walks the decrypted tar archive, importing the key member
// and restoring credential members.
func (l *Lifecycle) importArchive(ctx context.Context, archivePath string, spec ImportSpec) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open decrypted archive: %w", err)
	}
	defer f.Close()

	wanted := make(map[string]bool, len(spec.CredentialFiles))
	for _, name := range spec.CredentialFiles {
		wanted[name] = true
	}

	imported := false
	reader := tar.NewReader(f)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read decrypted archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Base(header.Name)
		switch {
		case name == spec.KeyFileName:
			if err := l.importKey(ctx, reader, spec.KeyID); err != nil {
				return err
			}
			imported = true
		case wanted[name]:
			if err := restoreCredential(reader, spec.CredentialDir, name); err != nil {
				return err
			}
		}
	}

	if !imported {
		return fmt.Errorf("archive has no %s member", spec.KeyFileName)
	}
	return nil
}

func (l *Lifecycle) importKey(ctx context.Context, content io.Reader, keyID string) error {
	keyFile, err := transientPath("bootstrap-key")
	if err != nil {
		return fmt.Errorf("stage key file: %w", err)
	}
	defer Shred(keyFile)

	if err := copyRestricted(content, keyFile); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}

	if err := l.Trust.Import(ctx, keyFile); err != nil {
		return fmt.Errorf("import key: %w", err)
	}
	if err := l.Trust.ElevateTrust(ctx, keyID); err != nil {
		return fmt.Errorf("elevate trust for %s: %w", keyID, err)
	}
	return nil
}

func restoreCredential(content io.Reader, dir, name string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	dest := filepath.Join(dir, name)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		// Already restored by an earlier run.
		return nil
	}

	if err := copyRestricted(content, dest); err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	return nil
}

func copyRestricted(content io.Reader, dest string) error {
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, content); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// writeTransient stages a secret in a file only the owner can read.
func writeTransient(data []byte) (string, error) {
	f, err := os.CreateTemp("", "bootstrap-pass")
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// transientPath reserves a 0600 empty file for a transient artifact and
// returns its path.
func transientPath(prefix string) (string, error) {
	f, err := os.CreateTemp("", prefix)
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// Shred overwrites the file with zeros before removing it. Best effort:
// on wear-leveled or copy-on-write storage the old blocks may survive the
// overwrite; this narrows the exposure window, it cannot eliminate it.
// Missing files are fine, Shred is called on already-destroyed paths.
func Shred(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	if f, err := os.OpenFile(path, os.O_WRONLY, 0); err == nil {
		zeros := make([]byte, info.Size())
		_, _ = f.WriteAt(zeros, 0)
		_ = f.Sync()
		_ = f.Close()
	}

	_ = os.Remove(path)
}

// Zeroize wipes an in-memory secret.
func Zeroize(secret []byte) {
	for i := range secret {
		secret[i] = 0
	}
}
