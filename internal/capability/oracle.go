package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/alexisbeaulieu97/bootstrap/internal/execx"
)

// ErrBadPassphrase is returned by a DecryptOracle when the blob could not
// be decrypted with the supplied passphrase. Callers match it with
// errors.Is to distinguish a wrong credential from an operational failure.
var ErrBadPassphrase = errors.New("bad passphrase")

// DecryptOracle decrypts an encrypted blob. The passphrase travels as a
// permission-restricted file, never as a process argument, so it cannot be
// read out of a process listing.
type DecryptOracle interface {
	Decrypt(ctx context.Context, passphraseFile, blobPath, outPath string) error
}

// NewGPGOracle returns a DecryptOracle driving the gpg binary with loopback
// pinentry. gnupgHome is the agent configuration directory, normally
// ~/.gnupg; the loopback toggle it needs is added right before the call and
// reverted right after, so the non-interactive entry path is not left open.
func NewGPGOracle(gnupgHome string) DecryptOracle {
	return &gpgOracle{gnupgHome: gnupgHome}
}

type gpgOracle struct {
	gnupgHome string
}

func (o *gpgOracle) Decrypt(ctx context.Context, passphraseFile, blobPath, outPath string) error {
	restore, err := o.allowLoopback()
	if err != nil {
		return fmt.Errorf("enable loopback pinentry: %w", err)
	}
	defer restore()

	res, err := execx.Run(ctx, "gpg",
		"--batch", "--yes",
		"--pinentry-mode", "loopback",
		"--passphrase-file", passphraseFile,
		"--output", outPath,
		"--decrypt", blobPath,
	)
	if err != nil {
		stderr := res.Stderr
		if strings.Contains(stderr, "Bad session key") ||
			strings.Contains(stderr, "Bad passphrase") ||
			strings.Contains(stderr, "decryption failed") {
			return fmt.Errorf("%w: %s", ErrBadPassphrase, stderr)
		}
		if out := execx.PrimaryOutput(res); out != "" {
			return fmt.Errorf("gpg decrypt failed: %w: %s", err, out)
		}
		return fmt.Errorf("gpg decrypt failed: %w", err)
	}
	return nil
}

const loopbackLine = "allow-loopback-pinentry"

// allowLoopback makes sure gpg-agent accepts loopback pinentry and returns
// a function restoring the previous configuration. When the line is already
// present the restore is a no-op.
func (o *gpgOracle) allowLoopback() (func(), error) {
	confPath := filepath.Join(o.gnupgHome, "gpg-agent.conf")

	original, err := os.ReadFile(confPath)
	existed := err == nil
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	for _, line := range strings.Split(string(original), "\n") {
		if strings.TrimSpace(line) == loopbackLine {
			return func() {}, nil
		}
	}

	if err := os.MkdirAll(o.gnupgHome, 0o700); err != nil {
		return nil, err
	}
	amended := string(original)
	if amended != "" && !strings.HasSuffix(amended, "\n") {
		amended += "\n"
	}
	amended += loopbackLine + "\n"
	if err := os.WriteFile(confPath, []byte(amended), 0o600); err != nil {
		return nil, err
	}
	reloadAgent()

	restore := func() {
		if existed {
			_ = os.WriteFile(confPath, original, 0o600)
		} else {
			_ = os.Remove(confPath)
		}
		reloadAgent()
	}
	return restore, nil
}

func reloadAgent() {
	// Best effort: a missing or stopped agent just means the next gpg
	// invocation starts a fresh one with the current configuration.
	_, _ = execx.Run(context.Background(), "gpgconf", "--reload", "gpg-agent")
}

// NewAgeOracle returns an in-process DecryptOracle for age blobs encrypted
// to a scrypt (passphrase) recipient. No external binary involved, which
// also makes it the oracle of choice in tests.
func NewAgeOracle() DecryptOracle {
	return &ageOracle{}
}

type ageOracle struct{}

func (o *ageOracle) Decrypt(ctx context.Context, passphraseFile, blobPath, outPath string) error {
	passphrase, err := os.ReadFile(passphraseFile)
	if err != nil {
		return fmt.Errorf("read passphrase file: %w", err)
	}

	identity, err := age.NewScryptIdentity(strings.TrimRight(string(passphrase), "\r\n"))
	if err != nil {
		return fmt.Errorf("build scrypt identity: %w", err)
	}

	blob, err := os.Open(blobPath)
	if err != nil {
		return fmt.Errorf("open blob: %w", err)
	}
	defer blob.Close()

	plaintext, err := age.Decrypt(blob, identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return fmt.Errorf("%w: no identity matched the blob", ErrBadPassphrase)
		}
		return fmt.Errorf("age decrypt failed: %w", err)
	}

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, plaintext); err != nil {
		return fmt.Errorf("write plaintext: %w", err)
	}
	return nil
}
