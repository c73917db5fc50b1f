package capability

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/alexisbeaulieu97/bootstrap/internal/execx"
)

// TrustImporter manages the external trust store holding the imported
// signing/identity key.
type TrustImporter interface {
	// IsPresent reports whether the key is already in the trust store. This
	// is the idempotency gate for the whole secret step: when it errors the
	// caller must treat the step as fatal rather than guess.
	IsPresent(ctx context.Context, keyID string) (bool, error)

	// Import loads the decrypted key material into the trust store.
	Import(ctx context.Context, keyFile string) error

	// ElevateTrust marks the key as ultimately trusted.
	ElevateTrust(ctx context.Context, keyID string) error
}

// NewGPGTrust returns a TrustImporter backed by the gpg binary.
func NewGPGTrust() TrustImporter {
	return &gpgTrust{}
}

type gpgTrust struct{}

func (t *gpgTrust) IsPresent(ctx context.Context, keyID string) (bool, error) {
	res, err := execx.Run(ctx, "gpg", "--batch", "--list-secret-keys", keyID)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && strings.Contains(res.Stderr, "No secret key") {
			return false, nil
		}
		if errors.As(err, &exitErr) {
			// gpg exits 2 for an unknown key id without the message above
			// on some versions; treat any clean exit failure as absent.
			return false, nil
		}
		return false, fmt.Errorf("probe trust store: %w", err)
	}
	return true, nil
}

func (t *gpgTrust) Import(ctx context.Context, keyFile string) error {
	res, err := execx.Run(ctx, "gpg", "--batch", "--import", keyFile)
	if err != nil {
		if out := execx.PrimaryOutput(res); out != "" {
			return fmt.Errorf("gpg import failed: %w: %s", err, out)
		}
		return fmt.Errorf("gpg import failed: %w", err)
	}
	return nil
}

func (t *gpgTrust) ElevateTrust(ctx context.Context, keyID string) error {
	fingerprint, err := t.fingerprint(ctx, keyID)
	if err != nil {
		return err
	}

	ownertrust := strings.NewReader(fingerprint + ":6:\n")
	res, err := execx.RunWithStdin(ctx, ownertrust, "gpg", "--batch", "--import-ownertrust")
	if err != nil {
		if out := execx.PrimaryOutput(res); out != "" {
			return fmt.Errorf("gpg ownertrust failed: %w: %s", err, out)
		}
		return fmt.Errorf("gpg ownertrust failed: %w", err)
	}
	return nil
}

func (t *gpgTrust) fingerprint(ctx context.Context, keyID string) (string, error) {
	res, err := execx.Run(ctx, "gpg", "--batch", "--with-colons", "--fingerprint", keyID)
	if err != nil {
		return "", fmt.Errorf("resolve fingerprint for %s: %w", keyID, err)
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.HasPrefix(line, "fpr:") {
			fields := strings.Split(line, ":")
			if len(fields) > 9 && fields[9] != "" {
				return fields[9], nil
			}
		}
	}
	return "", fmt.Errorf("no fingerprint found for %s", keyID)
}
