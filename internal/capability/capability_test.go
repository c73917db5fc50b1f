package capability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bootstraperrors "github.com/alexisbeaulieu97/bootstrap/pkg/errors"
)

func TestDetectSelectsFirstAvailableManager(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		available map[string]bool
		want      string
	}{
		{"apt wins on debian-like hosts", map[string]bool{"apt-get": true, "pacman": true}, "apt"},
		{"brew on mac-like hosts", map[string]bool{"brew": true}, "homebrew"},
		{"pacman on arch-like hosts", map[string]bool{"pacman": true}, "pacman"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			lookPath := func(name string) (string, error) {
				if tc.available[name] {
					return "/usr/bin/" + name, nil
				}
				return "", fmt.Errorf("%s not found", name)
			}

			mgr, err := Detect(lookPath)
			require.NoError(t, err)
			assert.Equal(t, tc.want, mgr.Name())
		})
	}
}

func TestDetectFailsBeforeAnyMutation(t *testing.T) {
	t.Parallel()

	lookPath := func(name string) (string, error) {
		return "", fmt.Errorf("nothing installed")
	}

	_, err := Detect(lookPath)
	require.Error(t, err)

	var unsupported *bootstraperrors.UnsupportedError
	require.ErrorAs(t, err, &unsupported)
}

func encryptWithPassphrase(t *testing.T, passphrase, plaintext, blobPath string) {
	t.Helper()

	recipient, err := age.NewScryptRecipient(passphrase)
	require.NoError(t, err)
	// Keep the KDF cheap; this is test data, not a real secret.
	recipient.SetWorkFactor(10)

	blob, err := os.Create(blobPath)
	require.NoError(t, err)
	w, err := age.Encrypt(blob, recipient)
	require.NoError(t, err)
	_, err = w.Write([]byte(plaintext))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, blob.Close())
}

func TestAgeOracleRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blobPath := filepath.Join(dir, "identity.age")
	encryptWithPassphrase(t, "hunter2", "SECRET KEY MATERIAL", blobPath)

	passFile := filepath.Join(dir, "pass")
	require.NoError(t, os.WriteFile(passFile, []byte("hunter2\n"), 0o600))

	outPath := filepath.Join(dir, "plain")
	oracle := NewAgeOracle()
	require.NoError(t, oracle.Decrypt(context.Background(), passFile, blobPath, outPath))

	plaintext, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "SECRET KEY MATERIAL", string(plaintext))

	info, err := os.Stat(outPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAgeOracleWrongPassphrase(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blobPath := filepath.Join(dir, "identity.age")
	encryptWithPassphrase(t, "hunter2", "SECRET KEY MATERIAL", blobPath)

	passFile := filepath.Join(dir, "pass")
	require.NoError(t, os.WriteFile(passFile, []byte("wrong"), 0o600))

	outPath := filepath.Join(dir, "plain")
	err := NewAgeOracle().Decrypt(context.Background(), passFile, blobPath, outPath)
	require.ErrorIs(t, err, ErrBadPassphrase)

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr), "no plaintext file may exist after a failed decrypt")
}

func TestGPGOracleLoopbackToggle(t *testing.T) {
	t.Parallel()

	t.Run("adds and removes the line when absent", func(t *testing.T) {
		t.Parallel()

		home := t.TempDir()
		oracle := &gpgOracle{gnupgHome: home}

		restore, err := oracle.allowLoopback()
		require.NoError(t, err)

		confPath := filepath.Join(home, "gpg-agent.conf")
		conf, err := os.ReadFile(confPath)
		require.NoError(t, err)
		assert.Contains(t, string(conf), loopbackLine)

		restore()
		_, err = os.Stat(confPath)
		assert.True(t, os.IsNotExist(err), "config created only for the toggle must be removed")
	})

	t.Run("restores pre-existing config content", func(t *testing.T) {
		t.Parallel()

		home := t.TempDir()
		confPath := filepath.Join(home, "gpg-agent.conf")
		require.NoError(t, os.WriteFile(confPath, []byte("default-cache-ttl 600\n"), 0o600))

		oracle := &gpgOracle{gnupgHome: home}
		restore, err := oracle.allowLoopback()
		require.NoError(t, err)

		conf, err := os.ReadFile(confPath)
		require.NoError(t, err)
		assert.Contains(t, string(conf), loopbackLine)

		restore()
		conf, err = os.ReadFile(confPath)
		require.NoError(t, err)
		assert.Equal(t, "default-cache-ttl 600\n", string(conf))
	})

	t.Run("no-op when loopback already allowed", func(t *testing.T) {
		t.Parallel()

		home := t.TempDir()
		confPath := filepath.Join(home, "gpg-agent.conf")
		original := "default-cache-ttl 600\n" + loopbackLine + "\n"
		require.NoError(t, os.WriteFile(confPath, []byte(original), 0o600))

		oracle := &gpgOracle{gnupgHome: home}
		restore, err := oracle.allowLoopback()
		require.NoError(t, err)
		restore()

		conf, err := os.ReadFile(confPath)
		require.NoError(t, err)
		assert.Equal(t, original, string(conf))
	})
}

func TestGitClientIsClonedDistinguishesForeignDirectories(t *testing.T) {
	t.Parallel()

	client := NewGitClient()

	t.Run("missing destination is simply not cloned", func(t *testing.T) {
		t.Parallel()
		cloned, err := client.IsCloned(context.Background(), "https://example.com/r", filepath.Join(t.TempDir(), "absent"))
		require.NoError(t, err)
		assert.False(t, cloned)
	})

	t.Run("plain directory is an error, never clobbered", func(t *testing.T) {
		t.Parallel()
		dest := filepath.Join(t.TempDir(), "occupied")
		require.NoError(t, os.MkdirAll(dest, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dest, "precious.txt"), []byte("keep me"), 0o644))

		_, err := client.IsCloned(context.Background(), "https://example.com/r", dest)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "not a git repository"))
	})
}
