package secret

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/term"
)

// ErrEmptyPassphrase is returned when the user enters nothing at the prompt.
var ErrEmptyPassphrase = errors.New("empty passphrase")

// PromptSource produces a passphrase. The real implementation is
// interactive-only; dry-run swaps in a static placeholder so the rest of
// the pipeline can evaluate without prompting.
type PromptSource interface {
	ReadPassphrase(prompt string) ([]byte, error)
}

// NewTTYPrompt returns a PromptSource reading from the controlling
// terminal. It deliberately bypasses stdin: this tool is commonly run as
// `curl ... | sh`-style bootstrap where stdin is the remote pipe, and a
// passphrase must never be readable from there.
func NewTTYPrompt() PromptSource {
	return &ttyPrompt{}
}

type ttyPrompt struct{}

func (p *ttyPrompt) ReadPassphrase(prompt string) ([]byte, error) {
	ttyPath := "/dev/tty"
	if runtime.GOOS == "windows" {
		ttyPath = "CON"
	}

	tty, err := os.Open(ttyPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s for passphrase input: %w", ttyPath, err)
	}
	defer tty.Close()

	fd := int(tty.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is not a terminal", ttyPath)
	}

	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	return passphrase, nil
}

// NewStaticPrompt returns a PromptSource handing back a fixed value.
// Used by dry-run (placeholder) and by tests.
func NewStaticPrompt(value []byte) PromptSource {
	return &staticPrompt{value: value}
}

type staticPrompt struct {
	value []byte
}

func (p *staticPrompt) ReadPassphrase(string) ([]byte, error) {
	if len(p.value) == 0 {
		return nil, ErrEmptyPassphrase
	}
	out := make([]byte, len(p.value))
	copy(out, p.value)
	return out, nil
}
