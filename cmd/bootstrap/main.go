package main

import (
	"errors"
	"fmt"
	"os"

	bootstraperrors "github.com/alexisbeaulieu97/bootstrap/pkg/errors"
)

// Exit codes. Wrapping scripts need to tell a wrong passphrase apart from
// an ordinary step failure.
const (
	exitOK      = 0
	exitFailure = 1
	exitAuth    = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

func exitCode(err error) int {
	var authErr *bootstraperrors.AuthError
	if errors.As(err, &authErr) {
		return exitAuth
	}
	return exitFailure
}
