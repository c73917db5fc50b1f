package errors

import (
	"fmt"
)

// PreconditionError reports a required file or tool that is absent. The
// pipeline never attempts to create these itself; the user has to remediate
// manually (for example by restoring the encrypted key blob from a backup).
type PreconditionError struct {
	Path    string
	Message string
	Err     error
}

// NewPreconditionError constructs a PreconditionError.
func NewPreconditionError(path, message string, err error) error {
	return &PreconditionError{Path: path, Message: message, Err: err}
}

func (e *PreconditionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path != "" {
		return fmt.Sprintf("precondition missing: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("precondition missing: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *PreconditionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AuthError reports a failed decryption, almost always a wrong passphrase.
// Terminal for the run: no retry loop is offered, and the caller exits with
// a distinct code so wrapping scripts can tell it apart.
type AuthError struct {
	KeyID string
	Err   error
}

// NewAuthError constructs an AuthError for the given key identifier.
func NewAuthError(keyID string, err error) error {
	return &AuthError{KeyID: keyID, Err: err}
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	if e.KeyID != "" {
		return fmt.Sprintf("authentication failed for key %s: %v", e.KeyID, e.Err)
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *AuthError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CapabilityError reports a failure inside an external capability (package
// manager, VCS client, trust store) while executing a step.
type CapabilityError struct {
	StepID string
	Err    error
}

// NewCapabilityError constructs a CapabilityError.
func NewCapabilityError(stepID string, err error) error {
	return &CapabilityError{StepID: stepID, Err: err}
}

func (e *CapabilityError) Error() string {
	if e == nil {
		return ""
	}
	if e.StepID != "" {
		return fmt.Sprintf("capability error on step %s: %v", e.StepID, e.Err)
	}
	return fmt.Sprintf("capability error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *CapabilityError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnsupportedError reports an unrecognized platform. Raised during the
// startup capability probe, before any mutation has happened.
type UnsupportedError struct {
	Platform string
	Message  string
}

// NewUnsupportedError constructs an UnsupportedError.
func NewUnsupportedError(platform, message string) error {
	return &UnsupportedError{Platform: platform, Message: message}
}

func (e *UnsupportedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Platform != "" {
		return fmt.Sprintf("unsupported environment %s: %s", e.Platform, e.Message)
	}
	return fmt.Sprintf("unsupported environment: %s", e.Message)
}

// ValidationError captures profile validation issues found at startup.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
