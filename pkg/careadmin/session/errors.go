package session

import (
	"errors"
	"fmt"

	"github.com/mikepea/careadmin/pkg/careadmin/identity"
)

var (
	// ErrInvalidCredentials means no admin matches the email and password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountInactive means the admin exists but has been deactivated.
	ErrAccountInactive = errors.New("account is inactive")
	// ErrContextClosed is returned by operations on a closed Context.
	ErrContextClosed = errors.New("session context closed")
)

// ExternalAuthError is a provider failure that is not part of the
// duplicate-account race. Its message is not user safe.
type ExternalAuthError struct {
	Op  string
	Err error
}

func (e *ExternalAuthError) Error() string {
	return fmt.Sprintf("identity provider %s failed: %v", e.Op, e.Err)
}

func (e *ExternalAuthError) Unwrap() error { return e.Err }

// Code returns the provider error code, if any.
func (e *ExternalAuthError) Code() identity.ErrorCode {
	return identity.CodeOf(e.Err)
}

// SyncFailure reports a metadata sync that did not reach the provider.
type SyncFailure struct {
	AdminID uint
	Err     error
}

func (e *SyncFailure) Error() string {
	return fmt.Sprintf("syncing metadata for admin %d: %v", e.AdminID, e.Err)
}

func (e *SyncFailure) Unwrap() error { return e.Err }
