package util

import "errors"

// Exit codes for automation-friendly CLI usage.
const (
	ExitSuccess      = 0
	ExitGenericError = 1
	ExitInvalidArgs  = 2
	ExitAuthFailed   = 3
	ExitNoLicenses   = 4
	ExitNoProducts   = 5
)

// Sentinel errors used across the application.
var (
	ErrAuthFailed      = errors.New("authentication failed")
	ErrNoLicenses      = errors.New("account has no licenses")
	ErrNoProducts      = errors.New("no products resolved")
	ErrNotOwned        = errors.New("product not owned by account")
	ErrManifestInvalid = errors.New("invalid manifest")
	ErrHelperProtocol  = errors.New("helper protocol error")
)

// ExitCodeForError maps a sentinel error to its CLI exit code.
func ExitCodeForError(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrAuthFailed):
		return ExitAuthFailed
	case errors.Is(err, ErrNoLicenses):
		return ExitNoLicenses
	case errors.Is(err, ErrNoProducts):
		return ExitNoProducts
	default:
		return ExitGenericError
	}
}
