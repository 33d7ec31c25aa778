package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrInvalidCredentials covers unknown email and wrong password alike so
	// login never discloses which half failed.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidToken covers malformed, mistyped, expired and badly signed
	// tokens uniformly.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrUnauthorized         = errors.New("auth: unauthorized")
	ErrPermissionDenied     = errors.New("auth: permission denied")
	ErrVerificationRequired = errors.New("auth: email verification required")

	// ErrPermissionUndefined is a server misconfiguration: a handler names a
	// permission that was never seeded. Callers must surface it as a 500-class
	// failure, never as a denial.
	ErrPermissionUndefined = errors.New("auth: permission not defined")
)
