package service

import "errors"

// Authentication failures. Callers must not tell them apart in responses.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingCredential  = errors.New("missing credential")
	ErrInvalidCredential  = errors.New("invalid credential")
)

var (
	ErrAccountSuspended = errors.New("account suspended")
	ErrKeyNotFound      = errors.New("api key not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrQuotaExceeded    = errors.New("active api key quota exceeded")
)
