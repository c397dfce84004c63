package auth

import "errors"

// Failure taxonomy surfaced by the session lifecycle operations. Every
// credential, token, or ledger miss collapses into ErrAuthenticationFailed so
// callers cannot tell "unknown user" from "wrong password" from "revoked
// token". Persistence faults stay distinct so the boundary layer can map them
// to retryable responses.
var (
	ErrAuthenticationFailed = errors.New("auth: authentication failed")
	ErrValidation           = errors.New("auth: invalid input")
	ErrPersistence          = errors.New("auth: persistence failure")
	ErrNotFound             = errors.New("auth: not found")
)
