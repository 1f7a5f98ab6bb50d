package apperr

import "errors"

// Sentinel errors shared across storage, service and transport layers.
// Lower layers wrap these with context; handlers map them to status codes.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("invalid input")
	ErrDecode        = errors.New("not valid utf-8 text")
	ErrIO            = errors.New("io failure")
)
