package billing

import "errors"

var (
	ErrUnauthorized     = errors.New("authentication required")
	ErrInvalidJSON      = errors.New("invalid JSON body")
	ErrValidation       = errors.New("request validation failed")
	ErrUnknownPrice     = errors.New("unknown price id")
	ErrNoBillingAccount = errors.New("no billing account yet, complete a checkout first")
	ErrProvider         = errors.New("billing provider unavailable")
	ErrInternal         = errors.New("internal server error")
)
