package identity

import "errors"

var (
	ErrMissingSecret  = errors.New("identity: signing secret is required")
	ErrMissingToken   = errors.New("missing bearer token")
	ErrInvalidToken   = errors.New("invalid bearer token")
	ErrMissingSubject = errors.New("token has no subject")
	ErrNoIdentity     = errors.New("no identity in context")
)
