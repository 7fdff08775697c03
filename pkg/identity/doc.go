// Package identity authenticates API callers from bearer tokens.
//
// The identity provider issues HS256 JWTs; the subject claim is the stable external
// user id, email and name are optional profile claims. Verifier checks signature,
// algorithm, expiry, issuer and audience with github.com/golang-jwt/jwt/v5.
// Middleware puts the verified Identity in the request context; FromContext reads it.
package identity
