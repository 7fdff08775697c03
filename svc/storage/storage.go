// Package storage implements the user, subscription and credit stores on PostgreSQL,
// with an in-memory twin for handler tests and local development.
package storage

import (
	"context"
	"embed"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrymomot/promptdesk/pkg/credits"
	"github.com/dmitrymomot/promptdesk/pkg/subscription"
)

// Migrations holds the goose migrations under "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations to pass to pg.Migrate.
const MigrationsDir = "migrations"

// ErrEmptyExternalID is returned by EnsureUser without an identity subject.
var ErrEmptyExternalID = errors.New("empty identity subject")

// Store is everything the application persists.
type Store interface {
	subscription.UserStore
	subscription.SubscriptionStore
	credits.Store

	// EnsureUser returns the user for an identity subject, creating it on first sign-in.
	// A non-empty email or name overwrites the stored one.
	EnsureUser(ctx context.Context, externalID, email, name string) (*subscription.User, error)

	// DeleteUser removes the user and everything it owns.
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
