package credits

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists usage logs and credit windows.
type Store interface {
	// SumUsage returns the total credits ever logged for a user, 0 when none.
	SumUsage(ctx context.Context, userID uuid.UUID) (int64, error)

	// AppendUsage appends a usage log entry.
	AppendUsage(ctx context.Context, entry UsageEntry) error

	// CurrentWindow returns the window containing at, preferring the latest start.
	// Returns ErrWindowNotFound when none exists.
	CurrentWindow(ctx context.Context, userID uuid.UUID, at time.Time) (*Window, error)

	// IncrementWindow atomically adds amount to the window counter and returns the new value.
	// Returns ErrWindowNotFound when the window does not exist.
	IncrementWindow(ctx context.Context, windowID uuid.UUID, amount int64) (int64, error)

	// CreateWindow stores a window unless one already exists for the same subscription
	// and start. Reports whether a new row was created.
	CreateWindow(ctx context.Context, w Window) (bool, error)
}
