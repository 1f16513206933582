// Package store persists notifications and resolves their owners.
//
// The claim primitives (FindDue, ClaimMany, FindClaimed, MarkSent) are the
// only coordination between concurrent pipeline passes: ClaimMany must be a
// single conditional update so that two passes can never own the same record.
package store

import (
	"context"
	"errors"
	"time"

	"riseready-notifications/internal/models"
)

// ErrNotFound is returned when a lookup or guarded update matched nothing.
var ErrNotFound = errors.New("store: not found")

// Store is the notification collection as seen by the pipeline.
type Store interface {
	// FindDue returns ids of unsent, unclaimed records created at or before
	// now, oldest first, at most limit of them.
	FindDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	// ClaimMany stamps token on the given ids that are still unsent and
	// unclaimed and returns how many it stamped.
	ClaimMany(ctx context.Context, ids []string, token string, at time.Time) (int64, error)
	// FindClaimed returns every record carrying token, oldest first.
	FindClaimed(ctx context.Context, token string) ([]models.Notification, error)
	// MarkSent finalizes a record owned by token.
	MarkSent(ctx context.Context, id, token string, at time.Time) error
	// ReleaseStale clears claims older than olderThan on unsent records.
	ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error)
	// ReleaseClaims clears token from the given ids that are still unsent,
	// handing them back to the next pass.
	ReleaseClaims(ctx context.Context, ids []string, token string) (int64, error)
	// Create inserts a new unsent record.
	Create(ctx context.Context, n *models.Notification) error
	Ping(ctx context.Context) error
	Close() error
}

// UserDirectory resolves notification owners.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Backend is a store that also serves user lookups, as every implementation
// here does.
type Backend interface {
	Store
	UserDirectory
	SaveUser(ctx context.Context, u *models.User) error
}

// prepareNew fills defaults and validates a record before insertion.
func prepareNew(n *models.Notification, newID func() string) error {
	n.Normalize()
	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.CreatedAt = n.CreatedAt.UTC()
	return n.Validate()
}
