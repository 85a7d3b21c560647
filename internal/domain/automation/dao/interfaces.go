package dao

import (
	"context"
	"time"

	"github.com/vadim/postpilot/internal/domain/automation/entity"
)

// AccountRepository defines the interface for account data access.
// Account records are created by the CRUD layer; the orchestrator only
// reads them and persists state-machine transitions.
type AccountRepository interface {
	// ListActive retrieves all accounts with status = 'active'.
	ListActive(ctx context.Context) ([]entity.Account, error)

	// GetByID retrieves an account by its ID. Returns nil when absent.
	GetByID(ctx context.Context, id string) (*entity.Account, error)

	// Update persists the orchestrator-owned fields of an account
	// (status, is_running, profile state, counters, last activity).
	Update(ctx context.Context, acc *entity.Account) error
}

// PostRepository defines the interface for post data access.
type PostRepository interface {
	// NextScheduled retrieves the earliest scheduled post for an account
	// that is due at now, FIFO by scheduled_for with ties broken by id.
	// Returns nil when the account has no due post.
	NextScheduled(ctx context.Context, accountID string, now time.Time) (*entity.Post, error)

	// GetByID retrieves a post by its ID. Returns nil when absent.
	GetByID(ctx context.Context, id string) (*entity.Post, error)

	// Update persists the full mutable state of a post.
	Update(ctx context.Context, post *entity.Post) error

	// CountPublishedSince counts posts published for the account at or
	// after the given instant (the account's local midnight).
	CountPublishedSince(ctx context.Context, accountID string, since time.Time) (int, error)

	// CountScheduledDue counts scheduled posts due at now across all
	// accounts; surfaced as queue depth in status().
	CountScheduledDue(ctx context.Context, now time.Time) (int64, error)

	// HasScheduled reports whether the account has any scheduled post due
	// at now, used for the keep-warm decision.
	HasScheduled(ctx context.Context, accountID string, now time.Time) (bool, error)

	// FailAllScheduled marks every scheduled post of the account failed.
	// Applied when the account is banned.
	FailAllScheduled(ctx context.Context, accountID, reason string) error

	// ReleaseStalePublishing returns posts stuck in 'publishing' longer
	// than the timeout back to 'scheduled', and reports how many rows
	// were reconciled. Run on startup and after a forced stop.
	ReleaseStalePublishing(ctx context.Context, olderThan time.Time) (int64, error)
}
