package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/postpilot/internal/domain/automation/entity"
)

// PostPostgres implements PostRepository for PostgreSQL
type PostPostgres struct {
	pool *pgxpool.Pool
}

// NewPostPostgres creates a new PostgreSQL post repository
func NewPostPostgres(pool *pgxpool.Pool) *PostPostgres {
	return &PostPostgres{pool: pool}
}

const postColumns = `
	id, account_id, status, scheduled_for, media_ref, caption,
	attempts, last_error, remote_id, published_at, created_at, updated_at
`

// NextScheduled retrieves the earliest due post for an account.
// FIFO by scheduled_for, ties broken by id for determinism.
func (r *PostPostgres) NextScheduled(ctx context.Context, accountID string, now time.Time) (*entity.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE account_id = $1 AND status = 'scheduled' AND scheduled_for <= $2
		ORDER BY scheduled_for ASC, id ASC
		LIMIT 1
	`

	post, err := scanPost(r.pool.QueryRow(ctx, query, accountID, now))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning next scheduled post: %w", err)
	}

	return post, nil
}

// GetByID retrieves a post by ID
func (r *PostPostgres) GetByID(ctx context.Context, id string) (*entity.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning post: %w", err)
	}

	return post, nil
}

// Update persists the full mutable state of a post
func (r *PostPostgres) Update(ctx context.Context, post *entity.Post) error {
	query := `
		UPDATE posts
		SET status = $2, scheduled_for = $3, attempts = $4, last_error = $5,
		    remote_id = $6, published_at = $7, updated_at = $8
		WHERE id = $1
	`

	var lastError, remoteID *string
	if post.LastError != "" {
		lastError = &post.LastError
	}
	if post.RemoteID != "" {
		remoteID = &post.RemoteID
	}

	_, err := r.pool.Exec(ctx, query,
		post.ID,
		post.Status,
		post.ScheduledFor,
		post.Attempts,
		lastError,
		remoteID,
		post.PublishedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("updating post: %w", err)
	}

	return nil
}

// CountPublishedSince counts posts published for the account since the instant
func (r *PostPostgres) CountPublishedSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM posts
		WHERE account_id = $1 AND status = 'published' AND published_at >= $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, accountID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting published posts: %w", err)
	}

	return count, nil
}

// CountScheduledDue counts due scheduled posts across all accounts
func (r *PostPostgres) CountScheduledDue(ctx context.Context, now time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM posts WHERE status = 'scheduled' AND scheduled_for <= $1`

	var count int64
	if err := r.pool.QueryRow(ctx, query, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting due posts: %w", err)
	}

	return count, nil
}

// HasScheduled reports whether the account has a due scheduled post
func (r *PostPostgres) HasScheduled(ctx context.Context, accountID string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM posts
			WHERE account_id = $1 AND status = 'scheduled' AND scheduled_for <= $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, accountID, now).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking scheduled posts: %w", err)
	}

	return exists, nil
}

// FailAllScheduled marks every scheduled post of a banned account failed
func (r *PostPostgres) FailAllScheduled(ctx context.Context, accountID, reason string) error {
	query := `
		UPDATE posts
		SET status = 'failed', last_error = $2, updated_at = $3
		WHERE account_id = $1 AND status = 'scheduled'
	`

	_, err := r.pool.Exec(ctx, query, accountID, reason, time.Now())
	if err != nil {
		return fmt.Errorf("failing scheduled posts: %w", err)
	}

	return nil
}

// ReleaseStalePublishing reconciles posts stuck in 'publishing' back to
// 'scheduled' so a crash mid-publish is recoverable on restart.
func (r *PostPostgres) ReleaseStalePublishing(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE posts
		SET status = 'scheduled', scheduled_for = $2, last_error = 'reconciled from stale publishing', updated_at = $2
		WHERE status = 'publishing' AND updated_at < $1
	`

	tag, err := r.pool.Exec(ctx, query, olderThan, time.Now())
	if err != nil {
		return 0, fmt.Errorf("releasing stale publishing posts: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanPost(row rowScanner) (*entity.Post, error) {
	var post entity.Post
	var lastError, remoteID *string
	var scheduledFor, publishedAt *time.Time

	err := row.Scan(
		&post.ID,
		&post.AccountID,
		&post.Status,
		&scheduledFor,
		&post.MediaRef,
		&post.Caption,
		&post.Attempts,
		&lastError,
		&remoteID,
		&publishedAt,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastError != nil {
		post.LastError = *lastError
	}
	if remoteID != nil {
		post.RemoteID = *remoteID
	}
	post.ScheduledFor = scheduledFor
	post.PublishedAt = publishedAt

	return &post, nil
}
