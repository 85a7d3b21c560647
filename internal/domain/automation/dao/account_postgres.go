package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/postpilot/internal/domain/automation/entity"
)

// AccountPostgres implements AccountRepository for PostgreSQL
type AccountPostgres struct {
	pool *pgxpool.Pool
}

// NewAccountPostgres creates a new PostgreSQL account repository
func NewAccountPostgres(pool *pgxpool.Pool) *AccountPostgres {
	return &AccountPostgres{pool: pool}
}

const accountColumns = `
	id, username, status, is_running, profile_ref, profile_state,
	max_posts_per_day, posts_today, working_start_hour, working_end_hour,
	timezone, min_delay_seconds, max_delay_seconds, last_activity,
	error_message, created_at, updated_at
`

// ListActive retrieves all accounts with status = 'active'
func (r *AccountPostgres) ListActive(ctx context.Context) ([]entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE status = 'active' ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []entity.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		accounts = append(accounts, *acc)
	}

	return accounts, rows.Err()
}

// GetByID retrieves an account by ID
func (r *AccountPostgres) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	return acc, nil
}

// Update persists the orchestrator-owned fields of an account
func (r *AccountPostgres) Update(ctx context.Context, acc *entity.Account) error {
	query := `
		UPDATE accounts
		SET status = $2, is_running = $3, profile_ref = $4, profile_state = $5,
		    posts_today = $6, last_activity = $7, error_message = $8, updated_at = $9
		WHERE id = $1
	`

	var profileRef, errorMessage *string
	if acc.ProfileRef != "" {
		profileRef = &acc.ProfileRef
	}
	if acc.ErrorMessage != "" {
		errorMessage = &acc.ErrorMessage
	}

	_, err := r.pool.Exec(ctx, query,
		acc.ID,
		acc.Status,
		acc.IsRunning,
		profileRef,
		acc.ProfileState,
		acc.PostsToday,
		acc.LastActivity,
		errorMessage,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*entity.Account, error) {
	var acc entity.Account
	var profileRef, errorMessage *string
	var lastActivity *time.Time
	var minDelaySec, maxDelaySec int64

	err := row.Scan(
		&acc.ID,
		&acc.Username,
		&acc.Status,
		&acc.IsRunning,
		&profileRef,
		&acc.ProfileState,
		&acc.MaxPostsPerDay,
		&acc.PostsToday,
		&acc.WorkingHours.StartHour,
		&acc.WorkingHours.EndHour,
		&acc.WorkingHours.Timezone,
		&minDelaySec,
		&maxDelaySec,
		&lastActivity,
		&errorMessage,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if profileRef != nil {
		acc.ProfileRef = *profileRef
	}
	if errorMessage != nil {
		acc.ErrorMessage = *errorMessage
	}
	acc.LastActivity = lastActivity
	acc.MinDelay = time.Duration(minDelaySec) * time.Second
	acc.MaxDelay = time.Duration(maxDelaySec) * time.Second

	return &acc, nil
}
