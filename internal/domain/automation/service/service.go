package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vadim/postpilot/internal/domain/automation/dao"
	"github.com/vadim/postpilot/internal/domain/automation/entity"
)

// Service applies state-machine transitions to accounts and posts and
// persists them. Repository writes are the sole durable record: every
// transition is written before the external call it authorizes, so a crash
// mid-publish leaves an observable 'publishing' row to reconcile on restart.
type Service struct {
	accounts dao.AccountRepository
	posts    dao.PostRepository
}

// New creates a new automation service
func New(accounts dao.AccountRepository, posts dao.PostRepository) *Service {
	return &Service{
		accounts: accounts,
		posts:    posts,
	}
}

// ListActiveAccounts retrieves accounts eligible for scheduling.
func (s *Service) ListActiveAccounts(ctx context.Context) ([]entity.Account, error) {
	return s.accounts.ListActive(ctx)
}

// GetAccount retrieves an account or entity.ErrAccountNotFound.
func (s *Service) GetAccount(ctx context.Context, id string) (*entity.Account, error) {
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, entity.ErrAccountNotFound
	}
	return acc, nil
}

// NextDuePost dequeues the earliest due scheduled post for the account.
// Returns nil when nothing is due.
func (s *Service) NextDuePost(ctx context.Context, accountID string, now time.Time) (*entity.Post, error) {
	return s.posts.NextScheduled(ctx, accountID, now)
}

// BeginPublishing durably marks the post as publishing and consumes one
// attempt. Must complete before the publisher is invoked.
func (s *Service) BeginPublishing(ctx context.Context, post *entity.Post) error {
	if err := post.BeginPublishing(); err != nil {
		return err
	}
	if err := s.posts.Update(ctx, post); err != nil {
		return fmt.Errorf("persisting publishing state: %w", err)
	}
	return nil
}

// CompletePublish resolves a publishing post to published and records the
// success on the account (daily counter, last activity).
func (s *Service) CompletePublish(ctx context.Context, acc *entity.Account, post *entity.Post, remoteID string, at time.Time) error {
	if err := post.MarkPublished(remoteID, at); err != nil {
		return err
	}
	if err := s.posts.Update(ctx, post); err != nil {
		return fmt.Errorf("persisting published state: %w", err)
	}

	acc.PostsToday++
	acc.LastActivity = &at
	if err := s.accounts.Update(ctx, acc); err != nil {
		return fmt.Errorf("persisting account counters: %w", err)
	}
	return nil
}

// ReschedulePost returns a publishing post to the queue at a new time
// without consuming a retry attempt.
func (s *Service) ReschedulePost(ctx context.Context, post *entity.Post, at time.Time, reason string) error {
	if err := post.Reschedule(at, reason); err != nil {
		return err
	}
	if err := s.posts.Update(ctx, post); err != nil {
		return fmt.Errorf("persisting rescheduled post: %w", err)
	}
	return nil
}

// FailPost resolves a post to the terminal failed state.
func (s *Service) FailPost(ctx context.Context, post *entity.Post, reason string) error {
	if err := post.MarkFailed(reason); err != nil {
		return err
	}
	if err := s.posts.Update(ctx, post); err != nil {
		return fmt.Errorf("persisting failed post: %w", err)
	}
	return nil
}

// SyncDailyCount recomputes the account's posts-today counter from the
// durable record, using the account's local midnight as the day boundary.
func (s *Service) SyncDailyCount(ctx context.Context, acc *entity.Account, dayStart time.Time) error {
	count, err := s.posts.CountPublishedSince(ctx, acc.ID, dayStart)
	if err != nil {
		return err
	}
	if acc.PostsToday != count {
		acc.PostsToday = count
		if err := s.accounts.Update(ctx, acc); err != nil {
			return fmt.Errorf("persisting daily counter: %w", err)
		}
	}
	return nil
}

// BanAccount moves the account to the terminal banned state and fails all
// of its scheduled posts. No further scheduling ever happens for it.
func (s *Service) BanAccount(ctx context.Context, acc *entity.Account, reason string) error {
	acc.MarkBanned(reason)
	if err := s.accounts.Update(ctx, acc); err != nil {
		return fmt.Errorf("persisting banned account: %w", err)
	}
	if err := s.posts.FailAllScheduled(ctx, acc.ID, "account banned: "+reason); err != nil {
		return fmt.Errorf("failing scheduled posts of banned account: %w", err)
	}
	return nil
}

// MarkAccountError moves the account to the error state, which requires a
// manual reset before it is scheduled again.
func (s *Service) MarkAccountError(ctx context.Context, acc *entity.Account, msg string) error {
	if err := acc.MarkError(msg); err != nil {
		return err
	}
	if err := s.accounts.Update(ctx, acc); err != nil {
		return fmt.Errorf("persisting account error: %w", err)
	}
	return nil
}

// SetAccountRunning grants or revokes the account's scheduling slot.
func (s *Service) SetAccountRunning(ctx context.Context, acc *entity.Account, running bool) error {
	if running {
		if err := acc.StartRunning(); err != nil {
			return err
		}
	} else {
		acc.StopRunning()
	}
	if err := s.accounts.Update(ctx, acc); err != nil {
		return fmt.Errorf("persisting run state: %w", err)
	}
	return nil
}

// SetProfileCreated records a provisioned fingerprint profile on the account.
func (s *Service) SetProfileCreated(ctx context.Context, acc *entity.Account, profileRef string) error {
	acc.ProfileRef = profileRef
	acc.ProfileState = entity.ProfileStateCreated
	if err := s.accounts.Update(ctx, acc); err != nil {
		return fmt.Errorf("persisting profile ref: %w", err)
	}
	return nil
}

// SetProfileState persists a profile provisioning transition.
func (s *Service) SetProfileState(ctx context.Context, acc *entity.Account, state entity.ProfileState) error {
	acc.ProfileState = state
	if err := s.accounts.Update(ctx, acc); err != nil {
		return fmt.Errorf("persisting profile state: %w", err)
	}
	return nil
}

// ReconcileStalePublishing returns posts that sat in 'publishing' longer
// than timeout back to 'scheduled'. Run on startup and after stop().
func (s *Service) ReconcileStalePublishing(ctx context.Context, now time.Time, timeout time.Duration) (int64, error) {
	return s.posts.ReleaseStalePublishing(ctx, now.Add(-timeout))
}

// HasMoreWork reports whether the account has another due post, which keeps
// its session warm across this scheduling window.
func (s *Service) HasMoreWork(ctx context.Context, accountID string, now time.Time) (bool, error) {
	return s.posts.HasScheduled(ctx, accountID, now)
}

// QueueDepth counts due scheduled posts across all accounts.
func (s *Service) QueueDepth(ctx context.Context, now time.Time) (int64, error) {
	return s.posts.CountScheduledDue(ctx, now)
}
