package entity

import (
	"time"
)

// PostStatus represents the publication state of a post.
type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
)

// DefaultMaxAttempts is the number of publish attempts before a post is
// failed terminally.
const DefaultMaxAttempts = 3

// Post represents one media item queued for publication.
type Post struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"account_id"`
	Status       PostStatus `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	MediaRef     string     `json:"media_ref"`
	Caption      string     `json:"caption"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"last_error,omitempty"`
	RemoteID     string     `json:"remote_id,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsDue reports whether a scheduled post is ready for publication at now.
func (p *Post) IsDue(now time.Time) bool {
	return p.Status == PostStatusScheduled && p.ScheduledFor != nil && !p.ScheduledFor.After(now)
}

// BeginPublishing moves a scheduled post into the transient publishing
// state and consumes one attempt. Only the orchestrator performs this.
func (p *Post) BeginPublishing() error {
	if p.Status != PostStatusScheduled {
		return ErrInvalidTransition
	}
	p.Status = PostStatusPublishing
	p.Attempts++
	return nil
}

// MarkPublished resolves a publishing post to the terminal published state.
func (p *Post) MarkPublished(remoteID string, at time.Time) error {
	if p.Status != PostStatusPublishing {
		return ErrInvalidTransition
	}
	p.Status = PostStatusPublished
	p.RemoteID = remoteID
	p.PublishedAt = &at
	p.LastError = ""
	return nil
}

// Reschedule returns a publishing post to the queue with a fresh time,
// without touching the attempt counter. Used for retryable failures and
// capacity errors, which never consume the retry budget.
func (p *Post) Reschedule(at time.Time, lastErr string) error {
	if p.Status != PostStatusPublishing {
		return ErrInvalidTransition
	}
	p.Status = PostStatusScheduled
	p.ScheduledFor = &at
	p.LastError = lastErr
	return nil
}

// MarkFailed resolves a publishing or scheduled post to the failed state.
func (p *Post) MarkFailed(lastErr string) error {
	if p.Status != PostStatusPublishing && p.Status != PostStatusScheduled {
		return ErrInvalidTransition
	}
	p.Status = PostStatusFailed
	p.LastError = lastErr
	return nil
}

// AttemptsExhausted reports whether the post has used its retry budget.
func (p *Post) AttemptsExhausted(maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return p.Attempts >= maxAttempts
}

// Validate checks structural invariants on the post record.
func (p *Post) Validate() error {
	if p.AccountID == "" {
		return ErrEmptyAccountID
	}
	if p.MediaRef == "" {
		return ErrEmptyMediaRef
	}
	if p.Status == PostStatusScheduled && p.ScheduledFor == nil {
		return ErrMissingSchedule
	}
	return nil
}
