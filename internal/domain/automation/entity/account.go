package entity

import (
	"time"
)

// AccountStatus represents the lifecycle state of an automation account.
type AccountStatus string

const (
	AccountStatusPending  AccountStatus = "pending"
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
	AccountStatusBanned   AccountStatus = "banned"
	AccountStatusError    AccountStatus = "error"
)

// ProfileState represents the provisioning state of the account's
// browser-fingerprint profile at the external provider.
type ProfileState string

const (
	ProfileStateNone     ProfileState = "none"
	ProfileStateCreating ProfileState = "creating"
	ProfileStateCreated  ProfileState = "created"
	ProfileStateError    ProfileState = "error"
)

// WorkingHours bounds the local-time window during which an account may post.
// EndHour is exclusive; StartHour == EndHour means the whole day.
type WorkingHours struct {
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	Timezone  string `json:"timezone"`
}

// Location resolves the configured timezone, falling back to UTC.
func (w WorkingHours) Location() *time.Location {
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// Account represents a social profile driven by the orchestrator.
type Account struct {
	ID             string        `json:"id"`
	Username       string        `json:"username"`
	Status         AccountStatus `json:"status"`
	IsRunning      bool          `json:"is_running"`
	ProfileRef     string        `json:"profile_ref,omitempty"`
	ProfileState   ProfileState  `json:"profile_state"`
	MaxPostsPerDay int           `json:"max_posts_per_day"`
	PostsToday     int           `json:"posts_today"`
	WorkingHours   WorkingHours  `json:"working_hours"`
	MinDelay       time.Duration `json:"min_delay"`
	MaxDelay       time.Duration `json:"max_delay"`
	LastActivity   *time.Time    `json:"last_activity,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// CanRun reports whether the account may hold a live scheduling slot.
// Invariant: IsRunning implies Status == active and ProfileState == created.
func (a *Account) CanRun() bool {
	return a.Status == AccountStatusActive && a.ProfileState == ProfileStateCreated
}

// StartRunning gives the account a live scheduling slot.
func (a *Account) StartRunning() error {
	if a.Status == AccountStatusBanned {
		return ErrAccountBanned
	}
	if !a.CanRun() {
		return ErrInvalidTransition
	}
	a.IsRunning = true
	return nil
}

// StopRunning releases the account's scheduling slot. Does not change Status.
func (a *Account) StopRunning() {
	a.IsRunning = false
}

// Activate transitions a pending, inactive or error account to active.
// An error account requires this explicit manual reset to be scheduled again.
func (a *Account) Activate() error {
	switch a.Status {
	case AccountStatusPending, AccountStatusInactive, AccountStatusError:
		a.Status = AccountStatusActive
		a.ErrorMessage = ""
		return nil
	case AccountStatusActive:
		return nil
	default:
		return ErrInvalidTransition
	}
}

// MarkError moves the account to the error state on an unrecoverable
// profile or publish failure. Banned accounts stay banned.
func (a *Account) MarkError(msg string) error {
	if a.Status == AccountStatusBanned {
		return ErrInvalidTransition
	}
	a.Status = AccountStatusError
	a.ErrorMessage = msg
	a.IsRunning = false
	return nil
}

// MarkBanned moves the account to the terminal banned state. The
// orchestrator must never schedule a banned account again.
func (a *Account) MarkBanned(msg string) {
	a.Status = AccountStatusBanned
	a.ErrorMessage = msg
	a.IsRunning = false
}

// Validate checks structural invariants on the account record.
func (a *Account) Validate() error {
	if a.ID == "" {
		return ErrEmptyAccountID
	}
	if a.MaxPostsPerDay < 1 {
		return ErrInvalidPostLimit
	}
	if a.MinDelay < 0 || a.MaxDelay < a.MinDelay {
		return ErrInvalidDelayBounds
	}
	if a.WorkingHours.StartHour < 0 || a.WorkingHours.StartHour > 23 ||
		a.WorkingHours.EndHour < 0 || a.WorkingHours.EndHour > 24 {
		return ErrInvalidWorkingHours
	}
	if a.IsRunning && !a.CanRun() {
		return ErrRunningWithoutProfile
	}
	return nil
}
