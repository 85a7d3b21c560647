package entity

import (
	"errors"
	"testing"
	"time"
)

func activeAccount() *Account {
	return &Account{
		ID:             "acc-1",
		Status:         AccountStatusActive,
		ProfileState:   ProfileStateCreated,
		MaxPostsPerDay: 5,
		MinDelay:       time.Minute,
		MaxDelay:       5 * time.Minute,
		WorkingHours:   WorkingHours{StartHour: 9, EndHour: 18, Timezone: "UTC"},
	}
}

func TestAccountStartRunningRequiresActiveProfile(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Account)
		wantErr error
	}{
		{"active with profile", func(a *Account) {}, nil},
		{"pending", func(a *Account) { a.Status = AccountStatusPending }, ErrInvalidTransition},
		{"profile missing", func(a *Account) { a.ProfileState = ProfileStateNone }, ErrInvalidTransition},
		{"banned", func(a *Account) { a.Status = AccountStatusBanned }, ErrAccountBanned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := activeAccount()
			tt.mutate(a)
			err := a.StartRunning()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("StartRunning() = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && !a.IsRunning {
				t.Error("expected account to be running")
			}
		})
	}
}

func TestAccountBannedIsTerminal(t *testing.T) {
	a := activeAccount()
	a.IsRunning = true
	a.MarkBanned("platform ban detected")

	if a.Status != AccountStatusBanned {
		t.Fatalf("status = %s, want banned", a.Status)
	}
	if a.IsRunning {
		t.Error("banned account must lose its scheduling slot")
	}
	if err := a.Activate(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Activate on banned account = %v, want ErrInvalidTransition", err)
	}
	if err := a.MarkError("x"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MarkError on banned account = %v, want ErrInvalidTransition", err)
	}
}

func TestAccountErrorRequiresManualReset(t *testing.T) {
	a := activeAccount()
	if err := a.MarkError("profile start failed"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	if a.Status != AccountStatusError || a.IsRunning {
		t.Fatal("error account must not be running")
	}

	if err := a.Activate(); err != nil {
		t.Fatalf("Activate after error: %v", err)
	}
	if a.Status != AccountStatusActive || a.ErrorMessage != "" {
		t.Error("activation must clear the error state")
	}
}

func TestAccountValidateRunningInvariant(t *testing.T) {
	a := activeAccount()
	a.IsRunning = true
	a.ProfileState = ProfileStateCreating

	if err := a.Validate(); !errors.Is(err, ErrRunningWithoutProfile) {
		t.Errorf("Validate() = %v, want ErrRunningWithoutProfile", err)
	}
}

func scheduledPost(at time.Time) *Post {
	return &Post{
		ID:           "post-1",
		AccountID:    "acc-1",
		Status:       PostStatusScheduled,
		ScheduledFor: &at,
		MediaRef:     "media/clip.mp4",
	}
}

func TestPostNeverSkipsPublishing(t *testing.T) {
	p := scheduledPost(time.Now())

	if err := p.MarkPublished("remote-1", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("scheduled -> published must be rejected, got %v", err)
	}

	if err := p.BeginPublishing(); err != nil {
		t.Fatalf("BeginPublishing: %v", err)
	}
	if p.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", p.Attempts)
	}

	if err := p.MarkPublished("remote-1", time.Now()); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	if p.Status != PostStatusPublished || p.RemoteID != "remote-1" {
		t.Error("expected terminal published state with remote id")
	}

	if err := p.BeginPublishing(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("published post must not re-enter publishing, got %v", err)
	}
}

func TestPostRescheduleKeepsAttemptCount(t *testing.T) {
	p := scheduledPost(time.Now())
	if err := p.BeginPublishing(); err != nil {
		t.Fatal(err)
	}

	later := time.Now().Add(time.Hour)
	if err := p.Reschedule(later, "session acquire timeout"); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if p.Status != PostStatusScheduled {
		t.Errorf("status = %s, want scheduled", p.Status)
	}
	if p.Attempts != 1 {
		t.Errorf("reschedule must not consume an attempt, attempts = %d", p.Attempts)
	}
	if !p.ScheduledFor.Equal(later) {
		t.Errorf("scheduled_for = %v, want %v", p.ScheduledFor, later)
	}
}

func TestPostAttemptsExhausted(t *testing.T) {
	p := scheduledPost(time.Now())
	p.Attempts = 2
	if p.AttemptsExhausted(3) {
		t.Error("2 of 3 attempts must not be exhausted")
	}
	p.Attempts = 3
	if !p.AttemptsExhausted(3) {
		t.Error("3 of 3 attempts must be exhausted")
	}
}

func TestPostIsDue(t *testing.T) {
	now := time.Now()
	p := scheduledPost(now.Add(-time.Minute))
	if !p.IsDue(now) {
		t.Error("past schedule must be due")
	}

	p = scheduledPost(now.Add(time.Minute))
	if p.IsDue(now) {
		t.Error("future schedule must not be due")
	}

	p.Status = PostStatusDraft
	if p.IsDue(now) {
		t.Error("draft must never be due")
	}
}
