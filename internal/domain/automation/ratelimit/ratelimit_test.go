package ratelimit

import (
	"testing"
	"time"

	"github.com/vadim/postpilot/internal/domain/automation/entity"
)

func testAccount() *entity.Account {
	return &entity.Account{
		ID:             "acc-1",
		Status:         entity.AccountStatusActive,
		ProfileState:   entity.ProfileStateCreated,
		MaxPostsPerDay: 3,
		MinDelay:       10 * time.Minute,
		MaxDelay:       30 * time.Minute,
		WorkingHours:   entity.WorkingHours{StartHour: 9, EndHour: 18, Timezone: "UTC"},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIsEligibleNowRespectsDailyQuota(t *testing.T) {
	noon := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(fixedClock(noon), 1)

	for posts := 0; posts <= 5; posts++ {
		acc := testAccount()
		acc.PostsToday = posts

		got := l.IsEligibleNow(acc)
		want := posts < acc.MaxPostsPerDay
		if got != want {
			t.Errorf("postsToday=%d: eligible = %v, want %v", posts, got, want)
		}
	}
}

func TestIsEligibleNowRespectsWorkingHours(t *testing.T) {
	tests := []struct {
		name string
		hour int
		want bool
	}{
		{"before window", 8, false},
		{"window start", 9, true},
		{"midday", 13, true},
		{"window end is exclusive", 18, false},
		{"night", 23, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2025, 6, 2, tt.hour, 30, 0, 0, time.UTC)
			l := NewWithClock(fixedClock(now), 1)
			if got := l.IsEligibleNow(testAccount()); got != tt.want {
				t.Errorf("hour %d: eligible = %v, want %v", tt.hour, got, tt.want)
			}
		})
	}
}

func TestWorkingWindowCrossingMidnight(t *testing.T) {
	acc := testAccount()
	acc.WorkingHours = entity.WorkingHours{StartHour: 22, EndHour: 6, Timezone: "UTC"}

	inWindow := time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	l := NewWithClock(fixedClock(inWindow), 1)
	if !l.IsEligibleNow(acc) {
		t.Error("23:00 must be inside a 22-06 window")
	}

	outWindow := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	l = NewWithClock(fixedClock(outWindow), 1)
	if l.IsEligibleNow(acc) {
		t.Error("12:00 must be outside a 22-06 window")
	}
}

func TestNextEligibleTimeWithinRandomBounds(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	last := now.Add(-time.Minute)

	acc := testAccount()
	acc.LastActivity = &last

	l := NewWithClock(fixedClock(now), 42)

	seen := make(map[time.Time]bool)
	for i := 0; i < 200; i++ {
		next := l.NextEligibleTime(acc)
		delay := next.Sub(last)
		if delay < acc.MinDelay || delay > acc.MaxDelay {
			t.Fatalf("delay %v outside [%v, %v]", delay, acc.MinDelay, acc.MaxDelay)
		}
		seen[next] = true
	}
	if len(seen) < 2 {
		t.Error("delay must be re-drawn per call, got a fixed value")
	}
}

func TestNextEligibleTimeDefersToWorkingWindow(t *testing.T) {
	night := time.Date(2025, 6, 2, 23, 0, 0, 0, time.UTC)
	last := night.Add(-time.Hour)

	acc := testAccount()
	acc.LastActivity = &last

	l := NewWithClock(fixedClock(night), 1)
	next := l.NextEligibleTime(acc)

	wantStart := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)
	if !next.Equal(wantStart) {
		t.Errorf("next eligible = %v, want start of next window %v", next, wantStart)
	}
}

func TestNextEligibleTimeWithoutHistory(t *testing.T) {
	noon := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(fixedClock(noon), 1)

	if next := l.NextEligibleTime(testAccount()); !next.Equal(noon) {
		t.Errorf("account without last activity must be eligible now, got %v", next)
	}
}

func TestIsEligibleNowWithAdvancingClock(t *testing.T) {
	// The eligibility check and the next-eligible computation must observe
	// the same instant. With a ticking clock a fresh account would otherwise
	// always see its own deadline a step in the future and never fire.
	base := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	step := 0
	l := NewWithClock(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Millisecond)
	}, 1)

	if !l.IsEligibleNow(testAccount()) {
		t.Error("fresh account must be eligible under a real clock")
	}
}

func TestDayStartUsesAccountTimezone(t *testing.T) {
	// 01:00 UTC on June 3rd is still June 2nd in New York.
	utc := time.Date(2025, 6, 3, 1, 0, 0, 0, time.UTC)

	acc := testAccount()
	acc.WorkingHours.Timezone = "America/New_York"

	l := NewWithClock(fixedClock(utc), 1)
	dayStart := l.DayStart(acc)

	if dayStart.Day() != 2 {
		t.Errorf("day start day = %d, want 2 (local midnight in account tz)", dayStart.Day())
	}
	if dayStart.Hour() != 0 || dayStart.Minute() != 0 {
		t.Errorf("day start must be local midnight, got %v", dayStart)
	}
}
