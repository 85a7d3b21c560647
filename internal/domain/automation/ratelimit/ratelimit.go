package ratelimit

import (
	"math/rand"
	"sync"
	"time"

	"github.com/vadim/postpilot/internal/domain/automation/entity"
)

// Limiter computes per-account posting eligibility from working hours,
// daily post quotas and randomized inter-post delays.
type Limiter struct {
	mu   sync.Mutex
	rand *rand.Rand
	now  func() time.Time
}

// New creates a limiter seeded from the current time.
func New() *Limiter {
	return &Limiter{
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
		now:  time.Now,
	}
}

// NewWithClock creates a limiter with an injected clock and seed, for tests.
func NewWithClock(now func() time.Time, seed int64) *Limiter {
	return &Limiter{
		rand: rand.New(rand.NewSource(seed)),
		now:  now,
	}
}

// IsEligibleNow reports whether the account may publish at this instant:
// within its working hours, below its daily quota, and past the randomized
// delay since its last activity. Both checks share a single clock reading so
// an account with no prior activity is eligible immediately.
func (l *Limiter) IsEligibleNow(acc *entity.Account) bool {
	now := l.now()

	if !l.withinWorkingHours(acc, now) {
		return false
	}
	if acc.PostsToday >= acc.MaxPostsPerDay {
		return false
	}
	return !now.Before(l.nextEligibleAt(acc, now))
}

// NextEligibleTime returns the earliest instant the account may publish:
// max(lastActivity + uniformRandom[minDelay, maxDelay], start of the next
// working window). The random delay is re-drawn on every call so retried
// posts never land on a fixed cadence.
func (l *Limiter) NextEligibleTime(acc *entity.Account) time.Time {
	return l.nextEligibleAt(acc, l.now())
}

func (l *Limiter) nextEligibleAt(acc *entity.Account, now time.Time) time.Time {
	earliest := now
	if acc.LastActivity != nil {
		earliest = acc.LastActivity.Add(l.randomDelay(acc.MinDelay, acc.MaxDelay))
	}

	windowStart := l.startOfWorkingWindow(acc, earliest)
	if windowStart.After(earliest) {
		return windowStart
	}
	return earliest
}

// DayStart returns local midnight of now in the account's timezone, the
// boundary at which PostsToday resets.
func (l *Limiter) DayStart(acc *entity.Account) time.Time {
	loc := acc.WorkingHours.Location()
	local := l.now().In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// randomDelay draws a duration uniformly from [min, max], bounds inclusive.
func (l *Limiter) randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	l.mu.Lock()
	n := l.rand.Int63n(int64(max-min) + 1)
	l.mu.Unlock()
	return min + time.Duration(n)
}

// withinWorkingHours reports whether t falls inside the account's window.
func (l *Limiter) withinWorkingHours(acc *entity.Account, t time.Time) bool {
	w := acc.WorkingHours
	if w.StartHour == w.EndHour {
		return true
	}

	hour := t.In(w.Location()).Hour()
	if w.StartHour < w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	// Window crosses midnight, e.g. 22-06.
	return hour >= w.StartHour || hour < w.EndHour
}

// startOfWorkingWindow returns t when t is already inside the window,
// otherwise the start of the next window after t.
func (l *Limiter) startOfWorkingWindow(acc *entity.Account, t time.Time) time.Time {
	if l.withinWorkingHours(acc, t) {
		return t
	}

	w := acc.WorkingHours
	loc := w.Location()
	local := t.In(loc)

	next := time.Date(local.Year(), local.Month(), local.Day(), w.StartHour, 0, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
