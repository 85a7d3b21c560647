package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vadim/postpilot/internal/domain/automation/entity"
	"github.com/vadim/postpilot/internal/health"
	"github.com/vadim/postpilot/internal/retry"
)

// Session manager errors
var (
	// ErrAcquireTimeout means no session slot freed within the acquire timeout.
	// Capacity error: retried next tick, never counted against a post's attempts.
	ErrAcquireTimeout = errors.New("session acquire timed out")

	// ErrDependencyUnhealthy means the profile provider circuit is open.
	ErrDependencyUnhealthy = errors.New("profile provider is unhealthy")

	// ErrSessionBusy means another operation holds the account's session lease.
	ErrSessionBusy = errors.New("account session is already leased")

	// ErrNoProfile means the account has no provisioned fingerprint profile.
	ErrNoProfile = errors.New("account has no browser profile")
)

// Provider is the browser-profile provider contract consumed by the manager.
type Provider interface {
	StartSession(ctx context.Context, profileRef string) (endpoint, sessionID string, err error)
	StopSession(ctx context.Context, sessionID string) error
}

// Config holds session manager settings
type Config struct {
	MaxConcurrent  int
	AcquireTimeout time.Duration
	MaxLifetime    time.Duration
}

type lease struct {
	session *entity.Session
	leased  bool
}

// Manager owns the account -> browser session mapping. It enforces a global
// concurrency cap, an exclusive per-account lease, and a maximum session
// lifetime. A warm (released but kept) session continues to hold its slot.
type Manager struct {
	provider Provider
	monitor  *health.Monitor
	retry    retry.Policy
	sem      *semaphore.Weighted
	logger   *slog.Logger

	acquireTimeout time.Duration
	maxLifetime    time.Duration
	now            func() time.Time

	mu       sync.Mutex
	sessions map[string]*lease
}

// NewManager creates a session manager
func NewManager(provider Provider, monitor *health.Monitor, retryPolicy retry.Policy, cfg Config, logger *slog.Logger) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = 30 * time.Minute
	}

	return &Manager{
		provider:       provider,
		monitor:        monitor,
		retry:          retryPolicy,
		sem:            semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:         logger,
		acquireTimeout: cfg.AcquireTimeout,
		maxLifetime:    cfg.MaxLifetime,
		now:            time.Now,
		sessions:       make(map[string]*lease),
	}
}

// Acquire returns an exclusively leased session for the account. An existing
// warm session is reused unless it outlived the maximum lifetime, in which
// case it is recycled. Starting a new session waits for a global slot up to
// the acquire timeout and is guarded by the profile-provider health circuit.
func (m *Manager) Acquire(ctx context.Context, accountID, profileRef string) (*entity.Session, error) {
	if profileRef == "" {
		return nil, ErrNoProfile
	}

	m.mu.Lock()
	if l, ok := m.sessions[accountID]; ok {
		if l.leased {
			m.mu.Unlock()
			return nil, ErrSessionBusy
		}
		if l.session.Age(m.now()) < m.maxLifetime {
			l.leased = true
			m.mu.Unlock()
			return l.session, nil
		}

		// Session outlived its maximum lifetime; recycle it but keep the
		// slot so the replacement start cannot be starved by other accounts.
		l.session.Status = entity.SessionStatusStopping
		delete(m.sessions, accountID)
		stale := l.session
		m.mu.Unlock()

		m.logger.Info("recycling aged session", "account_id", accountID, "age", stale.Age(m.now()))
		m.stopQuietly(ctx, stale)
		return m.startLocked(ctx, accountID, profileRef, false)
	}
	m.mu.Unlock()

	return m.startLocked(ctx, accountID, profileRef, true)
}

// startLocked starts a fresh session. needSlot is false when the caller
// already holds a semaphore slot from a recycled session.
func (m *Manager) startLocked(ctx context.Context, accountID, profileRef string, needSlot bool) (*entity.Session, error) {
	if !m.monitor.IsHealthy(health.DepProfileProvider) {
		if needSlot {
			// Fail fast without consuming a slot or a retry budget.
			return nil, ErrDependencyUnhealthy
		}
		m.sem.Release(1)
		return nil, ErrDependencyUnhealthy
	}

	if needSlot {
		acquireCtx, cancel := context.WithTimeout(ctx, m.acquireTimeout)
		err := m.sem.Acquire(acquireCtx, 1)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrAcquireTimeout
		}
	}

	// Reserve the account's session entry before the provider call so a
	// concurrent Acquire for the same account fails the lease check instead
	// of starting a second browser.
	placeholder := &entity.Session{
		AccountID:  accountID,
		ProfileRef: profileRef,
		StartedAt:  m.now(),
		Status:     entity.SessionStatusStarting,
	}

	m.mu.Lock()
	if _, ok := m.sessions[accountID]; ok {
		m.mu.Unlock()
		m.sem.Release(1)
		return nil, ErrSessionBusy
	}
	m.sessions[accountID] = &lease{session: placeholder, leased: true}
	m.mu.Unlock()

	var endpoint, sessionID string
	err := m.retry.Do(ctx, func(ctx context.Context) error {
		var startErr error
		endpoint, sessionID, startErr = m.provider.StartSession(ctx, profileRef)
		return startErr
	})
	if err != nil {
		m.monitor.RecordFailure(health.DepProfileProvider)
		m.mu.Lock()
		delete(m.sessions, accountID)
		m.mu.Unlock()
		m.sem.Release(1)
		return nil, fmt.Errorf("starting browser session: %w", err)
	}
	m.monitor.RecordSuccess(health.DepProfileProvider)

	m.mu.Lock()
	placeholder.SessionID = sessionID
	placeholder.Endpoint = endpoint
	placeholder.StartedAt = m.now()
	placeholder.Status = entity.SessionStatusActive
	m.mu.Unlock()

	m.logger.Info("browser session started", "account_id", accountID, "session_id", sessionID)
	return placeholder, nil
}

// Release returns the account's lease. With keepWarm the session stays alive
// (still holding its slot) for the account's next post this window; otherwise
// the browser is stopped best-effort and the slot freed.
func (m *Manager) Release(ctx context.Context, accountID string, keepWarm bool) {
	m.mu.Lock()
	l, ok := m.sessions[accountID]
	if !ok {
		m.mu.Unlock()
		return
	}

	if keepWarm {
		l.leased = false
		m.mu.Unlock()
		return
	}

	l.session.Status = entity.SessionStatusStopping
	delete(m.sessions, accountID)
	sess := l.session
	m.mu.Unlock()

	m.stopQuietly(ctx, sess)
	m.sem.Release(1)
}

// ReleaseAll force-stops every session. Used by the orchestrator's stop().
func (m *Manager) ReleaseAll(ctx context.Context) {
	m.mu.Lock()
	leases := make([]*lease, 0, len(m.sessions))
	for _, l := range m.sessions {
		l.session.Status = entity.SessionStatusStopping
		leases = append(leases, l)
	}
	m.sessions = make(map[string]*lease)
	m.mu.Unlock()

	for _, l := range leases {
		m.stopQuietly(ctx, l.session)
		m.sem.Release(1)
	}
}

// ActiveCount returns the number of non-closed sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SetCapacity replaces the global concurrency cap. The semaphore cannot be
// resized while slots are held, so all sessions must be drained first.
func (m *Manager) SetCapacity(n int) error {
	if n < 1 {
		return errors.New("session capacity must be at least 1")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) > 0 {
		return fmt.Errorf("cannot resize with %d active sessions; stop the orchestrator first", len(m.sessions))
	}
	m.sem = semaphore.NewWeighted(int64(n))
	return nil
}

// stopQuietly stops a session best-effort. Provider failures on stop are
// logged but never block the caller. The stop call is detached from the
// caller's cancellation: a session started moments before shutdown must
// still reach the provider's stop endpoint.
func (m *Manager) stopQuietly(ctx context.Context, sess *entity.Session) {
	if sess.SessionID != "" {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := m.provider.StopSession(stopCtx, sess.SessionID); err != nil {
			m.logger.Warn("failed to stop browser session",
				"account_id", sess.AccountID, "session_id", sess.SessionID, "error", err)
		}
	}
	sess.Status = entity.SessionStatusClosed
}
