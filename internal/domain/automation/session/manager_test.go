package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vadim/postpilot/internal/health"
	"github.com/vadim/postpilot/internal/retry"
)

type fakeProvider struct {
	mu       sync.Mutex
	starts   int32
	stops    []string
	startErr error
	delay    time.Duration
}

func (p *fakeProvider) StartSession(ctx context.Context, profileRef string) (string, string, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}
	if p.startErr != nil {
		return "", "", p.startErr
	}
	n := atomic.AddInt32(&p.starts, 1)
	return fmt.Sprintf("ws://browser/%d", n), fmt.Sprintf("sess-%d", n), nil
}

func (p *fakeProvider) StopSession(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops = append(p.stops, sessionID)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(p Provider, cfg Config) (*Manager, *health.Monitor) {
	mon := health.NewMonitor(5)
	policy := retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}
	return NewManager(p, mon, policy, cfg, discardLogger()), mon
}

func TestAcquireReusesWarmSession(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(p, Config{MaxConcurrent: 2})
	ctx := context.Background()

	s1, err := m.Acquire(ctx, "acc-1", "prof-1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	m.Release(ctx, "acc-1", true)

	s2, err := m.Acquire(ctx, "acc-1", "prof-1")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if s1.SessionID != s2.SessionID {
		t.Errorf("expected warm session reuse, got %s then %s", s1.SessionID, s2.SessionID)
	}
	if got := atomic.LoadInt32(&p.starts); got != 1 {
		t.Errorf("provider started %d sessions, want 1", got)
	}
}

func TestAcquireEnforcesExclusiveLease(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(p, Config{MaxConcurrent: 2})
	ctx := context.Background()

	if _, err := m.Acquire(ctx, "acc-1", "prof-1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := m.Acquire(ctx, "acc-1", "prof-1"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("second acquire while leased = %v, want ErrSessionBusy", err)
	}
}

func TestAtMostOneSessionPerAccountUnderConcurrency(t *testing.T) {
	p := &fakeProvider{delay: 10 * time.Millisecond}
	m, _ := newTestManager(p, Config{MaxConcurrent: 10})
	ctx := context.Background()

	const goroutines = 8
	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Acquire(ctx, "acc-1", "prof-1"); err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("%d concurrent acquires succeeded, want exactly 1", successes)
	}
	if got := atomic.LoadInt32(&p.starts); got != 1 {
		t.Errorf("provider started %d sessions for one account, want 1", got)
	}
	if m.ActiveCount() != 1 {
		t.Errorf("active sessions = %d, want 1", m.ActiveCount())
	}
}

func TestAcquireTimesOutAtCapacity(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(p, Config{MaxConcurrent: 1, AcquireTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	if _, err := m.Acquire(ctx, "acc-1", "prof-1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	start := time.Now()
	_, err := m.Acquire(ctx, "acc-2", "prof-2")
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("acquire at capacity = %v, want ErrAcquireTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("acquire returned after %v, expected it to wait for the timeout", elapsed)
	}
}

func TestReleaseFreesSlotForWaiters(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(p, Config{MaxConcurrent: 1, AcquireTimeout: 2 * time.Second})
	ctx := context.Background()

	if _, err := m.Acquire(ctx, "acc-1", "prof-1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(ctx, "acc-2", "prof-2")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	m.Release(ctx, "acc-1", false)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter acquire after release: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never obtained the freed slot")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.stops) != 1 {
		t.Errorf("expected 1 stopped session, got %d", len(p.stops))
	}
}

func TestAcquireFailsFastWhenProviderUnhealthy(t *testing.T) {
	boom := errors.New("provider down")
	p := &fakeProvider{startErr: boom}
	m, mon := newTestManager(p, Config{MaxConcurrent: 2})
	ctx := context.Background()

	// Five consecutive start failures open the circuit.
	for i := 0; i < 5; i++ {
		if _, err := m.Acquire(ctx, "acc-1", "prof-1"); err == nil {
			t.Fatal("expected acquire to fail while provider is down")
		}
	}
	if mon.IsHealthy(health.DepProfileProvider) {
		t.Fatal("expected profile provider to be unhealthy after 5 failures")
	}

	p.startErr = nil
	before := atomic.LoadInt32(&p.starts)
	_, err := m.Acquire(ctx, "acc-1", "prof-1")
	if !errors.Is(err, ErrDependencyUnhealthy) {
		t.Fatalf("acquire with open circuit = %v, want ErrDependencyUnhealthy", err)
	}
	if after := atomic.LoadInt32(&p.starts); after != before {
		t.Error("open circuit must short-circuit without calling the provider")
	}
}

func TestAgedSessionIsRecycled(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(p, Config{MaxConcurrent: 1, MaxLifetime: time.Nanosecond})
	ctx := context.Background()

	s1, err := m.Acquire(ctx, "acc-1", "prof-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	m.Release(ctx, "acc-1", true)
	time.Sleep(time.Millisecond)

	s2, err := m.Acquire(ctx, "acc-1", "prof-1")
	if err != nil {
		t.Fatalf("acquire after max lifetime: %v", err)
	}
	if s1.SessionID == s2.SessionID {
		t.Error("aged session must be recycled, not reused")
	}

	p.mu.Lock()
	stopped := len(p.stops)
	p.mu.Unlock()
	if stopped != 1 {
		t.Errorf("expected old session to be stopped, got %d stops", stopped)
	}
	if m.ActiveCount() != 1 {
		t.Errorf("active sessions = %d, want 1", m.ActiveCount())
	}
}

func TestReleaseAllStopsEverything(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(p, Config{MaxConcurrent: 3})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("acc-%d", i)
		if _, err := m.Acquire(ctx, id, "prof-"+id); err != nil {
			t.Fatalf("acquire %s: %v", id, err)
		}
	}

	m.ReleaseAll(ctx)

	if m.ActiveCount() != 0 {
		t.Errorf("active sessions after ReleaseAll = %d, want 0", m.ActiveCount())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.stops) != 3 {
		t.Errorf("stopped %d sessions, want 3", len(p.stops))
	}
}

func TestAcquireWithoutProfile(t *testing.T) {
	p := &fakeProvider{}
	m, _ := newTestManager(p, Config{MaxConcurrent: 1})

	if _, err := m.Acquire(context.Background(), "acc-1", ""); !errors.Is(err, ErrNoProfile) {
		t.Errorf("acquire without profile = %v, want ErrNoProfile", err)
	}
}
