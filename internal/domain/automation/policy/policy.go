package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/postpilot/internal/domain/automation/entity"
	"github.com/vadim/postpilot/internal/domain/automation/service"
	"github.com/vadim/postpilot/internal/domain/automation/session"
	"github.com/vadim/postpilot/internal/events"
	"github.com/vadim/postpilot/internal/health"
	"github.com/vadim/postpilot/internal/retry"
)

// Publish outcome sentinels. The publisher adapter maps worker responses
// onto these; all three are permanent and never retried.
var (
	ErrAlreadyPublished  = errors.New("post already published")
	ErrAccountBanned     = errors.New("account banned by target platform")
	ErrPublishValidation = errors.New("publish payload rejected")
	ErrAlreadyRunning    = errors.New("orchestrator is already running")
	ErrNotRunning        = errors.New("orchestrator is not running")
)

// Publisher performs one login+publish cycle through a browser session.
// Interface is defined here (consumer), not in the upstream package.
type Publisher interface {
	Publish(ctx context.Context, in PublishInput) (*PublishOutput, error)
}

// PublishInput represents one publication attempt
type PublishInput struct {
	Endpoint         string
	MediaPath        string
	Caption          string
	IdempotencyToken string
}

// PublishOutput represents a successful publication
type PublishOutput struct {
	RemoteID string
}

// MediaResolver resolves an opaque media locator to a local file path.
type MediaResolver interface {
	Resolve(ctx context.Context, mediaRef string) (string, error)
}

// ProfileProvisioner creates fingerprint profiles for accounts that have none.
type ProfileProvisioner interface {
	CreateProfile(ctx context.Context, name string) (profileRef string, err error)
}

// SessionManager is the session-lease contract consumed by the orchestrator.
type SessionManager interface {
	Acquire(ctx context.Context, accountID, profileRef string) (*entity.Session, error)
	Release(ctx context.Context, accountID string, keepWarm bool)
	ReleaseAll(ctx context.Context)
	ActiveCount() int
	SetCapacity(n int) error
}

// Limiter is the per-account posting-rate contract.
type Limiter interface {
	IsEligibleNow(acc *entity.Account) bool
	NextEligibleTime(acc *entity.Account) time.Time
	DayStart(acc *entity.Account) time.Time
}

// Defaults fill account fields the CRUD layer left at zero.
type Defaults struct {
	MaxPostsPerDay int
	MinDelay       time.Duration
	MaxDelay       time.Duration
	WorkingHours   entity.WorkingHours
}

// Config holds orchestrator settings
type Config struct {
	// MaxAttempts bounds publish retries per post before terminal failure.
	MaxAttempts int
	// PublishingTimeout bounds how long a post may sit in 'publishing'
	// before startup reconciliation returns it to 'scheduled'.
	PublishingTimeout time.Duration
	// PublishRetry wraps each publisher call.
	PublishRetry retry.Policy
	// Defaults for accounts with unset policy fields.
	Defaults Defaults
}

// Orchestrator drives the scheduling control loop: it selects eligible
// accounts, dequeues their next due post, leases a browser session,
// delegates publication and applies the resulting state transitions.
// One explicitly constructed value owns all dependencies; no globals.
type Orchestrator struct {
	svc       *service.Service
	limiter   Limiter
	sessions  SessionManager
	publisher Publisher
	media     MediaResolver
	profiles  ProfileProvisioner
	monitor   *health.Monitor
	events    *events.Ring
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time

	mu        sync.Mutex
	running   bool
	paused    bool
	inFlight  map[string]struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	ticks     sync.WaitGroup
}

// New creates an orchestrator
func New(
	svc *service.Service,
	limiter Limiter,
	sessions SessionManager,
	publisher Publisher,
	media MediaResolver,
	profiles ProfileProvisioner,
	monitor *health.Monitor,
	ring *events.Ring,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = entity.DefaultMaxAttempts
	}
	if cfg.PublishingTimeout <= 0 {
		cfg.PublishingTimeout = 10 * time.Minute
	}

	return &Orchestrator{
		svc:       svc,
		limiter:   limiter,
		sessions:  sessions,
		publisher: publisher,
		media:     media,
		profiles:  profiles,
		monitor:   monitor,
		events:    ring,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		inFlight:  make(map[string]struct{}),
	}
}

// Start begins scheduling. Posts left in 'publishing' by a previous run are
// reconciled back to 'scheduled' before the first tick.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.paused = false
	// Tick work is bound to the run, not to the caller's request context,
	// so Stop can cancel anything still blocked on an external call.
	o.runCtx, o.runCancel = context.WithCancel(context.Background())
	o.mu.Unlock()

	reconciled, err := o.svc.ReconcileStalePublishing(ctx, o.now(), o.cfg.PublishingTimeout)
	if err != nil {
		o.mu.Lock()
		o.running = false
		o.runCancel()
		o.mu.Unlock()
		return fmt.Errorf("reconciling stale publishing posts: %w", err)
	}
	if reconciled > 0 {
		o.logger.Info("reconciled stale publishing posts", "count", reconciled)
		o.events.Add(events.LevelWarn, "", fmt.Sprintf("reconciled %d stale publishing posts", reconciled))
	}

	o.events.Add(events.LevelInfo, "", "orchestrator started")
	return nil
}

// Stop halts scheduling: it cancels the run context, waits for in-flight
// tick work to drain, force-releases every session and returns in-flight
// publishing posts to the queue. Draining before the release pass means no
// session can be started after its account was swept.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	o.running = false
	o.paused = false
	cancel := o.runCancel
	o.mu.Unlock()

	cancel()
	o.ticks.Wait()

	o.sessions.ReleaseAll(ctx)

	if _, err := o.svc.ReconcileStalePublishing(ctx, o.now(), 0); err != nil {
		return fmt.Errorf("clearing in-flight publishing posts: %w", err)
	}

	o.events.Add(events.LevelInfo, "", "orchestrator stopped")
	return nil
}

// Pause halts new dequeues without tearing down warm sessions.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	o.events.Add(events.LevelInfo, "", "orchestrator paused")
}

// Resume re-enables dequeues after a pause.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
	o.events.Add(events.LevelInfo, "", "orchestrator resumed")
}

// StatusOutput is the operator-facing snapshot.
type StatusOutput struct {
	Running        bool           `json:"running"`
	Paused         bool           `json:"paused"`
	ActiveAccounts int            `json:"active_accounts"`
	ActiveSessions int            `json:"active_sessions"`
	QueueDepth     int64          `json:"queue_depth"`
	HealthScores   map[string]int `json:"health_scores"`
	RecentEvents   []events.Event `json:"recent_events"`
}

// Status reports last-known orchestrator state.
func (o *Orchestrator) Status(ctx context.Context) (*StatusOutput, error) {
	o.mu.Lock()
	running, paused := o.running, o.paused
	o.mu.Unlock()

	accounts, err := o.svc.ListActiveAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	activeAccounts := 0
	for i := range accounts {
		if accounts[i].IsRunning {
			activeAccounts++
		}
	}

	depth, err := o.svc.QueueDepth(ctx, o.now())
	if err != nil {
		return nil, fmt.Errorf("counting queue depth: %w", err)
	}

	return &StatusOutput{
		Running:        running,
		Paused:         paused,
		ActiveAccounts: activeAccounts,
		ActiveSessions: o.sessions.ActiveCount(),
		QueueDepth:     depth,
		HealthScores:   o.monitor.Scores(),
		RecentEvents:   o.events.Recent(),
	}, nil
}

// UpdateSettingsInput carries optional setting overrides.
type UpdateSettingsInput struct {
	MaxConcurrentSessions *int
	MaxPostsPerDay        *int
	MinDelay              *time.Duration
	MaxDelay              *time.Duration
	WorkingHours          *entity.WorkingHours
}

// UpdateSettings validates and applies operator setting changes. The session
// cap can only change while no sessions are held.
func (o *Orchestrator) UpdateSettings(in UpdateSettingsInput) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	min, max := o.cfg.Defaults.MinDelay, o.cfg.Defaults.MaxDelay
	if in.MinDelay != nil {
		min = *in.MinDelay
	}
	if in.MaxDelay != nil {
		max = *in.MaxDelay
	}
	if min < 0 || max < min {
		return entity.ErrInvalidDelayBounds
	}
	if in.MaxPostsPerDay != nil && *in.MaxPostsPerDay < 1 {
		return entity.ErrInvalidPostLimit
	}
	if in.WorkingHours != nil {
		w := *in.WorkingHours
		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 24 {
			return entity.ErrInvalidWorkingHours
		}
	}
	if in.MaxConcurrentSessions != nil {
		if err := o.sessions.SetCapacity(*in.MaxConcurrentSessions); err != nil {
			return err
		}
	}

	o.cfg.Defaults.MinDelay = min
	o.cfg.Defaults.MaxDelay = max
	if in.MaxPostsPerDay != nil {
		o.cfg.Defaults.MaxPostsPerDay = *in.MaxPostsPerDay
	}
	if in.WorkingHours != nil {
		o.cfg.Defaults.WorkingHours = *in.WorkingHours
	}
	return nil
}

// ResetHealth closes the circuit for a dependency after operator
// intervention, clearing its failure streak.
func (o *Orchestrator) ResetHealth(dep string) {
	o.monitor.Reset(dep)
	o.events.Add(events.LevelInfo, "", "health circuit reset: "+dep)
}

// RunAccount grants the account a scheduling slot, provisioning its
// fingerprint profile first when it has none. This is the event-triggered
// fast path for newly activated accounts.
func (o *Orchestrator) RunAccount(ctx context.Context, accountID string) error {
	acc, err := o.svc.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.Status == entity.AccountStatusBanned {
		return entity.ErrAccountBanned
	}

	if acc.ProfileState != entity.ProfileStateCreated {
		if err := o.provisionProfile(ctx, acc); err != nil {
			return err
		}
	}

	if err := o.svc.SetAccountRunning(ctx, acc, true); err != nil {
		return err
	}

	o.events.Add(events.LevelInfo, acc.ID, "account scheduling started")
	return nil
}

// HaltAccount revokes the account's scheduling slot and stops its session.
func (o *Orchestrator) HaltAccount(ctx context.Context, accountID string) error {
	acc, err := o.svc.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if err := o.svc.SetAccountRunning(ctx, acc, false); err != nil {
		return err
	}
	o.sessions.Release(ctx, acc.ID, false)

	o.events.Add(events.LevelInfo, acc.ID, "account scheduling halted")
	return nil
}

// provisionProfile creates a fingerprint profile through the provider,
// persisting the creating -> created/error transitions durably.
func (o *Orchestrator) provisionProfile(ctx context.Context, acc *entity.Account) error {
	if !o.monitor.IsHealthy(health.DepProfileProvider) {
		return session.ErrDependencyUnhealthy
	}

	if err := o.svc.SetProfileState(ctx, acc, entity.ProfileStateCreating); err != nil {
		return err
	}

	profileRef, err := o.profiles.CreateProfile(ctx, acc.Username)
	if err != nil {
		o.monitor.RecordFailure(health.DepProfileProvider)
		if stateErr := o.svc.SetProfileState(ctx, acc, entity.ProfileStateError); stateErr != nil {
			o.logger.Error("failed to persist profile error state", "account_id", acc.ID, "error", stateErr)
		}
		return fmt.Errorf("creating browser profile: %w", err)
	}
	o.monitor.RecordSuccess(health.DepProfileProvider)

	return o.svc.SetProfileCreated(ctx, acc, profileRef)
}

// ProcessTick runs one scheduling iteration. Accounts are processed
// concurrently and in isolation: a failure on one account is logged and
// never propagates to the others or crashes the loop.
func (o *Orchestrator) ProcessTick(ctx context.Context) error {
	o.mu.Lock()
	if !o.running || o.paused {
		o.mu.Unlock()
		return nil
	}
	// Registering the tick and reading the defaults under the same lock keeps
	// Stop's drain and UpdateSettings' writes ordered against this tick.
	runCtx := o.runCtx
	defaults := o.cfg.Defaults
	o.ticks.Add(1)
	o.mu.Unlock()
	defer o.ticks.Done()

	accounts, err := o.svc.ListActiveAccounts(runCtx)
	if err != nil {
		return fmt.Errorf("listing active accounts: %w", err)
	}

	var wg sync.WaitGroup
	for i := range accounts {
		acc := accounts[i]
		if !acc.IsRunning {
			continue
		}
		if !o.markInFlight(acc.ID) {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer o.clearInFlight(acc.ID)
			o.processAccount(runCtx, &acc, defaults)
		}()
	}
	wg.Wait()

	return nil
}

// processAccount publishes at most one due post for the account.
func (o *Orchestrator) processAccount(ctx context.Context, acc *entity.Account, defaults Defaults) {
	applyDefaults(acc, defaults)

	if err := o.svc.SyncDailyCount(ctx, acc, o.limiter.DayStart(acc)); err != nil {
		o.logger.Error("failed to sync daily counter", "account_id", acc.ID, "error", err)
		return
	}

	if !o.limiter.IsEligibleNow(acc) {
		return
	}

	post, err := o.svc.NextDuePost(ctx, acc.ID, o.now())
	if err != nil {
		o.logger.Error("failed to dequeue post", "account_id", acc.ID, "error", err)
		return
	}
	if post == nil {
		return
	}

	if err := post.Validate(); err != nil {
		// Validation failures are never retried.
		o.recordFailureEvent(acc.ID, "post rejected: "+err.Error())
		if failErr := o.svc.FailPost(ctx, post, err.Error()); failErr != nil {
			o.logger.Error("failed to persist validation failure", "post_id", post.ID, "error", failErr)
		}
		return
	}

	// Durably mark publishing before any external call so a crash here is
	// observable and recoverable by the startup reconciliation scan.
	if err := o.svc.BeginPublishing(ctx, post); err != nil {
		o.logger.Error("failed to mark post publishing", "post_id", post.ID, "error", err)
		return
	}

	sess, err := o.sessions.Acquire(ctx, acc.ID, acc.ProfileRef)
	if err != nil {
		o.handlePrePublishFailure(ctx, acc, post, fmt.Errorf("acquiring session: %w", err))
		return
	}

	o.publishPost(ctx, acc, post, sess)
}

// publishPost resolves media, delegates to the publisher and applies the
// outcome. The session lease is held for the whole cycle.
func (o *Orchestrator) publishPost(ctx context.Context, acc *entity.Account, post *entity.Post, sess *entity.Session) {
	keepWarm := false
	defer func() {
		o.sessions.Release(ctx, acc.ID, keepWarm)
	}()

	if !o.monitor.IsHealthy(health.DepMediaStore) {
		keepWarm = true
		o.handlePrePublishFailure(ctx, acc, post, fmt.Errorf("media store: %w", session.ErrDependencyUnhealthy))
		return
	}

	mediaPath, err := o.media.Resolve(ctx, post.MediaRef)
	if err != nil {
		o.monitor.RecordFailure(health.DepMediaStore)
		o.handlePublishFailure(ctx, acc, post, fmt.Errorf("resolving media: %w", err))
		return
	}
	o.monitor.RecordSuccess(health.DepMediaStore)

	if !o.monitor.IsHealthy(health.DepPublisher) {
		keepWarm = true
		o.handlePrePublishFailure(ctx, acc, post, fmt.Errorf("publisher: %w", session.ErrDependencyUnhealthy))
		return
	}

	// The token is derived from the post id, so every retry of this post
	// presents the same token and the worker can detect a prior publish.
	token := uuid.NewSHA1(uuid.NameSpaceOID, []byte(post.ID)).String()

	var out *PublishOutput
	err = o.cfg.PublishRetry.DoIf(ctx, func(ctx context.Context) error {
		var pubErr error
		out, pubErr = o.publisher.Publish(ctx, PublishInput{
			Endpoint:         sess.Endpoint,
			MediaPath:        mediaPath,
			Caption:          post.Caption,
			IdempotencyToken: token,
		})
		return pubErr
	}, func(err error) bool {
		return !isPermanentPublishError(err)
	})

	switch {
	case err == nil, errors.Is(err, ErrAlreadyPublished):
		remoteID := ""
		if out != nil {
			remoteID = out.RemoteID
		}
		now := o.now()
		if err := o.svc.CompletePublish(ctx, acc, post, remoteID, now); err != nil {
			o.logger.Error("failed to persist published post", "post_id", post.ID, "error", err)
			return
		}
		o.monitor.RecordSuccess(health.DepPublisher)
		o.events.Add(events.LevelInfo, acc.ID, "post published: "+post.ID)
		o.logger.Info("post published", "account_id", acc.ID, "post_id", post.ID, "remote_id", remoteID)

		keepWarm = o.hasMoreWork(ctx, acc)

	case errors.Is(err, ErrAccountBanned):
		o.recordFailureEvent(acc.ID, "account banned by target platform")
		if failErr := o.svc.FailPost(ctx, post, err.Error()); failErr != nil {
			o.logger.Error("failed to persist banned post", "post_id", post.ID, "error", failErr)
		}
		if banErr := o.svc.BanAccount(ctx, acc, err.Error()); banErr != nil {
			o.logger.Error("failed to persist account ban", "account_id", acc.ID, "error", banErr)
		}

	case errors.Is(err, ErrPublishValidation):
		o.recordFailureEvent(acc.ID, "publish rejected: "+err.Error())
		if failErr := o.svc.FailPost(ctx, post, err.Error()); failErr != nil {
			o.logger.Error("failed to persist rejected post", "post_id", post.ID, "error", failErr)
		}

	default:
		o.monitor.RecordFailure(health.DepPublisher)
		o.handlePublishFailure(ctx, acc, post, err)
	}
}

// handlePrePublishFailure covers capacity and dependency-unhealthy errors:
// the attempt the dequeue consumed is restored and the post stays due, so
// the next tick retries it without touching the retry budget.
func (o *Orchestrator) handlePrePublishFailure(ctx context.Context, acc *entity.Account, post *entity.Post, cause error) {
	o.logger.Warn("publish attempt deferred", "account_id", acc.ID, "post_id", post.ID, "error", cause)

	post.Attempts--
	retryAt := o.now()
	if post.ScheduledFor != nil {
		retryAt = *post.ScheduledFor
	}
	if err := o.svc.ReschedulePost(ctx, post, retryAt, cause.Error()); err != nil {
		o.logger.Error("failed to defer post", "post_id", post.ID, "error", err)
	}
}

// handlePublishFailure covers transient failures that consume the retry
// budget: reschedule while attempts remain, otherwise fail terminally.
func (o *Orchestrator) handlePublishFailure(ctx context.Context, acc *entity.Account, post *entity.Post, cause error) {
	o.recordFailureEvent(acc.ID, fmt.Sprintf("publish failed for post %s: %v", post.ID, cause))

	if post.AttemptsExhausted(o.cfg.MaxAttempts) {
		if err := o.svc.FailPost(ctx, post, cause.Error()); err != nil {
			o.logger.Error("failed to persist terminal failure", "post_id", post.ID, "error", err)
		}
		o.logger.Warn("post failed terminally", "post_id", post.ID, "attempts", post.Attempts)
		return
	}

	retryAt := o.limiter.NextEligibleTime(acc)
	if err := o.svc.ReschedulePost(ctx, post, retryAt, cause.Error()); err != nil {
		o.logger.Error("failed to reschedule post", "post_id", post.ID, "error", err)
	}
}

// hasMoreWork reports whether the session should stay warm for the
// account's next post in this window.
func (o *Orchestrator) hasMoreWork(ctx context.Context, acc *entity.Account) bool {
	if acc.PostsToday >= acc.MaxPostsPerDay {
		return false
	}
	more, err := o.svc.HasMoreWork(ctx, acc.ID, o.now())
	if err != nil {
		o.logger.Error("failed to check pending work", "account_id", acc.ID, "error", err)
		return false
	}
	return more
}

func applyDefaults(acc *entity.Account, d Defaults) {
	if acc.MaxPostsPerDay <= 0 {
		acc.MaxPostsPerDay = d.MaxPostsPerDay
	}
	if acc.MinDelay <= 0 {
		acc.MinDelay = d.MinDelay
	}
	if acc.MaxDelay <= 0 {
		acc.MaxDelay = d.MaxDelay
	}
	if acc.WorkingHours.Timezone == "" {
		acc.WorkingHours = d.WorkingHours
	}
}

func (o *Orchestrator) markInFlight(accountID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inFlight[accountID]; ok {
		return false
	}
	o.inFlight[accountID] = struct{}{}
	return true
}

func (o *Orchestrator) clearInFlight(accountID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, accountID)
}

func (o *Orchestrator) recordFailureEvent(accountID, msg string) {
	o.events.Add(events.LevelError, accountID, msg)
	o.logger.Error(msg, "account_id", accountID)
}

func isPermanentPublishError(err error) bool {
	return errors.Is(err, ErrAlreadyPublished) ||
		errors.Is(err, ErrAccountBanned) ||
		errors.Is(err, ErrPublishValidation)
}
