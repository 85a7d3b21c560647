package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/postpilot/internal/domain/automation/entity"
	"github.com/vadim/postpilot/internal/domain/automation/policy"
	"github.com/vadim/postpilot/internal/domain/automation/session"
	"github.com/vadim/postpilot/internal/health"
	"github.com/vadim/postpilot/internal/httpx/response"
)

// OrchestratorPolicy defines the interface for orchestrator control operations
// Interface is defined by consumer (handler), not provider (policy)
type OrchestratorPolicy interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Pause()
	Resume()
	Status(ctx context.Context) (*policy.StatusOutput, error)
	UpdateSettings(in policy.UpdateSettingsInput) error
	ResetHealth(dep string)
	RunAccount(ctx context.Context, accountID string) error
	HaltAccount(ctx context.Context, accountID string) error
}

// Waker requests an immediate scheduling pass outside the regular interval.
type Waker interface {
	Wake()
}

// OrchestratorHandler handles HTTP requests for the automation control surface
type OrchestratorHandler struct {
	policy OrchestratorPolicy
	waker  Waker
}

// NewOrchestratorHandler creates a new orchestrator handler
func NewOrchestratorHandler(p OrchestratorPolicy, w Waker) *OrchestratorHandler {
	return &OrchestratorHandler{policy: p, waker: w}
}

// RegisterRoutes registers orchestrator routes
func (h *OrchestratorHandler) RegisterRoutes(r chi.Router) {
	r.Route("/orchestrator", func(r chi.Router) {
		r.Post("/start", h.Start())
		r.Post("/stop", h.Stop())
		r.Post("/pause", h.Pause())
		r.Post("/resume", h.Resume())
		r.Get("/status", h.Status())
		r.Put("/settings", h.UpdateSettings())
		r.Post("/health/{dep}/reset", h.ResetHealth())
	})
	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Post("/run", h.RunAccount())
		r.Post("/halt", h.HaltAccount())
	})
}

// Start handles POST /orchestrator/start
func (h *OrchestratorHandler) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.policy.Start(r.Context()); err != nil {
			handleOrchestratorError(w, err)
			return
		}
		h.waker.Wake()
		response.OK(w, map[string]string{"status": "started"})
	}
}

// Stop handles POST /orchestrator/stop
func (h *OrchestratorHandler) Stop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.policy.Stop(r.Context()); err != nil {
			handleOrchestratorError(w, err)
			return
		}
		response.OK(w, map[string]string{"status": "stopped"})
	}
}

// Pause handles POST /orchestrator/pause
func (h *OrchestratorHandler) Pause() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.policy.Pause()
		response.OK(w, map[string]string{"status": "paused"})
	}
}

// Resume handles POST /orchestrator/resume
func (h *OrchestratorHandler) Resume() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.policy.Resume()
		h.waker.Wake()
		response.OK(w, map[string]string{"status": "resumed"})
	}
}

// Status handles GET /orchestrator/status
func (h *OrchestratorHandler) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.policy.Status(r.Context())
		if err != nil {
			handleOrchestratorError(w, err)
			return
		}
		response.OK(w, out)
	}
}

// SettingsRequest represents the request body for updating settings
type SettingsRequest struct {
	MaxConcurrentSessions *int                 `json:"max_concurrent_sessions,omitempty"`
	MaxPostsPerDay        *int                 `json:"max_posts_per_day,omitempty"`
	MinDelaySeconds       *int                 `json:"min_delay_seconds,omitempty"`
	MaxDelaySeconds       *int                 `json:"max_delay_seconds,omitempty"`
	WorkingHours          *WorkingHoursRequest `json:"working_hours,omitempty"`
}

// WorkingHoursRequest represents a working-hours window in requests
type WorkingHoursRequest struct {
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
	Timezone  string `json:"timezone"`
}

// UpdateSettings handles PUT /orchestrator/settings
func (h *OrchestratorHandler) UpdateSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid JSON")
			return
		}

		in := policy.UpdateSettingsInput{
			MaxConcurrentSessions: req.MaxConcurrentSessions,
			MaxPostsPerDay:        req.MaxPostsPerDay,
		}
		if req.MinDelaySeconds != nil {
			d := time.Duration(*req.MinDelaySeconds) * time.Second
			in.MinDelay = &d
		}
		if req.MaxDelaySeconds != nil {
			d := time.Duration(*req.MaxDelaySeconds) * time.Second
			in.MaxDelay = &d
		}
		if req.WorkingHours != nil {
			in.WorkingHours = &entity.WorkingHours{
				StartHour: req.WorkingHours.StartHour,
				EndHour:   req.WorkingHours.EndHour,
				Timezone:  req.WorkingHours.Timezone,
			}
		}

		if err := h.policy.UpdateSettings(in); err != nil {
			handleOrchestratorError(w, err)
			return
		}

		response.NoContent(w)
	}
}

// ResetHealth handles POST /orchestrator/health/{dep}/reset
func (h *OrchestratorHandler) ResetHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dep := chi.URLParam(r, "dep")
		switch dep {
		case health.DepProfileProvider, health.DepMediaStore, health.DepPublisher:
		default:
			response.NotFound(w, "unknown dependency")
			return
		}

		h.policy.ResetHealth(dep)
		response.NoContent(w)
	}
}

// RunAccount handles POST /accounts/{id}/run
func (h *OrchestratorHandler) RunAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := h.policy.RunAccount(r.Context(), id); err != nil {
			handleOrchestratorError(w, err)
			return
		}
		h.waker.Wake()

		response.OK(w, map[string]string{"status": "running"})
	}
}

// HaltAccount handles POST /accounts/{id}/halt
func (h *OrchestratorHandler) HaltAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := h.policy.HaltAccount(r.Context(), id); err != nil {
			handleOrchestratorError(w, err)
			return
		}

		response.OK(w, map[string]string{"status": "halted"})
	}
}

func handleOrchestratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrAccountNotFound), errors.Is(err, entity.ErrPostNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, policy.ErrAlreadyRunning), errors.Is(err, policy.ErrNotRunning),
		errors.Is(err, entity.ErrAccountBanned), errors.Is(err, entity.ErrInvalidTransition):
		response.Conflict(w, err.Error())
	case errors.Is(err, entity.ErrInvalidPostLimit), errors.Is(err, entity.ErrInvalidDelayBounds),
		errors.Is(err, entity.ErrInvalidWorkingHours), errors.Is(err, entity.ErrRunningWithoutProfile):
		response.BadRequest(w, err.Error())
	case errors.Is(err, session.ErrDependencyUnhealthy):
		response.ServiceUnavailable(w, err.Error())
	default:
		response.InternalError(w, "internal server error")
	}
}
