package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/postpilot/internal/domain/automation/entity"
	"github.com/vadim/postpilot/internal/httpx/response"
)

// AccountInfo represents an automated account as exposed to operators
type AccountInfo struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Status         string     `json:"status"`
	IsRunning      bool       `json:"is_running"`
	ProfileState   string     `json:"profile_state"`
	PostsToday     int        `json:"posts_today"`
	MaxPostsPerDay int        `json:"max_posts_per_day"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// AccountReader defines the interface for reading accounts
type AccountReader interface {
	ListActiveAccounts(ctx context.Context) ([]entity.Account, error)
	GetAccount(ctx context.Context, id string) (*entity.Account, error)
}

// AccountHandler handles HTTP requests for automated accounts
type AccountHandler struct {
	reader AccountReader
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(reader AccountReader) *AccountHandler {
	return &AccountHandler{reader: reader}
}

// RegisterRoutes registers account routes
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts", h.List())
	r.Get("/accounts/{id}", h.Get())
}

// List handles GET /accounts
func (h *AccountHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := h.reader.ListActiveAccounts(r.Context())
		if err != nil {
			response.InternalError(w, "failed to list accounts")
			return
		}

		infos := make([]AccountInfo, len(accounts))
		for i := range accounts {
			infos[i] = toAccountInfo(&accounts[i])
		}

		response.OK(w, map[string]interface{}{
			"accounts": infos,
			"total":    len(infos),
		})
	}
}

// Get handles GET /accounts/{id}
func (h *AccountHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		acc, err := h.reader.GetAccount(r.Context(), id)
		if err != nil {
			if errors.Is(err, entity.ErrAccountNotFound) {
				response.NotFound(w, "account not found")
				return
			}
			response.InternalError(w, "failed to get account")
			return
		}

		response.OK(w, toAccountInfo(acc))
	}
}

func toAccountInfo(acc *entity.Account) AccountInfo {
	return AccountInfo{
		ID:             acc.ID,
		Username:       acc.Username,
		Status:         string(acc.Status),
		IsRunning:      acc.IsRunning,
		ProfileState:   string(acc.ProfileState),
		PostsToday:     acc.PostsToday,
		MaxPostsPerDay: acc.MaxPostsPerDay,
		LastActivity:   acc.LastActivity,
		ErrorMessage:   acc.ErrorMessage,
	}
}
