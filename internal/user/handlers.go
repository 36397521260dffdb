package user

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/userhub/userhub/internal/api"
	"github.com/userhub/userhub/internal/username"
)

type userStore interface {
	CreateUser(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// Handlers serves the user-service HTTP API.
type Handlers struct {
	store    userStore
	reserved username.Reserver
}

// NewHandlers returns the HTTP handlers of the user-service.
func NewHandlers(store userStore, reserved username.Reserver) *Handlers {
	return &Handlers{
		store:    store,
		reserved: reserved,
	}
}

// Register adds the endpoints to r.
func (h *Handlers) Register(r *api.Router) {
	r.HandleFunc("POST /create_user", "create_user", h.CreateUser)
	r.HandleFunc("GET /get_users", "get_users", h.GetUsers)
}

type createUserRequest struct {
	Username string `json:"username"`
}

// CreateUser stores a new user.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in createUserRequest
	if err := api.DecodeJSON(w, r, &in); err != nil {
		api.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	name, err := username.Prepare(in.Username, h.reserved)
	if err != nil {
		api.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.store.CreateUser(ctx, name)
	if errors.Is(err, ErrDuplicateUsername) {
		api.WriteDetail(w, http.StatusConflict, "Username already exists")
		return
	}
	if err != nil {
		slog.Error("Failed to create user", "req_id", api.ReqID(ctx), "username", name, "err", err)
		api.WriteDetail(w, http.StatusInternalServerError, "User creation failed")
		return
	}

	slog.Info("Created user", "req_id", api.ReqID(ctx), "username", u.Username, "user_id", u.ID)
	api.WriteJSON(w, http.StatusOK, u)
}

// GetUsers lists all users.
func (h *Handlers) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		slog.Error("Failed to list users", "req_id", api.ReqID(r.Context()), "err", err)
		api.WriteDetail(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	if len(users) == 0 {
		api.WriteDetail(w, http.StatusNotFound, "No users found")
		return
	}
	api.WriteJSON(w, http.StatusOK, users)
}
