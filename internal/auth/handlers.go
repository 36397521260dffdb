package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/userhub/userhub/internal/api"
	"github.com/userhub/userhub/internal/constants"
	"github.com/userhub/userhub/internal/messaging/schema"
	"github.com/userhub/userhub/internal/username"
)

// Publisher sends messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type userStore interface {
	CreateUser(ctx context.Context, username string, userID *uuid.UUID) (AuthUser, error)
	ListUsers(ctx context.Context) ([]AuthUser, error)
}

// Handlers serves the auth-service HTTP API.
type Handlers struct {
	store     userStore
	publisher Publisher
	reserved  username.Reserver
}

// NewHandlers returns the HTTP handlers of the auth-service.
func NewHandlers(store userStore, publisher Publisher, reserved username.Reserver) *Handlers {
	return &Handlers{
		store:     store,
		publisher: publisher,
		reserved:  reserved,
	}
}

// Register adds the endpoints to r.
func (h *Handlers) Register(r *api.Router) {
	r.HandleFunc("POST /create_user", "create_user", h.CreateUser)
	r.HandleFunc("GET /get_users", "get_users", h.GetUsers)
}

type createUserRequest struct {
	Username string     `json:"username"`
	UserID   *uuid.UUID `json:"user_id"`
}

// CreateUser stores a new user and asks user-service to create it.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := api.ReqID(ctx)

	var in createUserRequest
	if err := api.DecodeJSON(w, r, &in); err != nil {
		api.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	name, err := username.Prepare(in.Username, h.reserved)
	if err != nil {
		slog.Info("Rejected user name", "req_id", reqID, "username", in.Username, "err", err)
		api.WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.store.CreateUser(ctx, name, in.UserID)
	if errors.Is(err, ErrDuplicateUsername) {
		api.WriteDetail(w, http.StatusConflict, "Username already exists")
		return
	}
	if errors.Is(err, ErrDuplicateUserID) {
		api.WriteDetail(w, http.StatusConflict, "User id already linked")
		return
	}
	if err != nil {
		slog.Error("Failed to create user", "req_id", reqID, "username", name, "err", err)
		api.WriteDetail(w, http.StatusInternalServerError, "User creation failed")
		return
	}

	// The user exists on our side whatever happens to the request.
	msg := schema.NewUserCreateRequest(u.Username)
	if err := h.publisher.Publish(ctx, constants.UserCreateQueue, msg); err != nil {
		slog.Error("Failed to send user creation request", "req_id", reqID, "username", u.Username, "err", err)
	} else {
		slog.Info("Sent user creation request", "req_id", reqID, "username", u.Username, "message_id", msg.MessageID)
	}

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
