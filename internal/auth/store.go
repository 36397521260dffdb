// Package auth implements the auth-service: authentication side user accounts, linked to the users owned by
// user-service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ubuntu/decorate"
	"github.com/userhub/userhub/internal/database"
)

var (
	// ErrDuplicateUsername is returned when creating a user whose name is already taken.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrDuplicateUserID is returned when creating a user linked to an id another user is linked to.
	ErrDuplicateUserID = errors.New("user id already linked")
)

// AuthUser is an authentication side user account.
type AuthUser struct {
	ID        uuid.UUID  `json:"id"`
	Username  string     `json:"username"`
	UserID    *uuid.UUID `json:"user_id"` // Id of the user in user-service, once it was created there.
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DB is the database access used by the store.
type DB interface {
	database.Querier
	InTx(ctx context.Context, fn func(q database.Querier) error) error
}

// Tx is the set of store operations run in a transaction.
type Tx interface {
	GetProcessed(ctx context.Context, messageID uuid.UUID) (database.ProcessedMessage, bool, error)
	MarkProcessed(ctx context.Context, m database.ProcessedMessage) (bool, error)
	LinkUserID(ctx context.Context, username string, userID uuid.UUID) (AuthUser, bool, error)
}

// Store persists auth users in PostgreSQL.
type Store struct {
	q  database.Querier
	db DB
}

// NewStore returns a store using db.
func NewStore(db DB) *Store {
	return &Store{q: db, db: db}
}

const authUserColumns = `id, username, user_id, created_at, updated_at`

func scanAuthUser(row pgx.Row) (u AuthUser, err error) {
	err = row.Scan(&u.ID, &u.Username, &u.UserID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser stores a new user named username, optionally already linked to userID.
func (s *Store) CreateUser(ctx context.Context, username string, userID *uuid.UUID) (u AuthUser, err error) {
	defer decorate.OnError(&err, "failed to create auth user %q", username)

	const query = `INSERT INTO auth_users (id, username, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING ` + authUserColumns

	now := time.Now().UTC()
	u, err = scanAuthUser(s.q.QueryRow(ctx, query, uuid.New(), username, userID, now))
	switch constraint, _ := database.UniqueViolation(err); constraint {
	case "auth_users_username_key":
		return AuthUser{}, fmt.Errorf("%w: %w", ErrDuplicateUsername, err)
	case "auth_users_user_id_key":
		return AuthUser{}, fmt.Errorf("%w: %w", ErrDuplicateUserID, err)
	}
	if err != nil {
		return AuthUser{}, err
	}
	return u, nil
}

// ListUsers returns all users, oldest first.
func (s *Store) ListUsers(ctx context.Context) (users []AuthUser, err error) {
	defer decorate.OnError(&err, "failed to list auth users")

	rows, err := s.q.Query(ctx, `SELECT `+authUserColumns+` FROM auth_users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}

	users, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuthUser, error) {
		return scanAuthUser(row)
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// LinkUserID records that username was created in user-service as userID.
// The boolean is false when there is no user named username.
func (s *Store) LinkUserID(ctx context.Context, username string, userID uuid.UUID) (u AuthUser, found bool, err error) {
	defer decorate.OnError(&err, "failed to link auth user %q to %s", username, userID)

	const query = `UPDATE auth_users SET user_id = $2, updated_at = $3
		WHERE username = $1
		RETURNING ` + authUserColumns

	u, err = scanAuthUser(s.q.QueryRow(ctx, query, username, userID, time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return AuthUser{}, false, nil
	}
	if err != nil {
		return AuthUser{}, false, err
	}
	return u, true, nil
}

// GetProcessed returns the processed message record of messageID, if any.
func (s *Store) GetProcessed(ctx context.Context, messageID uuid.UUID) (database.ProcessedMessage, bool, error) {
	return database.GetProcessedMessage(ctx, s.q, messageID)
}

// MarkProcessed records m. It returns false if the message was already recorded.
func (s *Store) MarkProcessed(ctx context.Context, m database.ProcessedMessage) (bool, error) {
	return database.MarkProcessed(ctx, s.q, m)
}

// InTx runs fn in a transaction, committed only if fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.InTx(ctx, func(q database.Querier) error {
		return fn(&Store{q: q, db: s.db})
	})
}
