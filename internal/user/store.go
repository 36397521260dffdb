// Package user implements the user-service: it owns the user records and creates them on request of
// auth-service.
package user

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

// ErrDuplicateUsername is returned when creating a user whose name is already taken.
var ErrDuplicateUsername = errors.New("username already exists")

// User is a user record.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DB is the database access used by the store.
type DB interface {
	database.Querier
	InTx(ctx context.Context, fn func(q database.Querier) error) error
}

// Tx is the set of store operations run in a transaction.
type Tx interface {
	CreateUser(ctx context.Context, username string) (User, error)
	MarkProcessed(ctx context.Context, m database.ProcessedMessage) (bool, error)
}

// Store persists users in PostgreSQL.
type Store struct {
	q  database.Querier
	db DB
}

// NewStore returns a store using db.
func NewStore(db DB) *Store {
	return &Store{q: db, db: db}
}

const userColumns = `id, username, created_at, updated_at`

func scanUser(row pgx.Row) (u User, err error) {
	err = row.Scan(&u.ID, &u.Username, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser stores a new user named username.
func (s *Store) CreateUser(ctx context.Context, username string) (u User, err error) {
	defer decorate.OnError(&err, "failed to create user %q", username)

	const query = `INSERT INTO users (id, username, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING ` + userColumns

	u, err = scanUser(s.q.QueryRow(ctx, query, uuid.New(), username, time.Now().UTC()))
	if constraint, ok := database.UniqueViolation(err); ok && constraint == "users_username_key" {
		return User{}, fmt.Errorf("%w: %w", ErrDuplicateUsername, err)
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// ListUsers returns all users, oldest first.
func (s *Store) ListUsers(ctx context.Context) (users []User, err error) {
	defer decorate.OnError(&err, "failed to list users")

	rows, err := s.q.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		return scanUser(row)
	})
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
