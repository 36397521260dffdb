// Package database provides the PostgreSQL connection shared by the services.
// It handles the connection pool, transactions, schema migrations and message deduplication bookkeeping.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrClosed is returned when the database is used after being closed.
var ErrClosed = errors.New("database not initialized")

// Config holds the configuration for connecting to the PostgreSQL database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Querier runs single statements. It is satisfied by the Manager and by transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type dbPool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Manager manages the PostgreSQL database connection pool.
type Manager struct {
	dbpool dbPool
}

type options struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates database manager with a PostgreSQL connection pool using the provided configuration.
// Note: The connection is validated with a ping, but it is not maintained.
func New(ctx context.Context, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
	}

	for _, opt := range args {
		opt(&opts)
	}

	dbpool, err := opts.newPool(ctx, cfg.URI("postgres"))
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}

	slog.Debug("Testing database connection", "host", cfg.Host, "port", cfg.Port)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	slog.Info("Successfully pinged PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &Manager{dbpool: dbpool}, nil
}

// Exec runs a statement that returns no rows.
func (db *Manager) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if db.dbpool == nil {
		return pgconn.CommandTag{}, ErrClosed
	}
	return db.dbpool.Exec(ctx, sql, arguments...)
}

// Query runs a statement returning rows.
func (db *Manager) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if db.dbpool == nil {
		return nil, ErrClosed
	}
	return db.dbpool.Query(ctx, sql, args...)
}

// QueryRow runs a statement returning at most one row.
// Any error is deferred until Scan is called on the returned row.
func (db *Manager) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if db.dbpool == nil {
		return errRow{err: ErrClosed}
	}
	return db.dbpool.QueryRow(ctx, sql, args...)
}

// InTx runs fn inside a transaction. The transaction is committed if fn returns nil, and rolled back otherwise.
func (db *Manager) InTx(ctx context.Context, fn func(q Querier) error) (err error) {
	if db.dbpool == nil {
		return ErrClosed
	}

	tx, err := db.dbpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Warn("Failed to roll back transaction", "err", rbErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (db *Manager) Ping(ctx context.Context) error {
	if db.dbpool == nil {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.dbpool.Ping(ctx)
}

// Close closes the database connection.
//
// If the connection is already closed, it does nothing.
// If the connection does not close within 10 seconds, it returns an error.
func (db *Manager) Close() error {
	if db.dbpool == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		db.dbpool.Close()
	}()

	select {
	case <-done:
		db.dbpool = nil
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout while closing database, connection may still be open")
	}
}

// URI is a helper method that returns a connection URI for PostgreSQL.
// It does not check the validity of the configuration values.
//
// Security warning: the returned string may include credentials.
func (c Config) URI(scheme string) string {
	host := c.Host
	if c.Port != 0 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}

	user := url.User(c.User)
	if c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}

	u := &url.URL{
		Scheme: scheme,
		User:   user,
		Host:   host,
		Path:   c.DBName,
	}

	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}
