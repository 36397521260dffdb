package testutils

import (
	"context"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/userhub/userhub/internal/database"
	"github.com/userhub/userhub/migrations"
)

// PostgresContainer represents a PostgreSQL container for testing purposes.
type PostgresContainer struct {
	Container testcontainers.Container
	Config    database.Config
}

// StartPostgresContainer starts a PostgreSQL container for testing purposes.
// The container is terminated when the test ends.
func StartPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	const (
		defaultUser     = "postgres"
		defaultPassword = "postgres"
		defaultName     = "testdb"
	)

	if runtime.GOOS != "linux" {
		t.Skip("Skipping PostgreSQL container test on non-Linux OS")
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     defaultUser,
			"POSTGRES_PASSWORD": defaultPassword,
			"POSTGRES_DB":       defaultName,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(time.Minute),
	}
	ctx := t.Context()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Setup: failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Teardown: failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err, "Setup: failed to get container host")

	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err, "Setup: failed to get mapped port")
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err, "Setup: mapped port is not a number")

	return &PostgresContainer{
		Container: container,
		Config: database.Config{
			Host:     host,
			Port:     p,
			User:     defaultUser,
			Password: defaultPassword,
			DBName:   defaultName,
			SSLMode:  "disable",
		},
	}
}

// NewMigratedDatabase starts a PostgreSQL container, applies the embedded migrations of dir and returns a
// connected manager. Both are released when the test ends.
func NewMigratedDatabase(t *testing.T, dir string) *database.Manager {
	t.Helper()

	c := StartPostgresContainer(t)
	require.NoError(t, database.MigrateFromFS(c.Config, migrations.FS, dir), "Setup: failed to apply migrations")

	db, err := database.New(t.Context(), c.Config)
	require.NoError(t, err, "Setup: failed to connect to database")
	t.Cleanup(func() { _ = db.Close() })

	return db
}
