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
	"github.com/userhub/userhub/internal/messaging"
)

// RabbitMQContainer represents a RabbitMQ broker container for testing purposes.
type RabbitMQContainer struct {
	Container testcontainers.Container
	Config    messaging.Config
}

// StartRabbitMQContainer starts a RabbitMQ container for testing purposes.
// The container is terminated when the test ends.
func StartRabbitMQContainer(t *testing.T) *RabbitMQContainer {
	t.Helper()

	if runtime.GOOS != "linux" {
		t.Skip("Skipping RabbitMQ container test on non-Linux OS")
	}

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5672/tcp"),
			wait.ForLog("Server startup complete"),
		).WithDeadline(2 * time.Minute),
	}
	ctx := t.Context()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Setup: failed to start RabbitMQ container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Teardown: failed to terminate RabbitMQ container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err, "Setup: failed to get container host")

	port, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err, "Setup: failed to get mapped port")
	p, err := strconv.Atoi(port.Port())
	require.NoError(t, err, "Setup: mapped port is not a number")

	cfg := messaging.DefaultConfig()
	cfg.Host = host
	cfg.Port = p
	cfg.RetryBackoff = 100 * time.Millisecond

	return &RabbitMQContainer{
		Container: container,
		Config:    cfg,
	}
}
