package messaging_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/userhub/userhub/internal/constants"
	"github.com/userhub/userhub/internal/messaging"
	"github.com/userhub/userhub/internal/messaging/schema"
	"github.com/userhub/userhub/internal/testutils"
)

func TestBrokerRoundTrip(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("Skipping broker integration test in short mode")
	}

	broker := testutils.StartRabbitMQContainer(t)

	publisher := messaging.New(broker.Config)
	defer publisher.Close()
	consumer := messaging.New(broker.Config)
	defer consumer.Close()

	require.NoError(t, publisher.Connect(t.Context()), "Setup: publisher failed to connect")

	received := make(chan schema.UserCreateRequest, 2)
	var attempts atomic.Int32
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- consumer.Consume(ctx, constants.UserCreateQueue, func(_ context.Context, msg messaging.Message) error {
			req, err := schema.DecodeUserCreateRequest(msg.Body)
			if err != nil {
				return errors.Join(err, messaging.ErrPermanent)
			}
			if attempts.Add(1) == 1 {
				// First delivery fails, the message must come back redelivered.
				assert.False(t, msg.Redelivered, "First delivery should not be flagged as redelivered")
				return errors.New("transient")
			}
			assert.True(t, msg.Redelivered, "Requeued delivery should be flagged as redelivered")
			received <- req
			return nil
		})
	}()

	req := schema.NewUserCreateRequest("alice")
	require.NoError(t, publisher.Publish(t.Context(), constants.UserCreateQueue, req), "Publish should not fail")

	select {
	case got := <-received:
		assert.Equal(t, req.MessageID, got.MessageID, "Received message id should match")
		assert.Equal(t, "alice", got.Username, "Received username should match")
	case <-time.After(30 * time.Second):
		require.FailNow(t, "Message was not received in time")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err, "Consume should return nil once the context is cancelled")
	case <-time.After(10 * time.Second):
		require.FailNow(t, "Consume did not return in time")
	}
}
