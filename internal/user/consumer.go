package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/userhub/userhub/internal/constants"
	"github.com/userhub/userhub/internal/database"
	"github.com/userhub/userhub/internal/messaging"
	"github.com/userhub/userhub/internal/messaging/schema"
	"github.com/userhub/userhub/internal/username"
)

// errConcurrentDelivery is returned when another worker recorded the same request first.
var errConcurrentDelivery = errors.New("request is being processed concurrently")

// Publisher sends messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Subscriber consumes messages from a queue.
type Subscriber interface {
	Consume(ctx context.Context, queue string, h messaging.Handler) error
}

type txStore interface {
	GetProcessed(ctx context.Context, messageID uuid.UUID) (database.ProcessedMessage, bool, error)
	MarkProcessed(ctx context.Context, m database.ProcessedMessage) (bool, error)
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Consumer creates the users requested by auth-service and replies with the outcome.
type Consumer struct {
	store      txStore
	subscriber Subscriber
	publisher  Publisher
	reserved   username.Reserver
}

// NewConsumer returns a consumer of the user.create queue.
func NewConsumer(store txStore, subscriber Subscriber, publisher Publisher, reserved username.Reserver) *Consumer {
	return &Consumer{
		store:      store,
		subscriber: subscriber,
		publisher:  publisher,
		reserved:   reserved,
	}
}

// Run consumes the user.create queue until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscriber.Consume(ctx, constants.UserCreateQueue, c.Handle)
}

// Handle processes a single user creation request and publishes its outcome.
//
// A request is applied at most once. When it is delivered again, the recorded response is published again so
// that a response lost on the way out still reaches auth-service.
func (c *Consumer) Handle(ctx context.Context, msg messaging.Message) error {
	start := time.Now()

	req, err := schema.DecodeUserCreateRequest(msg.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", messaging.ErrPermanent, err)
	}

	log := slog.With("message_id", req.MessageID, "username", req.Username)

	prev, done, err := c.store.GetProcessed(ctx, req.MessageID)
	if err != nil {
		return err
	}
	if done {
		log.Info("Request already processed, replaying response", "status", prev.Status)
		return c.replay(ctx, prev)
	}

	resp, err := c.process(ctx, req, start)
	if err != nil {
		return err
	}

	if err := c.publisher.Publish(ctx, constants.UserCreatedQueue, resp); err != nil {
		return fmt.Errorf("failed to publish response to %s: %w", req.MessageID, err)
	}
	log.Info("Processed user creation request", "status", resp.Status, "response_id", resp.MessageID)
	return nil
}

// process creates the requested user and records the response. The returned error is only set when the
// outcome could not be recorded.
func (c *Consumer) process(ctx context.Context, req schema.UserCreateRequest, start time.Time) (schema.UserCreatedResponse, error) {
	resp := schema.NewUserCreatedResponse(req.MessageID, req.Username)

	name, err := username.Prepare(req.Username, c.reserved)
	if err != nil {
		resp.Fail(schema.ClassifyError(err), err)
		resp.SetProcessingTime(start)
		return resp, c.record(ctx, c.store, req.MessageID, resp)
	}

	err = c.store.InTx(ctx, func(tx Tx) error {
		u, err := tx.CreateUser(ctx, name)
		if err != nil {
			return err
		}
		resp.Username = u.Username
		resp.Succeed(u.ID)
		resp.SetProcessingTime(start)
		return c.record(ctx, tx, req.MessageID, resp)
	})
	if errors.Is(err, errConcurrentDelivery) {
		return resp, err
	}
	if err != nil && resp.Status == schema.StatusSuccess {
		// The user was created but its record failed: everything was rolled back.
		return resp, err
	}
	if err != nil {
		status := schema.ClassifyError(err)
		slog.Warn("Failed to create user", "message_id", req.MessageID, "username", name, "status", status, "err", err)
		resp.Fail(status, err)
		resp.SetProcessingTime(start)
		return resp, c.record(ctx, c.store, req.MessageID, resp)
	}
	return resp, nil
}

type processedRecorder interface {
	MarkProcessed(ctx context.Context, m database.ProcessedMessage) (bool, error)
}

func (c *Consumer) record(ctx context.Context, r processedRecorder, requestID uuid.UUID, resp schema.UserCreatedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response to %s: %w", requestID, err)
	}
	result := string(data)

	inserted, err := r.MarkProcessed(ctx, database.ProcessedMessage{
		MessageID:   requestID,
		SourceQueue: constants.UserCreateQueue,
		Status:      string(resp.Status),
		ResultData:  &result,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return errConcurrentDelivery
	}
	return nil
}

func (c *Consumer) replay(ctx context.Context, prev database.ProcessedMessage) error {
	if prev.ResultData == nil {
		return fmt.Errorf("%w: no response recorded for %s", messaging.ErrPermanent, prev.MessageID)
	}
	resp, err := schema.DecodeUserCreatedResponse([]byte(*prev.ResultData))
	if err != nil {
		return fmt.Errorf("%w: recorded response for %s: %w", messaging.ErrPermanent, prev.MessageID, err)
	}
	if err := c.publisher.Publish(ctx, constants.UserCreatedQueue, resp); err != nil {
		return fmt.Errorf("failed to publish recorded response to %s: %w", prev.MessageID, err)
	}
	return nil
}
