package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/userhub/userhub/internal/constants"
	"github.com/userhub/userhub/internal/database"
	"github.com/userhub/userhub/internal/messaging"
	"github.com/userhub/userhub/internal/messaging/schema"
)

// Subscriber consumes messages from a queue.
type Subscriber interface {
	Consume(ctx context.Context, queue string, h messaging.Handler) error
}

type txStore interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Consumer applies the user creation results sent by user-service.
type Consumer struct {
	store      txStore
	subscriber Subscriber
}

// NewConsumer returns a consumer of the user.created queue.
func NewConsumer(store txStore, subscriber Subscriber) *Consumer {
	return &Consumer{
		store:      store,
		subscriber: subscriber,
	}
}

// Run consumes the user.created queue until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscriber.Consume(ctx, constants.UserCreatedQueue, c.Handle)
}

// Handle applies a single user creation result. Results are applied at most once.
func (c *Consumer) Handle(ctx context.Context, msg messaging.Message) error {
	resp, err := schema.DecodeUserCreatedResponse(msg.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", messaging.ErrPermanent, err)
	}

	log := slog.With("message_id", resp.MessageID, "request_id", resp.RequestID, "username", resp.Username)

	return c.store.InTx(ctx, func(tx Tx) error {
		if _, done, err := tx.GetProcessed(ctx, resp.MessageID); err != nil {
			return err
		} else if done {
			log.Info("Response already processed, skipping")
			return nil
		}

		switch {
		case resp.Status == schema.StatusSuccess && resp.UserID != nil:
			_, found, err := tx.LinkUserID(ctx, resp.Username, *resp.UserID)
			if _, ok := database.UniqueViolation(err); ok {
				return fmt.Errorf("%w: %w", messaging.ErrPermanent, err)
			}
			if err != nil {
				return err
			}
			if !found {
				log.Error("No auth user matches the created user", "user_id", *resp.UserID)
				break
			}
			log.Info("Linked auth user to created user", "user_id", *resp.UserID)
		case resp.Status == schema.StatusSuccess:
			log.Warn("Successful response without user id")
		default:
			errMsg := ""
			if resp.ErrorMessage != nil {
				errMsg = *resp.ErrorMessage
			}
			log.Warn("User creation failed in user-service", "status", resp.Status, "error", errMsg)
		}

		result := string(msg.Body)
		_, err := tx.MarkProcessed(ctx, database.ProcessedMessage{
			MessageID:   resp.MessageID,
			SourceQueue: constants.UserCreatedQueue,
			Status:      string(resp.Status),
			ResultData:  &result,
		})
		return err
	})
}
