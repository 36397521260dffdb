package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProcessedMessage records that a broker message was handled, so that redeliveries are not applied twice.
type ProcessedMessage struct {
	ID          uuid.UUID
	MessageID   uuid.UUID
	SourceQueue string
	ProcessedAt time.Time
	Status      string
	ResultData  *string
}

// GetProcessedMessage returns the bookkeeping entry for messageID.
// The boolean is false when the message was never processed.
func GetProcessedMessage(ctx context.Context, q Querier, messageID uuid.UUID) (ProcessedMessage, bool, error) {
	const query = `SELECT id, message_id, source_queue, processed_at, status, result_data
		FROM processed_messages
		WHERE message_id = $1`

	var m ProcessedMessage
	err := q.QueryRow(ctx, query, messageID).Scan(
		&m.ID,
		&m.MessageID,
		&m.SourceQueue,
		&m.ProcessedAt,
		&m.Status,
		&m.ResultData,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProcessedMessage{}, false, nil
	}
	if err != nil {
		return ProcessedMessage{}, false, fmt.Errorf("failed to look up processed message %s: %w", messageID, err)
	}
	return m, true, nil
}

// MarkProcessed stores m. It returns false without error if the message id was already recorded.
func MarkProcessed(ctx context.Context, q Querier, m ProcessedMessage) (inserted bool, err error) {
	const query = `INSERT INTO processed_messages (
			id,
			message_id,
			source_queue,
			processed_at,
			status,
			result_data
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id) DO NOTHING`

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = time.Now()
	}

	tag, err := q.Exec(ctx, query,
		m.ID,          // id
		m.MessageID,   // message_id
		m.SourceQueue, // source_queue
		m.ProcessedAt, // processed_at
		m.Status,      // status
		m.ResultData,  // result_data
	)
	if err != nil {
		return false, fmt.Errorf("failed to record processed message %s: %w", m.MessageID, err)
	}
	return tag.RowsAffected() == 1, nil
}
