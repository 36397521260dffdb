// Package schema defines the messages exchanged between the services over the broker.
package schema

import (
	"time"

	"github.com/google/uuid"
	"github.com/userhub/userhub/internal/constants"
)

// Status is the outcome of a user creation request.
type Status string

// User creation outcomes.
const (
	StatusSuccess           Status = "success"
	StatusDuplicateUsername Status = "duplicate_username"
	StatusDuplicateEmail    Status = "duplicate_email"
	StatusDatabaseError     Status = "database_error"
	StatusValidationError   Status = "validation_error"
	StatusUnknownError      Status = "unknown_error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusDuplicateUsername, StatusDuplicateEmail,
		StatusDatabaseError, StatusValidationError, StatusUnknownError:
		return true
	}
	return false
}

// UserCreateRequest asks user-service to create a user.
type UserCreateRequest struct {
	MessageID     uuid.UUID `json:"message_id" mapstructure:"message_id"`
	Timestamp     time.Time `json:"timestamp" mapstructure:"timestamp"`
	Username      string    `json:"username" mapstructure:"username"`
	SourceService string    `json:"source_service" mapstructure:"source_service"`
	RetryCount    int       `json:"retry_count" mapstructure:"retry_count"`
}

// NewUserCreateRequest returns a request for username with a fresh message id.
func NewUserCreateRequest(username string) UserCreateRequest {
	return UserCreateRequest{
		MessageID:     uuid.New(),
		Timestamp:     time.Now().UTC(),
		Username:      username,
		SourceService: constants.AuthServiceSource,
	}
}

// ID returns the message id.
func (r UserCreateRequest) ID() uuid.UUID {
	return r.MessageID
}

// UserCreatedResponse reports the outcome of a UserCreateRequest.
type UserCreatedResponse struct {
	MessageID        uuid.UUID  `json:"message_id" mapstructure:"message_id"`
	RequestID        uuid.UUID  `json:"request_id" mapstructure:"request_id"`
	Timestamp        time.Time  `json:"timestamp" mapstructure:"timestamp"`
	Status           Status     `json:"status" mapstructure:"status"`
	ErrorMessage     *string    `json:"error_message" mapstructure:"error_message"`
	UserID           *uuid.UUID `json:"user_id" mapstructure:"user_id"`
	Username         string     `json:"username" mapstructure:"username"`
	SourceService    string     `json:"source_service" mapstructure:"source_service"`
	ProcessingTimeMS *float64   `json:"processing_time_ms" mapstructure:"processing_time_ms"`
}

// NewUserCreatedResponse returns a response to the request requestID.
// Its status is StatusUnknownError until the outcome is known.
func NewUserCreatedResponse(requestID uuid.UUID, username string) UserCreatedResponse {
	return UserCreatedResponse{
		MessageID:     uuid.New(),
		RequestID:     requestID,
		Timestamp:     time.Now().UTC(),
		Status:        StatusUnknownError,
		Username:      username,
		SourceService: constants.UserServiceSource,
	}
}

// ID returns the message id.
func (r UserCreatedResponse) ID() uuid.UUID {
	return r.MessageID
}

// Succeed marks the response as successful for userID.
func (r *UserCreatedResponse) Succeed(userID uuid.UUID) {
	r.Status = StatusSuccess
	r.UserID = &userID
	r.ErrorMessage = nil
}

// Fail marks the response as failed with status and the error message of err.
func (r *UserCreatedResponse) Fail(status Status, err error) {
	r.Status = status
	r.UserID = nil
	msg := err.Error()
	r.ErrorMessage = &msg
}

// SetProcessingTime records the time spent handling the request since start.
func (r *UserCreatedResponse) SetProcessingTime(start time.Time) {
	ms := float64(time.Since(start).Microseconds()) / 1000
	r.ProcessingTimeMS = &ms
}
