// Package constants is responsible for defining the constants used in the application.
package constants

import "log/slog"

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// AuthServiceCmdName is the name of the auth service command.
	AuthServiceCmdName = "auth-service"

	// UserServiceCmdName is the name of the user service command.
	UserServiceCmdName = "user-service"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn
)

// Network defaults. Each service owns its own API port so both can run side by side.
const (
	// DefaultListenHost binds on all interfaces.
	DefaultListenHost = "0.0.0.0"

	// AuthServiceDefaultPort is the default API port of the auth service.
	AuthServiceDefaultPort = 8080

	// UserServiceDefaultPort is the default API port of the user service.
	UserServiceDefaultPort = 8081

	// AuthServiceDefaultMetricsPort is the default metrics port of the auth service.
	AuthServiceDefaultMetricsPort = 2112

	// UserServiceDefaultMetricsPort is the default metrics port of the user service.
	UserServiceDefaultMetricsPort = 2113

	// DefaultConsumerWorkers is the number of concurrent message handlers per service.
	DefaultConsumerWorkers = 2
)

// Messaging topology.
const (
	// UserExchange is the direct exchange carrying user lifecycle messages.
	UserExchange = "user_exchange"

	// UserCreateQueue carries user creation requests from auth-service to user-service.
	UserCreateQueue = "user.create"

	// UserCreatedQueue carries user creation results from user-service to auth-service.
	UserCreatedQueue = "user.created"

	// DeadLetterExchange receives rejected messages.
	DeadLetterExchange = "dead_letter_exchange"

	// DeadLetterQueue stores rejected messages for manual review.
	DeadLetterQueue = "dead_letter_queue"

	// DeadLetterRoutingKey binds DeadLetterQueue to DeadLetterExchange.
	DeadLetterRoutingKey = "dead_letter"

	// AuthServiceSource is the source_service value set by auth-service.
	AuthServiceSource = "auth-service"

	// UserServiceSource is the source_service value set by user-service.
	UserServiceSource = "user-service"
)
