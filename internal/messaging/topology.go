package messaging

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/userhub/userhub/internal/constants"
)

// Queues are the work queues bound to constants.UserExchange, with their name as routing key.
var Queues = []string{constants.UserCreateQueue, constants.UserCreatedQueue}

// declareTopology declares the exchanges and queues used by the services.
// Declarations are idempotent, so this runs on every connection.
func declareTopology(ch channel) error {
	if err := ch.ExchangeDeclare(constants.DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", constants.DeadLetterExchange, err)
	}
	if _, err := ch.QueueDeclare(constants.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", constants.DeadLetterQueue, err)
	}
	if err := ch.QueueBind(constants.DeadLetterQueue, constants.DeadLetterRoutingKey, constants.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %q: %w", constants.DeadLetterQueue, err)
	}

	if err := ch.ExchangeDeclare(constants.UserExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %q: %w", constants.UserExchange, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    constants.DeadLetterExchange,
		"x-dead-letter-routing-key": constants.DeadLetterRoutingKey,
	}
	for _, q := range Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, args); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", q, err)
		}
		if err := ch.QueueBind(q, q, constants.UserExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", q, err)
		}
	}
	return nil
}
