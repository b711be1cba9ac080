package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the three durable queues the pipeline uses, all declared
// on the default exchange. DeclareTopology is idempotent and must be
// re-run after every reconnect.
type Topology struct {
	MainQueue  string
	RetryQueue string
	DLQQueue   string
}

// DeclareTopology declares the main queue, the retry queue (dead-lettered
// back to the main queue via the default exchange once a message's
// per-message expiration elapses), and the DLQ. There is no queue-level
// x-message-ttl on the retry queue: retry delay is carried per-message so
// each attempt can back off independently.
func (t Topology) DeclareTopology(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(t.DLQQueue, true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(t.MainQueue, true, false, false, false, nil); err != nil {
		return err
	}

	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.MainQueue,
	}
	if _, err := ch.QueueDeclare(t.RetryQueue, true, false, false, false, retryArgs); err != nil {
		return err
	}

	return nil
}
