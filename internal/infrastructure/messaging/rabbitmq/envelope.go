package rabbitmq

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

const (
	headerRetries   = "x-retries"
	headerTTLMs     = "x-ttl-ms"
	headerDLQReason = "x-dlq-reason"
)

// decodeEnvelope parses the delivery body and the x-retries header. A
// JSON parse failure or a missing order_id is reported as a malformed
// delivery, which the caller routes straight to the DLQ with no order
// mutation.
func decodeEnvelope(d amqp.Delivery) (domain.Envelope, int, error) {
	var env domain.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		return domain.Envelope{}, 0, fmt.Errorf("malformed body: %w", err)
	}
	if env.OrderID == "" {
		return domain.Envelope{}, 0, fmt.Errorf("malformed body: missing order_id")
	}

	retries := 0
	if v, ok := d.Headers[headerRetries]; ok {
		retries = toInt(v)
	}
	return env, retries, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

// wireEnvelope is the broker wire format: a raw
// payload pass-through avoids a decode/re-encode round trip of the
// outbox row's JSON payload.
type wireEnvelope struct {
	OrderID       string          `json:"order_id"`
	EventID       string          `json:"event_id"`
	AggregateType string          `json:"aggregate_type"`
	Payload       json.RawMessage `json:"payload"`
}

// wireBody builds the JSON body for a fresh outbox-originated message,
// passing the outbox row's payload bytes straight through.
func wireBody(orderID, eventID, aggregateType string, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return json.Marshal(wireEnvelope{
		OrderID:       orderID,
		EventID:       eventID,
		AggregateType: aggregateType,
		Payload:       payload,
	})
}

// retryPublishingFor builds the amqp.Publishing for a republished retry
// envelope, with the incremented x-retries header and a per-message
// expiration.
func retryPublishingFor(env domain.Envelope, nextRetry int, expiration time.Duration) (amqp.Publishing, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: env.EventID,
		Expiration:    strconv.FormatInt(expiration.Milliseconds(), 10),
		Headers: amqp.Table{
			headerRetries: int32(nextRetry),
			headerTTLMs:   int32(expiration.Milliseconds()),
		},
		Body: body,
	}, nil
}

// dlqPublishingFor builds the amqp.Publishing for a message that exhausted
// its retry budget, carrying x-dlq-reason.
func dlqPublishingFor(env domain.Envelope, retries int, reason string) (amqp.Publishing, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: env.EventID,
		Headers: amqp.Table{
			headerRetries:   int32(retries),
			headerDLQReason: reason,
		},
		Body: body,
	}, nil
}
