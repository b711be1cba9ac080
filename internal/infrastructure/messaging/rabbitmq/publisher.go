package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	zlog "github.com/rs/zerolog/log"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

// Publisher implements outbox.BrokerPublisher against a live AMQP
// connection. Every publish runs in confirm mode and blocks until the
// broker acknowledges persistence, so callers can safely delete the
// originating outbox row once Publish returns nil.
type Publisher struct {
	url      string
	topology Topology

	mu        sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	confirmCh chan amqp.Confirmation
	returnCh  chan amqp.Return

	confirmTimeout time.Duration
}

func NewPublisher(url string, topology Topology) *Publisher {
	return &Publisher{url: url, topology: topology, confirmTimeout: 5 * time.Second}
}

// Connect establishes the connection/channel and declares the topology. It
// is safe to call repeatedly; a healthy existing connection is reused.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked()
}

func (p *Publisher) connectLocked() error {
	if p.conn != nil && !p.conn.IsClosed() && p.channel != nil {
		return nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("enable confirms: %w", err)
	}
	if err := p.topology.DeclareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare topology: %w", err)
	}

	p.conn = conn
	p.channel = ch
	p.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))
	return nil
}

// ConnectWithRetry blocks, retrying with bounded exponential backoff, until
// a connection is established or ctx is cancelled.
func (p *Publisher) ConnectWithRetry(ctx context.Context) error {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		if err := p.Connect(ctx); err == nil {
			return nil
		} else {
			zlog.Error().Err(err).Dur("retry_in", backoff).Msg("rabbitmq connect failed, retrying")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Publish sends row to the main queue with persistent delivery and
// correlation_id = outbox id, waiting for the broker's confirm before
// returning.
func (p *Publisher) Publish(ctx context.Context, row domain.OutboxRow) error {
	eventID := fmt.Sprintf("%d", row.ID)

	body, err := wireBody(row.AggregateID, eventID, row.AggregateType, row.Payload)
	if err != nil {
		return fmt.Errorf("build publishing for outbox row %d: %w", row.ID, err)
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: eventID,
		Headers:       amqp.Table{headerRetries: int32(0)},
		Body:          body,
	}

	return p.publishAndConfirm(ctx, p.topology.MainQueue, msg)
}

// PublishRetry re-publishes env to the retry queue with the incremented
// x-retries header and a per-message expiration.
func (p *Publisher) PublishRetry(ctx context.Context, env domain.Envelope, nextRetry int, expiration time.Duration) error {
	msg, err := retryPublishingFor(env, nextRetry, expiration)
	if err != nil {
		return fmt.Errorf("build retry publishing: %w", err)
	}
	return p.publishAndConfirm(ctx, p.topology.RetryQueue, msg)
}

// PublishDLQ re-publishes env straight to the DLQ with x-dlq-reason set.
func (p *Publisher) PublishDLQ(ctx context.Context, env domain.Envelope, retries int, reason string) error {
	msg, err := dlqPublishingFor(env, retries, reason)
	if err != nil {
		return fmt.Errorf("build dlq publishing: %w", err)
	}
	return p.publishAndConfirm(ctx, p.topology.DLQQueue, msg)
}

// PublishRawDLQ routes an undecodable delivery's original bytes straight to
// the DLQ, preserving them for operator inspection.
func (p *Publisher) PublishRawDLQ(ctx context.Context, body []byte, reason string) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{headerDLQReason: reason},
		Body:         body,
	}
	return p.publishAndConfirm(ctx, p.topology.DLQQueue, msg)
}

// publishAndConfirm holds the channel for the full publish-confirm round
// trip. Confirm and return listeners are registered once per channel at
// connect time; stale entries from an earlier timed-out publish are
// drained before publishing so results never cross wires.
func (p *Publisher) publishAndConfirm(ctx context.Context, queue string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(); err != nil {
		return err
	}

drain:
	for {
		select {
		case <-p.confirmCh:
		case <-p.returnCh:
		default:
			break drain
		}
	}

	// mandatory = true so unroutable messages come back as returns.
	if err := p.channel.PublishWithContext(ctx, "", queue, true, false, msg); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish to %s: %w", queue, err)
	}

	select {
	case confirm := <-p.confirmCh:
		if !confirm.Ack {
			return fmt.Errorf("broker nacked publish to %s", queue)
		}
		return nil
	case ret := <-p.returnCh:
		return fmt.Errorf("message to %s returned: %s", queue, ret.ReplyText)
	case <-time.After(p.confirmTimeout):
		return fmt.Errorf("timed out waiting for publish confirm on %s", queue)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) resetLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn = nil
	p.channel = nil
	p.confirmCh = nil
	p.returnCh = nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if cErr := p.conn.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}
	return err
}

// IsConnected implements router.BrokerConn for the readiness endpoint.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed()
}
