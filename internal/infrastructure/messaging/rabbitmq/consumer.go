package rabbitmq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	zlog "github.com/rs/zerolog/log"

	"github.com/swiftlogix/order-pipeline/internal/application/pipeline"
)

// Consumer feeds the pipeline worker from the main queue with prefetch=1
// and implements the ack-then-republish protocol: every delivery is acked
// manually after processing, and failures are re-emitted as fresh retry or
// DLQ envelopes instead of being nacked back to the broker.
type Consumer struct {
	url      string
	topology Topology
	worker   *pipeline.Worker
	pub      *Publisher
}

func NewConsumer(url string, topology Topology, worker *pipeline.Worker, pub *Publisher) *Consumer {
	return &Consumer{url: url, topology: topology, worker: worker, pub: pub}
}

// Run is the outer reconnect loop: any broker error closes the connection
// and restarts after a short delay, re-declaring topology each time.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.runOnce(ctx); err != nil {
			zlog.Error().Err(err).Msg("rabbitmq consumer loop exited, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (c *Consumer) runOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.topology.DeclareTopology(ch); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(c.topology.MainQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery decodes the body, runs it through the pipeline worker,
// then always acks the original delivery and, if the worker produced a
// RepublishInstruction, publishes the follow-up envelope to the retry
// queue or the DLQ.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	env, retries, err := decodeEnvelope(d)
	if err != nil {
		zlog.Error().Err(err).Msg("malformed delivery, routing to dlq")
		_ = d.Ack(false)
		if pubErr := c.pub.PublishRawDLQ(ctx, d.Body, "malformed"); pubErr != nil {
			zlog.Error().Err(pubErr).Msg("publish malformed message to dlq failed")
		}
		return
	}

	outcome := c.worker.Process(ctx, env, retries)

	if err := d.Ack(false); err != nil {
		zlog.Error().Err(err).Str("order_id", env.OrderID).Msg("ack delivery failed")
	}

	if outcome.Republish == nil {
		return
	}

	instr := outcome.Republish
	if instr.ToDLQ {
		if err := c.pub.PublishDLQ(ctx, instr.Envelope, instr.NextRetry, instr.DLQReason); err != nil {
			zlog.Error().Err(err).Str("order_id", env.OrderID).Msg("publish to dlq failed")
		}
		return
	}

	if err := c.pub.PublishRetry(ctx, instr.Envelope, instr.NextRetry, instr.Expiration); err != nil {
		zlog.Error().Err(err).Str("order_id", env.OrderID).Msg("publish retry failed")
	}
}
