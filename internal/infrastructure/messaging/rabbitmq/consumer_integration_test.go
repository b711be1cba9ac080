//go:build integration

package rabbitmq

import (
	"context"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftlogix/order-pipeline/internal/application/pipeline"
	"github.com/swiftlogix/order-pipeline/internal/domain"
)

// These tests exercise the real topology against a live RabbitMQ and are
// gated by TEST_INTEGRATION.

func requireIntegration(t *testing.T) string {
	if os.Getenv("TEST_INTEGRATION") != "1" {
		t.Skip("set TEST_INTEGRATION=1 to run against a live broker")
	}
	url := os.Getenv("RABBIT_URL")
	require.NotEmpty(t, url, "RABBIT_URL must be set for integration tests")
	return url
}

func TestConsumer_ExhaustedRetriesLandInDLQ(t *testing.T) {
	url := requireIntegration(t)

	topo := Topology{
		MainQueue:  "test.order.created",
		RetryQueue: "test.order.created.retry",
		DLQQueue:   "test.order.created.dlq",
	}

	pub := NewPublisher(url, topo)
	require.NoError(t, pub.Connect(context.Background()))
	defer pub.Close()

	failingAdapter := failingAdapterStub{}
	worker := pipeline.NewWorker(pipeline.WorkerConfig{
		Orders:       noopOrderRepo{},
		Events:       noopEventLog{},
		Adapters:     map[pipeline.Stage]pipeline.Adapter{pipeline.StageCMS: failingAdapter, pipeline.StageROS: failingAdapter, pipeline.StageWMS: failingAdapter},
		Terminator:   pipeline.NewTerminator(noopOrderRepo{}, noopEventLog{}, noopDriverPicker{}, nil),
		MaxRetries:   1,
		BaseRetryTTL: 50 * time.Millisecond,
		MaxRetryTTL:  200 * time.Millisecond,
	})

	consumer := NewConsumer(url, topo, worker, pub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	env := domain.Envelope{OrderID: "ORD-INT-1", EventID: "1", AggregateType: "order"}
	require.NoError(t, pub.Publish(context.Background(), domain.OutboxRow{ID: 1, AggregateID: env.OrderID, AggregateType: "order"}))

	assert.Eventually(t, func() bool {
		return dlqHasMessage(t, url, topo.DLQQueue)
	}, 10*time.Second, 200*time.Millisecond)
}

type failingAdapterStub struct{}

func (failingAdapterStub) Execute(ctx context.Context, orderID string) (pipeline.StageResult, error) {
	return pipeline.StageResult{}, assert.AnError
}

type noopOrderRepo struct{}

func (noopOrderRepo) UpdateStatus(ctx context.Context, id string, status domain.Status, lastError string, incRetry bool) error {
	return nil
}
func (noopOrderRepo) SetRoute(ctx context.Context, id string, route map[string]any) error { return nil }
func (noopOrderRepo) GetStatus(ctx context.Context, id string) (domain.Status, error) {
	return domain.StatusNew, nil
}
func (noopOrderRepo) MarkEventProcessed(ctx context.Context, id, eventID string) error { return nil }
func (noopOrderRepo) IsEventProcessed(ctx context.Context, id, eventID string) (bool, error) {
	return false, nil
}
func (noopOrderRepo) AssignDriverIfAbsent(ctx context.Context, id, driverID string) (string, error) {
	return driverID, nil
}

type noopEventLog struct{}

func (noopEventLog) Append(ctx context.Context, orderID, eventType string, details map[string]any) {}

type noopDriverPicker struct{}

func (noopDriverPicker) PickDriver(ctx context.Context) (string, error) { return "", nil }

func dlqHasMessage(t *testing.T, url, queue string) bool {
	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	msg, ok, err := ch.Get(queue, false)
	if err != nil || !ok {
		return false
	}
	_ = msg.Ack(false)
	return true
}
