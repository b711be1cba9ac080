package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

type mockOrderRepo struct{ mock.Mock }

func (m *mockOrderRepo) UpdateStatus(ctx context.Context, id string, status domain.Status, lastError string, incRetry bool) error {
	args := m.Called(ctx, id, status, lastError, incRetry)
	return args.Error(0)
}
func (m *mockOrderRepo) SetRoute(ctx context.Context, id string, route map[string]any) error {
	args := m.Called(ctx, id, route)
	return args.Error(0)
}
func (m *mockOrderRepo) GetStatus(ctx context.Context, id string) (domain.Status, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Status), args.Error(1)
}
func (m *mockOrderRepo) MarkEventProcessed(ctx context.Context, id, eventID string) error {
	args := m.Called(ctx, id, eventID)
	return args.Error(0)
}
func (m *mockOrderRepo) IsEventProcessed(ctx context.Context, id, eventID string) (bool, error) {
	args := m.Called(ctx, id, eventID)
	return args.Bool(0), args.Error(1)
}
func (m *mockOrderRepo) AssignDriverIfAbsent(ctx context.Context, id, driverID string) (string, error) {
	args := m.Called(ctx, id, driverID)
	return args.String(0), args.Error(1)
}

type mockEventLog struct{ mock.Mock }

func (m *mockEventLog) Append(ctx context.Context, orderID, eventType string, details map[string]any) {
	m.Called(ctx, orderID, eventType, details)
}

type mockDriverPicker struct{ mock.Mock }

func (m *mockDriverPicker) PickDriver(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyStatus(ctx context.Context, orderID string, status domain.Status) {
	m.Called(ctx, orderID, status)
}
func (m *mockNotifier) NotifyDriver(ctx context.Context, driverID, orderID string, payload map[string]any) {
	m.Called(ctx, driverID, orderID, payload)
}

type mockAdapter struct{ mock.Mock }

func (m *mockAdapter) Execute(ctx context.Context, orderID string) (StageResult, error) {
	args := m.Called(ctx, orderID)
	res, _ := args.Get(0).(StageResult)
	return res, args.Error(1)
}

type mockCache struct{ mock.Mock }

func (m *mockCache) SeenRecently(ctx context.Context, orderID, eventID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, orderID, eventID, ttl)
	return args.Bool(0), args.Error(1)
}

type fakeClock struct{}

func (fakeClock) Sleep(time.Duration) {}
func (fakeClock) Now() time.Time      { return time.Unix(0, 0) }
