package outbox

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) ClaimBatch(ctx context.Context, tx *sql.Tx, limit int) ([]domain.OutboxRow, error) {
	args := m.Called(ctx, tx, limit)
	rows, _ := args.Get(0).([]domain.OutboxRow)
	return rows, args.Error(1)
}
func (m *mockStore) Delete(ctx context.Context, tx *sql.Tx, id int64) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

type mockBroker struct{ mock.Mock }

func (m *mockBroker) Publish(ctx context.Context, row domain.OutboxRow) error {
	args := m.Called(ctx, row)
	return args.Error(0)
}

type mockStatusUpdater struct{ mock.Mock }

func (m *mockStatusUpdater) UpdateStatus(ctx context.Context, id string, status domain.Status, lastError string, incRetry bool) error {
	args := m.Called(ctx, id, status, lastError, incRetry)
	return args.Error(0)
}

type mockEventAppender struct{ mock.Mock }

func (m *mockEventAppender) Append(ctx context.Context, orderID, eventType string, details map[string]any) {
	m.Called(ctx, orderID, eventType, details)
}

func TestPublisher_ProcessBatch_PublishesAndDeletes(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := new(mockStore)
	broker := new(mockBroker)

	rows := []domain.OutboxRow{
		{ID: 1, AggregateType: "order", AggregateID: "ORD-1", EventType: "CREATED"},
		{ID: 2, AggregateType: "order", AggregateID: "ORD-2", EventType: "CREATED"},
	}

	dbmock.ExpectBegin()
	store.On("ClaimBatch", mock.Anything, mock.Anything, 20).Return(rows, nil)
	broker.On("Publish", mock.Anything, rows[0]).Return(nil)
	broker.On("Publish", mock.Anything, rows[1]).Return(nil)
	store.On("Delete", mock.Anything, mock.Anything, int64(1)).Return(nil)
	store.On("Delete", mock.Anything, mock.Anything, int64(2)).Return(nil)
	dbmock.ExpectCommit()

	pub := NewPublisher(db, store, broker, 20, 500*time.Millisecond)
	n, err := pub.processBatch(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	store.AssertExpectations(t)
	broker.AssertExpectations(t)
}

func TestPublisher_ProcessBatch_RetainsRowOnPublishFailure(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := new(mockStore)
	broker := new(mockBroker)

	row := domain.OutboxRow{ID: 1, AggregateType: "order", AggregateID: "ORD-1", EventType: "CREATED"}

	dbmock.ExpectBegin()
	store.On("ClaimBatch", mock.Anything, mock.Anything, 20).Return([]domain.OutboxRow{row}, nil)
	broker.On("Publish", mock.Anything, row).Return(errors.New("broker unavailable"))
	dbmock.ExpectCommit()

	pub := NewPublisher(db, store, broker, 20, 500*time.Millisecond)
	n, err := pub.processBatch(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublisher_ProcessBatch_EmitsQueuedAfterConfirmedPublish(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := new(mockStore)
	broker := new(mockBroker)
	orders := new(mockStatusUpdater)
	events := new(mockEventAppender)

	row := domain.OutboxRow{ID: 1, AggregateType: "order", AggregateID: "ORD-1", EventType: "CREATED"}

	dbmock.ExpectBegin()
	store.On("ClaimBatch", mock.Anything, mock.Anything, 20).Return([]domain.OutboxRow{row}, nil)
	broker.On("Publish", mock.Anything, row).Return(nil)
	store.On("Delete", mock.Anything, mock.Anything, int64(1)).Return(nil)
	orders.On("UpdateStatus", mock.Anything, "ORD-1", domain.StatusQueued, "", false).Return(nil)
	events.On("Append", mock.Anything, "ORD-1", string(domain.StatusQueued), mock.Anything).Return()
	dbmock.ExpectCommit()

	pub := NewPublisher(db, store, broker, 20, 500*time.Millisecond).WithStatusSink(orders, events)
	n, err := pub.processBatch(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	orders.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestPublisher_ProcessBatch_NoQueuedEmissionOnPublishFailure(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := new(mockStore)
	broker := new(mockBroker)
	orders := new(mockStatusUpdater)
	events := new(mockEventAppender)

	row := domain.OutboxRow{ID: 1, AggregateType: "order", AggregateID: "ORD-1", EventType: "CREATED"}

	dbmock.ExpectBegin()
	store.On("ClaimBatch", mock.Anything, mock.Anything, 20).Return([]domain.OutboxRow{row}, nil)
	broker.On("Publish", mock.Anything, row).Return(errors.New("broker unavailable"))
	dbmock.ExpectCommit()

	pub := NewPublisher(db, store, broker, 20, 500*time.Millisecond).WithStatusSink(orders, events)
	_, err = pub.processBatch(context.Background())

	assert.NoError(t, err)
	orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	events.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublisher_ProcessBatch_EmptyBatch(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := new(mockStore)
	broker := new(mockBroker)

	dbmock.ExpectBegin()
	store.On("ClaimBatch", mock.Anything, mock.Anything, 20).Return(nil, nil)
	dbmock.ExpectCommit()

	pub := NewPublisher(db, store, broker, 20, 500*time.Millisecond)
	n, err := pub.processBatch(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
