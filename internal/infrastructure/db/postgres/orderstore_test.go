package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

func TestOrderStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewOrderStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("ORD-1", "C001", sqlmock.AnyArg(), domain.StatusNew).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = store.Create(context.Background(), "ORD-1", "C001", map[string]any{"items": []any{"widget"}})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStore_Create_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewOrderStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err = store.Create(context.Background(), "ORD-1", "C001", map[string]any{})
	assert.Error(t, err)
	var appErr *domain.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.CodeConflict, appErr.Code)
}

func TestOrderStore_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewOrderStore(db)

	mock.ExpectExec("UPDATE orders").
		WithArgs("ORD-1", domain.StatusCMSError, "timeout calling cms", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.UpdateStatus(context.Background(), "ORD-1", domain.StatusCMSError, "timeout calling cms", true)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStore_UpdateStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewOrderStore(db)

	mock.ExpectExec("UPDATE orders").
		WithArgs("missing", domain.StatusQueued, "", 0).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.UpdateStatus(context.Background(), "missing", domain.StatusQueued, "", false)
	assert.Error(t, err)
	var appErr *domain.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.CodeNotFound, appErr.Code)
}

func TestOrderStore_SetRoute(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewOrderStore(db)

	mock.ExpectExec("UPDATE orders").
		WithArgs("ORD-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.SetRoute(context.Background(), "ORD-1", map[string]any{"eta_minutes": 12})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStore_GetStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewOrderStore(db)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"status"}).AddRow("READY_FOR_DRIVER")
		mock.ExpectQuery("SELECT status FROM orders").WithArgs("ORD-1").WillReturnRows(rows)

		status, err := store.GetStatus(context.Background(), "ORD-1")
		assert.NoError(t, err)
		assert.Equal(t, domain.StatusReadyForDriver, status)
	})

	t.Run("not_found", func(t *testing.T) {
		mock.ExpectQuery("SELECT status FROM orders").WithArgs("missing").WillReturnError(sql.ErrNoRows)

		_, err := store.GetStatus(context.Background(), "missing")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "order not found")
	})
}

func TestOrderStore_AssignDriverIfAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewOrderStore(db)

	t.Run("assigns_when_absent", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"assigned_driver_id"}).AddRow("driver-1")
		mock.ExpectQuery("UPDATE orders").WithArgs("ORD-1", "driver-1").WillReturnRows(rows)

		got, err := store.AssignDriverIfAbsent(context.Background(), "ORD-1", "driver-1")
		assert.NoError(t, err)
		assert.Equal(t, "driver-1", got)
	})

	t.Run("returns_existing_when_already_assigned", func(t *testing.T) {
		mock.ExpectQuery("UPDATE orders").WithArgs("ORD-1", "driver-2").WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT assigned_driver_id FROM orders").
			WithArgs("ORD-1").
			WillReturnRows(sqlmock.NewRows([]string{"assigned_driver_id"}).AddRow("driver-1"))

		got, err := store.AssignDriverIfAbsent(context.Background(), "ORD-1", "driver-2")
		assert.NoError(t, err)
		assert.Equal(t, "driver-1", got)
	})
}

func TestOrderStore_MarkAndIsEventProcessed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewOrderStore(db)

	mock.ExpectExec("UPDATE orders SET last_event_id").
		WithArgs("ORD-1", "42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.MarkEventProcessed(context.Background(), "ORD-1", "42")
	assert.NoError(t, err)

	rows := sqlmock.NewRows([]string{"?column?"}).AddRow(true)
	mock.ExpectQuery("SELECT last_event_id = \\$2 FROM orders").
		WithArgs("ORD-1", "42").
		WillReturnRows(rows)

	processed, err := store.IsEventProcessed(context.Background(), "ORD-1", "42")
	assert.NoError(t, err)
	assert.True(t, processed)
}

func TestOrderStore_PickDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewOrderStore(db)

	t.Run("returns_first_candidate", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id"}).AddRow("driver-1")
		mock.ExpectQuery("SELECT id FROM users WHERE role").WillReturnRows(rows)

		id, err := store.PickDriver(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "driver-1", id)
	})

	t.Run("returns_empty_when_no_driver", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM users WHERE role").WillReturnError(sql.ErrNoRows)

		id, err := store.PickDriver(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, "", id)
	})
}
