package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestEventLog_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	log := NewEventLog(db)

	mock.ExpectExec("INSERT INTO order_events").
		WithArgs("ORD-1", "CREATED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	log.Append(context.Background(), "ORD-1", "CREATED", map[string]any{"client_id": "C001"})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventLog_Append_SwallowsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	log := NewEventLog(db)

	mock.ExpectExec("INSERT INTO order_events").
		WithArgs("ORD-1", "CREATED", sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	// Append must never panic or surface the error to the caller.
	assert.NotPanics(t, func() {
		log.Append(context.Background(), "ORD-1", "CREATED", map[string]any{})
	})
}
