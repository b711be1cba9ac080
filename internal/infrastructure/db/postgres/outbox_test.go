package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestOutbox_EnqueueTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	outbox := NewOutbox(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO outbox").
		WithArgs("order", "ORD-1", "CREATED", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	tx, err := db.Begin()
	assert.NoError(t, err)

	id, err := outbox.EnqueueTx(context.Background(), tx, "order", "ORD-1", "CREATED", []byte(`{}`))
	assert.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutbox_ClaimBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	outbox := NewOutbox(db)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "aggregate_type", "aggregate_id", "event_type", "payload", "created_at"}).
		AddRow(int64(1), "order", "ORD-1", "CREATED", []byte(`{}`), time.Now()).
		AddRow(int64(2), "order", "ORD-2", "CREATED", []byte(`{}`), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM outbox").WithArgs(20).WillReturnRows(rows)
	mock.ExpectCommit()

	tx, err := db.Begin()
	assert.NoError(t, err)

	batch, err := outbox.ClaimBatch(context.Background(), tx, 20)
	assert.NoError(t, err)
	assert.Len(t, batch, 2)
	assert.Equal(t, int64(1), batch[0].ID)
	assert.Equal(t, int64(2), batch[1].ID)
	assert.NoError(t, tx.Commit())
}

func TestOutbox_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	outbox := NewOutbox(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM outbox").WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	assert.NoError(t, err)

	assert.NoError(t, outbox.Delete(context.Background(), tx, 7))
	assert.NoError(t, tx.Commit())
}
