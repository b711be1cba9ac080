package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

// Outbox is the transactional outbox table. A row's mere presence is its
// pending marker; there is no status/attempts column.
type Outbox struct {
	db *sql.DB
}

func NewOutbox(db *sql.DB) *Outbox {
	return &Outbox{db: db}
}

// EnqueueTx inserts a pending outbox row inside the caller's transaction,
// returning the assigned (monotonic) outbox id.
func (o *Outbox) EnqueueTx(ctx context.Context, tx *sql.Tx, aggregateType, aggregateID, eventType string, payload []byte) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, insertOutboxSQL, aggregateType, aggregateID, eventType, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue outbox row for %s/%s: %w", aggregateType, aggregateID, err)
	}
	return id, nil
}

// ClaimBatch returns up to limit pending rows, locked with skip-locked
// semantics so concurrent publishers never race on the same row. Must be
// called inside a transaction that the caller commits (or rolls back) once
// the batch has been published/retained.
func (o *Outbox) ClaimBatch(ctx context.Context, tx *sql.Tx, limit int) ([]domain.OutboxRow, error) {
	rows, err := tx.QueryContext(ctx, claimOutboxBatchSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxRow
	for rows.Next() {
		var r domain.OutboxRow
		if err := rows.Scan(&r.ID, &r.AggregateType, &r.AggregateID, &r.EventType, &r.Payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return out, nil
}

// Delete removes a row after its publish has been confirmed by the broker.
func (o *Outbox) Delete(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, deleteOutboxRowSQL, id); err != nil {
		return fmt.Errorf("delete outbox row %d: %w", id, err)
	}
	return nil
}
