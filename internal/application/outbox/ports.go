package outbox

import (
	"context"
	"database/sql"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

// OutboxStore is the outbox table as the publisher sees it: claim a batch
// inside a caller-managed transaction, delete a row once its publish is
// confirmed.
type OutboxStore interface {
	ClaimBatch(ctx context.Context, tx *sql.Tx, limit int) ([]domain.OutboxRow, error)
	Delete(ctx context.Context, tx *sql.Tx, id int64) error
}

// BrokerPublisher is the transport the outbox publisher drives. Publish
// must block until the broker has confirmed persistence (or return an
// error) so the row is only deleted after a confirmed publish.
type BrokerPublisher interface {
	Publish(ctx context.Context, row domain.OutboxRow) error
}

// StatusUpdater is the narrow slice of the order store the publisher needs
// for the best-effort QUEUED transition emitted after a confirmed publish.
// A nil StatusUpdater skips the transition entirely.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, status domain.Status, lastError string, incRetry bool) error
}

// EventAppender is the narrow slice of the event log the publisher needs
// for the best-effort QUEUED audit event. A nil EventAppender skips the
// append.
type EventAppender interface {
	Append(ctx context.Context, orderID, eventType string, details map[string]any)
}
