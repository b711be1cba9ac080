package outbox

import (
	"context"
	"database/sql"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

// Publisher is a long-running loop that drains the outbox into the
// broker's main queue, deleting rows only after a confirmed publish.
// Rows are published strictly by ascending outbox id, which gives
// per-aggregate FIFO within a single publisher instance.
type Publisher struct {
	db        *sql.DB
	store     OutboxStore
	broker    BrokerPublisher
	orders    StatusUpdater // optional; nil skips the QUEUED transition
	events    EventAppender // optional; nil skips the QUEUED audit event
	batchSize int
	interval  time.Duration
}

func NewPublisher(db *sql.DB, store OutboxStore, broker BrokerPublisher, batchSize int, interval time.Duration) *Publisher {
	return &Publisher{db: db, store: store, broker: broker, batchSize: batchSize, interval: interval}
}

// WithStatusSink wires the optional QUEUED status transition and audit
// event emitted after a confirmed publish. Returns the publisher for
// chaining at construction time.
func (p *Publisher) WithStatusSink(orders StatusUpdater, events EventAppender) *Publisher {
	p.orders = orders
	p.events = events
	return p
}

// Run blocks until ctx is cancelled, polling the outbox on a ticker.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.processBatch(ctx)
			if err != nil {
				zlog.Error().Err(err).Msg("outbox publish batch failed")
				continue
			}
			if n == 0 {
				continue
			}
		}
	}
}

// processBatch claims one batch inside a transaction and publishes each
// row in ascending id order, giving per-aggregate FIFO within this
// publisher instance.
func (p *Publisher) processBatch(ctx context.Context) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	rows, err := p.store.ClaimBatch(ctx, tx, p.batchSize)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	for _, row := range rows {
		p.processSingleRow(ctx, tx, row)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// processSingleRow publishes one outbox row and deletes it only if the
// publish succeeds. A publish failure leaves the row in place for the
// next ClaimBatch to retry; it never aborts the whole batch's
// transaction.
func (p *Publisher) processSingleRow(ctx context.Context, tx *sql.Tx, row domain.OutboxRow) {
	if err := p.broker.Publish(ctx, row); err != nil {
		zlog.Error().Err(err).Int64("outbox_id", row.ID).Str("aggregate_id", row.AggregateID).
			Msg("publish outbox row failed, retaining for next claim")
		return
	}
	if err := p.store.Delete(ctx, tx, row.ID); err != nil {
		zlog.Error().Err(err).Int64("outbox_id", row.ID).Msg("delete published outbox row failed")
		return
	}
	p.emitQueued(ctx, row)
}

// emitQueued best-effort-emits the QUEUED status transition and audit
// event after a confirmed publish. Neither failure aborts the batch; both
// ports are optional.
func (p *Publisher) emitQueued(ctx context.Context, row domain.OutboxRow) {
	if row.AggregateType != "order" {
		return
	}
	if p.orders != nil {
		if err := p.orders.UpdateStatus(ctx, row.AggregateID, domain.StatusQueued, "", false); err != nil {
			zlog.Error().Err(err).Int64("outbox_id", row.ID).Str("order_id", row.AggregateID).
				Msg("queued status transition failed")
		}
	}
	if p.events != nil {
		p.events.Append(ctx, row.AggregateID, string(domain.StatusQueued), map[string]any{"outbox_id": row.ID})
	}
}
