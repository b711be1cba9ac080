package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	zlog "github.com/rs/zerolog/log"
)

// EventLog is the append-only audit trail. Append deliberately never
// returns an error to the caller: audit is advisory, not transactional
// with the pipeline.
type EventLog struct {
	db *sql.DB
}

func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) Append(ctx context.Context, orderID, eventType string, details map[string]any) {
	raw, err := json.Marshal(details)
	if err != nil {
		zlog.Error().Err(err).Str("order_id", orderID).Str("event_type", eventType).Msg("marshal event log details failed")
		return
	}
	if _, err := l.db.ExecContext(ctx, insertEventLogSQL, orderID, eventType, raw); err != nil {
		zlog.Error().Err(err).Str("order_id", orderID).Str("event_type", eventType).Msg("append event log entry failed")
	}
}
