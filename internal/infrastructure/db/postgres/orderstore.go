package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/swiftlogix/order-pipeline/internal/domain"
)

// OrderStore is the Postgres-backed order store. Plain methods use the
// pool directly; Tx-suffixed methods participate in a caller-managed
// transaction (see WithTx), which is how intake commits the order row and
// its outbox row atomically.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// CreateTx inserts a new order row in status NEW. Fails with a conflict
// AppError if the id already exists (unique violation on the primary key).
func (s *OrderStore) CreateTx(ctx context.Context, tx *sql.Tx, id, clientID string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order payload: %w", err)
	}

	_, err = tx.ExecContext(ctx, insertOrderSQL, id, clientID, raw, domain.StatusNew)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrConflictMeta("order already exists", map[string]string{"order_id": id})
		}
		return fmt.Errorf("insert order %s: %w", id, err)
	}
	return nil
}

// Create is the non-transactional convenience wrapper used by callers that
// do not need to enqueue an outbox row in the same statement (tests, tools).
func (s *OrderStore) Create(ctx context.Context, id, clientID string, payload map[string]any) error {
	return WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.CreateTx(ctx, tx, id, clientID, payload)
	})
}

// UpdateStatus performs the atomic single-row status transition. When
// incRetry is true, retry_count is incremented in the same statement.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.Status, lastError string, incRetry bool) error {
	inc := 0
	if incRetry {
		inc = 1
	}
	res, err := s.db.ExecContext(ctx, updateOrderStatusSQL, id, status, lastError, inc)
	if err != nil {
		return fmt.Errorf("update status for order %s: %w", id, err)
	}
	return checkRowsAffected(res, id)
}

// SetRoute merges a route object under payload.route.
func (s *OrderStore) SetRoute(ctx context.Context, id string, route map[string]any) error {
	raw, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("marshal route for order %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx, setRouteSQL, id, raw)
	if err != nil {
		return fmt.Errorf("set route for order %s: %w", id, err)
	}
	return checkRowsAffected(res, id)
}

// GetStatus returns the current status or NotFound.
func (s *OrderStore) GetStatus(ctx context.Context, id string) (domain.Status, error) {
	var status domain.Status
	err := s.db.QueryRowContext(ctx, getOrderStatusSQL, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound("order not found: " + id)
	}
	if err != nil {
		return "", fmt.Errorf("get status for order %s: %w", id, err)
	}
	return status, nil
}

// Get returns the full order row.
func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	var (
		o       domain.Order
		rawJSON []byte
		driver  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.ClientID, &rawJSON, &o.Status, &o.RetryCount, &o.LastError,
		&o.LastEventID, &driver, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("order not found: " + id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &o.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload for order %s: %w", id, err)
		}
	}
	if driver.Valid {
		v := driver.String
		o.AssignedDriverID = &v
	}
	return &o, nil
}

// AssignDriverIfAbsent is the write-once CAS: it only sets the driver if
// none is assigned yet, and always returns the now-effective driver id.
func (s *OrderStore) AssignDriverIfAbsent(ctx context.Context, id, driverID string) (string, error) {
	var assigned string
	err := s.db.QueryRowContext(ctx, assignDriverIfAbsentSQL, id, driverID).Scan(&assigned)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the order doesn't exist, or a driver is already assigned;
		// distinguish by re-reading the current value.
		var existing sql.NullString
		if readErr := s.db.QueryRowContext(ctx, getAssignedDriverSQL, id).Scan(&existing); readErr != nil {
			if errors.Is(readErr, sql.ErrNoRows) {
				return "", domain.ErrNotFound("order not found: " + id)
			}
			return "", fmt.Errorf("read assigned driver for order %s: %w", id, readErr)
		}
		if !existing.Valid {
			return "", fmt.Errorf("assign driver for order %s: no row updated and no existing driver", id)
		}
		return existing.String, nil
	}
	if err != nil {
		return "", fmt.Errorf("assign driver for order %s: %w", id, err)
	}
	return assigned, nil
}

// MarkEventProcessed records the last-applied event id for the worker's
// idempotency gate.
func (s *OrderStore) MarkEventProcessed(ctx context.Context, id, eventID string) error {
	res, err := s.db.ExecContext(ctx, markEventProcessedSQL, id, eventID)
	if err != nil {
		return fmt.Errorf("mark event processed for order %s: %w", id, err)
	}
	return checkRowsAffected(res, id)
}

// IsEventProcessed tests whether eventID is already the order's
// last_event_id (the one-event idempotency horizon).
func (s *OrderStore) IsEventProcessed(ctx context.Context, id, eventID string) (bool, error) {
	var processed bool
	err := s.db.QueryRowContext(ctx, isEventProcessedSQL, id, eventID).Scan(&processed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound("order not found: " + id)
	}
	if err != nil {
		return false, fmt.Errorf("check event processed for order %s: %w", id, err)
	}
	return processed, nil
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for order %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound("order not found: " + id)
	}
	return nil
}

// PickDriver is the terminator's candidate lookup: the first available driver
// by a deterministic tie-break (ascending email). Returns "" when no
// driver exists.
func (s *OrderStore) PickDriver(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, pickDriverSQL).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pick driver: %w", err)
	}
	return id, nil
}
