package postgres

const (
	insertOrderSQL = `
		INSERT INTO orders (id, client_id, payload, status, retry_count, last_error, last_event_id, assigned_driver_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, '', '', NULL, now(), now())
	`

	updateOrderStatusSQL = `
		UPDATE orders
		SET status = $2,
		    last_error = COALESCE(NULLIF($3, ''), last_error),
		    retry_count = retry_count + $4,
		    updated_at = now()
		WHERE id = $1
	`

	setRouteSQL = `
		UPDATE orders
		SET payload = jsonb_set(payload, '{route}', $2::jsonb, true),
		    updated_at = now()
		WHERE id = $1
	`

	getOrderStatusSQL = `SELECT status FROM orders WHERE id = $1`

	getOrderSQL = `
		SELECT id, client_id, payload, status, retry_count, last_error, last_event_id,
		       assigned_driver_id, created_at, updated_at
		FROM orders WHERE id = $1
	`

	assignDriverIfAbsentSQL = `
		UPDATE orders
		SET assigned_driver_id = $2, updated_at = now()
		WHERE id = $1 AND assigned_driver_id IS NULL
		RETURNING assigned_driver_id
	`

	getAssignedDriverSQL = `SELECT assigned_driver_id FROM orders WHERE id = $1`

	markEventProcessedSQL = `
		UPDATE orders SET last_event_id = $2, updated_at = now() WHERE id = $1
	`

	isEventProcessedSQL = `SELECT last_event_id = $2 FROM orders WHERE id = $1`

	insertEventLogSQL = `
		INSERT INTO order_events (order_id, event_type, details, created_at)
		VALUES ($1, $2, $3, now())
	`

	insertOutboxSQL = `
		INSERT INTO outbox (aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id
	`

	claimOutboxBatchSQL = `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		ORDER BY id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	deleteOutboxRowSQL = `DELETE FROM outbox WHERE id = $1`

	pickDriverSQL = `SELECT id FROM users WHERE role = 'driver' ORDER BY email LIMIT 1`
)
