package redis

import (
	"context"
	"fmt"
	"time"
)

// IdempotencyCache strengthens the order store's single-horizon
// last_event_id gate with a bounded recent-event-id set, so duplicate
// deliveries for an order that already moved past the event in question
// don't depend solely on the Postgres CAS.
type IdempotencyCache struct {
	client *Client
}

func NewIdempotencyCache(client *Client) *IdempotencyCache {
	return &IdempotencyCache{client: client}
}

// SeenRecently reports whether eventID was already observed for orderID
// within ttl. The check-and-mark is atomic via SETNX: the first caller to
// see an eventID claims it and gets false (not seen before); every
// subsequent caller within ttl gets true.
func (c *IdempotencyCache) SeenRecently(ctx context.Context, orderID, eventID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("idem:%s:%s", orderID, eventID)
	ok, err := c.client.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	// SetNX returns true when the key was newly set, i.e. not seen before.
	return !ok, nil
}
