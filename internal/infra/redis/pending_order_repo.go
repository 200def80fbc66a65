package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/repository"
	"bookmarks-billing/internal/infra/metrics"
)

var _ repository.PendingOrderRepository = (*PendingOrderRepo)(nil)

const pendingOrderCache = "pending_order"

// PendingOrderRepo stores wallet checkout context as JSON under pending_order:<orderID>.
type PendingOrderRepo struct {
	client RedisClient
}

func NewPendingOrderRepo(client RedisClient) *PendingOrderRepo {
	return &PendingOrderRepo{client: client}
}

func (r *PendingOrderRepo) key(orderID string) string {
	return pendingOrderCache + ":" + orderID
}

func (r *PendingOrderRepo) Put(ctx context.Context, o *model.PendingOrder, ttl time.Duration) error {
	if o == nil || o.ExternalOrderID == "" || ttl <= 0 {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(o.ExternalOrderID), data, ttl)
}

// Get returns domain.ErrNotFound for unknown or expired orders.
func (r *PendingOrderRepo) Get(ctx context.Context, orderID string) (*model.PendingOrder, error) {
	if orderID == "" {
		return nil, domain.ErrInvalidArgument
	}
	data, err := r.client.Get(ctx, r.key(orderID))
	if err != nil {
		if errors.Is(err, Nil) {
			metrics.IncCacheRequest(pendingOrderCache, "miss")
			return nil, domain.ErrNotFound
		}
		metrics.IncCacheRequest(pendingOrderCache, "error")
		return nil, err
	}
	metrics.IncCacheRequest(pendingOrderCache, "hit")

	var o model.PendingOrder
	if err := json.Unmarshal([]byte(data), &o); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &o, nil
}
