package repository

import (
	"context"
	"time"

	"bookmarks-billing/internal/domain/model"
)

// PendingOrderRepository keeps wallet checkout context between order creation
// and capture. Entries are never deleted explicitly; they vanish after ttl so
// a redelivered capture still finds its order.
type PendingOrderRepository interface {
	Put(ctx context.Context, o *model.PendingOrder, ttl time.Duration) error
	Get(ctx context.Context, externalOrderID string) (*model.PendingOrder, error)
}
