package usecase

import (
	"context"

	"bookmarks-billing/internal/domain/model"
)

// SubscriptionQueries is what read-side consumers (admin API, workers) need.
type SubscriptionQueries interface {
	GetByEmail(ctx context.Context, email string) (*model.Subscription, error)
	History(ctx context.Context, email string, limit int) ([]*model.TransactionRecord, error)
}

// SubscriptionExpirer is driven by the periodic expiry sweep.
type SubscriptionExpirer interface {
	FinishExpired(ctx context.Context) (int, error)
}

type SubscriptionStats interface {
	CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error)
}
