package repository

import (
	"context"
	"time"

	"bookmarks-billing/internal/domain/model"
)

// SubscriptionRepository is the port for the per-email subscription row.
type SubscriptionRepository interface {
	// Upsert inserts or updates the row keyed by user email.
	Upsert(ctx context.Context, tx Tx, s *model.Subscription) error
	// FindByEmail returns domain.ErrNotFound when the email has no row.
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.Subscription, error)
	// ExpireOverdue flips active rows whose expiry is before now to expired.
	ExpireOverdue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
