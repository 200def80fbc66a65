package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/repository"
	ucport "bookmarks-billing/internal/domain/ports/usecase"
)

var (
	_ ucport.SubscriptionQueries = (*SubscriptionUseCase)(nil)
	_ ucport.SubscriptionExpirer = (*SubscriptionUseCase)(nil)
	_ ucport.SubscriptionStats   = (*SubscriptionUseCase)(nil)
)

const expireBatch = 500

// SubscriptionUseCase serves read-side queries and the expiry sweep.
type SubscriptionUseCase struct {
	subs repository.SubscriptionRepository
	txs  repository.TransactionRepository
	log  *zerolog.Logger
	now  func() time.Time
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, txs repository.TransactionRepository, logger *zerolog.Logger) *SubscriptionUseCase {
	return &SubscriptionUseCase{
		subs: subs,
		txs:  txs,
		log:  logger,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (uc *SubscriptionUseCase) GetByEmail(ctx context.Context, email string) (*model.Subscription, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	return uc.subs.FindByEmail(ctx, repository.NoTX, email)
}

func (uc *SubscriptionUseCase) History(ctx context.Context, email string, limit int) ([]*model.TransactionRecord, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	switch {
	case limit <= 0:
		limit = 50
	case limit > 200:
		limit = 200
	}
	return uc.txs.ListByEmail(ctx, repository.NoTX, email, limit)
}

// FinishExpired marks every active subscription past its expiry as expired
// and returns how many rows changed.
func (uc *SubscriptionUseCase) FinishExpired(ctx context.Context) (int, error) {
	now := uc.now()
	total := 0
	for {
		items, err := uc.subs.ExpireOverdue(ctx, repository.NoTX, now, expireBatch)
		if err != nil {
			return total, err
		}
		for _, s := range items {
			uc.log.Info().
				Str("subscription_id", s.ID).
				Time("expire_time", s.ExpireTime).
				Msg("subscription expired")
		}
		total += len(items)
		if len(items) < expireBatch {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func (uc *SubscriptionUseCase) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	return uc.subs.CountByStatus(ctx, repository.NoTX)
}
