package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/adapter"
	"bookmarks-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

// PlanPrice holds the price of one plan per billing cycle, in minor units.
type PlanPrice struct {
	Monthly int64
	Yearly  int64
}

type PriceCatalog struct {
	Currency string
	Plans    map[model.PlanType]PlanPrice
}

func (c PriceCatalog) Price(plan model.PlanType, cycle model.BillingCycle) (int64, error) {
	p, ok := c.Plans[plan]
	if !ok {
		return 0, domain.ErrInvalidArgument
	}
	amount := p.Monthly
	if cycle == model.BillingYearly {
		amount = p.Yearly
	}
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return amount, nil
}

type CheckoutResult struct {
	OrderID     string
	ApprovalURL string
	AmountMinor int64
	Currency    string
	ExpiresAt   time.Time
}

type CheckoutUseCase interface {
	// StartWalletCheckout creates a wallet order for plan and remembers its
	// context server-side until the buyer returns to capture it.
	StartWalletCheckout(ctx context.Context, plan model.PlanContext) (*CheckoutResult, error)
}

type CheckoutURLs struct {
	ReturnURL string
	CancelURL string
}

type checkoutUC struct {
	wallet  adapter.WalletClient
	pending repository.PendingOrderRepository
	catalog PriceCatalog
	urls    CheckoutURLs
	ttl     time.Duration
	log     *zerolog.Logger
	now     func() time.Time
}

func NewCheckoutUseCase(wallet adapter.WalletClient, pending repository.PendingOrderRepository, catalog PriceCatalog, urls CheckoutURLs, ttl time.Duration, logger *zerolog.Logger) *checkoutUC {
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	return &checkoutUC{
		wallet:  wallet,
		pending: pending,
		catalog: catalog,
		urls:    urls,
		ttl:     ttl,
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (u *checkoutUC) StartWalletCheckout(ctx context.Context, plan model.PlanContext) (*CheckoutResult, error) {
	plan, err := model.NewPlanContext(plan.UserEmail, string(plan.PlanType), string(plan.BillingCycle))
	if err != nil {
		return nil, err
	}
	amount, err := u.catalog.Price(plan.PlanType, plan.BillingCycle)
	if err != nil {
		return nil, err
	}
	now := u.now()
	ref := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()

	order, err := u.wallet.CreateOrder(ctx, adapter.WalletOrderRequest{
		ReferenceID: ref,
		AmountMinor: amount,
		Currency:    u.catalog.Currency,
		Description: fmt.Sprintf("%s plan, billed %s", plan.PlanType, plan.BillingCycle),
		ReturnURL:   u.urls.ReturnURL,
		CancelURL:   u.urls.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create wallet order: %w", err)
	}
	if strings.TrimSpace(order.OrderID) == "" {
		return nil, domain.ErrOperationFailed
	}

	po := &model.PendingOrder{
		PlanType:        plan.PlanType,
		BillingCycle:    plan.BillingCycle,
		UserEmail:       plan.UserEmail,
		ExternalOrderID: order.OrderID,
		AmountMinor:     amount,
		Currency:        u.catalog.Currency,
		CreatedAt:       now,
	}
	if err := u.pending.Put(ctx, po, u.ttl); err != nil {
		return nil, fmt.Errorf("store pending order: %w", err)
	}

	u.log.Info().
		Str("order_id", order.OrderID).
		Str("reference_id", ref).
		Str("plan", string(plan.PlanType)).
		Str("cycle", string(plan.BillingCycle)).
		Msg("wallet checkout started")

	return &CheckoutResult{
		OrderID:     order.OrderID,
		ApprovalURL: order.ApprovalURL,
		AmountMinor: amount,
		Currency:    u.catalog.Currency,
		ExpiresAt:   now.Add(u.ttl),
	}, nil
}
