package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/repository"
)

type Transition string

const (
	TransitionNone      Transition = "none"
	TransitionActivated Transition = "activated"
	TransitionRenewed   Transition = "renewed"
)

// Reconciler applies accepted events to the per-email subscription row.
//
// absent   --succeeded--> active (start = now, expire = now + cycle)
// any      --succeeded--> active (expire reset to now + cycle)
// any      --failed/pending--> unchanged
type Reconciler struct {
	subs  repository.SubscriptionRepository
	log   *zerolog.Logger
	newID func() string
}

func NewReconciler(subs repository.SubscriptionRepository, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{subs: subs, log: logger, newID: uuid.NewString}
}

// Apply returns the resulting row (nil when nothing changed) and the transition taken.
// Storage failures are wrapped in domain.ErrReconciliationFailed.
func (r *Reconciler) Apply(ctx context.Context, tx repository.Tx, ev *model.PaymentEvent, now time.Time) (*model.Subscription, Transition, error) {
	if ev.Status != model.EventStatusSucceeded {
		return nil, TransitionNone, nil
	}

	sub, err := r.subs.FindByEmail(ctx, tx, ev.Plan.UserEmail)
	transition := TransitionRenewed
	switch {
	case errors.Is(err, domain.ErrNotFound):
		sub, err = model.NewSubscription(r.newID(), ev, now)
		if err != nil {
			return nil, TransitionNone, err
		}
		transition = TransitionActivated
	case err != nil:
		return nil, TransitionNone, fmt.Errorf("%w: load subscription: %v", domain.ErrReconciliationFailed, err)
	default:
		prev := sub.Status
		if err := sub.Renew(ev, now); err != nil {
			return nil, TransitionNone, err
		}
		if prev != model.SubscriptionStatusActive {
			transition = TransitionActivated
		}
	}

	if err := r.subs.Upsert(ctx, tx, sub); err != nil {
		return nil, TransitionNone, fmt.Errorf("%w: upsert subscription: %v", domain.ErrReconciliationFailed, err)
	}
	r.log.Debug().
		Str("subscription_id", sub.ID).
		Str("transition", string(transition)).
		Time("expire_time", sub.ExpireTime).
		Msg("subscription reconciled")
	return sub, transition, nil
}
