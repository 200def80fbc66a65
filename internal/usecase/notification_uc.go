package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/adapter"
	"bookmarks-billing/internal/domain/ports/repository"
	"bookmarks-billing/internal/infra/logging"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// Outcome is the final classification of one inbound notification.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"   // subscription and ledger written
	OutcomeDeclined  Outcome = "declined"  // provider reported failure, ledger row written
	OutcomeDuplicate Outcome = "duplicate" // already applied, no side effects
	OutcomeNoOp      Outcome = "no_op"     // pending, nothing to do yet
	OutcomeIgnored   Outcome = "ignored"   // unknown provider status, logged for review
	OutcomeRejected  Outcome = "rejected"  // integrity check failed
	OutcomeMalformed Outcome = "malformed" // required fields missing
	OutcomeRetry     Outcome = "retry"     // provider unreachable, ask for redelivery
	OutcomeFailed    Outcome = "failed"    // storage failure, ask for redelivery
)

// Acknowledge reports whether the provider should be told the notification was handled.
func (o Outcome) Acknowledge() bool {
	switch o {
	case OutcomeApplied, OutcomeDeclined, OutcomeDuplicate, OutcomeNoOp, OutcomeIgnored:
		return true
	}
	return false
}

type NotificationResult struct {
	Provider     model.Provider
	Outcome      Outcome
	Event        *model.PaymentEvent
	Subscription *model.Subscription
	Transition   Transition
	Transaction  *model.TransactionRecord
	Err          error
}

type NotificationUseCase interface {
	// Handle runs one inbound notification through parse, verify, dedup,
	// reconcile and ledger. It never returns a nil result.
	Handle(ctx context.Context, provider model.Provider, req *adapter.InboundRequest) *NotificationResult
	// Acknowledge renders the provider-specific response body for res.
	Acknowledge(provider model.Provider, res *NotificationResult) (contentType string, body []byte)
}

type notificationUC struct {
	adapters   map[model.Provider]adapter.ProviderAdapter
	verifiers  map[model.Provider]adapter.Verifier
	tm         repository.TransactionManager
	locker     repository.KeyLocker
	gate       *IdempotencyGate
	reconciler *Reconciler
	ledger     *LedgerWriter
	publisher  adapter.EventPublisher
	log        *zerolog.Logger
	now        func() time.Time
}

type NotificationDeps struct {
	Adapters   []adapter.ProviderAdapter
	Verifiers  map[model.Provider]adapter.Verifier
	TxManager  repository.TransactionManager
	Locker     repository.KeyLocker
	Gate       *IdempotencyGate
	Reconciler *Reconciler
	Ledger     *LedgerWriter
	Publisher  adapter.EventPublisher // optional
	Now        func() time.Time       // optional, defaults to time.Now().UTC()
}

func NewNotificationUseCase(d NotificationDeps, logger *zerolog.Logger) *notificationUC {
	adapters := make(map[model.Provider]adapter.ProviderAdapter, len(d.Adapters))
	for _, a := range d.Adapters {
		adapters[a.Provider()] = a
	}
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	l := logger.With().Str("component", "notification").Logger()
	return &notificationUC{
		adapters:   adapters,
		verifiers:  d.Verifiers,
		tm:         d.TxManager,
		locker:     d.Locker,
		gate:       d.Gate,
		reconciler: d.Reconciler,
		ledger:     d.Ledger,
		publisher:  d.Publisher,
		log:        &l,
		now:        now,
	}
}

func (n *notificationUC) Acknowledge(provider model.Provider, res *NotificationResult) (string, []byte) {
	a, ok := n.adapters[provider]
	if !ok {
		return "text/plain; charset=utf-8", []byte("failure")
	}
	return a.Acknowledge(res.Outcome.Acknowledge(), string(res.Outcome))
}

func (n *notificationUC) Handle(ctx context.Context, provider model.Provider, req *adapter.InboundRequest) *NotificationResult {
	defer logging.TraceDuration(n.log, "NotificationUseCase.Handle")()
	res := &NotificationResult{Provider: provider, Transition: TransitionNone}
	log := n.log.With().Str("provider", string(provider)).Logger()

	a, ok := n.adapters[provider]
	if !ok {
		return res.fail(OutcomeMalformed, domain.ErrUnknownProvider)
	}

	ev, err := a.Parse(ctx, req)
	res.Event = ev
	if ev != nil {
		log = log.With().Str("external_txn_id", ev.ExternalTxnID).Logger()
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownStatus):
			// without an event there is nothing to authenticate
			if ev == nil || !n.verify(ctx, ev, req) {
				log.Warn().Msg("integrity check failed")
				return res.fail(OutcomeRejected, domain.ErrSignatureInvalid)
			}
			log.Warn().Err(err).Bool("manual_review", true).Msg("unknown provider status, ignoring")
			return res.fail(OutcomeIgnored, err)
		case errors.Is(err, domain.ErrMalformedPayload):
			log.Warn().Err(err).Msg("malformed notification")
			return res.fail(OutcomeMalformed, err)
		default:
			// timeouts and transport errors towards the provider are retryable
			log.Warn().Err(err).Msg("provider lookup failed, asking for redelivery")
			return res.fail(OutcomeRetry, err)
		}
	}

	if !n.verify(ctx, ev, req) {
		log.Warn().Msg("integrity check failed")
		return res.fail(OutcomeRejected, domain.ErrSignatureInvalid)
	}
	if err := ev.Validate(); err != nil {
		if errors.Is(err, domain.ErrUnknownStatus) {
			log.Warn().Err(err).Bool("manual_review", true).Msg("unknown provider status, ignoring")
			return res.fail(OutcomeIgnored, err)
		}
		log.Warn().Err(err).Msg("event failed validation")
		return res.fail(OutcomeMalformed, err)
	}

	if ev.Status == model.EventStatusPending {
		log.Info().Msg("payment pending, nothing to apply")
		res.Outcome = OutcomeNoOp
		return res
	}

	now := n.now()
	err = n.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return n.apply(ctx, tx, ev, now, res)
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicateEvent):
		log.Info().Msg("duplicate delivery, acknowledging without side effects")
		res.Subscription, res.Transition = nil, TransitionNone
		res.Outcome = OutcomeDuplicate
	case errors.Is(err, domain.ErrReconciliationFailed):
		log.Error().Err(err).Msg("reconciliation failed, recording failed ledger entry")
		res.Subscription, res.Transition = nil, TransitionNone
		if rec, lerr := n.ledger.Record(ctx, repository.NoTX, ev, model.TransactionStatusFailed, nil, now); lerr != nil {
			log.Error().Err(lerr).Msg("ledger write failed as well")
		} else {
			res.Transaction = rec
		}
		return res.fail(OutcomeFailed, err)
	default:
		log.Error().Err(err).Msg("notification transaction failed")
		res.Subscription, res.Transition, res.Transaction = nil, TransitionNone, nil
		return res.fail(OutcomeFailed, err)
	}

	n.complete(ctx, a, ev, &log)
	if res.Outcome == OutcomeApplied {
		n.publish(ctx, res, now, &log)
		log.Info().
			Str("subscription_id", res.Subscription.ID).
			Str("user", logging.Redact(ev.Plan.UserEmail, false)).
			Str("transition", string(res.Transition)).
			Int64("amount_minor", ev.AmountMinorUnits).
			Str("currency", ev.Currency).
			Msg("payment applied")
	}
	return res
}

// apply runs inside one storage transaction. Any error rolls everything back.
func (n *notificationUC) apply(ctx context.Context, tx repository.Tx, ev *model.PaymentEvent, now time.Time, res *NotificationResult) error {
	if err := n.locker.LockKey(ctx, tx, ev.IdempotencyKey()); err != nil {
		return err
	}
	dec, err := n.gate.ShouldApply(ctx, tx, ev)
	if err != nil {
		return err
	}
	if !dec.Apply {
		res.Transaction = dec.Existing
		return domain.ErrDuplicateEvent
	}

	if ev.Status == model.EventStatusFailed {
		rec, err := n.ledger.Record(ctx, tx, ev, model.TransactionStatusFailed, nil, now)
		if err != nil {
			return err
		}
		res.Transaction, res.Outcome = rec, OutcomeDeclined
		return nil
	}

	if err := n.locker.LockKey(ctx, tx, "subscription:"+ev.Plan.UserEmail); err != nil {
		return err
	}
	sub, transition, err := n.reconciler.Apply(ctx, tx, ev, now)
	if err != nil {
		return err
	}
	rec, err := n.ledger.Record(ctx, tx, ev, model.TransactionStatusCompleted, &sub.ID, now)
	if err != nil {
		return err
	}
	res.Subscription, res.Transition, res.Transaction, res.Outcome = sub, transition, rec, OutcomeApplied
	return nil
}

func (n *notificationUC) verify(ctx context.Context, ev *model.PaymentEvent, req *adapter.InboundRequest) bool {
	v, ok := n.verifiers[ev.Provider]
	if !ok || v == nil {
		return false
	}
	return v.Verify(ctx, ev, req)
}

func (n *notificationUC) complete(ctx context.Context, a adapter.ProviderAdapter, ev *model.PaymentEvent, log *zerolog.Logger) {
	c, ok := a.(adapter.Completer)
	if !ok {
		return
	}
	if err := c.Complete(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("releasing per-order state failed")
	}
}

func (n *notificationUC) publish(ctx context.Context, res *NotificationResult, now time.Time, log *zerolog.Logger) {
	if n.publisher == nil {
		return
	}
	sub, ev := res.Subscription, res.Event
	msg := adapter.SubscriptionEvent{
		Type:           "subscription." + string(res.Transition),
		SubscriptionID: sub.ID,
		UserEmail:      sub.UserEmail,
		PlanType:       string(sub.PlanType),
		BillingCycle:   string(sub.BillingCycle),
		ExpireTime:     sub.ExpireTime,
		Provider:       string(ev.Provider),
		ExternalTxnID:  ev.ExternalTxnID,
		OccurredAt:     now,
	}
	if err := n.publisher.PublishSubscriptionEvent(ctx, msg); err != nil {
		log.Warn().Err(err).Msg("subscription event not published")
	}
}

func (r *NotificationResult) fail(o Outcome, err error) *NotificationResult {
	r.Outcome = o
	r.Err = err
	return r
}
