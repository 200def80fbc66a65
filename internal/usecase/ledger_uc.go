package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/repository"
)

// FeeSchedule is a provider's processing fee: percent in basis points plus a fixed part.
type FeeSchedule struct {
	PercentBps int64
	FixedMinor int64
}

var tenThousand = decimal.NewFromInt(10000)

// Fee returns the fee for gross, rounded half-up and never above gross.
func (f FeeSchedule) Fee(gross int64) int64 {
	if gross <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(gross).
		Mul(decimal.NewFromInt(f.PercentBps)).
		Div(tenThousand).
		Round(0).
		IntPart() + f.FixedMinor
	switch {
	case fee < 0:
		return 0
	case fee > gross:
		return gross
	}
	return fee
}

// PayloadSealer encrypts raw provider payloads before they are stored.
type PayloadSealer interface {
	Encrypt(plaintext string) (string, error)
}

// LedgerWriter appends TransactionRecords.
type LedgerWriter struct {
	txs    repository.TransactionRepository
	fees   map[model.Provider]FeeSchedule
	sealer PayloadSealer // optional
	log    *zerolog.Logger
	newID  func(t time.Time) string
}

func NewLedgerWriter(txs repository.TransactionRepository, fees map[model.Provider]FeeSchedule, sealer PayloadSealer, logger *zerolog.Logger) *LedgerWriter {
	return &LedgerWriter{
		txs:    txs,
		fees:   fees,
		sealer: sealer,
		log:    logger,
		newID: func(t time.Time) string {
			return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
		},
	}
}

// Record writes one ledger row for ev. The returned error is
// domain.ErrDuplicateEvent when a completed row already exists.
func (l *LedgerWriter) Record(ctx context.Context, tx repository.Tx, ev *model.PaymentEvent, status model.TransactionStatus, subscriptionID *string, now time.Time) (*model.TransactionRecord, error) {
	gross := ev.AmountMinorUnits
	fee := l.fees[ev.Provider].Fee(gross)

	rec := &model.TransactionRecord{
		ID:             l.newID(now),
		SubscriptionID: subscriptionID,
		UserEmail:      ev.Plan.UserEmail,
		Provider:       ev.Provider,
		ExternalTxnID:  ev.ExternalTxnID,
		GrossAmount:    gross,
		Fee:            fee,
		NetAmount:      gross - fee,
		Currency:       ev.Currency,
		Status:         status,
		PaymentTime:    now,
		Metadata:       l.metadata(ev),
		CreatedAt:      now,
	}
	if err := l.txs.Insert(ctx, tx, rec); err != nil {
		return nil, fmt.Errorf("ledger insert: %w", err)
	}
	return rec, nil
}

func (l *LedgerWriter) metadata(ev *model.PaymentEvent) map[string]interface{} {
	md := map[string]interface{}{
		"event_status": string(ev.Status),
	}
	if ev.ExternalOrderID != "" {
		md["external_order_id"] = ev.ExternalOrderID
	}
	if ev.PaymentMethod != "" {
		md["payment_method"] = ev.PaymentMethod
	}
	if ev.BuyerIdentifier != "" {
		md["buyer"] = ev.BuyerIdentifier
	}
	if ev.ReviewReason != "" {
		md["manual_review"] = true
		md["review_reason"] = ev.ReviewReason
	}
	if ev.Plan.PlanType != "" {
		md["plan_type"] = string(ev.Plan.PlanType)
		md["billing_cycle"] = string(ev.Plan.BillingCycle)
	}
	if l.sealer != nil && len(ev.RawPayload) > 0 {
		enc, err := l.sealer.Encrypt(string(ev.RawPayload))
		if err != nil {
			l.log.Warn().Err(err).Str("provider", string(ev.Provider)).Msg("raw payload not sealed")
		} else {
			md["raw_payload_enc"] = enc
		}
	}
	return md
}
