package usecase

import (
	"context"
	"errors"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/repository"
)

const (
	GateReasonNew       = "new"
	GateReasonRetry     = "retry_after_failure"
	GateReasonDuplicate = "duplicate"
)

// GateDecision says whether an event may produce side effects.
type GateDecision struct {
	Apply    bool
	Reason   string
	Existing *model.TransactionRecord
}

// IdempotencyGate looks the ledger up by (provider, external txn id).
// It is only advisory: the unique constraint on the ledger remains the
// authoritative duplicate signal, surfaced by the ledger insert as domain.ErrDuplicateEvent.
type IdempotencyGate struct {
	txs repository.TransactionRepository
}

func NewIdempotencyGate(txs repository.TransactionRepository) *IdempotencyGate {
	return &IdempotencyGate{txs: txs}
}

func (g *IdempotencyGate) ShouldApply(ctx context.Context, tx repository.Tx, ev *model.PaymentEvent) (GateDecision, error) {
	rec, err := g.txs.FindByExternalID(ctx, tx, ev.Provider, ev.ExternalTxnID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return GateDecision{Apply: true, Reason: GateReasonNew}, nil
	case err != nil:
		return GateDecision{}, err
	}
	if rec.Status == model.TransactionStatusCompleted {
		return GateDecision{Apply: false, Reason: GateReasonDuplicate, Existing: rec}, nil
	}
	return GateDecision{Apply: true, Reason: GateReasonRetry, Existing: rec}, nil
}
