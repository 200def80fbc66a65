package repository

import (
	"context"

	"bookmarks-billing/internal/domain/model"
)

// TransactionRepository is the append-only ledger port.
type TransactionRepository interface {
	// Insert writes a new record. A completed row for the same
	// (provider, external txn id) makes it fail with domain.ErrDuplicateEvent;
	// a failed row is upgraded in place.
	Insert(ctx context.Context, tx Tx, t *model.TransactionRecord) error
	FindByExternalID(ctx context.Context, tx Tx, provider model.Provider, externalTxnID string) (*model.TransactionRecord, error)
	ListByEmail(ctx context.Context, tx Tx, email string, limit int) ([]*model.TransactionRecord, error)
}
