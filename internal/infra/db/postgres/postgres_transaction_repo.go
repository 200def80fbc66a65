package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const transactionColumns = `id, subscription_id, user_email, provider, external_txn_id, gross_amount,
  fee, net_amount, currency, status, payment_time, metadata, created_at`

// Insert appends a ledger row. A failed row for the same provider transaction
// is upgraded in place and keeps its id; a completed one is never touched.
func (r *transactionRepo) Insert(ctx context.Context, tx repository.Tx, t *model.TransactionRecord) error {
	const q = `
INSERT INTO transactions (` + transactionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (provider, external_txn_id) DO UPDATE SET
  subscription_id=EXCLUDED.subscription_id, user_email=EXCLUDED.user_email,
  gross_amount=EXCLUDED.gross_amount, fee=EXCLUDED.fee, net_amount=EXCLUDED.net_amount,
  currency=EXCLUDED.currency, status=EXCLUDED.status, payment_time=EXCLUDED.payment_time,
  metadata=transactions.metadata || EXCLUDED.metadata
 WHERE transactions.status <> 'completed'
RETURNING id, created_at;`

	meta := t.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	row, err := pickRow(ctx, r.pool, tx, q,
		t.ID, t.SubscriptionID, t.UserEmail, string(t.Provider), t.ExternalTxnID, t.GrossAmount,
		t.Fee, t.NetAmount, t.Currency, string(t.Status), t.PaymentTime, meta, t.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return domain.ErrDuplicateEvent
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) FindByExternalID(ctx context.Context, tx repository.Tx, provider model.Provider, externalTxnID string) (*model.TransactionRecord, error) {
	const q = `SELECT ` + transactionColumns + ` FROM transactions WHERE provider=$1 AND external_txn_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, string(provider), externalTxnID)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

// ListByEmail returns the newest records first.
func (r *transactionRepo) ListByEmail(ctx context.Context, tx repository.Tx, email string, limit int) ([]*model.TransactionRecord, error) {
	const q = `SELECT ` + transactionColumns + ` FROM transactions WHERE user_email=$1 ORDER BY id DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, email, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.TransactionRecord
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (*model.TransactionRecord, error) {
	var (
		t                model.TransactionRecord
		provider, status string
	)
	err := row.Scan(&t.ID, &t.SubscriptionID, &t.UserEmail, &provider, &t.ExternalTxnID, &t.GrossAmount,
		&t.Fee, &t.NetAmount, &t.Currency, &status, &t.PaymentTime, &t.Metadata, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Provider = model.Provider(provider)
	t.Status = model.TransactionStatus(status)
	return &t, nil
}
