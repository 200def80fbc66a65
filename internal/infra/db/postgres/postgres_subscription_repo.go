package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_email, plan_type, billing_cycle, status, start_time, expire_time,
  auto_renew, next_billing_date, payment_method, provider, last_order_id, created_at, updated_at`

func (r *subscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (user_email) DO UPDATE SET
  plan_type=EXCLUDED.plan_type, billing_cycle=EXCLUDED.billing_cycle, status=EXCLUDED.status,
  start_time=EXCLUDED.start_time, expire_time=EXCLUDED.expire_time, auto_renew=EXCLUDED.auto_renew,
  next_billing_date=EXCLUDED.next_billing_date, payment_method=EXCLUDED.payment_method,
  provider=EXCLUDED.provider, last_order_id=EXCLUDED.last_order_id, updated_at=EXCLUDED.updated_at
RETURNING id, created_at;`

	row, err := pickRow(ctx, r.pool, tx, q,
		s.ID, s.UserEmail, string(s.PlanType), string(s.BillingCycle), string(s.Status),
		s.StartTime, s.ExpireTime, s.AutoRenew, s.NextBillingDate, s.PaymentMethod,
		string(s.Provider), s.LastOrderID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&s.ID, &s.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_email=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, email)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

// ExpireOverdue marks at most limit overdue active rows expired. Rows locked by
// an in-flight reconciliation are skipped and picked up on the next pass.
func (r *subscriptionRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	const q = `
UPDATE subscriptions SET status='expired', updated_at=$1
 WHERE id IN (
   SELECT id FROM subscriptions
    WHERE status='active' AND expire_time < $1
    ORDER BY expire_time
    LIMIT $2
    FOR UPDATE SKIP LOCKED)
RETURNING ` + subscriptionColumns + `;`

	rows, err := queryRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	out := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.SubscriptionStatus(status)] = n
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var (
		s                             model.Subscription
		plan, cycle, status, provider string
	)
	err := row.Scan(&s.ID, &s.UserEmail, &plan, &cycle, &status, &s.StartTime, &s.ExpireTime,
		&s.AutoRenew, &s.NextBillingDate, &s.PaymentMethod, &provider, &s.LastOrderID,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.PlanType = model.PlanType(plan)
	s.BillingCycle = model.BillingCycle(cycle)
	s.Status = model.SubscriptionStatus(status)
	s.Provider = model.Provider(provider)
	return &s, nil
}
